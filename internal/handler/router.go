package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moviedeck/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Workspace         middleware.WorkspaceConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Workspaces  WorkspaceCloser

	// カタログ
	Catalog CatalogServiceInterface
	Images  ImageLocator

	// お気に入り
	FavoritesMetrics FavoritesRecorder

	// 運用
	DB             Pinger
	CatalogStatus  CatalogStatus
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	  → Workspace → OptionalSession → CSRF → RateLimit(General)
//
// OAuthフロー（/auth/google/*）と運用エンドポイントはワークスペースの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Workspaces, deps.AuthConfig)
	movieHandler := NewMovieHandler(deps.Catalog, deps.Images)
	favoritesHandler := NewFavoritesHandler(deps.Images, deps.FavoritesMetrics)

	// --- 運用 ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.DB, deps.CatalogStatus))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- OAuthフロー ---
	r.Get("/auth/google/login", authHandler.Login)
	r.Get("/auth/google/callback", authHandler.Callback)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- ワークスペースに属するルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewWorkspaceMiddleware(deps.Workspace))
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/session", authHandler.Session)
		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/api", func(r chi.Router) {
			r.Route("/movies", func(r chi.Router) {
				r.Get("/popular", movieHandler.Popular)
				r.Get("/top-rated", movieHandler.TopRated)
				r.Get("/{id}", movieHandler.Details)
			})

			r.Get("/search", movieHandler.Search)
			r.Get("/search/pages", movieHandler.SearchPages)
			r.Post("/search/pages/next", movieHandler.SearchNextPage)

			r.Get("/images", movieHandler.Image)

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", favoritesHandler.List)
				r.Get("/events", favoritesHandler.Events)
				// POST /api/favorites/toggle - お気に入り操作専用のレート制限を追加
				r.With(deps.RateLimiter.FavoritesMiddleware()).Post("/toggle", favoritesHandler.Toggle)
			})
		})
	})

	return r
}
