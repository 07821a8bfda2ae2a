package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/moviedeck/internal/auth"
	"github.com/hitoshi/moviedeck/internal/catalog"
	"github.com/hitoshi/moviedeck/internal/config"
	"github.com/hitoshi/moviedeck/internal/database"
	"github.com/hitoshi/moviedeck/internal/handler"
	"github.com/hitoshi/moviedeck/internal/logger"
	"github.com/hitoshi/moviedeck/internal/metrics"
	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/querycache"
	"github.com/hitoshi/moviedeck/internal/repository"
	"github.com/hitoshi/moviedeck/internal/security"
	"github.com/hitoshi/moviedeck/internal/tmdb"
	"github.com/hitoshi/moviedeck/internal/worker/cleanup"
	"github.com/hitoshi/moviedeck/internal/workspace"
)

const (
	// workspaceJanitorInterval はアイドルワークスペースとキャッシュエントリを掃除する間隔。
	workspaceJanitorInterval = 5 * time.Minute
	shutdownTimeout          = 30 * time.Second
	dbPingTimeout            = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば環境変数に読み込み、JSON構造化ログをセットアップしてConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既に設定済みの環境変数は上書きしない）
	envErr := godotenv.Load()

	// 2. ログの初期化（LOG_LEVELは.envからも指定できる）
	logger.SetupDefault(w)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.String("error", envErr.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, warning := range cfg.Warnings() {
		slog.Warn("degraded configuration", slog.String("warning", warning))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMで終了する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はctxがキャンセルされるまでサブコマンドを実行する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		action, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, action)
	default:
		return runServe(ctx, cfg)
	}
}

// stores はユーザーとセッションの保存先。dbはインメモリ構成ではnil。
type stores struct {
	db         *sql.DB
	users      repository.UserRepository
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
}

func (s *stores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// openStores はDATABASE_URLが設定されていればPostgreSQL、なければメモリのリポジトリを返す。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.DatabaseURL == "" {
		users := repository.NewMemoryUserRepo()
		return &stores{
			users:      users,
			identities: users,
			sessions:   repository.NewMemorySessionRepo(),
		}, nil
	}

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		db:         db,
		users:      repository.NewPostgresUserRepo(db),
		identities: repository.NewPostgresIdentityRepo(db),
		sessions:   repository.NewPostgresSessionRepo(db),
	}, nil
}

func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)
	return db, nil
}

// newCatalogClient はTMDBクライアントを生成する。
// 送信先はEgressGuardで検証し、内部ネットワークへの接続を拒否するHTTPクライアントを使う。
func newCatalogClient(cfg *config.Config, guard security.EgressGuard, recorder tmdb.MetricsRecorder) (*tmdb.Client, error) {
	if err := guard.ValidateEndpoint(cfg.TMDBBaseURL); err != nil {
		return nil, fmt.Errorf("invalid TMDB_BASE_URL: %w", err)
	}
	if err := guard.ValidateEndpoint(cfg.TMDBImageBaseURL); err != nil {
		return nil, fmt.Errorf("invalid TMDB_IMAGE_BASE_URL: %w", err)
	}

	return tmdb.NewClient(tmdb.Config{
		APIKey:            cfg.TMDBAPIKey,
		BaseURL:           cfg.TMDBBaseURL,
		ImageBaseURL:      cfg.TMDBImageBaseURL,
		Timeout:           cfg.TMDBTimeout,
		RequestsPerSecond: cfg.TMDBRateLimit,
		MaxResponseBytes:  cfg.TMDBMaxResponseSize,
		HTTPClient:        guard.NewSafeClient(cfg.TMDBTimeout),
		Logger:            slog.Default(),
		Metrics:           recorder,
		Sanitizer:         security.NewTextSanitizer(),
	}), nil
}

// APIKeySetter は実行中にTMDB APIキーを差し替える。tmdb.Clientが満たす。
type APIKeySetter interface {
	SetAPIKey(key string)
}

// applyFileConfig は再読み込みした設定ファイルのAPIキーを反映する。
// TMDB_API_KEY環境変数が設定されている場合は環境変数を優先し、何もしない。
func applyFileConfig(client APIKeySetter, fc *config.FileConfig) bool {
	if os.Getenv("TMDB_API_KEY") != "" {
		return false
	}
	client.SetAPIKey(fc.TMDB.APIKey)
	if fc.TMDB.APIKey == "" {
		slog.Warn("TMDB API key was removed from the config file")
	}
	return true
}

// newMetrics はGo runtimeとプロセスのメトリクスを含むレジストリを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. メトリクス
	reg, collector := newMetrics()

	// 2. リポジトリ
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 3. カタログクライアント
	catalogClient, err := newCatalogClient(cfg, security.NewEgressGuard(), collector)
	if err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		go func() {
			err := config.Watch(ctx, cfg.ConfigFile, slog.Default(), func(fc *config.FileConfig) {
				applyFileConfig(catalogClient, fc)
			})
			if err != nil {
				slog.Error("config watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	// 4. ワークスペース
	registry := workspace.NewRegistry(workspace.Config{
		IdleTimeout: cfg.WorkspaceIdleTimeout,
		Cache: querycache.Config{
			StaleTime: cfg.QueryStaleTime,
			GCTime:    cfg.QueryGCTime,
			Metrics:   collector,
		},
		FavoritesMetrics: collector,
		Metrics:          collector,
		Logger:           slog.Default(),
	})
	registry.StartJanitor(ctx, workspaceJanitorInterval)
	defer registry.Stop()

	// 5. 認証
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, st.users, st.identities, st.sessions,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		slog.Default(),
	)

	// インメモリ構成ではworkerプロセスがセッションを参照できないため、ここで掃除する
	if st.db == nil {
		job := cleanup.NewCleanupJob(st.sessions, slog.Default(), collector)
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitFavorites))
	defer rateLimiter.Stop()

	var pinger handler.Pinger
	if st.db != nil {
		pinger = st.db
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     st.sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Workspace: middleware.WorkspaceConfig{
			Tokens:       workspace.NewTokenSigner(cfg.SessionSecret, cfg.WorkspaceIdleTimeout),
			Workspaces:   registry,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.WorkspaceIdleTimeout,
		},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Workspaces: registry,

		Catalog:          catalog.NewService(catalogClient),
		Images:           catalogClient,
		FavoritesMetrics: collector,

		DB:             pinger,
		CatalogStatus:  catalogClient,
		MetricsHandler: metrics.Handler(reg),
	})

	// 7. HTTPサーバー
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /api/favorites/events はレスポンスを書き続けるため書き込みタイムアウトは設定しない
		IdleTimeout: 60 * time.Second,
	}

	return serveUntilDone(ctx, server)
}

// serveUntilDone はサーバーを起動し、ctxのキャンセルでグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除を定期実行し、ctxがキャンセルされると終了する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("worker requires DATABASE_URL: in-memory sessions are cleaned up by the serve process")
	}

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), nil)

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("action", action.Name),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action.Name {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, action.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.Version(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
