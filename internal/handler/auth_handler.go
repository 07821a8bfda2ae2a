package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moviedeck/internal/auth"
	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// WorkspaceCloser はログアウト時にワークスペースを破棄する。workspace.Registryが満たす。
type WorkspaceCloser interface {
	Close(id string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service    AuthServiceInterface
	workspaces WorkspaceCloser
	config     AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, workspaces WorkspaceCloser, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:    service,
		workspaces: workspaces,
		config:     config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateToken(16)
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_OAUTH_STATE",
			Message:  "ログイン要求の検証に失敗しました。",
			Category: "auth",
			Action:   "もう一度ログインしてください。",
		})
		return
	}
	h.clearCookie(w, oauthStateCookie, "")

	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_AUTHORIZATION_CODE",
			Message:  "認可コードがありません。",
			Category: "auth",
			Action:   "もう一度ログインしてください。",
		})
		return
	}

	session, user, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "AUTHENTICATION_FAILED",
			Message:  "Googleでのログインに失敗しました。",
			Category: "auth",
			Action:   "しばらく待ってから再度ログインしてください。",
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("user logged in", slog.String("user_id", user.ID))

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄し、ワークスペース（お気に入りとキャッシュ）も破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			// ログアウトに失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	if ws, ok := middleware.WorkspaceFromContext(r.Context()); ok {
		h.workspaces.Close(ws.ID)
	}

	h.clearCookie(w, middleware.SessionCookieName, h.config.CookieDomain)
	middleware.ClearWorkspaceCookie(w, h.config.CookieSecure, h.config.CookieDomain)

	w.WriteHeader(http.StatusNoContent)
}

// sessionResponse はログイン状態のAPIレスポンス。
type sessionResponse struct {
	Authenticated  bool   `json:"authenticated"`
	Name           string `json:"name"`
	FavoritesCount int    `json:"favorites_count"`
}

// Session は現在のログイン状態とお気に入り件数を返す。未ログインでも200を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	if ws, ok := middleware.WorkspaceFromContext(r.Context()); ok {
		resp.FavoritesCount = ws.Favorites.Len()
	}

	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		user, err := h.service.CurrentUser(r.Context(), cookie.Value)
		if err != nil {
			slog.Error("failed to get current user", slog.String("error", err.Error()))
		} else if user != nil {
			resp.Authenticated = true
			resp.Name = user.Name
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
