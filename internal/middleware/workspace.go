package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/moviedeck/internal/workspace"
)

// WorkspaceCookieName はワークスペースIDを署名付きで保持するCookieの名前。
const WorkspaceCookieName = "client_id"

// WorkspaceTokens はワークスペースIDとCookie値の相互変換を行う。
// workspace.TokenSignerが満たす。
type WorkspaceTokens interface {
	Sign(workspaceID string) (string, error)
	Parse(token string) (string, error)
}

// WorkspaceOpener はIDからワークスペースを取得または作成する。
// workspace.Registryが満たす。
type WorkspaceOpener interface {
	Open(id string) *workspace.Workspace
}

// WorkspaceConfig はワークスペースミドルウェアの設定。
type WorkspaceConfig struct {
	Tokens       WorkspaceTokens
	Workspaces   WorkspaceOpener
	CookieSecure bool
	CookieDomain string
	MaxAge       time.Duration
}

// NewWorkspaceMiddleware はclient_id Cookieからワークスペースを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い・改ざんされている・期限切れの場合は新しいワークスペースを作成してCookieを発行する。
func NewWorkspaceMiddleware(config WorkspaceConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(WorkspaceCookieName); err == nil && cookie.Value != "" {
				parsed, err := config.Tokens.Parse(cookie.Value)
				if err != nil {
					slog.Debug("discarding workspace cookie",
						slog.String("error", err.Error()),
					)
				} else {
					id = parsed
				}
			}

			ws := config.Workspaces.Open(id)
			if ws.ID != id {
				token, err := config.Tokens.Sign(ws.ID)
				if err != nil {
					slog.Error("failed to sign workspace cookie", slog.String("error", err.Error()))
					WriteInternalServerError(w)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     WorkspaceCookieName,
					Value:    token,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   int(config.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(ContextWithWorkspace(r.Context(), ws)))
		})
	}
}

// ClearWorkspaceCookie はclient_id Cookieを削除するSet-Cookieを書き込む。
func ClearWorkspaceCookie(w http.ResponseWriter, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     WorkspaceCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// WorkspaceFromContext はリクエストコンテキストからワークスペースを取得する。
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, bool) {
	ws, ok := ctx.Value(workspaceContextKey).(*workspace.Workspace)
	return ws, ok && ws != nil
}

// ContextWithWorkspace はコンテキストにワークスペースを注入する。
func ContextWithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	annotateWorkspaceID(ctx, ws.ID)
	return context.WithValue(ctx, workspaceContextKey, ws)
}
