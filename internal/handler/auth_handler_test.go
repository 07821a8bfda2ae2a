package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, *model.User, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	currentUserFn    func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

type mockWorkspaceCloser struct {
	closed []string
}

func (m *mockWorkspaceCloser) Close(id string) {
	m.closed = append(m.closed, id)
}

var testAuthConfig = AuthHandlerConfig{
	BaseURL:       "http://localhost:3000",
	SessionMaxAge: 86400,
}

func findResponseCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAuthHandler_Login_RedirectsWithStateCookie(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := NewAuthHandler(svc, &mockWorkspaceCloser{}, testAuthConfig)

	rec := serve(h.Login, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	resp := rec.Result()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if gotState == "" {
		t.Fatal("state should be generated")
	}
	if loc := resp.Header.Get("Location"); !strings.HasSuffix(loc, "state="+gotState) {
		t.Errorf("Location = %q", loc)
	}
	cookie := findResponseCookie(resp, oauthStateCookie)
	if cookie == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if cookie.Value != gotState || !cookie.HttpOnly {
		t.Errorf("cookie = %+v", cookie)
	}
}

func callbackRequest(query, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: stateCookie})
	}
	return req
}

func TestAuthHandler_Callback_Errors(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		stateCookie string
		serviceErr  error
		wantStatus  int
		wantCode    string
	}{
		{"missing state cookie", "code=c&state=s1", "", nil, http.StatusBadRequest, "INVALID_OAUTH_STATE"},
		{"state mismatch", "code=c&state=s1", "s2", nil, http.StatusBadRequest, "INVALID_OAUTH_STATE"},
		{"missing code", "state=s1", "s1", nil, http.StatusBadRequest, "MISSING_AUTHORIZATION_CODE"},
		{"provider failure", "code=c&state=s1", "s1", errors.New("token exchange failed"), http.StatusBadGateway, "AUTHENTICATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(context.Context, string) (*model.Session, *model.User, error) {
					return nil, nil, tt.serviceErr
				},
			}
			h := NewAuthHandler(svc, &mockWorkspaceCloser{}, testAuthConfig)

			rec := serve(h.Callback, callbackRequest(tt.query, tt.stateCookie))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if e := decodeError(t, rec.Body); e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_Callback_Success(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(_ context.Context, code string) (*model.Session, *model.User, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want auth-code", code)
			}
			return &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
				&model.User{ID: "user-1", Name: "Tester"}, nil
		},
	}
	h := NewAuthHandler(svc, &mockWorkspaceCloser{}, testAuthConfig)

	rec := serve(h.Callback, callbackRequest("code=auth-code&state=s1", "s1"))
	resp := rec.Result()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != testAuthConfig.BaseURL {
		t.Errorf("Location = %q, want %q", loc, testAuthConfig.BaseURL)
	}
	session := findResponseCookie(resp, middleware.SessionCookieName)
	if session == nil || session.Value != "session-abc" {
		t.Fatalf("session cookie = %+v", session)
	}
	if session.MaxAge != 86400 || !session.HttpOnly {
		t.Errorf("session cookie attributes = %+v", session)
	}
	if state := findResponseCookie(resp, oauthStateCookie); state == nil || state.MaxAge >= 0 {
		t.Errorf("oauth_state cookie should be cleared, got %+v", state)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(_ context.Context, sessionID string) error {
			loggedOut = sessionID
			return errors.New("db down")
		},
	}
	closer := &mockWorkspaceCloser{}
	h := NewAuthHandler(svc, closer, testAuthConfig)
	ws := newTestRegistry().Open("ws-1")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	rec := serve(h.Logout, inWorkspace(req, ws))
	resp := rec.Result()

	// サービスが失敗してもCookieはクリアする
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if loggedOut != "session-abc" {
		t.Errorf("logged out session = %q", loggedOut)
	}
	if len(closer.closed) != 1 || closer.closed[0] != "ws-1" {
		t.Errorf("closed workspaces = %v, want [ws-1]", closer.closed)
	}
	for _, name := range []string{middleware.SessionCookieName, middleware.WorkspaceCookieName} {
		c := findResponseCookie(resp, name)
		if c == nil || c.MaxAge >= 0 {
			t.Errorf("%s cookie should be cleared, got %+v", name, c)
		}
	}
}

func TestAuthHandler_Session(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(_ context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid" {
				return &model.User{ID: "user-1", Name: "Tester"}, nil
			}
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, &mockWorkspaceCloser{}, testAuthConfig)

	tests := []struct {
		name   string
		cookie string
		want   sessionResponse
	}{
		{"anonymous", "", sessionResponse{FavoritesCount: 1}},
		{"unknown session", "expired", sessionResponse{FavoritesCount: 1}},
		{"logged in", "valid", sessionResponse{Authenticated: true, Name: "Tester", FavoritesCount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestRegistry().Open("ws-1")
			ws.Favorites.Add(testMovie(1, "A"))

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			rec := serve(h.Session, inWorkspace(req, ws))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var got sessionResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("session = %+v, want %+v", got, tt.want)
			}
		})
	}
}
