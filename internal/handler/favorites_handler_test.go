package handler

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/workspace"
)

func toggleRequest(t *testing.T, ws *workspace.Workspace, userID string, body any) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/favorites/toggle", jsonBody(body))
	req.Header.Set("Content-Type", "application/json")
	req = inWorkspace(req, ws)
	if userID != "" {
		req = asUser(req, userID)
	}
	return req
}

func TestFavoritesHandler_Toggle_RequiresLogin(t *testing.T) {
	metrics := &mockFavoritesRecorder{}
	h := NewFavoritesHandler(fakeImages{}, metrics)
	ws := newTestRegistry().Open("ws-1")

	rec := serve(h.Toggle, toggleRequest(t, ws, "", map[string]any{"id": 27205, "title": "Inception"}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if e := decodeError(t, rec.Body); e.Code != model.ErrCodeAuthorizationRequired {
		t.Errorf("code = %q, want %q", e.Code, model.ErrCodeAuthorizationRequired)
	}
	if ws.Favorites.Len() != 0 {
		t.Error("favorites should be unchanged")
	}
	if got := metrics.count("rejected"); got != 1 {
		t.Errorf("rejected count = %d, want 1", got)
	}
}

func TestFavoritesHandler_Toggle_AddThenRemove(t *testing.T) {
	h := NewFavoritesHandler(fakeImages{}, nil)
	ws := newTestRegistry().Open("ws-1")
	movie := map[string]any{"id": 27205, "title": "Inception", "poster_path": "/inception.jpg"}

	rec := serve(h.Toggle, toggleRequest(t, ws, "user-1", movie))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var added toggleResponse
	if err := json.NewDecoder(rec.Body).Decode(&added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !added.Added || added.Count != 1 {
		t.Errorf("response = %+v, want added with count 1", added)
	}
	if added.Message != "「Inception」をお気に入りに追加しました" {
		t.Errorf("message = %q", added.Message)
	}
	if got := ws.Favorites.List(); len(got) != 1 || got[0].PosterPath != "/inception.jpg" {
		t.Errorf("favorites = %+v", got)
	}

	rec = serve(h.Toggle, toggleRequest(t, ws, "user-1", movie))
	var removed toggleResponse
	if err := json.NewDecoder(rec.Body).Decode(&removed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if removed.Added || removed.Count != 0 {
		t.Errorf("response = %+v, want removed with count 0", removed)
	}
	if removed.Message != "「Inception」をお気に入りから削除しました" {
		t.Errorf("message = %q", removed.Message)
	}
}

func TestFavoritesHandler_Toggle_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"id":`},
		{"missing id", `{"title":"Inception"}`},
		{"negative id", `{"id":-1,"title":"Inception"}`},
		{"blank title", `{"id":27205,"title":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewFavoritesHandler(fakeImages{}, nil)
			ws := newTestRegistry().Open("ws-1")

			req := httptest.NewRequest(http.MethodPost, "/api/favorites/toggle", strings.NewReader(tt.body))
			req = asUser(inWorkspace(req, ws), "user-1")
			rec := serve(h.Toggle, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if e := decodeError(t, rec.Body); e.Code != model.ErrCodeInvalidMovie {
				t.Errorf("code = %q, want %q", e.Code, model.ErrCodeInvalidMovie)
			}
		})
	}
}

func TestFavoritesHandler_List(t *testing.T) {
	h := NewFavoritesHandler(fakeImages{}, nil)
	ws := newTestRegistry().Open("ws-1")
	ws.Favorites.Add(testMovie(2, "Second"))
	ws.Favorites.Add(testMovie(1, "First"))

	// ログインしていなくても参照できる
	rec := serve(h.List, inWorkspace(httptest.NewRequest(http.MethodGet, "/api/favorites", nil), ws))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp favoritesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Favorites) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Favorites[0].ID != 2 || resp.Favorites[1].ID != 1 {
		t.Errorf("order = [%d %d], want insertion order [2 1]", resp.Favorites[0].ID, resp.Favorites[1].ID)
	}
}

func TestFavoritesHandler_List_EmptyIsArray(t *testing.T) {
	h := NewFavoritesHandler(fakeImages{}, nil)
	ws := newTestRegistry().Open("ws-1")

	rec := serve(h.List, inWorkspace(httptest.NewRequest(http.MethodGet, "/api/favorites", nil), ws))

	if !strings.Contains(rec.Body.String(), `"favorites":[]`) {
		t.Errorf("body = %s, want empty favorites array", rec.Body.String())
	}
}

func TestFavoritesHandler_Events(t *testing.T) {
	h := NewFavoritesHandler(fakeImages{}, nil)
	ws := newTestRegistry().Open("ws-1")
	ws.Favorites.Add(testMovie(1, "First"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Events(w, inWorkspace(r, ws))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan favoritesResponse, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev favoritesResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err == nil {
				events <- ev
			}
		}
		close(events)
	}()

	next := func() favoritesResponse {
		t.Helper()
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
		return favoritesResponse{}
	}

	if initial := next(); initial.Count != 1 {
		t.Errorf("initial count = %d, want 1", initial.Count)
	}

	ws.Favorites.Toggle(testMovie(2, "Second"))
	updated := next()
	if updated.Count != 2 || updated.Favorites[1].ID != 2 {
		t.Errorf("updated event = %+v", updated)
	}
}
