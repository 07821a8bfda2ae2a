package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/moviedeck/internal/catalog"
	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
	"github.com/hitoshi/moviedeck/internal/tmdb"
	"github.com/hitoshi/moviedeck/internal/workspace"
)

// --- モック定義 ---

type mockCatalogClient struct {
	calls         atomic.Int32
	fetchPopular  func(ctx context.Context, page int) (*model.Page[model.Movie], error)
	fetchTopRated func(ctx context.Context, page int) (*model.Page[model.Movie], error)
	search        func(ctx context.Context, query string, page int) (*model.Page[model.Movie], error)
	fetchDetails  func(ctx context.Context, id int) (*model.MovieDetails, error)
}

var errNotConfigured = errors.New("mock not configured")

func (m *mockCatalogClient) FetchPopular(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	m.calls.Add(1)
	if m.fetchPopular != nil {
		return m.fetchPopular(ctx, page)
	}
	return nil, errNotConfigured
}

func (m *mockCatalogClient) FetchTopRated(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	m.calls.Add(1)
	if m.fetchTopRated != nil {
		return m.fetchTopRated(ctx, page)
	}
	return nil, errNotConfigured
}

func (m *mockCatalogClient) Search(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
	m.calls.Add(1)
	if m.search != nil {
		return m.search(ctx, query, page)
	}
	return nil, errNotConfigured
}

func (m *mockCatalogClient) FetchDetails(ctx context.Context, id int) (*model.MovieDetails, error) {
	m.calls.Add(1)
	if m.fetchDetails != nil {
		return m.fetchDetails(ctx, id)
	}
	return nil, errNotConfigured
}

// fakeImages はサイズとパスをそのまま連結したURLを返す。
type fakeImages struct{}

func (fakeImages) ImageURL(path string, size tmdb.ImageSize) string {
	return tmdb.ImageURL("https://img.test", path, size)
}

type mockFavoritesRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockFavoritesRecorder) RecordFavoriteChange(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func (m *mockFavoritesRecorder) count(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.actions {
		if a == action {
			n++
		}
	}
	return n
}

// --- フィクスチャ ---

func testMovie(id int, title string) model.Movie {
	return model.Movie{ID: id, Title: title, PosterPath: "/p" + title + ".jpg", ReleaseDate: "2010-07-16"}
}

func testPage(page, totalPages int, movies ...model.Movie) *model.Page[model.Movie] {
	return &model.Page[model.Movie]{
		Page:         page,
		Results:      movies,
		TotalPages:   totalPages,
		TotalResults: totalPages * len(movies),
	}
}

func newTestRegistry() *workspace.Registry {
	return workspace.NewRegistry(workspace.Config{
		IdleTimeout: time.Hour,
		Cache:       querycache.Config{StaleTime: time.Hour, GCTime: 10 * time.Minute},
	})
}

// inWorkspace はワークスペースミドルウェアを通過した状態のリクエストを作る。
func inWorkspace(r *http.Request, ws *workspace.Workspace) *http.Request {
	return r.WithContext(middleware.ContextWithWorkspace(r.Context(), ws))
}

// asUser はセッションミドルウェアを通過した状態のリクエストを作る。
func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func newMovieHandlerForTest(client *mockCatalogClient) *MovieHandler {
	return NewMovieHandler(catalog.NewService(client), fakeImages{})
}

// decodeQuery はクエリ結果のレスポンスを解析する。dataはoutへデコードする。
func decodeQuery(t *testing.T, body io.Reader, out any) queryResponseJSON {
	t.Helper()
	var raw struct {
		queryResponseJSON
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	raw.queryResponseJSON.DataIsNull = len(raw.Data) == 0 || string(raw.Data) == "null"
	if out != nil && !raw.queryResponseJSON.DataIsNull {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return raw.queryResponseJSON
}

type queryResponseJSON struct {
	Status     string                         `json:"status"`
	IsLoading  bool                           `json:"is_loading"`
	IsFetching bool                           `json:"is_fetching"`
	Error      *middleware.ErrorResponseBody `json:"error"`
	UpdatedAt  *time.Time                     `json:"updated_at"`
	DataIsNull bool                           `json:"-"`
}

func decodeError(t *testing.T, body io.Reader) middleware.ErrorResponseBody {
	t.Helper()
	var e middleware.ErrorResponseBody
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return e
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return strings.NewReader(string(b))
}

func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, r)
	return w
}
