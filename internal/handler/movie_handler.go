package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moviedeck/internal/catalog"
	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
	"github.com/hitoshi/moviedeck/internal/tmdb"
)

// CatalogServiceInterface はムービーハンドラーが必要とするサービスインターフェース。
// catalog.Serviceが満たす。
type CatalogServiceInterface interface {
	Popular(ctx context.Context, qc *querycache.Cache, page int) querycache.TypedResult[catalog.MoviePage]
	TopRated(ctx context.Context, qc *querycache.Cache, page int) querycache.TypedResult[catalog.MoviePage]
	Search(ctx context.Context, qc *querycache.Cache, query string, page int) querycache.TypedResult[catalog.MoviePage]
	Details(ctx context.Context, qc *querycache.Cache, id int) querycache.TypedResult[*model.MovieDetails]
	SearchPages(qc *querycache.Cache, query string) *catalog.SearchPages
}

// MovieHandler は映画一覧・詳細・検索のHTTPハンドラー。
// 結果はリクエストのワークスペースが持つクエリキャッシュを経由して取得する。
type MovieHandler struct {
	catalog CatalogServiceInterface
	images  ImageLocator
	now     func() time.Time
}

// NewMovieHandler はMovieHandlerを生成する。
func NewMovieHandler(catalog CatalogServiceInterface, images ImageLocator) *MovieHandler {
	return &MovieHandler{
		catalog: catalog,
		images:  images,
		now:     time.Now,
	}
}

// Popular は人気作品一覧を返す。
// GET /api/movies/popular?page=
func (h *MovieHandler) Popular(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, h.catalog.Popular)
}

// TopRated は高評価作品一覧を返す。
// GET /api/movies/top-rated?page=
func (h *MovieHandler) TopRated(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, h.catalog.TopRated)
}

func (h *MovieHandler) servePage(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, qc *querycache.Cache, page int) querycache.TypedResult[catalog.MoviePage],
) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	result := query(r.Context(), ws.Queries, page)
	writeQueryResult(w, stateOf(result), toPageResponse(result.Data, h.images), catalogError, h.now())
}

// Details は映画詳細を返す。
// GET /api/movies/{id}
func (h *MovieHandler) Details(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidMovieIDError(rawID))
		return
	}
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	result := h.catalog.Details(r.Context(), ws.Queries, id)
	var data any
	if result.HasData && result.Data != nil {
		data = toDetailsResponse(result.Data, h.images, ws.Favorites.Contains(id))
	}
	mapErr := func(err error) *model.APIError {
		if tmdb.IsNotFound(err) {
			return model.NewMovieNotFoundError(id)
		}
		return catalogError(err)
	}
	writeQueryResult(w, stateOf(result), data, mapErr, h.now())
}

// Search はキーワード検索の1ページ分を返す。
// 空白のみのクエリはフェッチせず、status=idleの空の結果を返す。
// GET /api/search?query=&page=
func (h *MovieHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("query")
	result := h.catalog.Search(r.Context(), ws.Queries, query, page)
	writeQueryResult(w, stateOf(result), toPageResponse(result.Data, h.images), catalogError, h.now())
}

// searchPagesResponse は無限スクロール検索の蓄積結果。
type searchPagesResponse struct {
	Query        string          `json:"query"`
	Items        []movieResponse `json:"items"`
	PagesLoaded  int             `json:"pages_loaded"`
	TotalResults int             `json:"total_results"`
	HasNextPage  bool            `json:"has_next_page"`
}

// SearchPages は無限スクロール検索の現在の状態を返す。未取得なら1ページ目を取得する。
// GET /api/search/pages?query=
func (h *MovieHandler) SearchPages(w http.ResponseWriter, r *http.Request) {
	h.serveSearchPages(w, r, func(ctx context.Context, q *catalog.SearchPages) querycache.InfiniteResult[catalog.MoviePage, model.Movie] {
		return q.Load(ctx)
	})
}

// SearchNextPage は無限スクロール検索の次のページを取得する。
// 後続ページが無い場合や取得中の場合は現在の状態をそのまま返す。
// POST /api/search/pages/next?query=
func (h *MovieHandler) SearchNextPage(w http.ResponseWriter, r *http.Request) {
	h.serveSearchPages(w, r, func(ctx context.Context, q *catalog.SearchPages) querycache.InfiniteResult[catalog.MoviePage, model.Movie] {
		return q.FetchNextPage(ctx)
	})
}

func (h *MovieHandler) serveSearchPages(
	w http.ResponseWriter,
	r *http.Request,
	run func(ctx context.Context, q *catalog.SearchPages) querycache.InfiniteResult[catalog.MoviePage, model.Movie],
) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("query")
	result := run(r.Context(), h.catalog.SearchPages(ws.Queries, query))

	data := searchPagesResponse{
		Query:       query,
		Items:       toMovieResponses(result.Items, h.images),
		PagesLoaded: len(result.Pages),
		HasNextPage: result.HasNextPage,
	}
	if n := len(result.Pages); n > 0 && result.Pages[n-1] != nil {
		data.TotalResults = result.Pages[n-1].TotalResults
	}
	writeQueryResult(w, stateOfInfinite(result), data, catalogError, h.now())
}

// Image は画像パスとサイズ区分から画像URLを返す。
// GET /api/images?path=&size=
func (h *MovieHandler) Image(w http.ResponseWriter, r *http.Request) {
	sizeName := r.URL.Query().Get("size")
	size := tmdb.SizePosterSmall
	if sizeName != "" {
		parsed, ok := tmdb.ParseImageSize(sizeName)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidImageSizeError(sizeName))
			return
		}
		size = parsed
	}

	path := r.URL.Query().Get("path")
	writeJSON(w, http.StatusOK, map[string]string{
		"url": h.images.ImageURL(path, size),
	})
}

// parsePage はpageクエリパラメータを解析する。省略時は1。
// 不正な値の場合はエラーレスポンスを書き込んでfalseを返す。
func parsePage(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPageError(raw))
		return 0, false
	}
	return page, true
}
