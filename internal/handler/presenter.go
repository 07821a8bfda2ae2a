package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosimple/slug"

	"github.com/hitoshi/moviedeck/internal/middleware"
	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
	"github.com/hitoshi/moviedeck/internal/tmdb"
)

// ImageLocator は画像パスからURLを組み立てる。tmdb.Clientが満たす。
type ImageLocator interface {
	ImageURL(path string, size tmdb.ImageSize) string
}

// queryResponse はクエリキャッシュの状態を含むAPIレスポンス。
type queryResponse struct {
	Data       any                            `json:"data"`
	Status     string                         `json:"status"`
	IsLoading  bool                           `json:"is_loading"`
	IsFetching bool                           `json:"is_fetching"`
	Error      *middleware.ErrorResponseBody `json:"error"`
	UpdatedAt  *time.Time                     `json:"updated_at"`
	Updated    string                         `json:"updated,omitempty"` // 「3 minutes ago」形式
}

// queryState はTypedResultとInfiniteResultに共通する状態。
type queryState struct {
	status     querycache.Status
	hasData    bool
	err        error
	isLoading  bool
	isFetching bool
	updatedAt  time.Time
}

func stateOf[T any](r querycache.TypedResult[T]) queryState {
	return queryState{
		status:     r.Status,
		hasData:    r.HasData,
		err:        r.Err,
		isLoading:  r.IsLoading,
		isFetching: r.IsFetching,
		updatedAt:  r.UpdatedAt,
	}
}

func stateOfInfinite[P, T any](r querycache.InfiniteResult[P, T]) queryState {
	return queryState{
		status:     r.Status,
		hasData:    len(r.Pages) > 0,
		err:        r.Err,
		isLoading:  r.IsLoading,
		isFetching: r.IsFetching,
		updatedAt:  r.UpdatedAt,
	}
}

// writeQueryResult はクエリ結果をレスポンスとして書き込む。
// 提供できるデータが無いままフェッチに失敗した場合はエラーに応じたステータスを返し、
// 古いデータがある場合は200でエラー欄のみ埋める。
func writeQueryResult(w http.ResponseWriter, st queryState, data any, mapErr func(error) *model.APIError, now time.Time) {
	resp := queryResponse{
		Status:     st.status.String(),
		IsLoading:  st.isLoading,
		IsFetching: st.isFetching,
	}
	if st.hasData {
		resp.Data = data
	}
	if !st.updatedAt.IsZero() {
		updated := st.updatedAt
		resp.UpdatedAt = &updated
		resp.Updated = humanize.RelTime(updated, now, "ago", "from now")
	}

	statusCode := http.StatusOK
	if st.err != nil {
		apiErr := mapErr(st.err)
		resp.Error = &middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
		if !st.hasData {
			statusCode = mapAPIErrorToHTTPStatus(apiErr)
		}
	}
	writeJSON(w, statusCode, resp)
}

// catalogError はカタログ取得の失敗をユーザー向けのAPIErrorに変換する。
func catalogError(err error) *model.APIError {
	if tmdb.IsNotConfigured(err) {
		return model.NewCatalogNotConfiguredError()
	}
	var rce *tmdb.RemoteCatalogError
	if errors.As(err, &rce) {
		return model.NewCatalogUnavailableError(rce.Status)
	}
	return model.NewCatalogUnavailableError("通信に失敗しました")
}

// movieResponse は映画サマリーのAPIレスポンス。お気に入り操作のリクエストボディも兼ねる。
type movieResponse struct {
	ID              int     `json:"id"`
	Title           string  `json:"title"`
	Overview        string  `json:"overview"`
	PosterPath      string  `json:"poster_path"`
	BackdropPath    string  `json:"backdrop_path"`
	PosterURL       string  `json:"poster_url,omitempty"`
	BackdropURL     string  `json:"backdrop_url,omitempty"`
	VoteAverage     float64 `json:"vote_average"`
	VoteCount       int     `json:"vote_count"`
	ReleaseDate     string  `json:"release_date"`
	ReleaseDateText string  `json:"release_date_text,omitempty"`
	Popularity      float64 `json:"popularity"`
	GenreIDs        []int   `json:"genre_ids"`
}

// toModel はリクエストボディをドメインモデルに変換する。
func (m movieResponse) toModel() model.Movie {
	return model.Movie{
		ID:           m.ID,
		Title:        m.Title,
		Overview:     m.Overview,
		PosterPath:   m.PosterPath,
		BackdropPath: m.BackdropPath,
		VoteAverage:  m.VoteAverage,
		VoteCount:    m.VoteCount,
		ReleaseDate:  m.ReleaseDate,
		Popularity:   m.Popularity,
		GenreIDs:     m.GenreIDs,
	}
}

func toMovieResponse(m model.Movie, images ImageLocator) movieResponse {
	genreIDs := m.GenreIDs
	if genreIDs == nil {
		genreIDs = []int{}
	}
	return movieResponse{
		ID:              m.ID,
		Title:           m.Title,
		Overview:        m.Overview,
		PosterPath:      m.PosterPath,
		BackdropPath:    m.BackdropPath,
		PosterURL:       images.ImageURL(m.PosterPath, tmdb.SizePosterSmall),
		BackdropURL:     images.ImageURL(m.BackdropPath, tmdb.SizeBackdrop),
		VoteAverage:     m.VoteAverage,
		VoteCount:       m.VoteCount,
		ReleaseDate:     m.ReleaseDate,
		ReleaseDateText: formatReleaseDate(m.ReleaseDate),
		Popularity:      m.Popularity,
		GenreIDs:        genreIDs,
	}
}

func toMovieResponses(movies []model.Movie, images ImageLocator) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for _, m := range movies {
		out = append(out, toMovieResponse(m, images))
	}
	return out
}

// pageResponse は一覧1ページ分のAPIレスポンス。
type pageResponse struct {
	Page         int             `json:"page"`
	Results      []movieResponse `json:"results"`
	TotalPages   int             `json:"total_pages"`
	TotalResults int             `json:"total_results"`
	HasNext      bool            `json:"has_next"`
}

func toPageResponse(p *model.Page[model.Movie], images ImageLocator) pageResponse {
	if p == nil {
		return pageResponse{Results: []movieResponse{}}
	}
	return pageResponse{
		Page:         p.Page,
		Results:      toMovieResponses(p.Results, images),
		TotalPages:   p.TotalPages,
		TotalResults: p.TotalResults,
		HasNext:      p.HasNext(),
	}
}

type genreResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// detailsResponse は映画詳細のAPIレスポンス。
type detailsResponse struct {
	movieResponse

	Slug        string          `json:"slug"`
	Runtime     int             `json:"runtime"`
	RuntimeText string          `json:"runtime_text,omitempty"`
	Tagline     string          `json:"tagline"`
	Status      string          `json:"status"`
	Genres      []genreResponse `json:"genres"`
	Budget      int64           `json:"budget"`
	BudgetText  string          `json:"budget_text,omitempty"`
	Revenue     int64           `json:"revenue"`
	RevenueText string          `json:"revenue_text,omitempty"`
	Homepage    string          `json:"homepage"`
	IMDBID      string          `json:"imdb_id"`
	IsFavorite  bool            `json:"is_favorite"`
}

func toDetailsResponse(d *model.MovieDetails, images ImageLocator, isFavorite bool) detailsResponse {
	genres := make([]genreResponse, 0, len(d.Genres))
	for _, g := range d.Genres {
		genres = append(genres, genreResponse{ID: g.ID, Name: g.Name})
	}
	return detailsResponse{
		movieResponse: toMovieResponse(d.Movie, images),
		Slug:          movieSlug(d.ID, d.Title),
		Runtime:       d.Runtime,
		RuntimeText:   formatRuntime(d.Runtime),
		Tagline:       d.Tagline,
		Status:        d.Status,
		Genres:        genres,
		Budget:        d.Budget,
		BudgetText:    formatMoney(d.Budget),
		Revenue:       d.Revenue,
		RevenueText:   formatMoney(d.Revenue),
		Homepage:      d.Homepage,
		IMDBID:        d.IMDBID,
		IsFavorite:    isFavorite,
	}
}

// movieSlug は「27205-inception」形式のURL用スラッグを返す。
func movieSlug(id int, title string) string {
	s := slug.Make(title)
	if s == "" {
		return strconv.Itoa(id)
	}
	return strconv.Itoa(id) + "-" + s
}

// formatRuntime は上映時間（分）を「2h 19m」形式にする。不明の場合は空文字。
func formatRuntime(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// formatMoney は金額を「$160,000,000」形式にする。0は不明として空文字を返す。
func formatMoney(amount int64) string {
	if amount <= 0 {
		return ""
	}
	return "$" + humanize.Comma(amount)
}

// formatReleaseDate はISO日付を「July 16, 2010」形式にする。解釈できない場合は空文字。
func formatReleaseDate(date string) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return ""
	}
	return t.Format("January 2, 2006")
}
