// Package catalog はリモートカタログの各リソースをクエリキャッシュ経由で取得する。
package catalog

import (
	"context"
	"strings"

	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
)

// MoviePage はカタログの映画一覧1ページ分。
type MoviePage = *model.Page[model.Movie]

// SearchPages は検索結果の無限スクロールクエリ。
type SearchPages = querycache.Infinite[MoviePage, model.Movie]

// Client はリモートカタログへのアクセスを抽象化するインターフェース。
type Client interface {
	FetchPopular(ctx context.Context, page int) (*model.Page[model.Movie], error)
	FetchTopRated(ctx context.Context, page int) (*model.Page[model.Movie], error)
	Search(ctx context.Context, query string, page int) (*model.Page[model.Movie], error)
	FetchDetails(ctx context.Context, id int) (*model.MovieDetails, error)
}

// Service はクエリKeyとフェッチ関数の対応を束ねる。
// キャッシュはワークスペースごとに異なるため、各メソッドの引数で受け取る。
type Service struct {
	client Client
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(client Client) *Service {
	return &Service{client: client}
}

// PopularKey は人気作品一覧のKey。
func PopularKey(page int) querycache.Key {
	return querycache.NewKey("movies", "popular", page)
}

// TopRatedKey は高評価作品一覧のKey。
func TopRatedKey(page int) querycache.Key {
	return querycache.NewKey("movies", "topRated", page)
}

// SearchKey は検索結果1ページ分のKey。
func SearchKey(query string, page int) querycache.Key {
	return querycache.NewKey("movies", "search", query, page)
}

// DetailsKey は映画詳細のKey。
func DetailsKey(id int) querycache.Key {
	return querycache.NewKey("movies", "details", id)
}

// SearchPagesKey は無限スクロール検索のKey。
func SearchPagesKey(query string) querycache.Key {
	return querycache.NewKey("movies", "searchPages", query)
}

// Popular は人気作品一覧を取得する。
func (s *Service) Popular(ctx context.Context, qc *querycache.Cache, page int) querycache.TypedResult[MoviePage] {
	return querycache.Query(ctx, qc, PopularKey(page), func(ctx context.Context) (MoviePage, error) {
		return s.client.FetchPopular(ctx, page)
	})
}

// TopRated は高評価作品一覧を取得する。
func (s *Service) TopRated(ctx context.Context, qc *querycache.Cache, page int) querycache.TypedResult[MoviePage] {
	return querycache.Query(ctx, qc, TopRatedKey(page), func(ctx context.Context) (MoviePage, error) {
		return s.client.FetchTopRated(ctx, page)
	})
}

// Search はキーワード検索を行う。空白のみのクエリではフェッチせずidleの状態を返す。
func (s *Service) Search(ctx context.Context, qc *querycache.Cache, query string, page int) querycache.TypedResult[MoviePage] {
	return querycache.Query(ctx, qc, SearchKey(query, page), func(ctx context.Context) (MoviePage, error) {
		return s.client.Search(ctx, query, page)
	}, querycache.WithEnabled(searchEnabled(query)))
}

// Details は映画の詳細を取得する。
func (s *Service) Details(ctx context.Context, qc *querycache.Cache, id int) querycache.TypedResult[*model.MovieDetails] {
	return querycache.Query(ctx, qc, DetailsKey(id), func(ctx context.Context) (*model.MovieDetails, error) {
		return s.client.FetchDetails(ctx, id)
	})
}

// SearchPages は検索結果を1ページ目から順に蓄積する無限スクロールクエリを返す。
func (s *Service) SearchPages(qc *querycache.Cache, query string) *SearchPages {
	return querycache.NewInfinite(
		qc,
		SearchPagesKey(query),
		1,
		func(ctx context.Context, page int) (MoviePage, error) {
			return s.client.Search(ctx, query, page)
		},
		NextPageParam,
		func(p MoviePage) []model.Movie {
			if p == nil {
				return nil
			}
			return p.Results
		},
		querycache.WithEnabled(searchEnabled(query)),
	)
}

// NextPageParam は次に取得するページ番号を返す。最終ページの場合はfalseを返す。
func NextPageParam(last MoviePage) (int, bool) {
	if !last.HasNext() {
		return 0, false
	}
	return last.Page + 1, true
}

func searchEnabled(query string) bool {
	return strings.TrimSpace(query) != ""
}
