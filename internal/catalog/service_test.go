package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
)

type mockClient struct {
	fetchPopularFn  func(ctx context.Context, page int) (*model.Page[model.Movie], error)
	fetchTopRatedFn func(ctx context.Context, page int) (*model.Page[model.Movie], error)
	searchFn        func(ctx context.Context, query string, page int) (*model.Page[model.Movie], error)
	fetchDetailsFn  func(ctx context.Context, id int) (*model.MovieDetails, error)
}

func (m *mockClient) FetchPopular(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	return m.fetchPopularFn(ctx, page)
}

func (m *mockClient) FetchTopRated(ctx context.Context, page int) (*model.Page[model.Movie], error) {
	return m.fetchTopRatedFn(ctx, page)
}

func (m *mockClient) Search(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
	return m.searchFn(ctx, query, page)
}

func (m *mockClient) FetchDetails(ctx context.Context, id int) (*model.MovieDetails, error) {
	return m.fetchDetailsFn(ctx, id)
}

func newCache() *querycache.Cache {
	return querycache.New(querycache.Config{StaleTime: time.Hour})
}

func moviePage(page, total int, ids ...int) *model.Page[model.Movie] {
	p := &model.Page[model.Movie]{Page: page, TotalPages: total, TotalResults: total * len(ids)}
	for _, id := range ids {
		p.Results = append(p.Results, model.Movie{ID: id})
	}
	return p
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		key  querycache.Key
		want string
	}{
		{"popular", PopularKey(2), `["movies","popular",2]`},
		{"topRated", TopRatedKey(1), `["movies","topRated",1]`},
		{"search", SearchKey("matrix", 3), `["movies","search","matrix",3]`},
		{"details", DetailsKey(550), `["movies","details",550]`},
		{"searchPages", SearchPagesKey("matrix"), `["movies","searchPages","matrix"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Hash(); got != tt.want {
				t.Errorf("Hash() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextPageParam(t *testing.T) {
	tests := []struct {
		name     string
		page     *model.Page[model.Movie]
		want     int
		wantMore bool
	}{
		{"途中のページ", moviePage(1, 3), 2, true},
		{"最終ページ", moviePage(3, 3), 0, false},
		{"結果なし", moviePage(1, 0), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, more := NextPageParam(tt.page)
			if got != tt.want || more != tt.wantMore {
				t.Errorf("NextPageParam() = (%d, %v), want (%d, %v)", got, more, tt.want, tt.wantMore)
			}
		})
	}
}

func TestService_Popular_CachedPerPage(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(&mockClient{
		fetchPopularFn: func(ctx context.Context, page int) (*model.Page[model.Movie], error) {
			calls.Add(1)
			return moviePage(page, 10, page*100), nil
		},
	})
	qc := newCache()

	r1 := svc.Popular(context.Background(), qc, 1)
	svc.Popular(context.Background(), qc, 1)
	r2 := svc.Popular(context.Background(), qc, 2)

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if r1.Data.Page != 1 || r2.Data.Page != 2 {
		t.Errorf("pages = %d, %d", r1.Data.Page, r2.Data.Page)
	}
}

func TestService_TopRated_DistinctFromPopular(t *testing.T) {
	svc := NewService(&mockClient{
		fetchPopularFn: func(ctx context.Context, page int) (*model.Page[model.Movie], error) {
			return moviePage(page, 1, 1), nil
		},
		fetchTopRatedFn: func(ctx context.Context, page int) (*model.Page[model.Movie], error) {
			return moviePage(page, 1, 2), nil
		},
	})
	qc := newCache()

	p := svc.Popular(context.Background(), qc, 1)
	tr := svc.TopRated(context.Background(), qc, 1)

	if p.Data.Results[0].ID != 1 || tr.Data.Results[0].ID != 2 {
		t.Errorf("popular=%d topRated=%d", p.Data.Results[0].ID, tr.Data.Results[0].ID)
	}
}

func TestService_Search_EmptyQueryDoesNotFetch(t *testing.T) {
	var calls atomic.Int32
	svc := NewService(&mockClient{
		searchFn: func(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
			calls.Add(1)
			return moviePage(page, 1), nil
		},
	})
	qc := newCache()

	for _, q := range []string{"", "   ", "\t"} {
		r := svc.Search(context.Background(), qc, q, 1)
		if r.Status != querycache.StatusIdle || r.HasData || r.IsLoading {
			t.Errorf("Search(%q) = %+v, want idle", q, r)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}

	r := svc.Search(context.Background(), qc, "matrix", 1)
	if !r.HasData || calls.Load() != 1 {
		t.Errorf("Search(matrix) HasData=%v calls=%d", r.HasData, calls.Load())
	}
}

func TestService_Details_ErrorWithoutData(t *testing.T) {
	wantErr := errors.New("TMDB API error: 404 Not Found")
	svc := NewService(&mockClient{
		fetchDetailsFn: func(ctx context.Context, id int) (*model.MovieDetails, error) {
			return nil, wantErr
		},
	})

	r := svc.Details(context.Background(), newCache(), 999999)

	if r.HasData || r.Data != nil {
		t.Errorf("Data = %v, want none", r.Data)
	}
	if !errors.Is(r.Err, wantErr) {
		t.Errorf("Err = %v, want %v", r.Err, wantErr)
	}
}

func TestService_SearchPages(t *testing.T) {
	var requested []int
	svc := NewService(&mockClient{
		searchFn: func(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
			if query != "star" {
				t.Errorf("query = %q, want star", query)
			}
			requested = append(requested, page)
			return moviePage(page, 2, page*10, page*10+1), nil
		},
	})
	qc := newCache()
	q := svc.SearchPages(qc, "star")

	r := q.Load(context.Background())
	if !r.HasNextPage || len(r.Items) != 2 {
		t.Fatalf("after Load items=%d hasNext=%v", len(r.Items), r.HasNextPage)
	}

	r = q.FetchNextPage(context.Background())
	if r.HasNextPage {
		t.Error("HasNextPage = true on the last page")
	}
	wantIDs := []int{10, 11, 20, 21}
	if len(r.Items) != len(wantIDs) {
		t.Fatalf("Items = %v", r.Items)
	}
	for i, id := range wantIDs {
		if r.Items[i].ID != id {
			t.Errorf("Items[%d].ID = %d, want %d", i, r.Items[i].ID, id)
		}
	}

	q.FetchNextPage(context.Background())
	if len(requested) != 2 {
		t.Errorf("requested = %v, want [1 2]", requested)
	}
}

func TestService_SearchPages_EmptyQuery(t *testing.T) {
	svc := NewService(&mockClient{
		searchFn: func(ctx context.Context, query string, page int) (*model.Page[model.Movie], error) {
			t.Fatal("search must not be called for an empty query")
			return nil, nil
		},
	})

	q := svc.SearchPages(newCache(), " ")
	r := q.Load(context.Background())
	if r.Status != querycache.StatusIdle || len(r.Items) != 0 {
		t.Errorf("Load = %+v, want idle", r)
	}
	r = q.FetchNextPage(context.Background())
	if r.Status != querycache.StatusIdle {
		t.Errorf("FetchNextPage status = %v, want idle", r.Status)
	}
}
