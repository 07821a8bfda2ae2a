package querycache

import (
	"context"
	"time"
)

// InfiniteData は無限スクロール用Keyに蓄積されたページ群。
type InfiniteData[P any] struct {
	Pages      []P
	PageParams []int
}

// InfiniteResult は無限スクロールクエリの状態。
type InfiniteResult[P, T any] struct {
	Pages       []P
	Items       []T // 全ページの要素を取得順に連結したもの
	HasNextPage bool
	Status      Status
	Err         error
	IsLoading   bool
	IsFetching  bool
	UpdatedAt   time.Time
}

// Infinite は1つの論理Keyの下に複数ページを蓄積するクエリ。
// 状態はCache側のエントリが保持するため、同じKeyで生成したInfiniteは状態を共有する。
type Infinite[P, T any] struct {
	cache        *Cache
	key          Key
	initialParam int
	fetchPage    func(ctx context.Context, param int) (P, error)
	nextParam    func(last P) (int, bool)
	items        func(P) []T
	opts         []Option
}

// NewInfinite はInfiniteを生成する。
// getNextPageParamは最後に取得したページから次のページ番号を求め、
// 後続ページが無い場合はfalseを返す。
func NewInfinite[P, T any](
	c *Cache,
	key Key,
	initialParam int,
	fetchPage func(ctx context.Context, param int) (P, error),
	getNextPageParam func(last P) (int, bool),
	items func(P) []T,
	opts ...Option,
) *Infinite[P, T] {
	return &Infinite[P, T]{
		cache:        c,
		key:          key,
		initialParam: initialParam,
		fetchPage:    fetchPage,
		nextParam:    getNextPageParam,
		items:        items,
		opts:         opts,
	}
}

// Key はこのクエリの論理Keyを返す。
func (q *Infinite[P, T]) Key() Key {
	return q.key
}

// Load は最初のページを取得する。取得済みで鮮度期間を過ぎている場合は
// 取得済みのページ数ぶんを先頭から再取得する。
func (q *Infinite[P, T]) Load(ctx context.Context) InfiniteResult[P, T] {
	return q.result(q.cache.Fetch(ctx, q.key, q.refetchAll, q.opts...))
}

// Peek はフェッチを行わずに現在の状態を返す。
func (q *Infinite[P, T]) Peek() InfiniteResult[P, T] {
	return q.result(q.cache.Peek(q.key))
}

// FetchNextPage は次のページを取得して末尾に追加する。
// 未取得の場合は最初のページを取得する。次のページが無い場合や、
// このKeyのフェッチが既に実行中の場合は何もしない。
func (q *Infinite[P, T]) FetchNextPage(ctx context.Context) InfiniteResult[P, T] {
	snap := q.cache.Peek(q.key)
	cur, ok := asInfiniteData[P](snap)
	if !ok {
		return q.Load(ctx)
	}
	if _, more := q.nextParam(cur.Pages[len(cur.Pages)-1]); !more {
		return q.result(snap)
	}

	r, _ := q.cache.fetchIfIdle(ctx, q.key, func(ctx context.Context) (any, error) {
		latest, ok := asInfiniteData[P](q.cache.Peek(q.key))
		if !ok {
			latest = cur
		}
		param, more := q.nextParam(latest.Pages[len(latest.Pages)-1])
		if !more {
			return latest, nil
		}
		page, err := q.fetchPage(ctx, param)
		if err != nil {
			return nil, err
		}
		return latest.appendPage(page, param), nil
	})
	return q.result(r)
}

// HasNextPage は次のページが存在するかを返す。
func (q *Infinite[P, T]) HasNextPage() bool {
	return q.Peek().HasNextPage
}

// Items は取得済み全ページの要素を取得順に返す。
func (q *Infinite[P, T]) Items() []T {
	return q.Peek().Items
}

// refetchAll は先頭ページから取得済みのページ数ぶんを順に取得し直す。
func (q *Infinite[P, T]) refetchAll(ctx context.Context) (any, error) {
	count := 1
	if cur, ok := asInfiniteData[P](q.cache.Peek(q.key)); ok {
		count = len(cur.Pages)
	}

	var out InfiniteData[P]
	param := q.initialParam
	for i := 0; i < count; i++ {
		page, err := q.fetchPage(ctx, param)
		if err != nil {
			return nil, err
		}
		out = out.appendPage(page, param)

		next, more := q.nextParam(page)
		if !more {
			break
		}
		param = next
	}
	return out, nil
}

func (q *Infinite[P, T]) result(r Result) InfiniteResult[P, T] {
	out := InfiniteResult[P, T]{
		Status:     r.Status,
		Err:        r.Err,
		IsLoading:  r.IsLoading,
		IsFetching: r.IsFetching,
		UpdatedAt:  r.UpdatedAt,
	}
	data, ok := asInfiniteData[P](r)
	if !ok {
		return out
	}
	out.Pages = data.Pages
	for _, p := range data.Pages {
		out.Items = append(out.Items, q.items(p)...)
	}
	_, out.HasNextPage = q.nextParam(data.Pages[len(data.Pages)-1])
	return out
}

func (d InfiniteData[P]) appendPage(page P, param int) InfiniteData[P] {
	pages := make([]P, len(d.Pages), len(d.Pages)+1)
	copy(pages, d.Pages)
	params := make([]int, len(d.PageParams), len(d.PageParams)+1)
	copy(params, d.PageParams)
	return InfiniteData[P]{
		Pages:      append(pages, page),
		PageParams: append(params, param),
	}
}

func asInfiniteData[P any](r Result) (InfiniteData[P], bool) {
	if !r.HasData {
		return InfiniteData[P]{}, false
	}
	d, ok := r.Data.(InfiniteData[P])
	if !ok || len(d.Pages) == 0 {
		return InfiniteData[P]{}, false
	}
	return d, true
}
