// Package querycache はKey単位のstale-while-revalidateキャッシュを提供する。
//
// 同一Keyへの同時フェッチは1回にまとめられ（single-flight）、鮮度期間を過ぎた値は
// バックグラウンドで再取得しながらそのまま返される。再取得に失敗しても既存の値は残る。
package querycache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime はデフォルトの鮮度期間。リモートカタログの再検証間隔に合わせている。
const DefaultStaleTime = time.Hour

// DefaultGCTime は購読者のいないエントリをSweepで削除するまでの期間。
const DefaultGCTime = 30 * time.Minute

// FetchFunc はKeyに対応するデータを取得する関数。
// ctxは購読者がいなくなった場合やCacheのClose時にキャンセルされる。
type FetchFunc func(ctx context.Context) (any, error)

// Listener はエントリの状態遷移ごとに1回、遷移順に呼び出される。
type Listener func(Result)

// Recorder はキャッシュの参照・フェッチ結果の記録先。
type Recorder interface {
	RecordQueryLookup(outcome string)
	RecordQueryFetch(result string)
}

// Config はCacheの設定。
type Config struct {
	StaleTime time.Duration
	GCTime    time.Duration
	Logger    *slog.Logger
	Metrics   Recorder
	Now       func() time.Time
}

// Option はFetch単位の設定。
type Option func(*options)

type options struct {
	enabled   bool
	staleTime time.Duration
}

// WithEnabled にfalseを渡すとフェッチを一切行わず現在の状態だけを返す。
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithStaleTime はこのFetchに限り鮮度期間を上書きする。
func WithStaleTime(d time.Duration) Option {
	return func(o *options) { o.staleTime = d }
}

// Cache はKeyごとのエントリを保持するクエリキャッシュ。
// 複数ゴルーチンから同時に使用できる。
type Cache struct {
	staleTime time.Duration
	gcTime    time.Duration
	logger    *slog.Logger
	metrics   Recorder
	now       func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	group   singleflight.Group

	mu             sync.Mutex
	entries        map[string]*entry
	nextListenerID uint64
	closed         bool
}

type notification struct {
	result    Result
	listeners []Listener
}

type entry struct {
	key  Key
	hash string

	data        any
	hasData     bool
	err         error
	status      Status
	updatedAt   time.Time
	invalidated bool

	fetching  bool
	gen       uint64
	cancel    context.CancelFunc
	observed  bool // 実行中のフェッチが観測者のいる状態で開始された
	abandoned bool // 観測者がいなくなり実行中のフェッチ結果を破棄する
	waiters   int

	listeners  map[uint64]Listener
	lastAccess time.Time

	queue       []notification
	dispatching bool
}

// New はCacheを生成する。
func New(cfg Config) *Cache {
	c := &Cache{
		staleTime: cfg.StaleTime,
		gcTime:    cfg.GCTime,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		entries:   make(map[string]*entry),
	}
	if c.staleTime <= 0 {
		c.staleTime = DefaultStaleTime
	}
	if c.gcTime <= 0 {
		c.gcTime = DefaultGCTime
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.baseCtx, c.stop = context.WithCancel(context.Background())
	return c
}

// Fetch はkeyの最新状態を返す。
//   - 鮮度期間内の値があればフェッチせずに返す。
//   - 古い値があればそれを即座に返し、バックグラウンドで再取得する（IsFetching=true）。
//   - 値が無ければフェッチ（実行中なら合流）して完了またはctxのキャンセルまで待つ。
func (c *Cache) Fetch(ctx context.Context, key Key, fn FetchFunc, opts ...Option) Result {
	o := c.options(opts)
	hash := key.Hash()

	c.mu.Lock()
	if !o.enabled {
		r := Result{Status: StatusIdle}
		if e, ok := c.entries[hash]; ok {
			e.lastAccess = c.now()
			r = e.snapshot()
		}
		c.mu.Unlock()
		c.metrics.RecordQueryLookup("disabled")
		return r
	}

	e := c.entryLocked(key, hash)
	e.lastAccess = c.now()

	if c.isFreshLocked(e, o.staleTime) {
		r := e.snapshot()
		c.mu.Unlock()
		c.metrics.RecordQueryLookup("fresh")
		return r
	}

	if e.hasData {
		if !e.inFlight() {
			c.startLocked(e, fn)
		}
		r := e.snapshot()
		c.mu.Unlock()
		c.dispatch(e)
		c.metrics.RecordQueryLookup("stale")
		return r
	}

	c.metrics.RecordQueryLookup("miss")
	e.waiters++
	ch := c.startLocked(e, fn)
	c.mu.Unlock()
	c.dispatch(e)

	return c.wait(ctx, e, ch)
}

// Query はFetchの型付き版。
func Query[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error), opts ...Option) TypedResult[T] {
	r := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}, opts...)
	return Typed[T](r)
}

// fetchIfIdle はkeyのフェッチが実行中でなければfnで新たにフェッチして完了を待つ。
// 実行中の場合は何もせず現在の状態とfalseを返す。
func (c *Cache) fetchIfIdle(ctx context.Context, key Key, fn FetchFunc) (Result, bool) {
	c.mu.Lock()
	e := c.entryLocked(key, key.Hash())
	e.lastAccess = c.now()
	if e.inFlight() {
		r := e.snapshot()
		c.mu.Unlock()
		return r, false
	}
	e.waiters++
	ch := c.startLocked(e, fn)
	c.mu.Unlock()
	c.dispatch(e)

	return c.wait(ctx, e, ch), true
}

// wait はフェッチの完了またはctxのキャンセルを待つ。呼び出し前にe.waitersを加算しておくこと。
func (c *Cache) wait(ctx context.Context, e *entry, ch <-chan singleflight.Result) Result {
	select {
	case res := <-ch:
		c.mu.Lock()
		e.waiters--
		c.mu.Unlock()
		return res.Val.(Result)
	case <-ctx.Done():
		c.mu.Lock()
		e.waiters--
		c.abandonIfUnobservedLocked(e)
		r := e.snapshot()
		c.mu.Unlock()
		r.Err = ctx.Err()
		return r
	}
}

// Peek はフェッチを行わずにkeyの現在の状態を返す。未知のKeyはStatusIdleを返す。
func (c *Cache) Peek(key Key) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Hash()]
	if !ok {
		return Result{Status: StatusIdle}
	}
	return e.snapshot()
}

// Subscribe はkeyの状態遷移を受け取るListenerを登録し、登録解除関数を返す。
// 観測者がいる間に開始されたフェッチは、最後の観測者が解除されるとキャンセルされ結果は破棄される。
func (c *Cache) Subscribe(key Key, l Listener) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entryLocked(key, key.Hash())
	c.nextListenerID++
	id := c.nextListenerID
	e.listeners[id] = l
	e.lastAccess = c.now()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.listeners, id)
			e.lastAccess = c.now()
			c.abandonIfUnobservedLocked(e)
			c.mu.Unlock()
		})
	}
}

// Invalidate はkeyの値を古いものとして扱い、次回のFetchで再取得させる。
// 値は再取得が成功するまで引き続き返される。
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key.Hash()]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.invalidated = true
	c.notifyLocked(e)
	c.mu.Unlock()
	c.dispatch(e)
}

// Remove はkeyのエントリを削除する。実行中のフェッチはキャンセルされ、その結果は破棄される。
// 登録済みのListenerには最後にStatusIdleの状態が通知される。
func (c *Cache) Remove(key Key) {
	hash := key.Hash()
	c.mu.Lock()
	e, ok := c.entries[hash]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.entries, hash)
	c.group.Forget(hash)
	if e.fetching {
		// 世代を進めて実行中のフェッチの結果を反映させない
		e.gen++
		e.cancel()
	}
	e.data, e.hasData, e.err, e.status = nil, false, nil, StatusIdle
	e.fetching = false
	c.notifyLocked(e)
	c.mu.Unlock()
	c.dispatch(e)
}

// Sweep は観測者がおらずGCTime以上参照されていないエントリを削除し、削除件数を返す。
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for hash, e := range c.entries {
		if e.fetching || e.waiters > 0 || len(e.listeners) > 0 {
			continue
		}
		if now.Sub(e.lastAccess) < c.gcTime {
			continue
		}
		delete(c.entries, hash)
		removed++
	}
	return removed
}

// Len はエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close は実行中のフェッチをすべてキャンセルする。以降に完了したフェッチの結果は破棄される。
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
}

func (c *Cache) options(opts []Option) options {
	o := options{enabled: true, staleTime: c.staleTime}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Cache) entryLocked(key Key, hash string) *entry {
	e, ok := c.entries[hash]
	if !ok {
		e = &entry{
			key:       key,
			hash:      hash,
			status:    StatusIdle,
			listeners: make(map[uint64]Listener),
		}
		c.entries[hash] = e
	}
	return e
}

func (c *Cache) isFreshLocked(e *entry, staleTime time.Duration) bool {
	if !e.hasData || e.invalidated || e.status != StatusSuccess {
		return false
	}
	return c.now().Sub(e.updatedAt) < staleTime
}

// startLocked はフェッチが実行中でなければ新たに開始し、いずれの場合もその完了通知チャネルを返す。
func (c *Cache) startLocked(e *entry, fn FetchFunc) <-chan singleflight.Result {
	if e.inFlight() {
		return c.group.DoChan(e.hash, func() (any, error) {
			return c.Peek(e.key), nil
		})
	}

	e.fetching = true
	e.abandoned = false
	e.gen++
	gen := e.gen
	fctx, cancel := context.WithCancel(c.baseCtx)
	e.cancel = cancel
	e.observed = e.waiters > 0 || len(e.listeners) > 0
	if !e.hasData {
		e.status = StatusPending
		e.err = nil
	}
	c.notifyLocked(e)

	c.logger.Debug("クエリのフェッチを開始しました",
		slog.String("key", e.key.String()),
		slog.Bool("background", e.hasData),
	)

	// 直前に完了したフライトがまだ登録解除されていない場合に合流しないよう忘れさせる
	c.group.Forget(e.hash)
	return c.group.DoChan(e.hash, func() (any, error) {
		data, err := fn(fctx)
		return c.settle(e, gen, data, err), nil
	})
}

// settle はフェッチ結果をエントリに反映する。
// エントリが削除済み、世代が古い、または放棄されたフェッチの結果は破棄する。
func (c *Cache) settle(e *entry, gen uint64, data any, err error) Result {
	c.mu.Lock()

	current := c.entries[e.hash] == e && e.gen == gen && !c.closed
	if !current || e.abandoned {
		if e.gen == gen {
			e.fetching = false
			e.cancel()
			if e.abandoned && !e.hasData {
				e.status = StatusIdle
				e.err = nil
			}
			c.notifyLocked(e)
		}
		r := e.snapshot()
		c.mu.Unlock()
		c.dispatch(e)
		c.metrics.RecordQueryFetch("discarded")
		return r
	}

	e.fetching = false
	e.cancel()
	if err != nil {
		e.err = err
		e.status = StatusError
		c.logger.Warn("クエリのフェッチに失敗しました",
			slog.String("key", e.key.String()),
			slog.Bool("has_stale_data", e.hasData),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordQueryFetch("error")
	} else {
		e.data = data
		e.hasData = true
		e.err = nil
		e.status = StatusSuccess
		e.updatedAt = c.now()
		e.invalidated = false
		c.metrics.RecordQueryFetch("success")
	}
	c.notifyLocked(e)
	r := e.snapshot()
	c.mu.Unlock()
	c.dispatch(e)
	return r
}

// abandonIfUnobservedLocked は観測者のいる状態で開始されたフェッチについて、
// 観測者が全員いなくなった場合にキャンセルする。
func (c *Cache) abandonIfUnobservedLocked(e *entry) {
	if !e.fetching || !e.observed || e.abandoned {
		return
	}
	if e.waiters > 0 || len(e.listeners) > 0 {
		return
	}
	e.abandoned = true
	e.cancel()
	c.logger.Debug("観測者がいなくなったためフェッチを破棄します",
		slog.String("key", e.key.String()),
	)
}

// notifyLocked は現在の状態を通知キューに積む。通知先はこの時点のListener。
func (c *Cache) notifyLocked(e *entry) {
	if len(e.listeners) == 0 {
		return
	}
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = e.listeners[id]
	}
	e.queue = append(e.queue, notification{result: e.snapshot(), listeners: ls})
}

// dispatch は通知キューをロックの外で順に配信する。
// 配信中に積まれた通知は実行中のdispatchが引き続き配信するため、順序が保たれる。
func (c *Cache) dispatch(e *entry) {
	c.mu.Lock()
	if e.dispatching {
		c.mu.Unlock()
		return
	}
	e.dispatching = true
	for len(e.queue) > 0 {
		n := e.queue[0]
		e.queue = e.queue[1:]
		c.mu.Unlock()
		for _, l := range n.listeners {
			l(n.result)
		}
		c.mu.Lock()
	}
	e.dispatching = false
	c.mu.Unlock()
}

// inFlight は合流可能なフェッチが実行中かを返す。放棄済みのフェッチには合流しない。
func (e *entry) inFlight() bool {
	return e.fetching && !e.abandoned
}

func (e *entry) snapshot() Result {
	return Result{
		Data:       e.data,
		HasData:    e.hasData,
		Status:     e.status,
		Err:        e.err,
		IsLoading:  e.fetching && !e.hasData,
		IsFetching: e.fetching,
		UpdatedAt:  e.updatedAt,
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordQueryLookup(string) {}
func (nopRecorder) RecordQueryFetch(string)  {}
