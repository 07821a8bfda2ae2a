// Package workspace はブラウザセッションごとのクエリキャッシュとお気に入りを保持する。
//
// ワークスペースはclient_id Cookieで識別され、ログアウトまたは一定期間のアイドルで破棄される。
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moviedeck/internal/favorites"
	"github.com/hitoshi/moviedeck/internal/querycache"
)

// DefaultIdleTimeout はアクセスのないワークスペースを破棄するまでの期間。
const DefaultIdleTimeout = 24 * time.Hour

// Recorder はワークスペース数の記録先。
type Recorder interface {
	SetWorkspaces(n int)
}

// Workspace は1つのブラウザセッションに属する状態。
type Workspace struct {
	ID        string
	Queries   *querycache.Cache
	Favorites *favorites.Store
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen は最終アクセス時刻を返す。
func (w *Workspace) LastSeen() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

// Config はRegistryの設定。
type Config struct {
	IdleTimeout time.Duration
	Cache       querycache.Config
	// FavoritesMetrics はお気に入り操作の記録先。nilの場合は記録しない。
	FavoritesMetrics favorites.Recorder
	Metrics          Recorder
	Logger           *slog.Logger
	Now              func() time.Time
}

// Registry はワークスペースIDからWorkspaceへの対応を管理する。
type Registry struct {
	config Config

	mu         sync.Mutex
	workspaces map[string]*Workspace

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache.Logger == nil {
		cfg.Cache.Logger = cfg.Logger
	}
	if cfg.Cache.Now == nil {
		cfg.Cache.Now = cfg.Now
	}
	return &Registry{
		config:     cfg,
		workspaces: make(map[string]*Workspace),
		stopCh:     make(chan struct{}),
	}
}

// Open はidのワークスペースを返す。存在しない場合やidが空の場合は新たに作成する。
// 空のidで作成した場合は新しいIDが割り当てられる。
func (r *Registry) Open(id string) *Workspace {
	now := r.config.Now()

	r.mu.Lock()
	if w, ok := r.workspaces[id]; ok && id != "" {
		r.mu.Unlock()
		w.touch(now)
		return w
	}
	if id == "" {
		id = uuid.New().String()
	}
	w := &Workspace{
		ID:        id,
		Queries:   querycache.New(r.config.Cache),
		Favorites: favorites.NewStore(r.config.FavoritesMetrics),
		CreatedAt: now,
		lastSeen:  now,
	}
	r.workspaces[id] = w
	n := len(r.workspaces)
	r.mu.Unlock()

	r.record(n)
	r.config.Logger.Debug("ワークスペースを作成しました", slog.String("workspace_id", id))
	return w
}

// Get は既存のワークスペースを返す。
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	w, ok := r.workspaces[id]
	r.mu.Unlock()
	if ok {
		w.touch(r.config.Now())
	}
	return w, ok
}

// Close はワークスペースを破棄する。実行中のフェッチはキャンセルされる。
// 存在しない場合は何もしない。
func (r *Registry) Close(id string) {
	r.mu.Lock()
	w, ok := r.workspaces[id]
	if ok {
		delete(r.workspaces, id)
	}
	n := len(r.workspaces)
	r.mu.Unlock()

	if !ok {
		return
	}
	w.Queries.Close()
	r.record(n)
	r.config.Logger.Debug("ワークスペースを破棄しました", slog.String("workspace_id", id))
}

// Len は保持しているワークスペース数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// IdleTimeout はアイドル破棄までの期間を返す。
func (r *Registry) IdleTimeout() time.Duration {
	return r.config.IdleTimeout
}

// StartJanitor はバックグラウンドで定期的にCleanupを実行する。
// ctxのキャンセルまたはStopで終了する。
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	go r.cleanupLoop(ctx, interval)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼び出してもよい。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Cleanup()
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		}
	}
}

// Cleanup はIdleTimeoutを超えてアクセスのないワークスペースを破棄し、
// 残ったワークスペースのキャッシュから不要なエントリを削除する。破棄した件数を返す。
func (r *Registry) Cleanup() int {
	now := r.config.Now()

	r.mu.Lock()
	var expired, alive []*Workspace
	for id, w := range r.workspaces {
		if now.Sub(w.LastSeen()) > r.config.IdleTimeout {
			delete(r.workspaces, id)
			expired = append(expired, w)
			continue
		}
		alive = append(alive, w)
	}
	n := len(r.workspaces)
	r.mu.Unlock()

	for _, w := range expired {
		w.Queries.Close()
	}
	swept := 0
	for _, w := range alive {
		swept += w.Queries.Sweep()
	}

	if len(expired) > 0 || swept > 0 {
		r.config.Logger.Info("ワークスペースのクリーンアップを実行しました",
			slog.Int("expired_workspaces", len(expired)),
			slog.Int("swept_queries", swept),
			slog.Int("workspaces", n),
		)
	}
	r.record(n)
	return len(expired)
}

func (r *Registry) record(n int) {
	if r.config.Metrics != nil {
		r.config.Metrics.SetWorkspaces(n)
	}
}
