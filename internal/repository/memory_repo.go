package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/moviedeck/internal/model"
)

// MemoryUserRepo はプロセス内でユーザーとidentityを保持するリポジトリ。
// DATABASE_URL未設定時に使用し、プロセス終了で内容は失われる。
type MemoryUserRepo struct {
	mu         sync.RWMutex
	users      map[string]model.User
	identities map[string]model.Identity // key: provider + "\x00" + provider_user_id
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:      make(map[string]model.User),
		identities: make(map[string]model.Identity),
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// CreateWithIdentity はユーザーとidentityを作成する。
// 同じproviderとprovider_user_idのidentityが既にあればエラーを返し、どちらも作成しない。
func (r *MemoryUserRepo) CreateWithIdentity(_ context.Context, user *model.User, identity *model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identityKey(identity.Provider, identity.ProviderUserID)
	if _, exists := r.identities[key]; exists {
		return fmt.Errorf("identityが既に存在します: provider=%s", identity.Provider)
	}
	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("ユーザーが既に存在します: %s", user.ID)
	}
	r.users[user.ID] = *user
	r.identities[key] = *identity
	return nil
}

// UpdateProfile は表示名とメールアドレスを更新する。
func (r *MemoryUserRepo) UpdateProfile(_ context.Context, id, name, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return model.NewUserNotFoundError()
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
func (r *MemoryUserRepo) FindByProviderAndProviderUserID(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.identities[identityKey(provider, providerUserID)]
	if !ok {
		return nil, nil
	}
	return &ident, nil
}

func identityKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

// MemorySessionRepo はプロセス内でセッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("セッションIDが重複しています")
	}
	r.sessions[session.ID] = *session
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。存在しない場合も成功とする。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteExpired はnow時点で期限切れのセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

var (
	_ UserRepository     = (*MemoryUserRepo)(nil)
	_ IdentityRepository = (*MemoryUserRepo)(nil)
	_ SessionRepository  = (*MemorySessionRepo)(nil)
)
