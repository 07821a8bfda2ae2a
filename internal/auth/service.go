// Package auth はGoogle OAuthによるログインとログインセッションの管理を提供する。
// ログインはお気に入りの変更可否だけを左右し、お気に入り自体はワークスペースに属する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL は同意画面へのURLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードを交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はログイン・ログアウト・セッション照会を提供する。
type Service struct {
	oauth      OAuthProvider
	users      repository.UserRepository
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	config     ServiceConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oauth:      oauth,
		users:      users,
		identities: identities,
		sessions:   sessions,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを処理してセッションを発行する。
// 初回ログインではusersとidentitiesを作成し、2回目以降は表示名とメールアドレスを最新化する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("認可コードの交換に失敗: %w", err)
	}

	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("identityの検索に失敗: %w", err)
	}

	var user *model.User
	if identity != nil {
		user, err = s.refreshUser(ctx, identity.UserID, info)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("既存ユーザーがログインしました",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
	} else {
		user, err = s.registerUser(ctx, info)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("新規ユーザーを登録しました",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("セッションの発行に失敗: %w", err)
	}
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("セッションIDが指定されていません")
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの破棄に失敗: %w", err)
	}
	s.logger.Info("ログアウトしました")
	return nil
}

// CurrentUser はセッションIDに対応するユーザーを返す。
// セッションが無い・期限切れ・ユーザーが削除済みの場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return user, nil
}

func (s *Service) registerUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.users.CreateWithIdentity(ctx, user, identity); err != nil {
		return nil, fmt.Errorf("ユーザーの登録に失敗: %w", err)
	}
	return user, nil
}

func (s *Service) refreshUser(ctx context.Context, userID string, info *OAuthUserInfo) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.Name == info.Name && user.Email == info.Email {
		return user, nil
	}
	if err := s.users.UpdateProfile(ctx, user.ID, info.Name, info.Email); err != nil {
		return nil, fmt.Errorf("ユーザー情報の更新に失敗: %w", err)
	}
	user.Name = info.Name
	user.Email = info.Email
	return user, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := GenerateToken(32)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GenerateToken はnバイトの暗号論的乱数を16進文字列で返す。
// セッションIDとOAuthのstateに使用する。
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("乱数の生成に失敗: %w", err)
	}
	return hex.EncodeToString(b), nil
}
