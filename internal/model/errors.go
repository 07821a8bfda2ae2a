// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCatalogUnavailable    = "CATALOG_UNAVAILABLE"
	ErrCodeCatalogNotConfigured  = "CATALOG_NOT_CONFIGURED"
	ErrCodeAuthorizationRequired = "AUTHORIZATION_REQUIRED"
	ErrCodeInvalidPage           = "INVALID_PAGE"
	ErrCodeInvalidMovieID        = "INVALID_MOVIE_ID"
	ErrCodeInvalidMovie          = "INVALID_MOVIE"
	ErrCodeInvalidImageSize      = "INVALID_IMAGE_SIZE"
	ErrCodeMovieNotFound         = "MOVIE_NOT_FOUND"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
)

// NewCatalogUnavailableError はリモートカタログの取得失敗エラーを生成する。
func NewCatalogUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCatalogUnavailable,
		Message:  fmt.Sprintf("映画情報の取得に失敗しました: %s", reason),
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCatalogNotConfiguredError はAPIキー未設定エラーを生成する。
func NewCatalogNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeCatalogNotConfigured,
		Message:  "映画カタログAPIの認証情報が設定されていません。",
		Category: "system",
		Action:   "管理者にTMDB_API_KEYの設定を依頼してください。",
	}
}

// NewAuthorizationRequiredError は未ログインでのお気に入り操作エラーを生成する。
func NewAuthorizationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthorizationRequired,
		Message:  "お気に入りを追加するにはログインが必要です。",
		Category: "auth",
		Action:   "ログインしてからお気に入りに追加してください。",
	}
}

// NewInvalidPageError は無効なページ番号エラーを生成する。
func NewInvalidPageError(page string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPage,
		Message:  fmt.Sprintf("無効なページ番号です: %s", page),
		Category: "validation",
		Action:   "ページ番号には1以上の整数を指定してください。",
	}
}

// NewInvalidMovieIDError は無効な映画IDエラーを生成する。
func NewInvalidMovieIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMovieID,
		Message:  fmt.Sprintf("無効な映画IDです: %s", id),
		Category: "validation",
		Action:   "映画IDには1以上の整数を指定してください。",
	}
}

// NewInvalidMovieError はお気に入り操作のリクエストボディが不正な場合のエラーを生成する。
func NewInvalidMovieError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMovie,
		Message:  fmt.Sprintf("映画情報が不正です: %s", reason),
		Category: "validation",
		Action:   "映画のIDとタイトルを指定してください。",
	}
}

// NewInvalidImageSizeError は未定義の画像サイズ指定エラーを生成する。
func NewInvalidImageSizeError(size string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageSize,
		Message:  fmt.Sprintf("無効な画像サイズです: %s", size),
		Category: "validation",
		Action:   "画像サイズには poster-small、backdrop、original のいずれかを指定してください。",
	}
}

// NewMovieNotFoundError は映画が見つからない場合のエラーを生成する。
func NewMovieNotFoundError(id int) *APIError {
	return &APIError{
		Code:     ErrCodeMovieNotFound,
		Message:  fmt.Sprintf("指定された映画が見つかりません: %d", id),
		Category: "catalog",
		Action:   "映画IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
