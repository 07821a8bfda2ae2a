package tmdb

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteCatalogError はTMDB APIの呼び出し失敗を表す。
// 非2xxステータス、通信エラー、JSONとして解釈できないレスポンスのいずれもこの型で返す。
type RemoteCatalogError struct {
	Endpoint   string // popular, top_rated, search, details
	StatusCode int    // レスポンスを受け取れなかった場合は0
	Status     string // ステータステキスト（例: Unauthorized）
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *RemoteCatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TMDB API error: %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("TMDB API error: %s", e.Status)
}

// Unwrap は原因エラーを返す。
func (e *RemoteCatalogError) Unwrap() error {
	return e.Err
}

// ConfigurationError はAPIキー等の設定不足によりリクエストを発行できないことを表す。
type ConfigurationError struct {
	Setting string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("TMDB client is not configured: %s is not set", e.Setting)
}

// IsNotFound はerrがTMDBの404応答に由来するかを返す。
func IsNotFound(err error) bool {
	var rce *RemoteCatalogError
	return errors.As(err, &rce) && rce.StatusCode == http.StatusNotFound
}

// IsNotConfigured はerrがConfigurationErrorかを返す。
func IsNotConfigured(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// statusText はレスポンスのステータステキストを返す。
// "401 Unauthorized" のような形式からコード部分を取り除く。
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
