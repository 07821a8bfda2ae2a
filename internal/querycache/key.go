package querycache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key はキャッシュ対象のリソースを一意に識別する順序付きタプル。
// 先頭にリソース種別、続けてパラメータを並べる（例: "movies", "popular", 1）。
// 要素はJSONとして表現できるプリミティブ値であること。
type Key []any

// NewKey はKeyを生成する。
func NewKey(parts ...any) Key {
	return Key(parts)
}

// Hash はKeyの正規化表現を返す。同じ要素を同じ順序で持つKeyは同じHashになる。
func (k Key) Hash() string {
	b, err := json.Marshal([]any(k))
	if err != nil {
		return fmt.Sprintf("%#v", []any(k))
	}
	return string(b)
}

// String はログ出力用に要素を "/" で連結した文字列を返す。
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, "/")
}
