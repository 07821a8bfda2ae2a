package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// TextSanitizer はカタログ由来のテキスト（あらすじ、キャッチコピー）を
// マークアップを含まないプレーンテキストに変換する。
type TextSanitizer interface {
	Sanitize(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するbluemondayのStrictPolicyでTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、bluemondayがエスケープした実体参照を元の文字に戻す。
// 連続する空白は1つにまとめる。冪等。
func (s *textSanitizer) Sanitize(in string) string {
	if in == "" {
		return ""
	}
	stripped := s.policy.Sanitize(in)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}
