package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字", "", ""},
		{"プレーンテキスト", "A ticking-time-bomb insomniac.", "A ticking-time-bomb insomniac."},
		{"タグ除去", "<p>Hello <b>world</b></p>", "Hello world"},
		{"script除去", `Plot<script>alert("x")</script>`, "Plot"},
		{"実体参照を戻す", "Tom &amp; Jerry", "Tom & Jerry"},
		{"アポストロフィ", "It's a trap", "It's a trap"},
		{"空白の正規化", "  two\n\nlines  ", "two lines"},
		{"日本語", "<i>千と千尋の神隠し</i>", "千と千尋の神隠し"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	in := `<em>Fight</em> Club &amp; "friends"`
	once := s.Sanitize(in)
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("Sanitize is not idempotent: %q -> %q", once, twice)
	}
}
