package security

import "testing"

// TestInputSanitizer_RemovesHTMLTags はHTMLタグが除去されることを検証する。
func TestInputSanitizer_RemovesHTMLTags(t *testing.T) {
	s := NewInputSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Anna Brunner", "Anna Brunner"},
		{"scriptタグを除去", `<script>alert("xss")</script>Anna`, "Anna"},
		{"imgタグのonerror属性を除去", `<img src=x onerror=alert(1)>Max`, "Max"},
		{"インラインタグを除去しテキストは残す", "<b>Max</b> Keller", "Max Keller"},
		{"前後の空白を除去", "  Anna  ", "Anna"},
		{"空文字列は空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestInputSanitizer_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestInputSanitizer_Idempotent(t *testing.T) {
	s := NewInputSanitizer()

	input := `<a href="https://evil.example">Anna</a>`
	first := s.Sanitize(input)
	second := s.Sanitize(first)

	if first != second {
		t.Errorf("sanitize is not idempotent: first = %q, second = %q", first, second)
	}
}
