package security

import "testing"

// TestNameSanitize_RemovesHTML はHTMLタグが全て除去されることを検証する。
func TestNameSanitize_RemovesHTML(t *testing.T) {
	sanitizer := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "山田太郎",
			want:  "山田太郎",
		},
		{
			name:  "scriptタグが除去される",
			input: `<script>alert("xss")</script>太郎`,
			want:  "太郎",
		},
		{
			name:  "imgタグが除去される",
			input: `<img src="x" onerror="alert(1)">花子`,
			want:  "花子",
		},
		{
			name:  "インラインタグはテキストだけ残る",
			input: "<b>朝活</b>グループ",
			want:  "朝活グループ",
		},
		{
			name:  "前後の空白が除去される",
			input: "  trimmed  ",
			want:  "trimmed",
		},
		{
			name:  "空文字列は空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestNameSanitize_Idempotent は二重適用で結果が変わらないことを検証する。
func TestNameSanitize_Idempotent(t *testing.T) {
	sanitizer := NewNameSanitizer()

	input := `<b>名前</b> <script>x</script>`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize is not idempotent: %q != %q", once, twice)
	}
}
