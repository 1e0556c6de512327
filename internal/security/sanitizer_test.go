package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowsShowNotesMarkup はショーノートで使うタグが通過することを検証する。
func TestSanitize_AllowsShowNotesMarkup(t *testing.T) {
	s := NewShowNotesSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "見出しが許可される",
			input:        "<h2>Topics</h2>",
			wantContains: []string{"<h2>Topics</h2>"},
		},
		{
			name:         "リストが許可される",
			input:        "<ul><li>one</li><li>two</li></ul>",
			wantContains: []string{"<ul>", "<li>one</li>", "</ul>"},
		},
		{
			name:         "コードブロックが許可される",
			input:        "<pre><code>go test ./...</code></pre>",
			wantContains: []string{"<pre><code>go test ./...</code></pre>"},
		},
		{
			name:         "表が許可される",
			input:        "<table><tr><td>cell</td></tr></table>",
			wantContains: []string{"<table>", "<td>cell</td>"},
		},
		{
			name:         "lightningリンクが許可される",
			input:        `<a href="lightning:alice@ln.example">tip</a>`,
			wantContains: []string{`href="lightning:alice@ln.example"`},
		},
		{
			name:         "https画像が許可される",
			input:        `<img src="https://cdn.example/cover.png" alt="cover">`,
			wantContains: []string{`src="https://cdn.example/cover.png"`, `alt="cover"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_RemovesDangerousMarkup は危険なタグと属性が除去されることを検証する。
func TestSanitize_RemovesDangerousMarkup(t *testing.T) {
	s := NewShowNotesSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{
			name:       "scriptタグが除去される",
			input:      `<p>ok</p><script>alert('xss')</script>`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "iframeタグが除去される",
			input:      `<iframe src="https://evil.example"></iframe>`,
			wantAbsent: []string{"<iframe", "evil.example"},
		},
		{
			name:       "on*属性が除去される",
			input:      `<p onclick="steal()">hi</p>`,
			wantAbsent: []string{"onclick", "steal"},
		},
		{
			name:       "javascriptスキームが除去される",
			input:      `<a href="javascript:alert(1)">x</a>`,
			wantAbsent: []string{"javascript:"},
		},
		{
			name:       "http画像が除去される",
			input:      `<img src="http://cdn.example/cover.png">`,
			wantAbsent: []string{"http://cdn.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_LinksGetTargetAndRel は外部リンクにtargetとrelが付与されることを検証する。
func TestSanitize_LinksGetTargetAndRel(t *testing.T) {
	got := NewShowNotesSanitizer().Sanitize(`<a href="https://example.com">link</a>`)

	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, expected to contain %q", got, want)
		}
	}
}

// TestSanitize_EmptyAndIdempotent は空入力と冪等性を検証する。
func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	s := NewShowNotesSanitizer()
	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}

	input := `<h1>Title</h1><p>Body with <a href="https://example.com">link</a></p>`
	first := s.Sanitize(input)
	if second := s.Sanitize(first); first != second {
		t.Errorf("Sanitize is not idempotent:\n first=%q\nsecond=%q", first, second)
	}
}

// TestSanitizerInterface はSanitizerインターフェースを満たすことを検証する。
func TestSanitizerInterface(t *testing.T) {
	var _ Sanitizer = NewShowNotesSanitizer()
}
