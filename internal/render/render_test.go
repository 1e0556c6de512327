package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hitoshi/pubcaster/internal/security"
)

func newRenderer() *Renderer {
	return NewRenderer(security.NewShowNotesSanitizer())
}

func TestHTML_RendersMarkdown(t *testing.T) {
	got := newRenderer().HTML("# Episode 5\n\nWe talked about **relays**.\n\n- one\n- two")

	assert.Contains(t, got, "<h1>Episode 5</h1>")
	assert.Contains(t, got, "<strong>relays</strong>")
	assert.Contains(t, got, "<li>one</li>")
	assert.Contains(t, got, "<li>two</li>")
	assert.NotContains(t, got, "<br/>\n</li>")
}

func TestHTML_KeepsLineBreaksInsideParagraphs(t *testing.T) {
	got := newRenderer().HTML("first line\nsecond line\n\n- a\n- b")

	assert.Regexp(t, `first line<br\s*/?>`, got)
	assert.Contains(t, got, "<li>a</li>")
	assert.NotRegexp(t, `<br\s*/?>\s*</li>`, got)
}

func TestHTML_SanitizesRawHTML(t *testing.T) {
	got := newRenderer().HTML("hello <script>alert(1)</script> world")

	assert.NotContains(t, got, "<script")
	assert.Contains(t, got, "hello")
	assert.Contains(t, got, "world")
}

func TestHTML_Autolinks(t *testing.T) {
	got := newRenderer().HTML("listen at https://cdn.example/ep5.mp3")

	assert.Contains(t, got, `href="https://cdn.example/ep5.mp3"`)
	assert.Contains(t, got, "noreferrer")
}

func TestHTML_Empty(t *testing.T) {
	assert.Equal(t, "", newRenderer().HTML("   \n"))
}

func TestPlainText(t *testing.T) {
	got := PlainText("<h1>Title</h1><p>First &amp; second</p><ul><li>a</li><li>b</li></ul>")
	assert.Equal(t, "Title First & second a b", got)
}

func TestPlainText_Truncates(t *testing.T) {
	got := PlainText("<p>" + strings.Repeat("x", maxSummaryRunes+10) + "</p>")
	assert.Len(t, []rune(got), maxSummaryRunes)
	assert.True(t, strings.HasSuffix(got, "..."))
}
