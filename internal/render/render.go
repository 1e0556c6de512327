// Package render はショーノートのMarkdownをフィードに埋め込むHTMLとプレーンテキストに変換する。
package render

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"

	"github.com/hitoshi/pubcaster/internal/security"
)

// maxSummaryRunes はプレーンテキスト要約の最大文字数。
const maxSummaryRunes = 4000

// markdownExtensions は投稿と記事で使われるMarkdown拡張。
const markdownExtensions = blackfriday.CommonExtensions | blackfriday.HardLineBreak | blackfriday.Autolink

// listItemBreak はHardLineBreakがリスト項目の末尾に残す改行タグ。
var listItemBreak = regexp.MustCompile(`<br\s*/?>\s*</li>`)

// Renderer はMarkdownをサニタイズ済みHTMLへ変換する。
type Renderer struct {
	sanitizer security.Sanitizer
}

// NewRenderer は新しいRendererを生成する。
func NewRenderer(sanitizer security.Sanitizer) *Renderer {
	return &Renderer{sanitizer: sanitizer}
}

// HTML はMarkdownをレンダリングしてサニタイズしたHTMLを返す。
func (r *Renderer) HTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	out := blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(markdownExtensions))
	out = listItemBreak.ReplaceAll(out, []byte("</li>"))
	return strings.TrimSpace(r.sanitizer.Sanitize(string(out)))
}

// PlainText はHTMLからタグを除いたテキストを返す。連続する空白は1つにまとめる。
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return truncate(strings.Join(strings.Fields(b.String()), " "))
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// ブロック要素の境界で単語がつながらないようにする
			b.WriteByte(' ')
		}
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryRunes {
		return s
	}
	return string(runes[:maxSummaryRunes-3]) + "..."
}
