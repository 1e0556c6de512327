// Package security はショーノートHTMLのサニタイズと、外部メディアURLへの
// 安全なHTTPアクセスを提供する。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var httpsOnly = regexp.MustCompile(`^https://`)

// Sanitizer はレンダリング済みHTMLをフィードに埋め込める形に整える。
type Sanitizer interface {
	// Sanitize は許可リスト外のタグと属性を取り除いたHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// showNotesSanitizer はショーノート用のbluemondayポリシーを保持する。
// bluemondayのポリシーは構築後は並行利用できる。
type showNotesSanitizer struct {
	policy *bluemonday.Policy
}

// NewShowNotesSanitizer はMarkdown由来のショーノート向けサニタイザーを生成する。
//   - 見出し、段落、リスト、引用、コード、強調、表、水平線を許可
//   - a: hrefのみ、target="_blank"とrel="noopener noreferrer"を付与
//   - img: https のsrcとaltのみ
//   - script, iframe, style, on*属性は許可リスト外のため除去
func NewShowNotesSanitizer() *showNotesSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https", "http", "mailto", "lightning", "nostr")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// 画像はhttpsのみ
	p.AllowAttrs("src").Matching(httpsOnly).OnElements("img")
	p.AllowAttrs("alt").OnElements("img")

	return &showNotesSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。
func (s *showNotesSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
