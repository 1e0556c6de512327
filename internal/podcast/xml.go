package podcast

import (
	"strings"
	"unicode/utf8"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML はXMLで意味を持つ5文字 (& < > " ') をエスケープする。
// XML 1.0で使えない制御文字と不正なUTF-8は取り除く。
func EscapeXML(s string) string {
	return xmlEscaper.Replace(stripInvalid(s))
}

func stripInvalid(s string) string {
	if validXML(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !invalidByte(r, size) && isXMLChar(r) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func validXML(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if invalidByte(r, size) || !isXMLChar(r) {
			return false
		}
		i += size
	}
	return true
}

// invalidByte はUTF-8として解釈できなかったバイトかを返す。
// 正しく符号化されたU+FFFDは幅が3になるため区別できる。
func invalidByte(r rune, size int) bool {
	return r == utf8.RuneError && size == 1
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

type attr struct {
	name  string
	value string
}

// xmlWriter はインデント付きでXML要素を書き出す。
type xmlWriter struct {
	b     strings.Builder
	depth int
}

func (w *xmlWriter) indent() {
	for range w.depth {
		w.b.WriteString("  ")
	}
}

func (w *xmlWriter) startTag(name string, attrs []attr) {
	w.b.WriteByte('<')
	w.b.WriteString(name)
	for _, a := range attrs {
		w.b.WriteByte(' ')
		w.b.WriteString(a.name)
		w.b.WriteString(`="`)
		w.b.WriteString(EscapeXML(a.value))
		w.b.WriteByte('"')
	}
}

func (w *xmlWriter) open(name string, attrs ...attr) {
	w.indent()
	w.startTag(name, attrs)
	w.b.WriteString(">\n")
	w.depth++
}

func (w *xmlWriter) close(name string) {
	w.depth--
	w.indent()
	w.b.WriteString("</")
	w.b.WriteString(name)
	w.b.WriteString(">\n")
}

// text はテキストを持つ要素を1行で書く。
func (w *xmlWriter) text(name, value string, attrs ...attr) {
	w.indent()
	w.startTag(name, attrs)
	w.b.WriteByte('>')
	w.b.WriteString(EscapeXML(value))
	w.b.WriteString("</")
	w.b.WriteString(name)
	w.b.WriteString(">\n")
}

// optional は値が空でなければtextと同じく書く。
func (w *xmlWriter) optional(name, value string) {
	if value != "" {
		w.text(name, value)
	}
}

func (w *xmlWriter) empty(name string, attrs ...attr) {
	w.indent()
	w.startTag(name, attrs)
	w.b.WriteString("/>\n")
}
