package model

import "strings"

// maxTitleRunes はタイトルとして扱う最大文字数。
const maxTitleRunes = 100

// FirstLine は本文の1行目を返す。トリムは行わない。
func FirstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

// DeriveTitle はtitleタグがない場合のタイトルを本文から導出する。
// 1行目が100文字を超える場合は97文字に切り詰めて"..."を付与する。
func DeriveTitle(content string) string {
	line := FirstLine(content)
	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	return line
}
