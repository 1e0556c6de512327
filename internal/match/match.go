// Package match は短文のエピソード投稿と長文記事（ショーノート）を対応付ける。
//
// 投稿は記事の正式タイトルをそのまま含まないことが多いため、
// タイトルの部分一致とエピソード番号の一致の2段階で照合する。
package match

import (
	"regexp"
	"strings"

	"github.com/hitoshi/pubcaster/internal/model"
)

// episodePatterns はエピソード番号の抽出パターン。上から順に試行する。
var episodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[(\d+)\]`),                  // [21]
	regexp.MustCompile(`^(\d+):`),                    // 21:
	regexp.MustCompile(`^(\d+)\s*[-–—]\s*`),          // 21 - / 21–
	regexp.MustCompile(`(?i)Episode\s*(\d+)\s*[-:]`), // Episode 21:
	regexp.MustCompile(`(?i)E(\d+)\s*[-:]`),          // E21:
	regexp.MustCompile(`(?i)#(\d+)\s*[-:]`),          // #21:
}

// ExtractTitle はtitleタグの値、なければ本文1行目（100文字超は切り詰め）を返す。
func ExtractTitle(ev model.Event) string {
	ts := model.ParseTags(ev.Tags)
	if ts.HasTitle {
		return ts.Title
	}
	return model.DeriveTitle(ev.Content)
}

// ExtractEpisodeNumber はタイトルからエピソード番号を抽出する。見つからなければ空文字列。
func ExtractEpisodeNumber(title string) string {
	for _, p := range episodePatterns {
		if m := p.FindStringSubmatch(title); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// ShowNotesKey は投稿の照合キー（本文1行目をトリムしたもの）を返す。
// タグを考慮したタイトルではなく、生の1行目を使う。
func ShowNotesKey(content string) string {
	return strings.TrimSpace(model.FirstLine(content))
}

// Index は1回のビルドで使う記事タイトルの正規化インデックス。
// 小文字化したタイトルとエピソード番号を事前計算し、キーごとの結果をメモ化する。
// 並行利用は想定しない。
type Index struct {
	articles  []model.Article
	lowered   []string
	byEpisode map[string]int
	memo      map[string]int
}

// NewIndex は記事配列からIndexを構築する。配列の順序が照合の優先順位になる。
func NewIndex(articles []model.Article) *Index {
	ix := &Index{
		articles:  articles,
		lowered:   make([]string, len(articles)),
		byEpisode: make(map[string]int),
		memo:      make(map[string]int),
	}
	for i, a := range articles {
		ix.lowered[i] = strings.ToLower(a.Title)
		if n := ExtractEpisodeNumber(a.Title); n != "" {
			if _, exists := ix.byEpisode[n]; !exists {
				ix.byEpisode[n] = i
			}
		}
	}
	return ix
}

// Lookup はキーに対応する記事を返す。
// 1. タイトルがキーを大文字小文字を無視して含む最初の記事
// 2. 見つからなければ、キーから抽出したエピソード番号が一致する最初の記事
func (ix *Index) Lookup(key string) (model.Article, bool) {
	idx, ok := ix.memo[key]
	if !ok {
		idx = ix.find(key)
		ix.memo[key] = idx
	}
	if idx < 0 {
		return model.Article{}, false
	}
	return ix.articles[idx], true
}

func (ix *Index) find(key string) int {
	lowerKey := strings.ToLower(key)
	for i, title := range ix.lowered {
		if strings.Contains(title, lowerKey) {
			return i
		}
	}

	if n := ExtractEpisodeNumber(key); n != "" {
		if i, ok := ix.byEpisode[n]; ok {
			return i
		}
	}
	return -1
}

// MatchShowNotes は投稿ごとに照合キーから記事を探し、キー → 記事のマップを返す。
// 同じキーを持つ投稿は必ず同じ記事に対応する（または両方とも対応しない）。
func MatchShowNotes(posts []model.Post, articles []model.Article) map[string]model.Article {
	ix := NewIndex(articles)
	matches := make(map[string]model.Article)
	for _, p := range posts {
		key := ShowNotesKey(p.Content)
		if a, ok := ix.Lookup(key); ok {
			matches[key] = a
		}
	}
	return matches
}

// MatchActivityNotes はライブ配信のタイトルをキーとして記事を対応付ける。
// 照合規則はMatchShowNotesと同じ。
func MatchActivityNotes(activities []model.LiveActivity, articles []model.Article) map[string]model.Article {
	ix := NewIndex(articles)
	matches := make(map[string]model.Article)
	for _, a := range activities {
		key := strings.TrimSpace(a.Title)
		if key == "" {
			continue
		}
		if art, ok := ix.Lookup(key); ok {
			matches[key] = art
		}
	}
	return matches
}
