package podcast

import (
	"slices"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// ItemKind はフィードアイテムの種類。
type ItemKind int

const (
	// KindEpisode はメディアURLを含む投稿から作るエピソード。
	KindEpisode ItemKind = iota
	// KindRecording は録画URLを持つライブ配信から作る通常アイテム。
	KindRecording
	// KindLive は配信中または予定のライブ配信。podcast:liveItemとして出力する。
	KindLive
)

func (k ItemKind) String() string {
	switch k {
	case KindEpisode:
		return "episode"
	case KindRecording:
		return "recording"
	case KindLive:
		return "live"
	default:
		return "unknown"
	}
}

// Enclosure は添付メディア。
type Enclosure struct {
	URL    string
	Type   string
	Length int64
	// Medium はmedia:contentのmedium属性（audio / video）
	Medium string
}

// Item はフィードの1アイテム。
type Item struct {
	Kind  ItemKind
	GUID  string
	Title string
	Link  string
	// Description はサニタイズ済みHTML
	Description string
	// Summary はタグを除いたプレーンテキスト
	Summary   string
	Author    string
	PubDate   time.Time
	Enclosure Enclosure
	ImageURL  string
	Episode   string
	Keywords  []string
	Value     []model.ValueSplit

	// 以下はKindLiveのみ
	LiveStatus model.LiveStatus
	Start      *time.Time
	End        *time.Time
}

// SortItems は公開日時の新しい順に並べる。同時刻のアイテムは元の順序を保つ。
func SortItems(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.PubDate.Compare(a.PubDate)
	})
}
