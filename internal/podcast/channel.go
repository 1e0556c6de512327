// Package podcast はエピソードの一覧をRSS 2.0 + iTunes/Podcasting 2.0拡張の
// XML文書に組み立てる。
package podcast

import (
	"net/url"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// チャンネル情報の既定値
const (
	DefaultTitle       = "Anonymous Podcast"
	DefaultDescription = "A podcast feed generated from Nostr posts"
	DefaultAuthor      = "Anonymous"
	DefaultLanguage    = "en-us"
	Generator          = "pubcaster"
)

// Channel はフィード全体のメタデータ。
type Channel struct {
	Title       string
	Link        string
	SelfURL     string
	Description string
	Author      string
	ImageURL    string
	Language    string
	OwnerPubkey string
	// Value はチャンネル既定の支払い先。空なら出力しない
	Value   []model.ValueSplit
	BuiltAt time.Time
}

// NewChannel はプロフィールからチャンネル情報を作る。
// 名前がなければ既定のタイトル、画像がなければ公開鍵から決まるプレースホルダー画像を使う。
func NewChannel(owner *model.Profile, pubkey, link, selfURL string, builtAt time.Time) Channel {
	title := owner.BestName()
	author := title
	if title == "" {
		title = DefaultTitle
		author = DefaultAuthor
	}

	description := DefaultDescription
	if owner != nil && owner.About != "" {
		description = owner.About
	}

	image := owner.BestImage()
	if image == "" {
		image = PlaceholderImage(pubkey)
	}

	return Channel{
		Title:       title,
		Link:        link,
		SelfURL:     selfURL,
		Description: description,
		Author:      author,
		ImageURL:    image,
		Language:    DefaultLanguage,
		OwnerPubkey: pubkey,
		BuiltAt:     builtAt,
	}
}

// PlaceholderImage は公開鍵ごとに一意に決まるアバター画像のURLを返す。
func PlaceholderImage(pubkey string) string {
	return "https://robohash.org/" + url.PathEscape(pubkey) + ".png?set=set4"
}
