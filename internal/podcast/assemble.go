package podcast

import (
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// 名前空間
const (
	nsITunes  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	nsPodcast = "https://podcastindex.org/namespace/1.0"
	nsMedia   = "http://search.yahoo.com/mrss/"
	nsContent = "http://purl.org/rss/1.0/modules/content/"
	nsAtom    = "http://www.w3.org/2005/Atom"
)

// ContentType はフィード文書のContent-Type。
const ContentType = "application/xml; charset=utf-8"

// Podcasting 2.0 のvalueブロック
const (
	valueType      = "lightning"
	methodKeysend  = "keysend"
	methodLNAddr   = "lnaddress"
	suggestedValue = "0.00000005000"
)

// Assemble はチャンネルとアイテムからフィード文書を生成する。
// アイテムは公開日時の新しい順に並べ替えてから出力する。
// メディアURLのないエピソードと、出力できる形を持たないアイテムは省略する。
func Assemble(ch Channel, items []Item) []byte {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	SortItems(sorted)

	w := &xmlWriter{}
	w.b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	w.open("rss",
		attr{"version", "2.0"},
		attr{"xmlns:itunes", nsITunes},
		attr{"xmlns:podcast", nsPodcast},
		attr{"xmlns:media", nsMedia},
		attr{"xmlns:content", nsContent},
		attr{"xmlns:atom", nsAtom},
	)
	w.open("channel")
	writeChannelHeader(w, ch)
	for _, it := range sorted {
		switch it.Kind {
		case KindLive:
			writeLiveItem(w, ch, it)
		default:
			writeItem(w, ch, it)
		}
	}
	w.close("channel")
	w.close("rss")

	return []byte(w.b.String())
}

func writeChannelHeader(w *xmlWriter, ch Channel) {
	built := rfc822(ch.BuiltAt)
	language := ch.Language
	if language == "" {
		language = DefaultLanguage
	}

	w.text("title", ch.Title)
	w.text("link", ch.Link)
	w.text("description", ch.Description)
	w.text("language", language)
	w.text("pubDate", built)
	w.text("lastBuildDate", built)
	w.text("generator", Generator)
	if ch.SelfURL != "" {
		w.empty("atom:link",
			attr{"href", ch.SelfURL},
			attr{"rel", "self"},
			attr{"type", "application/rss+xml"},
		)
	}
	if ch.ImageURL != "" {
		w.open("image")
		w.text("url", ch.ImageURL)
		w.text("title", ch.Title)
		w.text("link", ch.Link)
		w.close("image")
		w.empty("itunes:image", attr{"href", ch.ImageURL})
	}
	w.text("itunes:author", ch.Author)
	w.text("itunes:summary", ch.Description)
	w.text("itunes:type", "episodic")
	w.text("itunes:explicit", "false")
	if ch.OwnerPubkey != "" {
		w.text("podcast:guid", ch.OwnerPubkey)
	}
	writeValue(w, ch.Value)
}

func writeItem(w *xmlWriter, ch Channel, it Item) {
	if it.Enclosure.URL == "" {
		return
	}

	w.open("item")
	w.text("title", it.Title)
	link := it.Link
	if link == "" {
		link = it.Enclosure.URL
	}
	w.text("link", link)
	w.text("guid", it.GUID, attr{"isPermaLink", "false"})
	w.text("pubDate", rfc822(it.PubDate))
	w.optional("description", it.Description)
	w.optional("content:encoded", it.Description)
	writeEnclosure(w, it.Enclosure)
	w.text("itunes:title", it.Title)
	w.text("itunes:author", authorOf(ch, it))
	w.optional("itunes:summary", it.Summary)
	if it.ImageURL != "" {
		w.empty("itunes:image", attr{"href", it.ImageURL})
	}
	w.optional("itunes:episode", it.Episode)
	w.optional("itunes:keywords", strings.Join(it.Keywords, ","))
	w.text("itunes:explicit", "false")
	w.text("itunes:episodeType", "full")
	writeValue(w, it.Value)
	w.close("item")
}

// writeLiveItem はpodcast:liveItemを書く。配信URLがなければ何も書かない。
func writeLiveItem(w *xmlWriter, ch Channel, it Item) {
	if it.Enclosure.URL == "" {
		return
	}

	attrs := []attr{{"status", liveItemStatus(it.LiveStatus)}}
	if it.Start != nil {
		attrs = append(attrs, attr{"start", it.Start.UTC().Format(time.RFC3339)})
	}
	if it.End != nil {
		attrs = append(attrs, attr{"end", it.End.UTC().Format(time.RFC3339)})
	}

	w.open("podcast:liveItem", attrs...)
	w.text("title", it.Title)
	w.text("link", firstNonEmpty(it.Link, it.Enclosure.URL))
	w.text("guid", it.GUID, attr{"isPermaLink", "false"})
	w.text("pubDate", rfc822(it.PubDate))
	w.optional("description", it.Description)
	writeEnclosure(w, it.Enclosure)
	w.empty("podcast:contentLink", attr{"href", it.Enclosure.URL})
	w.text("itunes:author", authorOf(ch, it))
	if it.ImageURL != "" {
		w.empty("itunes:image", attr{"href", it.ImageURL})
	}
	writeValue(w, it.Value)
	w.close("podcast:liveItem")
}

func writeEnclosure(w *xmlWriter, enc Enclosure) {
	w.empty("enclosure",
		attr{"url", enc.URL},
		attr{"length", strconv.FormatInt(enc.Length, 10)},
		attr{"type", enc.Type},
	)
	if enc.Medium != "" {
		w.empty("media:content",
			attr{"url", enc.URL},
			attr{"type", enc.Type},
			attr{"medium", enc.Medium},
		)
	}
}

// writeValue はpodcast:valueブロックを書く。受取人がいなければ何も書かない。
// 全受取人がノードIDを持つ場合のみmethodをkeysendにする。
func writeValue(w *xmlWriter, splits []model.ValueSplit) {
	if len(splits) == 0 {
		return
	}

	method := methodKeysend
	for _, s := range splits {
		if s.Method() != model.PaymentMethodNode {
			method = methodLNAddr
			break
		}
	}

	w.open("podcast:value",
		attr{"type", valueType},
		attr{"method", method},
		attr{"suggested", suggestedValue},
	)
	for _, s := range splits {
		w.empty("podcast:valueRecipient",
			attr{"name", s.DisplayName()},
			attr{"type", s.Method()},
			attr{"address", s.Address()},
			attr{"split", strconv.Itoa(s.Percentage)},
		)
	}
	w.close("podcast:value")
}

// liveItemStatus はライブ配信の状態をpodcast:liveItemのstatus属性値に変換する。
func liveItemStatus(s model.LiveStatus) string {
	switch s {
	case model.LiveStatusPlanned:
		return "pending"
	case model.LiveStatusEnded:
		return "ended"
	default:
		return "live"
	}
}

func authorOf(ch Channel, it Item) string {
	return firstNonEmpty(it.Author, ch.Author, DefaultAuthor)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func rfc822(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}
