package feed

import (
	"slices"
	"time"

	"github.com/hitoshi/pubcaster/internal/classify"
	"github.com/hitoshi/pubcaster/internal/match"
	"github.com/hitoshi/pubcaster/internal/model"
	"github.com/hitoshi/pubcaster/internal/podcast"
	"github.com/hitoshi/pubcaster/internal/render"
)

// Result は1回のビルド結果。
type Result struct {
	Pubkey     string
	Identifier string
	Profile    *model.Profile
	Channel    podcast.Channel
	Items      []podcast.Item
	Episodes   []Episode
	XML        []byte
	BuiltAt    time.Time
}

// Episode は画面表示とJSON APIに渡すエピソード単位のビューモデル。
// HLSはプレーヤー側でHLS対応が必要なことを示す。
type Episode struct {
	Kind           string             `json:"kind"`
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Content        string             `json:"content"`
	HTML           string             `json:"html"`
	MediaURL       string             `json:"media_url"`
	Media          classify.MediaInfo `json:"media"`
	HasAudio       bool               `json:"has_audio"`
	HLS            bool               `json:"hls"`
	Length         int64              `json:"length"`
	ImageURL       string             `json:"image_url,omitempty"`
	EpisodeNumber  string             `json:"episode_number,omitempty"`
	Hashtags       []string           `json:"hashtags,omitempty"`
	ShowNotesID    string             `json:"show_notes_id,omitempty"`
	ShowNotesTitle string             `json:"show_notes_title,omitempty"`
	Value          []model.ValueSplit `json:"value,omitempty"`
	LiveStatus     model.LiveStatus   `json:"live_status,omitempty"`
	Starts         *time.Time         `json:"starts,omitempty"`
	Ends           *time.Time         `json:"ends,omitempty"`
	PublishedAt    time.Time          `json:"published_at"`
}

// mediaPosts はメディアURLを取り出せる投稿だけを残す。
func mediaPosts(events []model.Event) []model.Post {
	var posts []model.Post
	for _, ev := range events {
		if !classify.IsMediaEvent(ev.Content) {
			continue
		}
		if classify.ExtractMediaURL(ev.Content) == "" {
			continue
		}
		posts = append(posts, model.NewPost(ev))
	}
	return posts
}

// latestArticles は同じdタグを持つ記事のうち最新のものだけを残す。
// 入力は新しい順に並んでいる前提で、出現順を保つ。
func latestArticles(events []model.Event) []model.Article {
	seen := make(map[string]bool)
	var out []model.Article
	for _, ev := range events {
		a := model.NewArticle(ev)
		if a.Identifier != "" {
			key := a.PubKey + ":" + a.Identifier
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, a)
	}
	return out
}

// latestActivities はアドレスごとに最新のライブ配信だけを残す。
// 作成者としての取得結果と参加者としての取得結果が重複していてもよい。
func latestActivities(events []model.Event) []model.LiveActivity {
	byAddr := make(map[string]int)
	var out []model.LiveActivity
	for _, ev := range events {
		a := model.NewLiveActivity(ev)
		if i, ok := byAddr[a.Address]; ok {
			if a.CreatedAt.After(out[i].CreatedAt) {
				out[i] = a
			}
			continue
		}
		byAddr[a.Address] = len(out)
		out = append(out, a)
	}
	return out
}

func (b *Builder) episodeItem(p model.Post, article *model.Article, value []model.ValueSplit) (podcast.Item, Episode) {
	mediaURL := classify.ExtractMediaURL(p.Content)
	info := classify.TypeInfo(mediaURL)
	title := p.Title()

	body := p.Content
	if article != nil {
		body = article.Body
	}
	html := b.renderer.HTML(body)

	image := p.Tags.Image
	if image == "" {
		image = classify.ExtractImageURL(p.Content)
	}
	number := match.ExtractEpisodeNumber(title)

	item := podcast.Item{
		Kind:        podcast.KindEpisode,
		GUID:        p.ID,
		Title:       title,
		Description: html,
		Summary:     render.PlainText(html),
		PubDate:     p.CreatedAt,
		Enclosure:   enclosureFor(mediaURL, info),
		ImageURL:    image,
		Episode:     number,
		Keywords:    p.Tags.Hashtags,
		Value:       value,
	}
	ep := Episode{
		Kind:          podcast.KindEpisode.String(),
		ID:            p.ID,
		Title:         title,
		Content:       p.Content,
		HTML:          html,
		MediaURL:      mediaURL,
		Media:         info,
		HasAudio:      classify.IsAudioEvent(p.Content),
		HLS:           classify.IsHLSStream(mediaURL),
		ImageURL:      image,
		EpisodeNumber: number,
		Hashtags:      p.Tags.Hashtags,
		Value:         value,
		PublishedAt:   p.CreatedAt,
	}
	if article != nil {
		ep.ShowNotesID = article.ID
		ep.ShowNotesTitle = article.Title
	}
	return item, ep
}

// activityItem はライブ配信を録画アイテムまたはライブアイテムに変換する。
// 録画URLがあれば録画を優先し、なければ終了していない配信のみライブアイテムにする。
func (b *Builder) activityItem(a model.LiveActivity, article *model.Article, value []model.ValueSplit, now time.Time) (podcast.Item, Episode, bool) {
	status := a.CurrentStatus(now)

	var (
		kind     podcast.ItemKind
		mediaURL string
	)
	switch {
	case a.RecordingURL != "":
		kind, mediaURL = podcast.KindRecording, a.RecordingURL
	case a.StreamingURL != "" && status != model.LiveStatusEnded:
		kind, mediaURL = podcast.KindLive, a.StreamingURL
	default:
		return podcast.Item{}, Episode{}, false
	}

	title := a.Title
	if title == "" {
		title = untitledLiveActivity
	}
	body := a.Summary
	if article != nil {
		body = article.Body
	}
	html := b.renderer.HTML(body)
	info := classify.TypeInfo(mediaURL)

	item := podcast.Item{
		Kind:        kind,
		GUID:        a.Address,
		Title:       title,
		Description: html,
		Summary:     render.PlainText(html),
		PubDate:     a.CreatedAt,
		Enclosure:   enclosureFor(mediaURL, info),
		ImageURL:    a.Image,
		Episode:     match.ExtractEpisodeNumber(title),
		Keywords:    a.Hashtags,
		Value:       value,
	}
	if kind == podcast.KindLive {
		item.LiveStatus = status
		item.Start = a.Starts
		item.End = a.Ends
	}

	ep := Episode{
		Kind:          kind.String(),
		ID:            a.Address,
		Title:         title,
		Content:       a.Summary,
		HTML:          html,
		MediaURL:      mediaURL,
		Media:         info,
		HasAudio:      classify.IsAudioEvent(mediaURL),
		HLS:           classify.IsHLSStream(mediaURL),
		ImageURL:      a.Image,
		EpisodeNumber: item.Episode,
		Hashtags:      a.Hashtags,
		Value:         value,
		LiveStatus:    status,
		Starts:        a.Starts,
		Ends:          a.Ends,
		PublishedAt:   a.CreatedAt,
	}
	if article != nil {
		ep.ShowNotesID = article.ID
		ep.ShowNotesTitle = article.Title
	}
	return item, ep, true
}

func enclosureFor(mediaURL string, info classify.MediaInfo) podcast.Enclosure {
	medium := "audio"
	if info.Category == classify.CategoryVideo {
		medium = "video"
	}
	return podcast.Enclosure{URL: mediaURL, Type: info.MimeType, Medium: medium}
}

// sortEpisodes はエピソードを公開日時の新しい順に並べる。同時刻は元の順序を保つ。
func sortEpisodes(eps []Episode) {
	slices.SortStableFunc(eps, func(a, b Episode) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}
