package model

import (
	"fmt"
	"time"
)

// Post はメディアリンクを含みうる短文イベント（kind 1）。
type Post struct {
	Event
	Tags TagSet
}

// NewPost はイベントからPostを生成する。
func NewPost(ev Event) Post {
	return Post{Event: ev, Tags: ParseTags(ev.Tags)}
}

// Title はtitleタグ、なければ本文1行目から導出したタイトルを返す。
func (p Post) Title() string {
	if p.Tags.HasTitle {
		return p.Tags.Title
	}
	return DeriveTitle(p.Content)
}

// Article は長文記事イベント（NIP-23, kind 30023）。
type Article struct {
	ID         string
	PubKey     string
	Title      string
	Body       string // Markdown
	Identifier string
	Image      string
	Summary    string
	ZapSplits  []ZapSplit
	CreatedAt  time.Time
}

// NewArticle はイベントからArticleを生成する。
func NewArticle(ev Event) Article {
	ts := ParseTags(ev.Tags)
	title := ts.Title
	if !ts.HasTitle {
		title = DeriveTitle(ev.Content)
	}
	return Article{
		ID:         ev.ID,
		PubKey:     ev.PubKey,
		Title:      title,
		Body:       ev.Content,
		Identifier: ts.Identifier,
		Image:      ts.Image,
		Summary:    ts.Summary,
		ZapSplits:  ts.ZapSplits,
		CreatedAt:  ev.CreatedAt,
	}
}

// LiveStatus はライブ配信の状態を表す。
type LiveStatus string

const (
	// LiveStatusPlanned は開始前の予定状態。
	LiveStatusPlanned LiveStatus = "planned"
	// LiveStatusLive は配信中の状態。
	LiveStatusLive LiveStatus = "live"
	// LiveStatusEnded は終了済みの状態。
	LiveStatusEnded LiveStatus = "ended"
)

// ParseLiveStatus はstatusタグの値を解析する。未知の値は空文字列を返す。
func ParseLiveStatus(v string) LiveStatus {
	switch LiveStatus(v) {
	case LiveStatusPlanned, LiveStatusLive, LiveStatusEnded:
		return LiveStatus(v)
	default:
		return ""
	}
}

// LiveActivity はライブ配信イベント（NIP-53, kind 30311）。
type LiveActivity struct {
	ID           string
	PubKey       string
	Address      string
	Identifier   string
	Title        string
	Summary      string
	Image        string
	StreamingURL string
	RecordingURL string
	Status       LiveStatus // タグで明示された状態。未指定なら空
	Starts       *time.Time
	Ends         *time.Time
	Participants []Participant
	Hashtags     []string
	ZapSplits    []ZapSplit
	CreatedAt    time.Time
}

// NewLiveActivity はイベントからLiveActivityを生成する。
func NewLiveActivity(ev Event) LiveActivity {
	ts := ParseTags(ev.Tags)
	return LiveActivity{
		ID:           ev.ID,
		PubKey:       ev.PubKey,
		Address:      fmt.Sprintf("%d:%s:%s", KindLiveActivity, ev.PubKey, ts.Identifier),
		Identifier:   ts.Identifier,
		Title:        ts.Title,
		Summary:      ts.Summary,
		Image:        ts.Image,
		StreamingURL: ts.Streaming,
		RecordingURL: ts.Recording,
		Status:       ts.Status,
		Starts:       ts.Starts,
		Ends:         ts.Ends,
		Participants: ts.Participants,
		Hashtags:     ts.Hashtags,
		ZapSplits:    ts.ZapSplits,
		CreatedAt:    ev.CreatedAt,
	}
}

// CurrentStatus はnow時点での配信状態を返す。
// 明示的なstatusタグを優先し、なければ[starts, ends)と比較して決定する。
// 片方の境界しかない場合はその境界のみと比較し、両方ない場合はliveとみなす。
func (a LiveActivity) CurrentStatus(now time.Time) LiveStatus {
	if a.Status != "" {
		return a.Status
	}
	if a.Starts != nil && now.Before(*a.Starts) {
		return LiveStatusPlanned
	}
	if a.Ends != nil && now.After(*a.Ends) {
		return LiveStatusEnded
	}
	return LiveStatusLive
}
