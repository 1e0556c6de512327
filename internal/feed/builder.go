// Package feed は1人のユーザーのNostrイベントからポッドキャストフィードを組み立てる。
//
// ビルドの流れ:
// イベント取得 → メディア投稿の分類 → ショーノート照合 → バリュースプリット解決 →
// 本文レンダリング → (任意) エンクロージャー長の取得 → XML組み立て
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/pubcaster/internal/match"
	"github.com/hitoshi/pubcaster/internal/metrics"
	"github.com/hitoshi/pubcaster/internal/model"
	"github.com/hitoshi/pubcaster/internal/podcast"
	"github.com/hitoshi/pubcaster/internal/relay"
	"github.com/hitoshi/pubcaster/internal/split"
)

// 取得件数の既定値
const (
	DefaultPostLimit         = 420
	DefaultArticleLimit      = 100
	DefaultLiveActivityLimit = 50
)

// untitledLiveActivity はtitleタグのないライブ配信のタイトル。
const untitledLiveActivity = "Live activity"

// ErrProfileUnavailable はオーナーのプロフィールをリレーから取得できなかったことを示す。
// 「見つからない」とは区別し、保存済み文書へのフォールバック対象にする。
var ErrProfileUnavailable = errors.New("owner profile unavailable")

// HintedProfileLookup はnprofileのリレーヒントを使ってプロフィールを取得できる問い合わせ先。
// profilesがこれを満たす場合、オーナーのプロフィール取得にヒントを渡す。
type HintedProfileLookup interface {
	FetchProfileWithHints(ctx context.Context, pubkey string, hints []string) (*model.Profile, error)
}

// EventSource はイベントの問い合わせ先。
type EventSource interface {
	FetchEvents(ctx context.Context, q model.Query) ([]model.Event, error)
}

// Renderer はMarkdown本文をサニタイズ済みHTMLに変換する。
type Renderer interface {
	HTML(markdown string) string
}

// LengthProber はエンクロージャーのバイト長を補完する。
type LengthProber interface {
	Fill(ctx context.Context, items []podcast.Item)
}

// Options はBuilderの設定。
type Options struct {
	// BaseURL はフィードのリンクとself URLの基準。末尾のスラッシュは不要
	BaseURL           string
	PostLimit         int
	ArticleLimit      int
	LiveActivityLimit int
}

// Builder はフィードを組み立てる。複数のゴルーチンから同時に使える。
type Builder struct {
	events   EventSource
	profiles split.ProfileLookup
	resolver *split.Resolver
	renderer Renderer
	prober   LengthProber
	metrics  metrics.MetricsCollector
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder は新しいBuilderを生成する。proberがnilならエンクロージャー長は0のまま出力する。
func NewBuilder(
	events EventSource,
	profiles split.ProfileLookup,
	resolver *split.Resolver,
	renderer Renderer,
	prober LengthProber,
	collector metrics.MetricsCollector,
	opts Options,
	logger *slog.Logger,
) *Builder {
	if opts.PostLimit <= 0 {
		opts.PostLimit = DefaultPostLimit
	}
	if opts.ArticleLimit <= 0 {
		opts.ArticleLimit = DefaultArticleLimit
	}
	if opts.LiveActivityLimit <= 0 {
		opts.LiveActivityLimit = DefaultLiveActivityLimit
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		events:   events,
		profiles: profiles,
		resolver: resolver,
		renderer: renderer,
		prober:   prober,
		metrics:  collector,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// fetched は1回のビルドで取得したイベント群。
type fetched struct {
	profile    *model.Profile
	posts      []model.Event
	articles   []model.Event
	activities []model.Event
}

// Build は識別子（npub / nprofile / 16進公開鍵）のフィードを組み立てる。
// プロフィールが見つからない場合と識別子を解釈できない場合は
// ErrCodeProfileNotFound のAPIErrorを返す。
// リレーに問い合わせできなかった場合はラップしたエラーを返し、
// オーナーのプロフィールが取得できなかった場合はErrProfileUnavailableを含める。
func (b *Builder) Build(ctx context.Context, identifier string) (*Result, error) {
	start := b.now()
	res, err := b.build(ctx, identifier)
	b.metrics.RecordBuildLatency(b.now().Sub(start))

	switch {
	case err == nil:
		b.metrics.RecordBuild(metrics.BuildResultOK)
		b.metrics.RecordItemsBuilt(len(res.Items))
	case model.IsAPIError(err, model.ErrCodeProfileNotFound):
		b.metrics.RecordBuild(metrics.BuildResultNotFound)
	default:
		b.metrics.RecordBuild(metrics.BuildResultError)
	}
	return res, err
}

func (b *Builder) build(ctx context.Context, identifier string) (*Result, error) {
	id, ok := relay.ParseIdentity(identifier)
	if !ok {
		b.logger.Info("unparseable identifier", slog.String("identifier", identifier))
		return nil, model.NewProfileNotFoundError(identifier)
	}

	f, err := b.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.profile == nil {
		return nil, model.NewProfileNotFoundError(identifier)
	}

	now := b.now()
	posts := mediaPosts(f.posts)
	articles := latestArticles(f.articles)
	activities := latestActivities(f.activities)

	postNotes := match.MatchShowNotes(posts, articles)
	activityNotes := match.MatchActivityNotes(activities, articles)

	// 投稿、ライブ配信、チャンネル既定の順で解決要求を並べる
	reqs := make([]split.Request, 0, len(posts)+len(activities)+1)
	for _, p := range posts {
		reqs = append(reqs, split.Request{
			Article: articleFor(postNotes, match.ShowNotesKey(p.Content)),
			Zaps:    p.Tags.ZapSplits,
		})
	}
	for i := range activities {
		a := &activities[i]
		reqs = append(reqs, split.Request{
			Article:  articleFor(activityNotes, strings.TrimSpace(a.Title)),
			Zaps:     a.ZapSplits,
			Activity: a,
		})
	}
	reqs = append(reqs, split.Request{})
	values := b.resolver.Resolve(ctx, f.profile, reqs)

	res := &Result{
		Pubkey:     id.Pubkey,
		Identifier: identifier,
		Profile:    f.profile,
		BuiltAt:    now,
	}
	res.Channel = podcast.NewChannel(f.profile, id.Pubkey, b.pageURL(identifier), b.feedURL(identifier), now)
	res.Channel.Value = values[len(values)-1]

	for i, p := range posts {
		item, ep := b.episodeItem(p, reqs[i].Article, values[i])
		res.Items = append(res.Items, item)
		res.Episodes = append(res.Episodes, ep)
	}
	for i := range activities {
		k := len(posts) + i
		item, ep, ok := b.activityItem(activities[i], reqs[k].Article, values[k], now)
		if !ok {
			continue
		}
		res.Items = append(res.Items, item)
		res.Episodes = append(res.Episodes, ep)
	}

	if b.prober != nil {
		b.prober.Fill(ctx, res.Items)
		for i := range res.Episodes {
			res.Episodes[i].Length = res.Items[i].Enclosure.Length
		}
	}

	podcast.SortItems(res.Items)
	sortEpisodes(res.Episodes)
	res.XML = podcast.Assemble(res.Channel, res.Items)

	b.logger.Info("feed built",
		slog.String("pubkey", id.Pubkey),
		slog.Int("posts", len(f.posts)),
		slog.Int("articles", len(articles)),
		slog.Int("live_activities", len(activities)),
		slog.Int("items", len(res.Items)),
	)
	return res, nil
}

// fetch はプロフィールと3種類のイベントを並行して取得する。
// どちらの取得に失敗してもエラーを返す。プロフィールの失敗はErrProfileUnavailableでラップする。
func (b *Builder) fetch(ctx context.Context, id relay.Identity) (*fetched, error) {
	var f fetched
	authors := []string{id.Pubkey}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.ownerProfile(gctx, id)
		if err != nil {
			b.logger.Warn("owner profile lookup failed",
				slog.String("pubkey", id.Pubkey),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
		}
		f.profile = p
		return nil
	})
	g.Go(func() error {
		evs, err := b.events.FetchEvents(gctx, model.Query{
			Kinds: []int{model.KindTextNote}, Authors: authors, RelayHints: id.Relays, Limit: b.opts.PostLimit,
		})
		if err != nil {
			return fmt.Errorf("投稿の取得に失敗しました: %w", err)
		}
		f.posts = evs
		return nil
	})
	g.Go(func() error {
		evs, err := b.events.FetchEvents(gctx, model.Query{
			Kinds: []int{model.KindLongForm}, Authors: authors, RelayHints: id.Relays, Limit: b.opts.ArticleLimit,
		})
		if err != nil {
			return fmt.Errorf("長文記事の取得に失敗しました: %w", err)
		}
		f.articles = evs
		return nil
	})

	// ライブ配信は作成者としてのものと、参加者として含まれるものの両方を取得する
	var hosted, joined []model.Event
	g.Go(func() error {
		evs, err := b.events.FetchEvents(gctx, model.Query{
			Kinds: []int{model.KindLiveActivity}, Authors: authors, RelayHints: id.Relays, Limit: b.opts.LiveActivityLimit,
		})
		if err != nil {
			return fmt.Errorf("ライブ配信の取得に失敗しました: %w", err)
		}
		hosted = evs
		return nil
	})
	g.Go(func() error {
		evs, err := b.events.FetchEvents(gctx, model.Query{
			Kinds:      []int{model.KindLiveActivity},
			Tags:       map[string][]string{"p": authors},
			RelayHints: id.Relays,
			Limit:      b.opts.LiveActivityLimit,
		})
		if err != nil {
			return fmt.Errorf("ライブ配信の取得に失敗しました: %w", err)
		}
		joined = evs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	f.activities = append(hosted, joined...)
	return &f, nil
}

// ownerProfile はnprofileのヒントがあればそれも使ってオーナーのプロフィールを取得する。
func (b *Builder) ownerProfile(ctx context.Context, id relay.Identity) (*model.Profile, error) {
	if hinted, ok := b.profiles.(HintedProfileLookup); ok && len(id.Relays) > 0 {
		return hinted.FetchProfileWithHints(ctx, id.Pubkey, id.Relays)
	}
	return b.profiles.FetchProfile(ctx, id.Pubkey)
}

func (b *Builder) pageURL(identifier string) string {
	return b.opts.BaseURL + "/" + identifier
}

func (b *Builder) feedURL(identifier string) string {
	return b.opts.BaseURL + "/" + identifier + "/rss.xml"
}

func articleFor(notes map[string]model.Article, key string) *model.Article {
	a, ok := notes[key]
	if !ok {
		return nil
	}
	return &a
}
