// Package split はエピソードごとの支払い先と配分率（バリュースプリット）を解決する。
package split

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/pubcaster/internal/model"
)

// defaultConcurrency はプロフィール取得の同時実行数のデフォルト値。
const defaultConcurrency = 8

// ProfileLookup は公開鍵からプロフィールを取得するインターフェース。
// 見つからない場合は (nil, nil) を返す。
type ProfileLookup interface {
	FetchProfile(ctx context.Context, pubkey string) (*model.Profile, error)
}

// FailureRecorder はプロフィール取得失敗を記録するインターフェース。
type FailureRecorder interface {
	RecordProfileLookupFailure()
}

// Request は1エピソード分の解決要求。
type Request struct {
	// Article は照合済みの記事。なければnil
	Article *model.Article
	// Zaps は投稿（またはライブ配信）自身のzapタグ
	Zaps []model.ZapSplit
	// Activity はライブ配信由来のエピソードの場合のみ設定する
	Activity *model.LiveActivity
}

// Percentages はzapタグの重みから配分率を計算する。
// 重みの合計が正なら受取人ごとに独立して round(100 × w / W) を計算する。
// 再正規化は行わないため、合計は100にならないことがある（[1,1,1] は [33,33,33]）。
// 合計が0以下なら EqualShares と同じ均等配分になる。
func Percentages(zaps []model.ZapSplit) []model.ValueSplit {
	if len(zaps) == 0 {
		return nil
	}

	var total float64
	for _, z := range zaps {
		total += z.Weight
	}
	if total <= 0 {
		keys := make([]string, len(zaps))
		for i, z := range zaps {
			keys[i] = z.Pubkey
		}
		return EqualShares(keys)
	}

	splits := make([]model.ValueSplit, len(zaps))
	for i, z := range zaps {
		splits[i] = model.ValueSplit{
			Pubkey:     z.Pubkey,
			Percentage: int(math.Round(100 * z.Weight / total)),
		}
	}
	return splits
}

// EqualShares は floor(100/N) を全員に割り当て、余りを先頭の受取人に加える。
// 合計は常に100になる。
func EqualShares(keys []string) []model.ValueSplit {
	n := len(keys)
	if n == 0 {
		return nil
	}
	share := 100 / n
	splits := make([]model.ValueSplit, n)
	for i, k := range keys {
		splits[i] = model.ValueSplit{Pubkey: k, Percentage: share}
	}
	splits[0].Percentage += 100 - share*n
	return splits
}

// Resolver は優先順位に従ってエピソードごとのバリュースプリットを決定し、
// 受取人のプロフィールで支払い先を補完する。
type Resolver struct {
	lookup      ProfileLookup
	recorder    FailureRecorder
	concurrency int
	logger      *slog.Logger
}

// NewResolver は新しいResolverを生成する。concurrencyが0以下ならデフォルト値を使う。
func NewResolver(lookup ProfileLookup, recorder FailureRecorder, concurrency int, logger *slog.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:      lookup,
		recorder:    recorder,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Resolve は各要求に対するバリュースプリットを要求と同じ順序で返す。
// 支払い先が一つも決まらないエピソードはnilになる。
//
// 優先順位:
//  1. 照合済み記事のzapタグ
//  2. 投稿自身のzapタグ
//  3. （ライブ配信のみ）Lightningアドレスを持つ参加者で均等配分、いなければ配信者に100%
//  4. チャンネル所有者に100%（ノードIDを優先）
//
// プロフィール取得の失敗はその受取人のみプレースホルダーに劣化させ、全体を失敗させない。
func (r *Resolver) Resolve(ctx context.Context, owner *model.Profile, reqs []Request) [][]model.ValueSplit {
	dir := r.fetchProfiles(ctx, owner, collectKeys(reqs))

	out := make([][]model.ValueSplit, len(reqs))
	for i, req := range reqs {
		out[i] = resolveOne(req, owner, dir)
	}
	return out
}

// collectKeys はプロフィールが必要な公開鍵を重複なしで出現順に集める。
func collectKeys(reqs []Request) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	for _, req := range reqs {
		switch {
		case req.Article != nil && len(req.Article.ZapSplits) > 0:
			for _, z := range req.Article.ZapSplits {
				add(z.Pubkey)
			}
		case len(req.Zaps) > 0:
			for _, z := range req.Zaps {
				add(z.Pubkey)
			}
		case req.Activity != nil:
			for _, p := range req.Activity.Participants {
				add(p.Pubkey)
			}
			add(req.Activity.PubKey)
		}
	}
	return keys
}

// fetchProfiles は公開鍵ごとに1回だけプロフィールを取得する。
// 所有者のプロフィールは取得済みとして扱う。
func (r *Resolver) fetchProfiles(ctx context.Context, owner *model.Profile, keys []string) map[string]*model.Profile {
	dir := make(map[string]*model.Profile, len(keys)+1)
	if owner != nil {
		dir[owner.Pubkey] = owner
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, key := range keys {
		if _, ok := dir[key]; ok {
			continue
		}
		g.Go(func() error {
			p, err := r.lookup.FetchProfile(gctx, key)
			if err != nil {
				r.logger.Warn("recipient profile lookup failed",
					slog.String("pubkey", key),
					slog.String("error", err.Error()),
				)
				if r.recorder != nil {
					r.recorder.RecordProfileLookupFailure()
				}
				return nil
			}
			mu.Lock()
			dir[key] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return dir
}

func resolveOne(req Request, owner *model.Profile, dir map[string]*model.Profile) []model.ValueSplit {
	if req.Article != nil && len(req.Article.ZapSplits) > 0 {
		return enrich(Percentages(req.Article.ZapSplits), dir)
	}
	if len(req.Zaps) > 0 {
		return enrich(Percentages(req.Zaps), dir)
	}
	if req.Activity != nil {
		if splits := activitySplits(req.Activity, dir); splits != nil {
			return splits
		}
	}
	return ownerSplit(owner)
}

// activitySplits はLightningアドレスを持つ参加者で均等配分する。
// 該当者がいなければ配信者のLightningアドレスに100%を割り当てる。
func activitySplits(a *model.LiveActivity, dir map[string]*model.Profile) []model.ValueSplit {
	var keys []string
	for _, p := range a.Participants {
		if dir[p.Pubkey].LightningAddress() != "" {
			keys = append(keys, p.Pubkey)
		}
	}
	if len(keys) > 0 {
		return enrich(EqualShares(keys), dir)
	}

	creator := dir[a.PubKey]
	if creator.LightningAddress() == "" {
		return nil
	}
	return []model.ValueSplit{{
		Pubkey:           a.PubKey,
		Percentage:       100,
		LightningAddress: creator.LightningAddress(),
		Name:             creator.BestName(),
	}}
}

// ownerSplit はチャンネル所有者に100%を割り当てる。
// ノードIDもLightningアドレスもなければnilを返す。
func ownerSplit(owner *model.Profile) []model.ValueSplit {
	if owner.Node() == "" && owner.LightningAddress() == "" {
		return nil
	}
	return []model.ValueSplit{{
		Pubkey:           owner.Pubkey,
		Percentage:       100,
		LightningAddress: owner.LightningAddress(),
		NodeID:           owner.Node(),
		Name:             owner.BestName(),
	}}
}

// enrich は受取人ごとに表示名、Lightningアドレス、ノードIDを補完する。
// プロフィールがない受取人はそのまま残す。
func enrich(splits []model.ValueSplit, dir map[string]*model.Profile) []model.ValueSplit {
	for i := range splits {
		p := dir[splits[i].Pubkey]
		if p == nil {
			continue
		}
		splits[i].Name = p.BestName()
		splits[i].LightningAddress = p.LightningAddress()
		splits[i].NodeID = p.Node()
	}
	return splits
}
