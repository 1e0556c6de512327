// Package cache はリレー問い合わせ結果のプロセス内キャッシュを提供する。
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hitoshi/pubcaster/internal/model"
)

// ProfileSource はキャッシュの背後でプロフィールを取得するインターフェース。
type ProfileSource interface {
	FetchProfile(ctx context.Context, pubkey string) (*model.Profile, error)
}

// HintedProfileSource はリレーヒントを加えて取得できるソース。*relay.Session が満たす。
type HintedProfileSource interface {
	FetchProfileWithHints(ctx context.Context, pubkey string, hints []string) (*model.Profile, error)
}

// profileEntry は「見つからなかった」結果もキャッシュするためのラッパー。
type profileEntry struct {
	profile *model.Profile
}

// ProfileCache は期限付きLRUでプロフィール取得結果をキャッシュする。
// 取得エラーは一時的な障害とみなしてキャッシュしない。
// 複数のゴルーチンから同時に利用できる。
type ProfileCache struct {
	inner ProfileSource
	lru   *expirable.LRU[string, profileEntry]
}

// NewProfileCache は新しいProfileCacheを生成する。
// sizeが0なら件数無制限、ttlが0なら期限なしになる。
func NewProfileCache(inner ProfileSource, size int, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		inner: inner,
		lru:   expirable.NewLRU[string, profileEntry](size, nil, ttl),
	}
}

// FetchProfile はキャッシュを確認し、なければ背後のソースから取得する。
// 見つからない場合は (nil, nil) を返す。返り値のProfileは呼び出し側で変更しないこと。
func (c *ProfileCache) FetchProfile(ctx context.Context, pubkey string) (*model.Profile, error) {
	return c.FetchProfileWithHints(ctx, pubkey, nil)
}

// FetchProfileWithHints はFetchProfileと同じだが、キャッシュにない場合は
// ソースがHintedProfileSourceを満たしていればリレーヒントも使って取得する。
// ヒントは問い合わせ先を増やすだけなので、結果は公開鍵だけをキーにキャッシュする。
func (c *ProfileCache) FetchProfileWithHints(ctx context.Context, pubkey string, hints []string) (*model.Profile, error) {
	if e, ok := c.lru.Get(pubkey); ok {
		return e.profile, nil
	}

	var (
		p   *model.Profile
		err error
	)
	if hinted, ok := c.inner.(HintedProfileSource); ok && len(hints) > 0 {
		p, err = hinted.FetchProfileWithHints(ctx, pubkey, hints)
	} else {
		p, err = c.inner.FetchProfile(ctx, pubkey)
	}
	if err != nil {
		return nil, err
	}
	// 期限切れや中断で打ち切られた結果は「見つからない」と区別できないため保存しない
	if ctx.Err() != nil {
		return p, nil
	}
	c.lru.Add(pubkey, profileEntry{profile: p})
	return p, nil
}
