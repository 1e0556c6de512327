// Package relay はNostrリレーからのイベント取得とユーザー参照の解決を提供する。
package relay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/pubcaster/internal/model"
)

// defaultQueryTimeout はリレー1件あたりのクエリタイムアウトのデフォルト値。
const defaultQueryTimeout = 10 * time.Second

// ErrNoRelays は問い合わせ先のリレーが一つもない場合のエラー。
var ErrNoRelays = errors.New("no relays configured")

// FailureRecorder はリレーへのクエリ失敗を記録するインターフェース。
type FailureRecorder interface {
	RecordRelayQueryFailure(relay string)
}

// querier は単一リレーへの問い合わせを抽象化する。テストで差し替える。
type querier interface {
	query(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error)
}

// poolQuerier はSimplePoolの接続を使って問い合わせる。
type poolQuerier struct {
	pool *nostr.SimplePool
}

func (q poolQuerier) query(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	r, err := q.pool.EnsureRelay(url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return r.QuerySync(ctx, filter)
}

// Session はプロセス全体で共有するリレー接続。
// 起動時に一度だけ生成し、各コンポーネントに渡す。
type Session struct {
	q        querier
	relays   []string
	timeout  time.Duration
	recorder FailureRecorder
	logger   *slog.Logger
}

// Config はSessionの設定。
type Config struct {
	Relays       []string
	QueryTimeout time.Duration
}

// NewSession はリレープールを生成してSessionを返す。
// ctxはプールの寿命を決める。
func NewSession(ctx context.Context, cfg Config, recorder FailureRecorder, logger *slog.Logger) *Session {
	return newSession(poolQuerier{pool: nostr.NewSimplePool(ctx)}, cfg, recorder, logger)
}

func newSession(q querier, cfg Config, recorder FailureRecorder, logger *slog.Logger) *Session {
	relays := MergeRelays(cfg.Relays)
	if len(relays) == 0 {
		relays = MergeRelays(DefaultRelays)
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		q:        q,
		relays:   relays,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger,
	}
}

// Relays は既定の問い合わせ先リレーを返す。
func (s *Session) Relays() []string {
	return slices.Clone(s.relays)
}

// FetchEvents は全リレーに並行して問い合わせ、IDで重複を除いたイベントを
// 作成日時の新しい順で返す。
// 一部のリレーの失敗はログに記録して無視し、全リレーが失敗した場合のみエラーを返す。
func (s *Session) FetchEvents(ctx context.Context, q model.Query) ([]model.Event, error) {
	relays := MergeRelays(q.RelayHints, s.relays)
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	filter := toFilter(q)

	var (
		mu       sync.Mutex
		byID     = make(map[string]model.Event)
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range relays {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			events, err := s.q.query(qctx, url, filter)
			if err == nil && qctx.Err() != nil {
				// QuerySyncは期限切れでも集めた分だけをnilエラーで返すため、
				// EOSEを待たずに終わった問い合わせは失敗として数える
				err = fmt.Errorf("query timed out: %w", context.Cause(qctx))
			}
			if err != nil {
				s.logger.Warn("relay query failed",
					slog.String("relay", url),
					slog.Any("kinds", q.Kinds),
					slog.String("error", err.Error()),
				)
				if s.recorder != nil {
					s.recorder.RecordRelayQueryFailure(url)
				}
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, ev := range events {
				if ev == nil {
					continue
				}
				if _, ok := byID[ev.ID]; !ok {
					byID[ev.ID] = fromNostr(ev)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(relays) {
		return nil, fmt.Errorf("all %d relays failed: %w", failures, lastErr)
	}

	out := make([]model.Event, 0, len(byID))
	for _, ev := range byID {
		out = append(out, ev)
	}
	slices.SortStableFunc(out, func(a, b model.Event) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// FetchProfile は公開鍵の最新のkind 0メタデータを取得する。
// 見つからない場合は (nil, nil) を返す。
// メタデータのJSONが壊れている場合は公開鍵のみのProfileを返す。
func (s *Session) FetchProfile(ctx context.Context, pubkey string) (*model.Profile, error) {
	return s.fetchProfile(ctx, pubkey, nil)
}

// FetchProfileWithHints はリレーヒントを加えてプロフィールを取得する。
func (s *Session) FetchProfileWithHints(ctx context.Context, pubkey string, hints []string) (*model.Profile, error) {
	return s.fetchProfile(ctx, pubkey, hints)
}

func (s *Session) fetchProfile(ctx context.Context, pubkey string, hints []string) (*model.Profile, error) {
	events, err := s.FetchEvents(ctx, model.Query{
		Kinds:      []int{model.KindProfile},
		Authors:    []string{pubkey},
		RelayHints: hints,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", pubkey, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	// 新しい順に並んでいるので先頭が最新
	latest := events[0]
	p, err := model.ParseProfile(pubkey, latest.Content)
	if err != nil {
		s.logger.Warn("malformed profile metadata",
			slog.String("pubkey", pubkey),
			slog.String("event_id", latest.ID),
			slog.String("error", err.Error()),
		)
		return &model.Profile{Pubkey: pubkey}, nil
	}
	return p, nil
}

func toFilter(q model.Query) nostr.Filter {
	f := nostr.Filter{
		Kinds:   q.Kinds,
		Authors: q.Authors,
		Limit:   q.Limit,
	}
	if len(q.Tags) > 0 {
		f.Tags = nostr.TagMap{}
		for k, v := range q.Tags {
			f.Tags[k] = v
		}
	}
	return f
}

func fromNostr(ev *nostr.Event) model.Event {
	tags := make([][]string, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = []string(t)
	}
	return model.Event{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt.Time(),
		Kind:      ev.Kind,
		Content:   ev.Content,
		Tags:      tags,
	}
}
