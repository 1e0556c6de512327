package refresh

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/pubcaster/internal/feed"
	"github.com/hitoshi/pubcaster/internal/metrics"
	"github.com/hitoshi/pubcaster/internal/model"
)

// FeedBuilder はフィードを組み立てる。*feed.Builder が満たす。
type FeedBuilder interface {
	Build(ctx context.Context, identifier string) (*feed.Result, error)
}

// SnapshotStore は再生成結果の保存先。
type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *model.Snapshot) error
	Reschedule(ctx context.Context, pubkey string, next time.Time) error
}

// Refresher はスナップショットを再生成し、検証に通ったものだけを保存する。
type Refresher struct {
	builder  FeedBuilder
	store    SnapshotStore
	metrics  metrics.MetricsCollector
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRefresher はRefresherを生成する。intervalは次回再生成までの間隔。
func NewRefresher(builder FeedBuilder, store SnapshotStore, collector metrics.MetricsCollector, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		builder:  builder,
		store:    store,
		metrics:  collector,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh はsnapshotの識別子でフィードを組み立て直して保存する。
// ビルドまたは検証に失敗した場合は既存の内容を残し、次回予定だけを先送りする。
func (r *Refresher) Refresh(ctx context.Context, snapshot *model.Snapshot) error {
	next := r.now().Add(r.interval)

	res, err := r.builder.Build(ctx, snapshot.Identifier)
	if err != nil {
		r.reschedule(ctx, snapshot.Pubkey, next)
		return fmt.Errorf("フィードの再生成に失敗: %w", err)
	}

	if err := Verify(res.XML); err != nil {
		r.reschedule(ctx, snapshot.Pubkey, next)
		return err
	}

	if err := r.store.Upsert(ctx, &model.Snapshot{
		Pubkey:        res.Pubkey,
		Identifier:    snapshot.Identifier,
		XML:           res.XML,
		ItemCount:     len(res.Items),
		BuiltAt:       res.BuiltAt,
		NextRefreshAt: next,
	}); err != nil {
		return err
	}
	r.metrics.RecordSnapshotStored()

	r.logger.Info("フィードを再生成しました",
		slog.String("pubkey", res.Pubkey),
		slog.Int("items", len(res.Items)),
	)
	return nil
}

func (r *Refresher) reschedule(ctx context.Context, pubkey string, next time.Time) {
	if err := r.store.Reschedule(ctx, pubkey, next); err != nil {
		r.logger.Error("再生成予定の更新に失敗しました",
			slog.String("pubkey", pubkey),
			slog.String("error", err.Error()),
		)
	}
}

// Verify は組み立てたXMLがRSSフィードとして読めることを確認する。
func Verify(doc []byte) error {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("生成したフィードの解析に失敗: %w", err)
	}
	if parsed.FeedType != "rss" {
		return fmt.Errorf("生成したフィードの形式が不正です: %s", parsed.FeedType)
	}
	return nil
}
