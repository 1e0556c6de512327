// Package refresh は保存済みフィードのバックグラウンド再生成を提供する。
// スケジューラとスナップショット単位の再生成処理を含む。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// defaultBatchSize は1サイクルで処理するスナップショットの上限。
const defaultBatchSize = 100

// DueLister は再生成対象のスナップショットを列挙する。
type DueLister interface {
	ListDueForRefresh(ctx context.Context, limit int) ([]*model.Snapshot, error)
}

// SnapshotRefresher はスナップショット1件を再生成する。
type SnapshotRefresher interface {
	Refresh(ctx context.Context, snapshot *model.Snapshot) error
}

// Scheduler は再生成のスケジューリングと並列制御を行う。
// ティッカーで対象スナップショットを取得し、
// semaphoreパターンで最大並列数を制御しながら再生成を実行する。
type Scheduler struct {
	lister         DueLister
	refresher      SnapshotRefresher
	logger         *slog.Logger
	maxConcurrency int
	batchSize      int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(lister DueLister, refresher SnapshotRefresher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		lister:         lister,
		refresher:      refresher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		batchSize:      defaultBatchSize,
	}
}

// Start はinterval間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再生成スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("再生成サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再生成スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("再生成サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は対象スナップショットを1回取得し、並列で再生成する。
// 個々の再生成の失敗はログに残すだけでサイクル全体は失敗させない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	snapshots, err := s.lister.ListDueForRefresh(ctx, s.batchSize)
	if err != nil {
		return err
	}

	if len(snapshots) == 0 {
		s.logger.Info("再生成対象のフィードはありません")
		return nil
	}

	s.logger.Info("再生成サイクルを開始します",
		slog.Int("snapshot_count", len(snapshots)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, snapshot := range snapshots {
		wg.Add(1)
		sem <- struct{}{}

		go func(sn *model.Snapshot) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.refresher.Refresh(ctx, sn); err != nil {
				s.logger.Error("フィードの再生成に失敗しました",
					slog.String("pubkey", sn.Pubkey),
					slog.String("identifier", sn.Identifier),
					slog.String("error", err.Error()),
				)
			}
		}(snapshot)
	}

	wg.Wait()

	s.logger.Info("再生成サイクルが完了しました",
		slog.Int("snapshot_count", len(snapshots)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
