// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// SnapshotRepository は生成済みフィードの永続化インターフェース。
type SnapshotRepository interface {
	// FindByPubkey は指定公開鍵のスナップショットを取得する。見つからない場合はnilを返す。
	FindByPubkey(ctx context.Context, pubkey string) (*model.Snapshot, error)

	// Upsert はスナップショットを作成または置き換える。
	// last_requested_atは既存の値を維持し、新規作成時のみ現在時刻が入る。
	Upsert(ctx context.Context, snapshot *model.Snapshot) error

	// Touch はスナップショットの最終リクエスト時刻を更新する。
	Touch(ctx context.Context, pubkey string, at time.Time) error

	// Reschedule は次回更新時刻のみを変更する。再生成に失敗した場合に使用する。
	Reschedule(ctx context.Context, pubkey string, next time.Time) error

	// ListDueForRefresh はnext_refresh_atが現在時刻を過ぎたスナップショットを古い順に最大limit件返す。
	// XML本体は読み込まない。
	ListDueForRefresh(ctx context.Context, limit int) ([]*model.Snapshot, error)
}
