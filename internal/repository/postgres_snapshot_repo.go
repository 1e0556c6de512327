package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/pubcaster/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLを使用したスナップショットリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// FindByPubkey は指定公開鍵のスナップショットを取得する。見つからない場合はnilを返す。
func (r *PostgresSnapshotRepo) FindByPubkey(ctx context.Context, pubkey string) (*model.Snapshot, error) {
	s := &model.Snapshot{}
	err := r.db.QueryRowContext(ctx,
		`SELECT pubkey, identifier, xml, item_count, built_at, last_requested_at, next_refresh_at
		 FROM feed_snapshots WHERE pubkey = $1`,
		pubkey,
	).Scan(
		&s.Pubkey, &s.Identifier, &s.XML, &s.ItemCount,
		&s.BuiltAt, &s.LastRequestedAt, &s.NextRefreshAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}
	return s, nil
}

// Upsert はスナップショットを作成または置き換える。
func (r *PostgresSnapshotRepo) Upsert(ctx context.Context, s *model.Snapshot) error {
	next := s.NextRefreshAt
	if next.IsZero() {
		next = s.BuiltAt
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_snapshots (pubkey, identifier, xml, item_count, built_at, next_refresh_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (pubkey) DO UPDATE
		 SET identifier = EXCLUDED.identifier,
		     xml = EXCLUDED.xml,
		     item_count = EXCLUDED.item_count,
		     built_at = EXCLUDED.built_at,
		     next_refresh_at = EXCLUDED.next_refresh_at`,
		s.Pubkey, s.Identifier, s.XML, s.ItemCount, s.BuiltAt, next,
	)
	if err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}
	return nil
}

// Touch はスナップショットの最終リクエスト時刻を更新する。
// 対象が存在しない場合は何もしない。
func (r *PostgresSnapshotRepo) Touch(ctx context.Context, pubkey string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_snapshots SET last_requested_at = $2 WHERE pubkey = $1`,
		pubkey, at,
	)
	if err != nil {
		return fmt.Errorf("スナップショットのリクエスト時刻更新に失敗しました: %w", err)
	}
	return nil
}

// Reschedule は次回更新時刻を変更する。
func (r *PostgresSnapshotRepo) Reschedule(ctx context.Context, pubkey string, next time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_snapshots SET next_refresh_at = $2 WHERE pubkey = $1`,
		pubkey, next,
	)
	if err != nil {
		return fmt.Errorf("スナップショットの更新予定の変更に失敗しました: %w", err)
	}
	return nil
}

// ListDueForRefresh は更新対象のスナップショットを取得する。
// XML本体は転送量削減のため読み込まない。
func (r *PostgresSnapshotRepo) ListDueForRefresh(ctx context.Context, limit int) ([]*model.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pubkey, identifier, item_count, built_at, last_requested_at, next_refresh_at
		 FROM feed_snapshots
		 WHERE next_refresh_at <= now()
		 ORDER BY next_refresh_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("更新対象スナップショットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var snapshots []*model.Snapshot
	for rows.Next() {
		s := &model.Snapshot{}
		if err := rows.Scan(
			&s.Pubkey, &s.Identifier, &s.ItemCount,
			&s.BuiltAt, &s.LastRequestedAt, &s.NextRefreshAt,
		); err != nil {
			return nil, fmt.Errorf("更新対象スナップショットの読み取りに失敗しました: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("更新対象スナップショットの走査に失敗しました: %w", err)
	}
	return snapshots, nil
}
