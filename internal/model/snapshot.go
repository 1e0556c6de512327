package model

import "time"

// Snapshot は最後に成功したフィード生成結果を表す。
// リレーに到達できない場合のフォールバックと、ワーカーによる定期更新に使用する。
type Snapshot struct {
	Pubkey          string
	Identifier      string
	XML             []byte
	ItemCount       int
	BuiltAt         time.Time
	LastRequestedAt time.Time
	NextRefreshAt   time.Time
}
