// Package model はドメインモデルを定義する。
package model

import "time"

// イベント種別（NIP-01 kind）
const (
	KindProfile      = 0
	KindTextNote     = 1
	KindLongForm     = 30023
	KindLiveActivity = 30311
)

// Event は署名済み・タイムスタンプ付きのNostrイベントを表す。
// 署名検証は上流で完了している前提で、ビルド中は読み取り専用のスナップショットとして扱う。
type Event struct {
	ID        string
	PubKey    string
	CreatedAt time.Time
	Kind      int
	Content   string
	Tags      [][]string
}

// Query はイベントソースへの問い合わせ条件を表す。
type Query struct {
	Kinds   []int
	Authors []string
	// Tags はタグフィルタ（例: "p" → pubkeyのリスト）。
	Tags map[string][]string
	// RelayHints はデフォルトリレーに加えて問い合わせるリレーURL。
	RelayHints []string
	// Limit は0の場合は無制限。
	Limit int
}
