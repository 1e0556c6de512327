package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, profile, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	ErrCodeInvalidIdentifier = "INVALID_IDENTIFIER"
	ErrCodeBuildTimeout      = "BUILD_TIMEOUT"
)

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", identifier),
		Category: "profile",
		Action:   "npubまたはnprofileの識別子を確認してください。",
	}
}

// NewInvalidIdentifierError は識別子が空などで解析できない場合のエラーを生成する。
func NewInvalidIdentifierError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIdentifier,
		Message:  fmt.Sprintf("無効な識別子です: %s", reason),
		Category: "validation",
		Action:   "npub1... または nprofile1... 形式の識別子を指定してください。",
	}
}

// NewBuildTimeoutError はリレーからの取得が制限時間内に終わらなかった場合のエラーを生成する。
func NewBuildTimeoutError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeBuildTimeout,
		Message:  fmt.Sprintf("フィードの生成が時間内に完了しませんでした: %s", identifier),
		Category: "feed",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsAPIError はerrが指定コードのAPIErrorを含むかを判定する。
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
