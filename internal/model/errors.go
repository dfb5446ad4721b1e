package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, alert, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeLinkUnreachable     = "LINK_UNREACHABLE"
	ErrCodePuzzleNotFound      = "PUZZLE_NOT_FOUND"
	ErrCodeAlertNotFound       = "ALERT_NOT_FOUND"
	ErrCodeInvalidAlertPrice   = "INVALID_ALERT_PRICE"
	ErrCodeInvalidAlertChannel = "INVALID_ALERT_CHANNEL"
	ErrCodeReviewNotFound      = "REVIEW_NOT_FOUND"
	ErrCodeInvalidRating       = "INVALID_RATING"
	ErrCodeVoteRateLimited     = "VOTE_RATE_LIMITED"
	ErrCodeAlreadyVoted        = "ALREADY_VOTED"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
)

// NewPuzzleNotFoundError はパズル未検出エラーを生成する。
func NewPuzzleNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodePuzzleNotFound,
		Message:  fmt.Sprintf("指定されたパズルが見つかりません: %s", slug),
		Category: "catalog",
		Action:   "パズルのslugを確認してください。",
	}
}

// NewAlertNotFoundError はアラート購読未検出エラーを生成する。
// 他ユーザーの購読IDを指定した場合もこのエラーを返し、存在有無を漏らさない。
func NewAlertNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeAlertNotFound,
		Message:  fmt.Sprintf("指定されたアラート購読が見つかりません: %s", id),
		Category: "alert",
		Action:   "アラートIDを確認してください。",
	}
}

// NewInvalidAlertPriceError は無効な目標価格エラーを生成する。
func NewInvalidAlertPriceError(price float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAlertPrice,
		Message:  fmt.Sprintf("目標価格は正の値を指定してください: %.2f", price),
		Category: "validation",
		Action:   "0より大きい価格を入力してください。",
	}
}

// NewInvalidAlertChannelError は無効な通知チャネルエラーを生成する。
func NewInvalidAlertChannelError(channel string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAlertChannel,
		Message:  fmt.Sprintf("無効な通知チャネルです: %s", channel),
		Category: "validation",
		Action:   "in_app または email を指定してください。",
	}
}

// NewInvalidRatingError は無効な評価値エラーを生成する。
func NewInvalidRatingError(rating int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("評価は1〜5の整数で指定してください: %d", rating),
		Category: "validation",
		Action:   "1から5の整数を入力してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", id),
		Category: "catalog",
		Action:   "レビューIDを確認してください。",
	}
}

// NewVoteRateLimitedError は参考になった投票のレート制限エラーを生成する。
func NewVoteRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeVoteRateLimited,
		Message:  "投票の回数制限に達しました。",
		Category: "validation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAlreadyVotedError は重複投票エラーを生成する。
func NewAlreadyVotedError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVoted,
		Message:  fmt.Sprintf("このレビューには既に投票済みです: %s", reviewID),
		Category: "validation",
		Action:   "同じレビューに投票できるのは1回までです。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", rawURL),
		Category: "validation",
		Action:   "http(s)スキームの正しいURLを入力してください。",
	}
}

// NewSSRFBlockedError はSSRF防止によりブロックされたURLのエラーを生成する。
func NewSSRFBlockedError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  fmt.Sprintf("このURLへのアクセスは許可されていません: %s", rawURL),
		Category: "validation",
		Action:   "公開されている外部サイトのURLを入力してください。",
	}
}

// NewLinkUnreachableError は到達不能なベンダーリンクのエラーを生成する。
func NewLinkUnreachableError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkUnreachable,
		Message:  fmt.Sprintf("リンク先に到達できませんでした: %s", rawURL),
		Category: "validation",
		Action:   "URLが正しいか、リンク先が稼働しているか確認してください。",
	}
}
