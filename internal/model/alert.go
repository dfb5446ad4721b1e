package model

import "time"

// AlertChannel は価格アラートの通知チャネルを表す。
type AlertChannel string

const (
	// AlertChannelInApp はアプリ内通知のみのチャネル。
	AlertChannelInApp AlertChannel = "in_app"
	// AlertChannelEmail はアプリ内通知に加えてメールを送信するチャネル。
	AlertChannelEmail AlertChannel = "email"
)

// IsValid はチャネル値が定義済みかを検証する。
func (c AlertChannel) IsValid() bool {
	return c == AlertChannelInApp || c == AlertChannelEmail
}

// AlertSubscription はユーザーの価格アラート購読を表す。
// (user_id, puzzle_slug, desired_price, channel) の組み合わせで一意であり、
// 登録はUPSERTで冪等に行われる。
// LastNotifiedAtはスナップショットのデータ時刻を指すウォーターマークであり、
// 同一の価格下落イベントに対する重複通知を防ぐ。
type AlertSubscription struct {
	ID             string
	UserID         string
	PuzzleSlug     string
	DesiredPrice   float64
	Channel        AlertChannel
	Active         bool
	LastNotifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EmailQueueEntry は価格アラートメールの送信キュー行を表す。
// このコアは追記のみ行い、下流のメーラーが消費後にProcessedAtを更新する。
type EmailQueueEntry struct {
	ID             string
	SubscriptionID string
	UserID         string
	PuzzleSlug     string
	Vendor         string
	Price          float64
	SnapshotAt     time.Time
	Payload        []byte // 下流メーラー向けの構造化JSONペイロード
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}
