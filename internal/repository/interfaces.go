// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// CreateWithIdentity はプロフィールとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PuzzleRepository はパズルカタログの永続化インターフェース。
type PuzzleRepository interface {
	// FindBySlug は指定slugのパズルを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Puzzle, error)

	// ListBySlugs は指定slug集合のパズルをまとめて取得する。
	// 存在しないslugは結果に含まれない（呼び出し側でslugそのものにフォールバックする）。
	ListBySlugs(ctx context.Context, slugs []string) ([]*model.Puzzle, error)
}

// VendorLinkRepository はベンダーリンクの永続化インターフェース。
type VendorLinkRepository interface {
	// Create はベンダーリンクを作成する。URLは正規化済みであること。
	Create(ctx context.Context, link *model.VendorLink) error
}

// PriceSnapshotRepository は価格スナップショットの読み取りインターフェース。
// スナップショットは外部の収集パイプラインが書き込む追記専用データであり、
// このコアからは読み取りのみ行う。
type PriceSnapshotRepository interface {
	// FindLatestAtOrBelow は指定パズルについて price <= maxPrice を満たす
	// 最新（captured_at降順で先頭）のスナップショットを返す。
	// 該当がない場合はnilを返す。
	FindLatestAtOrBelow(ctx context.Context, puzzleSlug string, maxPrice float64) (*model.PriceSnapshot, error)
}

// AlertSubscriptionRepository は価格アラート購読の永続化インターフェース。
type AlertSubscriptionRepository interface {
	// ListActive はactive=trueの全購読を返す。
	ListActive(ctx context.Context) ([]*model.AlertSubscription, error)

	// ListByUserID はユーザーの購読一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.AlertSubscription, error)

	// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AlertSubscription, error)

	// Upsert は (user_id, puzzle_slug, desired_price, channel) の一意制約に基づき
	// 購読を冪等に登録する。既存行が衝突した場合はactiveをtrueに戻す。
	// 登録後の行を返す。
	Upsert(ctx context.Context, sub *model.AlertSubscription) (*model.AlertSubscription, error)

	// SetActive は所有者が一致する購読のactiveフラグを更新する。
	// 行が見つからない（所有者不一致を含む）場合はfalseを返す。
	SetActive(ctx context.Context, id, userID string, active bool) (bool, error)

	// DeleteByIDAndUserID は所有者が一致する購読を削除する。
	// 行が見つからない（所有者不一致を含む）場合はfalseを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)

	// UpdateLastNotifiedAt は購読のウォーターマークを指定のスナップショット時刻に進める。
	UpdateLastNotifiedAt(ctx context.Context, id string, notifiedAt time.Time) error
}

// NotificationRepository はアプリ内通知の永続化インターフェース。
type NotificationRepository interface {
	// CreateBatch は複数の通知を1回の呼び出しでまとめて作成する。
	// 全件が単一のアトミックな挿入として扱われる。
	CreateBatch(ctx context.Context, notifications []*model.Notification) error

	// ListForUser はユーザー宛て通知とブロードキャスト通知を
	// ユーザーごとの既読状態付きで新しい順に返す。
	ListForUser(ctx context.Context, userID string, limit int) ([]model.NotificationWithReadState, error)

	// MarkRead は通知をユーザーについて既読にする。冪等。
	MarkRead(ctx context.Context, notificationID, userID string) error
}

// EmailQueueRepository はアラートメール送信キューの永続化インターフェース。
type EmailQueueRepository interface {
	// EnqueueBatch は複数のキュー行を1回の呼び出しでまとめて追加する。
	EnqueueBatch(ctx context.Context, entries []*model.EmailQueueEntry) error

	// MarkProcessed はキュー行を処理済みにする。下流のメーラーが使用する。
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
}

// ReviewRepository はレビューの永続化インターフェース。
type ReviewRepository interface {
	// Create はレビューを作成する。
	Create(ctx context.Context, review *model.Review) error

	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// AddHelpfulVote は投票行の挿入とhelpful_countの加算を
	// 同一トランザクションで行う。既に投票済みの場合はfalseを返す。
	AddHelpfulVote(ctx context.Context, reviewID, userID string) (bool, error)
}

// VoteRateLimiter は参考になった投票のストア型レート制限インターフェース。
// プロセスメモリではなく共有ストアで管理するため、複数インスタンス間でも
// 制限が正しく機能する。
type VoteRateLimiter interface {
	// Acquire はウィンドウ内の投票枠を1つ消費する。
	// 上限超過の場合はfalseを返す。
	Acquire(ctx context.Context, userID string, limit int, window time.Duration) (bool, error)
}
