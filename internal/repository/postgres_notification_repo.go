package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// CreateBatch は複数の通知を単一のマルチロウINSERTでまとめて作成する。
// 1つのステートメントで実行されるため、全行が成功するか全行が失敗するかの
// どちらかになる。空スライスの場合は何もしない。
func (r *PostgresNotificationRepo) CreateBatch(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(notifications))
	args := make([]interface{}, 0, len(notifications)*7)
	for i, n := range notifications {
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, n.ID, n.UserID, n.Message, n.Icon, n.Link, n.LinkText, n.CreatedAt)
	}

	query := `INSERT INTO notifications (id, user_id, message, icon, link, link_text, created_at) VALUES ` +
		strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("通知の一括作成に失敗しました: %w", err)
	}
	return nil
}

// ListForUser はユーザー宛て通知とブロードキャスト通知（user_id IS NULL）を
// ユーザーごとの既読状態付きで新しい順に返す。
func (r *PostgresNotificationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]model.NotificationWithReadState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.user_id, n.message, n.icon, n.link, n.link_text, n.created_at,
		        (nr.notification_id IS NOT NULL)
		 FROM notifications n
		 LEFT JOIN notification_reads nr
		   ON nr.notification_id = n.id AND nr.user_id = $1
		 WHERE n.user_id = $1 OR n.user_id IS NULL
		 ORDER BY n.created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []model.NotificationWithReadState
	for rows.Next() {
		var n model.NotificationWithReadState
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Icon, &n.Link, &n.LinkText, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("通知行の読み取りに失敗しました: %w", err)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知一覧の走査に失敗しました: %w", err)
	}
	return results, nil
}

// MarkRead は通知をユーザーについて既読にする。
// 既読状態はユーザーごとに独立しており、ブロードキャスト通知でも
// 他ユーザーの既読状態に影響しない。冪等。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, notificationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_reads (notification_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (notification_id, user_id) DO NOTHING`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("通知の既読化に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
