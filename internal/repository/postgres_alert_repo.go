package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresAlertSubscriptionRepo はPostgreSQLを使用した価格アラート購読リポジトリ。
type PostgresAlertSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresAlertSubscriptionRepo はPostgresAlertSubscriptionRepoを生成する。
func NewPostgresAlertSubscriptionRepo(db *sql.DB) *PostgresAlertSubscriptionRepo {
	return &PostgresAlertSubscriptionRepo{db: db}
}

const alertSubscriptionColumns = `id, user_id, puzzle_slug, desired_price, channel, active, last_notified_at, created_at, updated_at`

// scanAlertSubscription は1行分の購読をスキャンする。
func scanAlertSubscription(row interface {
	Scan(dest ...interface{}) error
}) (*model.AlertSubscription, error) {
	sub := &model.AlertSubscription{}
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PuzzleSlug, &sub.DesiredPrice,
		&sub.Channel, &sub.Active, &sub.LastNotifiedAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListActive はactive=trueの全購読を返す。
func (r *PostgresAlertSubscriptionRepo) ListActive(ctx context.Context) ([]*model.AlertSubscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertSubscriptionColumns+`
		 FROM alert_subscriptions WHERE active = true ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブな購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.AlertSubscription
	for rows.Next() {
		sub, err := scanAlertSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// ListByUserID はユーザーの購読一覧を返す。
func (r *PostgresAlertSubscriptionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.AlertSubscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertSubscriptionColumns+`
		 FROM alert_subscriptions WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.AlertSubscription
	for rows.Next() {
		sub, err := scanAlertSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
func (r *PostgresAlertSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.AlertSubscription, error) {
	sub, err := scanAlertSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+alertSubscriptionColumns+`
		 FROM alert_subscriptions WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	return sub, nil
}

// Upsert は (user_id, puzzle_slug, desired_price, channel) の一意制約に基づき
// 購読を冪等に登録する。既存行と衝突した場合はactiveをtrueに戻して再有効化する。
func (r *PostgresAlertSubscriptionRepo) Upsert(ctx context.Context, sub *model.AlertSubscription) (*model.AlertSubscription, error) {
	result, err := scanAlertSubscription(r.db.QueryRowContext(ctx,
		`INSERT INTO alert_subscriptions
		     (id, user_id, puzzle_slug, desired_price, channel, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $6)
		 ON CONFLICT (user_id, puzzle_slug, desired_price, channel)
		 DO UPDATE SET active = true, updated_at = $6
		 RETURNING `+alertSubscriptionColumns,
		sub.ID, sub.UserID, sub.PuzzleSlug, sub.DesiredPrice, sub.Channel, sub.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("購読のUPSERTに失敗しました: %w", err)
	}
	return result, nil
}

// SetActive は所有者が一致する購読のactiveフラグを更新する。
func (r *PostgresAlertSubscriptionRepo) SetActive(ctx context.Context, id, userID string, active bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alert_subscriptions SET active = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		id, userID, active,
	)
	if err != nil {
		return false, fmt.Errorf("購読の有効状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByIDAndUserID は所有者が一致する購読を削除する。
func (r *PostgresAlertSubscriptionRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_subscriptions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateLastNotifiedAt は購読のウォーターマークをスナップショットのデータ時刻に進める。
// 現在時刻ではなくデータ時刻を使うことで、遅延実行されたバッチでも正しさを保つ。
func (r *PostgresAlertSubscriptionRepo) UpdateLastNotifiedAt(ctx context.Context, id string, notifiedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alert_subscriptions SET last_notified_at = $2, updated_at = now()
		 WHERE id = $1`,
		id, notifiedAt,
	)
	if err != nil {
		return fmt.Errorf("ウォーターマークの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読が見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ AlertSubscriptionRepository = (*PostgresAlertSubscriptionRepo)(nil)
