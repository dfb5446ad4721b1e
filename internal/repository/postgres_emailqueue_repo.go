package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresEmailQueueRepo はPostgreSQLを使用したアラートメール送信キューリポジトリ。
type PostgresEmailQueueRepo struct {
	db *sql.DB
}

// NewPostgresEmailQueueRepo はPostgresEmailQueueRepoを生成する。
func NewPostgresEmailQueueRepo(db *sql.DB) *PostgresEmailQueueRepo {
	return &PostgresEmailQueueRepo{db: db}
}

// EnqueueBatch は複数のキュー行を単一のマルチロウINSERTでまとめて追加する。
// 空スライスの場合は何もしない。
func (r *PostgresEmailQueueRepo) EnqueueBatch(ctx context.Context, entries []*model.EmailQueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*9)
	for i, e := range entries {
		base := i * 9
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args,
			e.ID, e.SubscriptionID, e.UserID, e.PuzzleSlug, e.Vendor,
			e.Price, e.SnapshotAt, e.Payload, e.CreatedAt,
		)
	}

	query := `INSERT INTO email_queue
	    (id, subscription_id, user_id, puzzle_slug, vendor, price, snapshot_at, payload, created_at)
	 VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("メールキューへの一括追加に失敗しました: %w", err)
	}
	return nil
}

// MarkProcessed はキュー行を処理済みにする。下流のメーラーが使用する。
func (r *PostgresEmailQueueRepo) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE email_queue SET processed_at = $2 WHERE id = $1 AND processed_at IS NULL`,
		id, processedAt,
	)
	if err != nil {
		return fmt.Errorf("メールキュー行の処理済み化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("未処理のメールキュー行が見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ EmailQueueRepository = (*PostgresEmailQueueRepo)(nil)
