package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// Create はレビューを作成する。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, puzzle_slug, rating, body, helpful_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		review.ID, review.UserID, review.PuzzleSlug, review.Rating, review.Body, review.CreatedAt, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	review := &model.Review{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, puzzle_slug, rating, body, helpful_count, created_at, updated_at
		 FROM reviews WHERE id = $1`,
		id,
	).Scan(&review.ID, &review.UserID, &review.PuzzleSlug, &review.Rating, &review.Body,
		&review.HelpfulCount, &review.CreatedAt, &review.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}

	return review, nil
}

// AddHelpfulVote は投票行の挿入とhelpful_countの加算を同一トランザクションで行う。
// (review_id, user_id) の主キー制約により重複投票は挿入されず、falseを返す。
func (r *PostgresReviewRepo) AddHelpfulVote(ctx context.Context, reviewID, userID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO review_votes (review_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (review_id, user_id) DO NOTHING`,
		reviewID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("投票行の挿入に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("挿入結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		// 既に投票済み
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE reviews SET helpful_count = helpful_count + 1, updated_at = now() WHERE id = $1`,
		reviewID,
	); err != nil {
		return false, fmt.Errorf("参考になった数の加算に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return true, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)

// PostgresVoteRateLimiter は共有ストアで管理する投票レート制限。
// プロセスメモリ上のマップと異なり、複数インスタンス構成やプロセス再起動を
// またいでも制限が正しく機能する。期限切れ行はクリーンアップジョブが削除する。
type PostgresVoteRateLimiter struct {
	db *sql.DB
}

// NewPostgresVoteRateLimiter はPostgresVoteRateLimiterを生成する。
func NewPostgresVoteRateLimiter(db *sql.DB) *PostgresVoteRateLimiter {
	return &PostgresVoteRateLimiter{db: db}
}

// Acquire はウィンドウ内の投票枠を1つ消費する。上限超過の場合はfalseを返す。
// ウィンドウが期限切れの場合は新しいウィンドウを開始する。
// UPSERT 1文で判定と加算を行うため、並行リクエスト間でも枠を取り過ぎない。
func (l *PostgresVoteRateLimiter) Acquire(ctx context.Context, userID string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	var count int
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO vote_rate_limits (user_id, window_started_at, count, expires_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
		     window_started_at = CASE WHEN vote_rate_limits.expires_at <= $2
		                              THEN $2 ELSE vote_rate_limits.window_started_at END,
		     expires_at        = CASE WHEN vote_rate_limits.expires_at <= $2
		                              THEN $3 ELSE vote_rate_limits.expires_at END,
		     count             = CASE WHEN vote_rate_limits.expires_at <= $2
		                              THEN 1 ELSE vote_rate_limits.count + 1 END
		 RETURNING count`,
		userID, now, now.Add(window),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("投票レート制限の取得に失敗しました: %w", err)
	}

	return count <= limit, nil
}

// compile-time interface check
var _ VoteRateLimiter = (*PostgresVoteRateLimiter)(nil)
