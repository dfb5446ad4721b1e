// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと投票レート制限の期限切れウィンドウ行を
// 定期バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れ行の自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は期限切れセッションと期限切れの投票レート制限ウィンドウ行を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// 片方の削除が失敗しても、もう片方は実行される。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessionCount, sessionErr := j.deleteExpired(ctx, "sessions",
		`DELETE FROM sessions WHERE expires_at < now()`)
	rateLimitCount, rateLimitErr := j.deleteExpired(ctx, "vote_rate_limits",
		`DELETE FROM vote_rate_limits WHERE expires_at < now()`)

	if sessionErr != nil {
		return sessionErr
	}
	if rateLimitErr != nil {
		return rateLimitErr
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessionCount),
		slog.Int64("deleted_rate_limit_rows", rateLimitCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteExpired は削除クエリを実行し、削除件数を返す。
func (j *CleanupJob) deleteExpired(ctx context.Context, table, query string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れ行の削除に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%s の期限切れ行削除に失敗: %w", table, err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	return deletedCount, nil
}
