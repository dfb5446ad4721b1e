// Package alertrun は価格アラート評価の定期実行を提供する。
package alertrun

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/cubedex/internal/alert"
)

// AlertEvaluator はアラート評価ランの実行インターフェース。
type AlertEvaluator interface {
	// RunOnce は全アクティブ購読を1回評価し、集計結果を返す。
	RunOnce(ctx context.Context) (alert.Result, error)
}

// Scheduler はアラート評価ランのスケジューリングを行う。
// ティッカーで一定間隔ごとにRunOnceを起動する。
// 評価ラン自体はウォーターマークで冪等化されているため、
// HTTPトリガー（手動実行）と重なっても安全。
type Scheduler struct {
	evaluator AlertEvaluator
	logger    *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(evaluator AlertEvaluator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		evaluator: evaluator,
		logger:    logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("アラート評価スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("アラート評価スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce は1回の評価ランを実行し、結果をログに記録する。
func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.evaluator.RunOnce(ctx)
	if err != nil {
		s.logger.Error("アラート評価ランの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	if result.Processed > 0 {
		s.logger.Info("アラート評価ランを実行しました",
			slog.Int("processed", result.Processed),
			slog.Int("notifications", result.Notifications),
			slog.Int("emails", result.Emails),
			slog.Int("update_failures", result.UpdateFailures),
		)
	}
}
