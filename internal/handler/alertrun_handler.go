package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cubedex/internal/alert"
)

// AlertRunner はアラート評価ランの実行インターフェース。
type AlertRunner interface {
	RunOnce(ctx context.Context) (alert.Result, error)
}

// RunMetricsRecorder は評価ランメトリクスの記録インターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type RunMetricsRecorder interface {
	RecordAlertRun(processed, notifications, emails, updateFailures int)
	RecordAlertRunFailure()
	RecordAlertRunLatency(duration time.Duration)
}

// AlertRunHandler はアラート評価ランの手動トリガーHTTPハンドラー。
// 評価ランはウォーターマークで冪等化されているため、ワーカーの定期実行と
// 重なって実行されても重複通知は発生しない。
type AlertRunHandler struct {
	runner  AlertRunner
	metrics RunMetricsRecorder // nil可
}

// NewAlertRunHandler はAlertRunHandlerを生成する。
func NewAlertRunHandler(runner AlertRunner, metrics RunMetricsRecorder) *AlertRunHandler {
	return &AlertRunHandler{
		runner:  runner,
		metrics: metrics,
	}
}

// alertRunSuccessResponse は評価ラン成功時のレスポンス。
type alertRunSuccessResponse struct {
	Success        bool `json:"success"`
	Processed      int  `json:"processed"`
	Notifications  int  `json:"notifications"`
	Emails         int  `json:"emails"`
	UpdateFailures int  `json:"updateFailures"`
}

// alertRunErrorResponse は評価ラン失敗時のレスポンス。
type alertRunErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Run はアラート評価ランを1回実行する。
// POST /internal/alerts/run
// POST以外のメソッドは405を返す。
func (h *AlertRunHandler) Run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(alertRunErrorResponse{
			Success: false,
			Error:   "method not allowed",
		})
		return
	}

	start := time.Now()
	result, err := h.runner.RunOnce(r.Context())
	if h.metrics != nil {
		h.metrics.RecordAlertRunLatency(time.Since(start))
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordAlertRunFailure()
		}
		slog.Error("アラート評価ランの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(alertRunErrorResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordAlertRun(result.Processed, result.Notifications, result.Emails, result.UpdateFailures)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alertRunSuccessResponse{
		Success:        true,
		Processed:      result.Processed,
		Notifications:  result.Notifications,
		Emails:         result.Emails,
		UpdateFailures: result.UpdateFailures,
	})
}
