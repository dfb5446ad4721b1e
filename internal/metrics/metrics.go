// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordAlertRun(processed, notifications, emails, updateFailures int)
	RecordAlertRunFailure()
	RecordAlertRunLatency(duration time.Duration)
	RecordLinkNormalized()
	RecordLinkCheckFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	alertRuns          prometheus.Counter
	alertRunFailures   prometheus.Counter
	alertProcessed     prometheus.Counter
	alertNotifications prometheus.Counter
	alertEmails        prometheus.Counter
	alertWatermarkFail prometheus.Counter
	alertRunLatency    prometheus.Histogram
	linksNormalized    prometheus.Counter
	linkCheckFailures  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		alertRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_runs_total",
			Help: "アラート評価ランの合計数",
		}),
		alertRunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_run_failures_total",
			Help: "アラート評価ラン失敗の合計数",
		}),
		alertProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_subscriptions_processed_total",
			Help: "評価された購読の合計数",
		}),
		alertNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_notifications_total",
			Help: "作成された価格アラート通知の合計数",
		}),
		alertEmails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_emails_total",
			Help: "メールキューに追加された行の合計数",
		}),
		alertWatermarkFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_alert_watermark_failures_total",
			Help: "ウォーターマーク更新失敗の合計数",
		}),
		alertRunLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cubedex_alert_run_latency_seconds",
			Help:    "アラート評価ランのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		linksNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_links_normalized_total",
			Help: "正規化されたベンダーリンクの合計数",
		}),
		linkCheckFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cubedex_link_check_failures_total",
			Help: "ベンダーリンク到達性チェック失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.alertRuns,
		c.alertRunFailures,
		c.alertProcessed,
		c.alertNotifications,
		c.alertEmails,
		c.alertWatermarkFail,
		c.alertRunLatency,
		c.linksNormalized,
		c.linkCheckFailures,
	)

	return c
}

// RecordAlertRun は成功したアラート評価ランの集計値を記録する。
func (c *Collector) RecordAlertRun(processed, notifications, emails, updateFailures int) {
	c.alertRuns.Inc()
	c.alertProcessed.Add(float64(processed))
	c.alertNotifications.Add(float64(notifications))
	c.alertEmails.Add(float64(emails))
	c.alertWatermarkFail.Add(float64(updateFailures))
}

// RecordAlertRunFailure はアラート評価ランの失敗を記録する。
func (c *Collector) RecordAlertRunFailure() {
	c.alertRunFailures.Inc()
}

// RecordAlertRunLatency はアラート評価ランのレイテンシを記録する。
func (c *Collector) RecordAlertRunLatency(duration time.Duration) {
	c.alertRunLatency.Observe(duration.Seconds())
}

// RecordLinkNormalized はベンダーリンクの正規化を記録する。
func (c *Collector) RecordLinkNormalized() {
	c.linksNormalized.Inc()
}

// RecordLinkCheckFailure はベンダーリンク到達性チェックの失敗を記録する。
func (c *Collector) RecordLinkCheckFailure() {
	c.linkCheckFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
