// Package alert は価格アラートの評価とファンアウト処理を提供する。
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/cubedex/internal/model"
	"github.com/hitoshi/cubedex/internal/repository"
)

// Result は1回の評価ランの集計結果。
type Result struct {
	Processed      int // 評価対象となった購読数
	Notifications  int // 作成した通知数
	Emails         int // 追加したメールキュー行数
	UpdateFailures int // ウォーターマーク更新の失敗数
}

// triggered は通知対象と確定した購読とその一致スナップショットの組。
type triggered struct {
	sub      *model.AlertSubscription
	snapshot *model.PriceSnapshot
}

// Evaluator は価格アラート購読を一括評価し、通知とメールをファンアウトする。
//
// 1回のランは 購読ロード → メタデータロード → 購読ごとの評価 →
// 通知/メールの一括挿入 → ウォーターマーク更新 → 集計 の順で進む。
// 重複通知はウォーターマーク（LastNotifiedAt）のみで防止されるため、
// ラン同士が重なっても安全だが、通知後・更新前にクラッシュした場合は
// 次のランで同じスナップショットに対する通知が再送されうる。
type Evaluator struct {
	alertRepo      repository.AlertSubscriptionRepository
	snapshotRepo   repository.PriceSnapshotRepository
	puzzleRepo     repository.PuzzleRepository
	notifRepo      repository.NotificationRepository
	emailRepo      repository.EmailQueueRepository
	logger         *slog.Logger
	maxConcurrency int
}

// NewEvaluator はEvaluatorの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewEvaluator(
	alertRepo repository.AlertSubscriptionRepository,
	snapshotRepo repository.PriceSnapshotRepository,
	puzzleRepo repository.PuzzleRepository,
	notifRepo repository.NotificationRepository,
	emailRepo repository.EmailQueueRepository,
	logger *slog.Logger,
	maxConcurrency int,
) *Evaluator {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Evaluator{
		alertRepo:      alertRepo,
		snapshotRepo:   snapshotRepo,
		puzzleRepo:     puzzleRepo,
		notifRepo:      notifRepo,
		emailRepo:      emailRepo,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// emailPayload は下流メーラー向けの構造化ペイロード。
type emailPayload struct {
	PuzzleSlug string    `json:"puzzle_slug"`
	Label      string    `json:"label"`
	Vendor     string    `json:"vendor"`
	Price      float64   `json:"price"`
	SnapshotAt time.Time `json:"snapshot_at"`
	Link       string    `json:"link"`
}

// RunOnce は全アクティブ購読を1回評価する。
// 購読ロードと通知の一括挿入の失敗はラン全体の失敗として返す。
// 購読ごとのクエリ失敗・メール挿入失敗・ウォーターマーク更新失敗は
// ログと集計にとどめ、ランは継続する。
func (e *Evaluator) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()

	// 1. アクティブ購読のロード。失敗はラン全体の失敗
	subs, err := e.alertRepo.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("アクティブ購読の取得に失敗しました: %w", err)
	}

	// 2. 購読ゼロは正常終了。以降のクエリは発行しない
	if len(subs) == 0 {
		e.logger.Info("評価対象のアラート購読はありません")
		return Result{}, nil
	}

	result := Result{Processed: len(subs)}

	// 3. 表示ラベルの構築。メタデータ欠落はslugへのフォールバックで継続
	labels := e.loadLabels(ctx, subs)

	// 4. 購読ごとの評価。順序依存がないため並列化する
	hits := e.evaluateAll(ctx, subs)

	// 5-6. 通知レコードの構築と一括挿入。失敗はラン全体の失敗
	notifications := make([]*model.Notification, 0, len(hits))
	now := time.Now()
	for _, h := range hits {
		notifications = append(notifications, buildNotification(h, labels[h.sub.PuzzleSlug], now))
	}
	if err := e.notifRepo.CreateBatch(ctx, notifications); err != nil {
		return Result{}, fmt.Errorf("通知の一括作成に失敗しました: %w", err)
	}
	result.Notifications = len(notifications)

	// 7. emailチャネルの購読はメールキューにも追加。失敗はランを止めない
	emails := e.buildEmailEntries(hits, labels, now)
	if len(emails) > 0 {
		if err := e.emailRepo.EnqueueBatch(ctx, emails); err != nil {
			e.logger.Error("メールキューへの一括追加に失敗しました",
				slog.Int("entry_count", len(emails)),
				slog.String("error", err.Error()),
			)
		} else {
			result.Emails = len(emails)
		}
	}

	// 8. ウォーターマーク更新。スナップショットのデータ時刻に進める
	result.UpdateFailures = e.advanceWatermarks(ctx, hits)

	e.logger.Info("アラート評価ランが完了しました",
		slog.Int("processed", result.Processed),
		slog.Int("notifications", result.Notifications),
		slog.Int("emails", result.Emails),
		slog.Int("update_failures", result.UpdateFailures),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// loadLabels は購読が参照するパズルの表示ラベルをまとめて取得する。
// ロード失敗・メタデータ欠落のslugはラベルにslugそのものを使用する。
func (e *Evaluator) loadLabels(ctx context.Context, subs []*model.AlertSubscription) map[string]string {
	seen := make(map[string]struct{})
	slugs := make([]string, 0, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub.PuzzleSlug]; ok {
			continue
		}
		seen[sub.PuzzleSlug] = struct{}{}
		slugs = append(slugs, sub.PuzzleSlug)
	}

	labels := make(map[string]string, len(slugs))
	for _, slug := range slugs {
		labels[slug] = slug
	}

	puzzles, err := e.puzzleRepo.ListBySlugs(ctx, slugs)
	if err != nil {
		e.logger.Warn("パズルメタデータの取得に失敗しました。slugをラベルとして使用します",
			slog.Int("slug_count", len(slugs)),
			slog.String("error", err.Error()),
		)
		return labels
	}

	for _, p := range puzzles {
		labels[p.Slug] = p.DisplayLabel()
	}
	return labels
}

// evaluateAll は各購読を並列に評価し、通知対象を返す。
// 購読ごとのクエリ失敗はログのみでスキップし、他の購読の評価を妨げない。
func (e *Evaluator) evaluateAll(ctx context.Context, subs []*model.AlertSubscription) []*triggered {
	sem := make(chan struct{}, e.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var hits []*triggered

	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}

		go func(s *model.AlertSubscription) {
			defer wg.Done()
			defer func() { <-sem }()

			snapshot, err := e.snapshotRepo.FindLatestAtOrBelow(ctx, s.PuzzleSlug, s.DesiredPrice)
			if err != nil {
				e.logger.Error("価格スナップショットの取得に失敗しました。この購読をスキップします",
					slog.String("subscription_id", s.ID),
					slog.String("puzzle_slug", s.PuzzleSlug),
					slog.String("error", err.Error()),
				)
				return
			}
			if !shouldTrigger(s, snapshot) {
				return
			}

			mu.Lock()
			hits = append(hits, &triggered{sub: s, snapshot: snapshot})
			mu.Unlock()
		}(sub)
	}

	wg.Wait()
	return hits
}

// shouldTrigger は通知条件を判定する。
// 一致スナップショットが存在し、かつ未通知（LastNotifiedAtがnil）または
// スナップショット時刻がウォーターマークより厳密に新しい場合のみ通知する。
// これが唯一の重複通知ガードであり、同一の価格下落イベントに対して
// 高々1回の通知を保証する。
func shouldTrigger(sub *model.AlertSubscription, snapshot *model.PriceSnapshot) bool {
	if snapshot == nil {
		return false
	}
	if sub.LastNotifiedAt == nil {
		return true
	}
	return snapshot.CapturedAt.After(*sub.LastNotifiedAt)
}

// buildNotification は通知レコードを構築する。
// メッセージにはパズルのラベル、一致価格（小数2桁）、ベンダー名
// （空の場合は汎用フォールバック）を埋め込む。
func buildNotification(h *triggered, label string, now time.Time) *model.Notification {
	vendor := h.snapshot.Vendor
	if vendor == "" {
		vendor = "ストア"
	}

	userID := h.sub.UserID
	return &model.Notification{
		ID:        uuid.New().String(),
		UserID:    &userID,
		Message:   fmt.Sprintf("%s が目標価格を下回りました: %.2f（%s）", label, h.snapshot.Price, vendor),
		Icon:      "price_drop",
		Link:      fmt.Sprintf("/puzzle/%s/prices", h.sub.PuzzleSlug),
		LinkText:  "価格履歴を見る",
		CreatedAt: now,
	}
}

// buildEmailEntries はemailチャネルの通知対象からメールキュー行を構築する。
func (e *Evaluator) buildEmailEntries(hits []*triggered, labels map[string]string, now time.Time) []*model.EmailQueueEntry {
	var entries []*model.EmailQueueEntry
	for _, h := range hits {
		if h.sub.Channel != model.AlertChannelEmail {
			continue
		}

		payload, err := json.Marshal(emailPayload{
			PuzzleSlug: h.sub.PuzzleSlug,
			Label:      labels[h.sub.PuzzleSlug],
			Vendor:     h.snapshot.Vendor,
			Price:      h.snapshot.Price,
			SnapshotAt: h.snapshot.CapturedAt,
			Link:       fmt.Sprintf("/puzzle/%s/prices", h.sub.PuzzleSlug),
		})
		if err != nil {
			// 固定構造のmarshalは失敗しないが、万一の場合もランは継続する
			e.logger.Error("メールペイロードの構築に失敗しました",
				slog.String("subscription_id", h.sub.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		entries = append(entries, &model.EmailQueueEntry{
			ID:             uuid.New().String(),
			SubscriptionID: h.sub.ID,
			UserID:         h.sub.UserID,
			PuzzleSlug:     h.sub.PuzzleSlug,
			Vendor:         h.snapshot.Vendor,
			Price:          h.snapshot.Price,
			SnapshotAt:     h.snapshot.CapturedAt,
			Payload:        payload,
			CreatedAt:      now,
		})
	}
	return entries
}

// advanceWatermarks は通知済み購読のウォーターマークを並列で更新し、失敗数を返す。
// 更新先は現在時刻ではなく一致スナップショットのデータ時刻。
// ランの実行が遅延しても、同じ下落イベントの再通知判定が正しく保たれる。
// 個々の失敗は他の更新を妨げない。更新に失敗した購読は次のランで
// 再通知されうるが、これは許容済みの劣化であり破損ではない。
func (e *Evaluator) advanceWatermarks(ctx context.Context, hits []*triggered) int {
	sem := make(chan struct{}, e.maxConcurrency)
	var wg sync.WaitGroup
	var failures int64

	for _, h := range hits {
		wg.Add(1)
		sem <- struct{}{}

		go func(h *triggered) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.alertRepo.UpdateLastNotifiedAt(ctx, h.sub.ID, h.snapshot.CapturedAt); err != nil {
				atomic.AddInt64(&failures, 1)
				e.logger.Error("ウォーターマークの更新に失敗しました",
					slog.String("subscription_id", h.sub.ID),
					slog.String("error", err.Error()),
				)
			}
		}(h)
	}

	wg.Wait()
	return int(failures)
}
