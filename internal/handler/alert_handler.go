// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/hitoshi/cubedex/internal/model"
)

// AlertSubscriptionStore はアラートハンドラーが必要とするストアインターフェース。
// repository.AlertSubscriptionRepositoryの部分集合として定義する。
type AlertSubscriptionStore interface {
	// ListByUserID はユーザーの購読一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.AlertSubscription, error)
	// Upsert は一意制約に基づき購読を冪等に登録する。
	Upsert(ctx context.Context, sub *model.AlertSubscription) (*model.AlertSubscription, error)
	// SetActive は所有者が一致する購読のactiveフラグを更新する。
	SetActive(ctx context.Context, id, userID string, active bool) (bool, error)
	// DeleteByIDAndUserID は所有者が一致する購読を削除する。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)
}

// PuzzleFinder はパズルの存在確認に必要なインターフェース。
type PuzzleFinder interface {
	FindBySlug(ctx context.Context, slug string) (*model.Puzzle, error)
}

// AlertHandler は価格アラート購読管理のHTTPハンドラー。
type AlertHandler struct {
	alerts  AlertSubscriptionStore
	puzzles PuzzleFinder
}

// NewAlertHandler はAlertHandlerを生成する。
func NewAlertHandler(alerts AlertSubscriptionStore, puzzles PuzzleFinder) *AlertHandler {
	return &AlertHandler{
		alerts:  alerts,
		puzzles: puzzles,
	}
}

// registerAlertRequest はアラート登録リクエストのボディ。
type registerAlertRequest struct {
	PuzzleSlug   string  `json:"puzzle_slug"`
	DesiredPrice float64 `json:"desired_price"`
	Channel      string  `json:"channel"`
}

// updateAlertRequest はアラート更新リクエストのボディ。
type updateAlertRequest struct {
	Active bool `json:"active"`
}

// alertResponse はアラート購読のAPIレスポンス。
type alertResponse struct {
	ID             string     `json:"id"`
	PuzzleSlug     string     `json:"puzzle_slug"`
	DesiredPrice   float64    `json:"desired_price"`
	Channel        string     `json:"channel"`
	Active         bool       `json:"active"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListAlerts はユーザーのアラート購読一覧を返す。
// GET /api/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	subs, err := h.alerts.ListByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]alertResponse, len(subs))
	for i, sub := range subs {
		results[i] = toAlertResponse(sub)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// RegisterAlert はアラート購読を登録する。
// 同一の (user_id, puzzle_slug, desired_price, channel) が既に存在する場合は
// UPSERTにより冪等に扱われ、activeがtrueに戻る。
// POST /api/alerts
func (h *AlertHandler) RegisterAlert(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req registerAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	if req.DesiredPrice <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAlertPriceError(req.DesiredPrice))
		return
	}

	channel := model.AlertChannel(req.Channel)
	if !channel.IsValid() {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAlertChannelError(req.Channel))
		return
	}

	puzzle, err := h.puzzles.FindBySlug(r.Context(), req.PuzzleSlug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if puzzle == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPuzzleNotFoundError(req.PuzzleSlug))
		return
	}

	now := time.Now()
	sub, err := h.alerts.Upsert(r.Context(), &model.AlertSubscription{
		ID:           uuid.New().String(),
		UserID:       userID,
		PuzzleSlug:   req.PuzzleSlug,
		DesiredPrice: req.DesiredPrice,
		Channel:      channel,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("アラート購読を登録しました",
		slog.String("subscription_id", sub.ID),
		slog.String("puzzle_slug", sub.PuzzleSlug),
		slog.Float64("desired_price", sub.DesiredPrice),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAlertResponse(sub))
}

// UpdateAlert はアラート購読のactiveフラグを更新する。
// 他ユーザーの購読IDを指定した場合も存在有無を漏らさず404を返す。
// PATCH /api/alerts/:id
func (h *AlertHandler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	subID := chi.URLParam(r, "id")

	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	updated, err := h.alerts.SetActive(r.Context(), subID, userID, req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAlertNotFoundError(subID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAlert はアラート購読を削除する。所有者のみが削除できる。
// DELETE /api/alerts/:id
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	subID := chi.URLParam(r, "id")

	deleted, err := h.alerts.DeleteByIDAndUserID(r.Context(), subID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAlertNotFoundError(subID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toAlertResponse はmodel.AlertSubscriptionからAPIレスポンスに変換する。
func toAlertResponse(sub *model.AlertSubscription) alertResponse {
	return alertResponse{
		ID:             sub.ID,
		PuzzleSlug:     sub.PuzzleSlug,
		DesiredPrice:   sub.DesiredPrice,
		Channel:        string(sub.Channel),
		Active:         sub.Active,
		LastNotifiedAt: sub.LastNotifiedAt,
		CreatedAt:      sub.CreatedAt,
	}
}

// unauthorizedError は認証必須エラーを生成する。
func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// invalidRequestError はリクエストボディ解析失敗エラーを生成する。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidAlertPrice, model.ErrCodeInvalidAlertChannel,
		model.ErrCodeInvalidRating:
		return http.StatusBadRequest
	case model.ErrCodeLinkUnreachable:
		return http.StatusUnprocessableEntity
	case model.ErrCodePuzzleNotFound, model.ErrCodeAlertNotFound,
		model.ErrCodeReviewNotFound, model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyVoted:
		return http.StatusConflict
	case model.ErrCodeVoteRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
