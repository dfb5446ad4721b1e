package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/hitoshi/cubedex/internal/model"
)

// defaultNotificationLimit は通知一覧のデフォルト取得件数。
const defaultNotificationLimit = 50

// NotificationStore は通知ハンドラーが必要とするストアインターフェース。
// repository.NotificationRepositoryの部分集合として定義する。
type NotificationStore interface {
	// ListForUser はユーザー宛て通知とブロードキャスト通知を既読状態付きで返す。
	ListForUser(ctx context.Context, userID string, limit int) ([]model.NotificationWithReadState, error)
	// MarkRead は通知をユーザーについて既読にする。冪等。
	MarkRead(ctx context.Context, notificationID, userID string) error
}

// NotificationHandler はアプリ内通知のHTTPハンドラー。
type NotificationHandler struct {
	store NotificationStore
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(store NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Icon      string    `json:"icon"`
	Link      string    `json:"link"`
	LinkText  string    `json:"link_text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ListNotifications はユーザーの通知一覧を新しい順に返す。
// ブロードキャスト通知も含み、既読状態はユーザーごとに独立している。
// GET /api/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	limit := defaultNotificationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notifications, err := h.store.ListForUser(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]notificationResponse, len(notifications))
	for i, n := range notifications {
		results[i] = notificationResponse{
			ID:        n.ID,
			Message:   n.Message,
			Icon:      n.Icon,
			Link:      n.Link,
			LinkText:  n.LinkText,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// MarkNotificationRead は通知を既読にする。冪等。
// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	notificationID := chi.URLParam(r, "id")

	if err := h.store.MarkRead(r.Context(), notificationID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
