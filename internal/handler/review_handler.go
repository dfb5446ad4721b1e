package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/hitoshi/cubedex/internal/model"
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	// Create はレビューを作成する。本文はサービス側でサニタイズされる。
	Create(ctx context.Context, userID, puzzleSlug string, rating int, body string) (*model.Review, error)
	// AddHelpfulVote はレビューに参考になった投票を追加する。
	AddHelpfulVote(ctx context.Context, reviewID, userID string) error
}

// ReviewHandler はレビュー投稿と投票のHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// createReviewRequest はレビュー投稿リクエストのボディ。
type createReviewRequest struct {
	Rating int    `json:"rating"`
	Body   string `json:"body"`
}

// reviewResponse はレビューのAPIレスポンス。
type reviewResponse struct {
	ID           string    `json:"id"`
	PuzzleSlug   string    `json:"puzzle_slug"`
	Rating       int       `json:"rating"`
	Body         string    `json:"body"`
	HelpfulCount int       `json:"helpful_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateReview はレビューを投稿する。
// POST /api/puzzles/:slug/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	puzzleSlug := chi.URLParam(r, "slug")

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	review, err := h.service.Create(r.Context(), userID, puzzleSlug, req.Rating, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reviewResponse{
		ID:           review.ID,
		PuzzleSlug:   review.PuzzleSlug,
		Rating:       review.Rating,
		Body:         review.Body,
		HelpfulCount: review.HelpfulCount,
		CreatedAt:    review.CreatedAt,
	})
}

// AddHelpfulVote はレビューに参考になった投票を追加する。
// POST /api/reviews/:id/helpful
func (h *ReviewHandler) AddHelpfulVote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	reviewID := chi.URLParam(r, "id")

	if err := h.service.AddHelpfulVote(r.Context(), reviewID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
