package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// --- モック定義 ---

type mockReviewService struct {
	createFn         func(ctx context.Context, userID, puzzleSlug string, rating int, body string) (*model.Review, error)
	addHelpfulVoteFn func(ctx context.Context, reviewID, userID string) error
}

func (m *mockReviewService) Create(ctx context.Context, userID, puzzleSlug string, rating int, body string) (*model.Review, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, puzzleSlug, rating, body)
	}
	return &model.Review{
		ID:         "review-1",
		UserID:     userID,
		PuzzleSlug: puzzleSlug,
		Rating:     rating,
		Body:       body,
		CreatedAt:  time.Now(),
	}, nil
}

func (m *mockReviewService) AddHelpfulVote(ctx context.Context, reviewID, userID string) error {
	if m.addHelpfulVoteFn != nil {
		return m.addHelpfulVoteFn(ctx, reviewID, userID)
	}
	return nil
}

// --- テスト ---

func TestReviewHandler_CreateReview_Success(t *testing.T) {
	svc := &mockReviewService{}
	h := NewReviewHandler(svc)

	body := `{"rating": 5, "body": "<p>回転が軽くて静か</p>"}`
	req := authenticatedRequest(http.MethodPost, "/api/puzzles/gan-356-m/reviews", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateReview(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var result reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.PuzzleSlug != "gan-356-m" {
		t.Errorf("puzzle_slug = %q, want %q", result.PuzzleSlug, "gan-356-m")
	}
	if result.Rating != 5 {
		t.Errorf("rating = %d, want 5", result.Rating)
	}
}

func TestReviewHandler_CreateReview_InvalidRating_Returns400(t *testing.T) {
	svc := &mockReviewService{
		createFn: func(ctx context.Context, userID, puzzleSlug string, rating int, body string) (*model.Review, error) {
			return nil, model.NewInvalidRatingError(rating)
		},
	}
	h := NewReviewHandler(svc)

	body := `{"rating": 6, "body": "great"}`
	req := authenticatedRequest(http.MethodPost, "/api/puzzles/gan-356-m/reviews", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateReview(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var errResp apiErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeInvalidRating {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeInvalidRating)
	}
}

func TestReviewHandler_CreateReview_NoIdentity_Returns401(t *testing.T) {
	h := NewReviewHandler(&mockReviewService{})

	req := httptest.NewRequest(http.MethodPost, "/api/puzzles/gan-356-m/reviews", nil)
	w := httptest.NewRecorder()

	h.CreateReview(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestReviewHandler_AddHelpfulVote_Success(t *testing.T) {
	var gotReviewID, gotUserID string
	svc := &mockReviewService{
		addHelpfulVoteFn: func(ctx context.Context, reviewID, userID string) error {
			gotReviewID = reviewID
			gotUserID = userID
			return nil
		},
	}
	h := NewReviewHandler(svc)

	req := authenticatedRequest(http.MethodPost, "/api/reviews/review-1/helpful", "")
	req = withURLParam(req, "id", "review-1")
	w := httptest.NewRecorder()

	h.AddHelpfulVote(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if gotReviewID != "review-1" || gotUserID != "user-1" {
		t.Errorf("vote (%q, %q), want (review-1, user-1)", gotReviewID, gotUserID)
	}
}

func TestReviewHandler_AddHelpfulVote_RateLimited_Returns429(t *testing.T) {
	svc := &mockReviewService{
		addHelpfulVoteFn: func(ctx context.Context, reviewID, userID string) error {
			return model.NewVoteRateLimitedError()
		},
	}
	h := NewReviewHandler(svc)

	req := authenticatedRequest(http.MethodPost, "/api/reviews/review-1/helpful", "")
	req = withURLParam(req, "id", "review-1")
	w := httptest.NewRecorder()

	h.AddHelpfulVote(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	var errResp apiErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeVoteRateLimited {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeVoteRateLimited)
	}
}

func TestReviewHandler_AddHelpfulVote_AlreadyVoted_Returns409(t *testing.T) {
	svc := &mockReviewService{
		addHelpfulVoteFn: func(ctx context.Context, reviewID, userID string) error {
			return model.NewAlreadyVotedError(reviewID)
		},
	}
	h := NewReviewHandler(svc)

	req := authenticatedRequest(http.MethodPost, "/api/reviews/review-1/helpful", "")
	req = withURLParam(req, "id", "review-1")
	w := httptest.NewRecorder()

	h.AddHelpfulVote(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

func TestReviewHandler_AddHelpfulVote_ReviewNotFound_Returns404(t *testing.T) {
	svc := &mockReviewService{
		addHelpfulVoteFn: func(ctx context.Context, reviewID, userID string) error {
			return model.NewReviewNotFoundError(reviewID)
		},
	}
	h := NewReviewHandler(svc)

	req := authenticatedRequest(http.MethodPost, "/api/reviews/no-such-review/helpful", "")
	req = withURLParam(req, "id", "no-such-review")
	w := httptest.NewRecorder()

	h.AddHelpfulVote(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
