// Package review はパズルレビューの投稿と参考になった投票を提供する。
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/cubedex/internal/model"
	"github.com/hitoshi/cubedex/internal/repository"
	"github.com/hitoshi/cubedex/internal/security"
)

// ServiceConfig はレビューサービスの設定。
type ServiceConfig struct {
	// VoteLimit はウィンドウあたりの参考になった投票の上限数。
	VoteLimit int
	// VoteWindow はレート制限のウィンドウ幅。
	VoteWindow time.Duration
}

// Service はレビューに関するビジネスロジックを提供する。
// 本文は保存前に必ずサニタイズされ、投票はストア型レート制限で保護される。
type Service struct {
	reviewRepo  repository.ReviewRepository
	puzzleRepo  repository.PuzzleRepository
	sanitizer   security.ContentSanitizerService
	rateLimiter repository.VoteRateLimiter
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	reviewRepo repository.ReviewRepository,
	puzzleRepo repository.PuzzleRepository,
	sanitizer security.ContentSanitizerService,
	rateLimiter repository.VoteRateLimiter,
	config ServiceConfig,
) *Service {
	return &Service{
		reviewRepo:  reviewRepo,
		puzzleRepo:  puzzleRepo,
		sanitizer:   sanitizer,
		rateLimiter: rateLimiter,
		config:      config,
	}
}

// Create はレビューを作成する。
// 評価は1〜5の整数のみ許可し、本文はサニタイズしてから保存する。
// 存在しないパズルへのレビューはエラーになる。
func (s *Service) Create(ctx context.Context, userID, puzzleSlug string, rating int, body string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, model.NewInvalidRatingError(rating)
	}

	puzzle, err := s.puzzleRepo.FindBySlug(ctx, puzzleSlug)
	if err != nil {
		return nil, fmt.Errorf("パズルの取得に失敗: %w", err)
	}
	if puzzle == nil {
		return nil, model.NewPuzzleNotFoundError(puzzleSlug)
	}

	now := time.Now()
	review := &model.Review{
		ID:         uuid.New().String(),
		UserID:     userID,
		PuzzleSlug: puzzleSlug,
		Rating:     rating,
		Body:       strings.TrimSpace(s.sanitizer.Sanitize(body)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("レビューの作成に失敗: %w", err)
	}

	slog.Info("レビューを作成しました",
		slog.String("review_id", review.ID),
		slog.String("puzzle_slug", puzzleSlug),
		slog.Int("rating", rating),
	)

	return review, nil
}

// AddHelpfulVote はレビューに参考になった投票を追加する。
// ストア型レート制限で投票枠を消費してから投票行を挿入する。
// 同一ユーザーによる同一レビューへの投票は1回まで。
func (s *Service) AddHelpfulVote(ctx context.Context, reviewID, userID string) error {
	review, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("レビューの取得に失敗: %w", err)
	}
	if review == nil {
		return model.NewReviewNotFoundError(reviewID)
	}

	allowed, err := s.rateLimiter.Acquire(ctx, userID, s.config.VoteLimit, s.config.VoteWindow)
	if err != nil {
		return fmt.Errorf("投票レート制限の確認に失敗: %w", err)
	}
	if !allowed {
		slog.Warn("投票レート制限を超過しました",
			slog.String("user_id", userID),
			slog.String("review_id", reviewID),
		)
		return model.NewVoteRateLimitedError()
	}

	voted, err := s.reviewRepo.AddHelpfulVote(ctx, reviewID, userID)
	if err != nil {
		return fmt.Errorf("投票の追加に失敗: %w", err)
	}
	if !voted {
		return model.NewAlreadyVotedError(reviewID)
	}

	return nil
}
