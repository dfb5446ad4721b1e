package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/cubedex/internal/linkutil"
	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/hitoshi/cubedex/internal/model"
)

// LinkVerifier はベンダーリンクの到達性検証インターフェース。
// linkcheck.Checkerの部分集合として定義する。
type LinkVerifier interface {
	// Check はURLのSSRF検証と到達性確認を行う。
	Check(ctx context.Context, rawURL string) error
}

// VendorLinkCreator はベンダーリンクの永続化インターフェース。
type VendorLinkCreator interface {
	Create(ctx context.Context, link *model.VendorLink) error
}

// LinkMetricsRecorder はリンク処理メトリクスの記録インターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type LinkMetricsRecorder interface {
	RecordLinkNormalized()
	RecordLinkCheckFailure()
}

// VendorLinkHandler はベンダーリンク登録のHTTPハンドラー。
// スタッフ（moderator以上）のみが登録できる。
type VendorLinkHandler struct {
	links   VendorLinkCreator
	puzzles PuzzleFinder
	checker LinkVerifier
	metrics LinkMetricsRecorder // nil可
}

// NewVendorLinkHandler はVendorLinkHandlerを生成する。
func NewVendorLinkHandler(links VendorLinkCreator, puzzles PuzzleFinder, checker LinkVerifier, metrics LinkMetricsRecorder) *VendorLinkHandler {
	return &VendorLinkHandler{
		links:   links,
		puzzles: puzzles,
		checker: checker,
		metrics: metrics,
	}
}

// createVendorLinkRequest はベンダーリンク登録リクエストのボディ。
type createVendorLinkRequest struct {
	Vendor string `json:"vendor"`
	URL    string `json:"url"`
}

// vendorLinkResponse はベンダーリンクのAPIレスポンス。
type vendorLinkResponse struct {
	ID         string    `json:"id"`
	PuzzleSlug string    `json:"puzzle_slug"`
	Vendor     string    `json:"vendor"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateVendorLink はベンダーリンクを登録する。
// URLはトラッキングパラメータ除去とリダイレクタ展開で正規化してから、
// SSRF検証と到達性確認を通過したものだけを保存する。
// POST /api/puzzles/:slug/links
func (h *VendorLinkHandler) CreateVendorLink(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || !identity.Authenticated {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}
	if identity.Role == model.RoleUser {
		writeAPIErrorResponse(w, http.StatusForbidden, &model.APIError{
			Code:     model.ErrCodeForbidden,
			Message:  "ベンダーリンクの登録にはスタッフ権限が必要です。",
			Category: "auth",
			Action:   "モデレーターに登録を依頼してください。",
		})
		return
	}

	puzzleSlug := chi.URLParam(r, "slug")

	var req createVendorLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(req.URL))
		return
	}

	puzzle, err := h.puzzles.FindBySlug(r.Context(), puzzleSlug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if puzzle == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPuzzleNotFoundError(puzzleSlug))
		return
	}

	normalized := linkutil.Normalize(req.URL)
	if h.metrics != nil {
		h.metrics.RecordLinkNormalized()
	}

	if err := h.checker.Check(r.Context(), normalized); err != nil {
		if h.metrics != nil {
			h.metrics.RecordLinkCheckFailure()
		}
		handleServiceError(w, err)
		return
	}

	link := &model.VendorLink{
		ID:         uuid.New().String(),
		PuzzleSlug: puzzleSlug,
		Vendor:     req.Vendor,
		URL:        normalized,
		CreatedBy:  identity.UserID,
		CreatedAt:  time.Now(),
	}

	if err := h.links.Create(r.Context(), link); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("ベンダーリンクを登録しました",
		slog.String("puzzle_slug", puzzleSlug),
		slog.String("vendor", req.Vendor),
		slog.String("url", normalized),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(vendorLinkResponse{
		ID:         link.ID,
		PuzzleSlug: link.PuzzleSlug,
		Vendor:     link.Vendor,
		URL:        link.URL,
		CreatedAt:  link.CreatedAt,
	})
}
