package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/hitoshi/cubedex/internal/model"
)

// --- モック定義 ---

type mockVendorLinkCreator struct {
	createFn func(ctx context.Context, link *model.VendorLink) error
	created  *model.VendorLink
}

func (m *mockVendorLinkCreator) Create(ctx context.Context, link *model.VendorLink) error {
	m.created = link
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

type mockLinkVerifier struct {
	checkFn func(ctx context.Context, rawURL string) error
	checked []string
}

func (m *mockLinkVerifier) Check(ctx context.Context, rawURL string) error {
	m.checked = append(m.checked, rawURL)
	if m.checkFn != nil {
		return m.checkFn(ctx, rawURL)
	}
	return nil
}

// staffRequest はモデレーターロールのアイデンティティ付きリクエストを生成するヘルパー。
func staffRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), middleware.Identity{
		Authenticated: true,
		UserID:        "staff-1",
		Username:      "moderator-cuber",
		Role:          model.RoleModerator,
	}))
}

// --- テスト ---

func TestVendorLinkHandler_CreateVendorLink_NormalizesBeforeCheck(t *testing.T) {
	links := &mockVendorLinkCreator{}
	checker := &mockLinkVerifier{}
	h := NewVendorLinkHandler(links, &mockPuzzleFinder{}, checker, nil)

	// トラッキングパラメータ付きのURLを送る
	body := `{"vendor": "TheCubicle", "url": "https://www.thecubicle.com/products/gan-356-m?utm_source=twitter&ref=home"}`
	req := staffRequest(http.MethodPost, "/api/puzzles/gan-356-m/links", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	if len(checker.checked) != 1 {
		t.Fatalf("到達性チェック回数 = %d, want 1", len(checker.checked))
	}
	// 正規化済みURL（クエリ除去済み）がチェックと保存に使われる
	wantURL := "https://www.thecubicle.com/products/gan-356-m"
	if checker.checked[0] != wantURL {
		t.Errorf("チェックされたURL = %q, want %q", checker.checked[0], wantURL)
	}
	if links.created == nil {
		t.Fatal("ベンダーリンクが保存されていない")
	}
	if links.created.URL != wantURL {
		t.Errorf("保存されたURL = %q, want %q", links.created.URL, wantURL)
	}
	if links.created.CreatedBy != "staff-1" {
		t.Errorf("CreatedBy = %q, want %q", links.created.CreatedBy, "staff-1")
	}
}

func TestVendorLinkHandler_CreateVendorLink_UserRole_Returns403(t *testing.T) {
	links := &mockVendorLinkCreator{}
	h := NewVendorLinkHandler(links, &mockPuzzleFinder{}, &mockLinkVerifier{}, nil)

	body := `{"vendor": "TheCubicle", "url": "https://www.thecubicle.com/products/gan-356-m"}`
	req := authenticatedRequest(http.MethodPost, "/api/puzzles/gan-356-m/links", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if links.created != nil {
		t.Error("userロールでベンダーリンクが保存されてはならない")
	}
}

func TestVendorLinkHandler_CreateVendorLink_SSRFBlocked_Returns403(t *testing.T) {
	links := &mockVendorLinkCreator{}
	checker := &mockLinkVerifier{
		checkFn: func(ctx context.Context, rawURL string) error {
			return model.NewSSRFBlockedError(rawURL)
		},
	}
	h := NewVendorLinkHandler(links, &mockPuzzleFinder{}, checker, nil)

	body := `{"vendor": "internal", "url": "http://169.254.169.254/latest/meta-data"}`
	req := staffRequest(http.MethodPost, "/api/puzzles/gan-356-m/links", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	var errResp apiErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeSSRFBlocked {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeSSRFBlocked)
	}
	if links.created != nil {
		t.Error("SSRFブロックされたURLが保存されてはならない")
	}
}

func TestVendorLinkHandler_CreateVendorLink_Unreachable_Returns422(t *testing.T) {
	checker := &mockLinkVerifier{
		checkFn: func(ctx context.Context, rawURL string) error {
			return model.NewLinkUnreachableError(rawURL)
		},
	}
	h := NewVendorLinkHandler(&mockVendorLinkCreator{}, &mockPuzzleFinder{}, checker, nil)

	body := `{"vendor": "TheCubicle", "url": "https://www.thecubicle.com/products/gone"}`
	req := staffRequest(http.MethodPost, "/api/puzzles/gan-356-m/links", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	if w.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestVendorLinkHandler_CreateVendorLink_UnknownPuzzle_Returns404(t *testing.T) {
	puzzles := &mockPuzzleFinder{
		findBySlugFn: func(ctx context.Context, slug string) (*model.Puzzle, error) {
			return nil, nil
		},
	}
	h := NewVendorLinkHandler(&mockVendorLinkCreator{}, puzzles, &mockLinkVerifier{}, nil)

	body := `{"vendor": "TheCubicle", "url": "https://www.thecubicle.com/products/x"}`
	req := staffRequest(http.MethodPost, "/api/puzzles/no-such-cube/links", body)
	req = withURLParam(req, "slug", "no-such-cube")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestVendorLinkHandler_CreateVendorLink_EmptyURL_Returns400(t *testing.T) {
	h := NewVendorLinkHandler(&mockVendorLinkCreator{}, &mockPuzzleFinder{}, &mockLinkVerifier{}, nil)

	body := `{"vendor": "TheCubicle", "url": ""}`
	req := staffRequest(http.MethodPost, "/api/puzzles/gan-356-m/links", body)
	req = withURLParam(req, "slug", "gan-356-m")
	w := httptest.NewRecorder()

	h.CreateVendorLink(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
