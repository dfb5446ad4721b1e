package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/cubedex/internal/model"
)

// TestMiddlewareChain_Identity_GETRequest は
// Identity ミドルウェアでGETリクエストが通ることを検証する。
func TestMiddlewareChain_Identity_GETRequest(t *testing.T) {
	authority := validAuthority("user-chain-test")
	profiles := profileFinderFor(&model.Profile{ID: "user-chain-test", Username: "chain", Role: model.RoleUser})

	identityMW := NewIdentityMiddleware(authority, profiles)

	var capturedUserID string
	handler := identityMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-chain-test" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-chain-test")
	}
}

// TestMiddlewareChain_Identity_POSTRequest_WithValidSession は
// Identity ミドルウェアでPOSTリクエストがセッション付きで通ることを検証する。
func TestMiddlewareChain_Identity_POSTRequest_WithValidSession(t *testing.T) {
	authority := validAuthority("user-post-test")
	profiles := profileFinderFor(&model.Profile{ID: "user-post-test", Username: "poster", Role: model.RoleUser})

	identityMW := NewIdentityMiddleware(authority, profiles)

	handlerCalled := false
	handler := identityMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

// TestMiddlewareChain_NoSession_ProtectedPathRedirects は
// セッションなしで認証必須パスにアクセスすると303が返されることを検証する。
func TestMiddlewareChain_NoSession_ProtectedPathRedirects(t *testing.T) {
	authority := &mockCredentialAuthority{}
	profiles := &mockProfileFinder{}

	identityMW := NewIdentityMiddleware(authority, profiles)

	handler := identityMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/read", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusSeeOther)
	}
}
