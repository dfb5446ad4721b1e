package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

func testConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxResponseSize: 1024 * 1024,
	}
}

// blockingSSRFValidator は常にブロックするSSRF検証モック。
type blockingSSRFValidator struct{}

func (v *blockingSSRFValidator) ValidateURL(rawURL string) error {
	return fmt.Errorf("blocked host")
}

func (v *blockingSSRFValidator) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// TestCheck_ReachableURL は2xx応答のURLが到達可能と判定されることをテストする。
func TestCheck_ReachableURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>product page</body></html>"))
	}))
	defer server.Close()

	// httptestサーバーはループバックのためSSRFガードなしで検証
	c := NewChecker(nil, testConfig())
	if err := c.Check(context.Background(), server.URL); err != nil {
		t.Errorf("expected reachable, got error: %v", err)
	}
}

// TestCheck_Redirect は3xx応答が到達可能と判定されることをテストする。
func TestCheck_Redirect(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, server.URL+"/new", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewChecker(nil, testConfig())
	if err := c.Check(context.Background(), server.URL+"/old"); err != nil {
		t.Errorf("expected reachable via redirect, got error: %v", err)
	}
}

// TestCheck_NotFound は404応答が到達不能と判定されることをテストする。
func TestCheck_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewChecker(nil, testConfig())
	err := c.Check(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var apiErr *model.APIError
	if !asAPIError(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "LINK_UNREACHABLE" {
		t.Errorf("code = %q, want %q", apiErr.Code, "LINK_UNREACHABLE")
	}
}

// TestCheck_ConnectionError は接続失敗が到達不能と判定されることをテストする。
func TestCheck_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // 接続先を落とす

	c := NewChecker(nil, testConfig())
	if err := c.Check(context.Background(), url); err == nil {
		t.Error("expected error for closed server")
	}
}

// TestCheck_EmptyURL は空URLがエラーになることをテストする。
func TestCheck_EmptyURL(t *testing.T) {
	c := NewChecker(nil, testConfig())
	err := c.Check(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}

	var apiErr *model.APIError
	if !asAPIError(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_URL" {
		t.Errorf("code = %q, want %q", apiErr.Code, "INVALID_URL")
	}
}

// TestCheck_SSRFBlocked はSSRF検証で弾かれたURLがリクエストなしで拒否されることをテストする。
func TestCheck_SSRFBlocked(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
	}))
	defer server.Close()

	c := NewChecker(&blockingSSRFValidator{}, testConfig())
	err := c.Check(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for blocked URL")
	}

	var apiErr *model.APIError
	if !asAPIError(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != "SSRF_BLOCKED" {
		t.Errorf("code = %q, want %q", apiErr.Code, "SSRF_BLOCKED")
	}
	if requestCount != 0 {
		t.Errorf("request count = %d, want 0 (blocked before request)", requestCount)
	}
}

// asAPIError はエラーチェーンからAPIErrorを取り出す。
func asAPIError(err error, target **model.APIError) bool {
	apiErr, ok := err.(*model.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
