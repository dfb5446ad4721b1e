// Package linkcheck はベンダーリンクの到達性チェック機能を提供する。
package linkcheck

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Config はリンクチェッカーの設定。
type Config struct {
	Timeout         time.Duration // HTTPリクエストのタイムアウト
	MaxResponseSize int64         // レスポンスボディの読み取り上限（バイト）
}

// Checker はベンダーリンクの到達性を検証する。
// スタッフがベンダーリンクを登録する際、正規化済みURLが実際に
// 商品ページとして応答することを永続化前に確認する。
type Checker struct {
	ssrfGuard SSRFValidator
	config    Config
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(ssrfGuard SSRFValidator, config Config) *Checker {
	return &Checker{
		ssrfGuard: ssrfGuard,
		config:    config,
	}
}

// Check はURLの到達性を検証する。
// 1. SSRF検証を実行
// 2. URLにHTTPリクエストを送信（SSRF防止付きクライアント）
// 3. 2xx/3xxレスポンスを到達可能とみなす
// 失敗時は原因カテゴリと対処方法を含むエラーを返す。
func (c *Checker) Check(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return model.NewInvalidURLError("URLが入力されていません")
	}

	if c.ssrfGuard != nil {
		if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
			return model.NewSSRFBlockedError(rawURL)
		}
	}

	client := c.getHTTPClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Cubedex/1.0 Link Checker")

	resp, err := client.Do(req)
	if err != nil {
		return model.NewLinkUnreachableError(rawURL)
	}
	defer resp.Body.Close()

	// ボディは読み捨てる。コネクション再利用のため上限付きでドレインする
	io.Copy(io.Discard, io.LimitReader(resp.Body, c.config.MaxResponseSize))

	if resp.StatusCode >= 400 {
		return model.NewLinkUnreachableError(rawURL)
	}

	return nil
}

// getHTTPClient はHTTPクライアントを取得する。
// SSRFGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (c *Checker) getHTTPClient() *http.Client {
	if c.ssrfGuard != nil {
		return c.ssrfGuard.NewSafeClient(c.config.Timeout, c.config.MaxResponseSize)
	}
	return &http.Client{Timeout: c.config.Timeout}
}
