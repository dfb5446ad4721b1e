// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/cubedex/internal/auth"
	"github.com/hitoshi/cubedex/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにアイデンティティを格納するためのキー。
var identityContextKey = contextKey("identity")

// Identity はリクエストごとに再構築される認証状態。
// リクエストをまたいでキャッシュせず、リクエスト終了とともに破棄される。
type Identity struct {
	Authenticated bool
	UserID        string
	Username      string
	Role          model.Role
}

// anonymousIdentity は未認証リクエストのアイデンティティ。
var anonymousIdentity = Identity{Authenticated: false}

// ProfileFinder はプロフィールの検索に必要なインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
}

// NewIdentityMiddleware はCookieからセッションクレデンシャルを読み取り、
// 発行元への再検証でアイデンティティを構築するミドルウェアを返す。
// パスごとの認可テーブルを検証後・ルート処理前に適用し、
// リダイレクト判定が出た場合はルートコードを一切実行せず303で打ち切る。
//
// 認可テーブル（この順で評価し、最初に一致したルールで確定する）:
//  1. 未認証 + 認証必須パス（/staff配下、notificationsセグメント、
//     /userbar配下、settingsセグメント）→ 303 /login
//  2. 認証済み + "/" → 303 /dashboard
//  3. 認証済み + "/auth" → 303 /u/{username}
//  4. /staff配下 + userロール → 303 /
//
// 未認証チェックはプロフィール取得より先に行い、リダイレクトが確定する
// リクエストで不要なクエリを発行しない。
func NewIdentityMiddleware(authority auth.CredentialAuthority, profileFinder ProfileFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := resolveIdentity(r, authority)
			path := r.URL.Path

			// 1. 未認証リダイレクト（プロフィール取得前に判定する）
			if !identity.Authenticated {
				if requiresAuthentication(path) {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				ctx := context.WithValue(r.Context(), identityContextKey, identity)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// 2. 認証済み: プロフィールを解決する。
			// 有効なセッションに対応するプロフィールが存在しないのは
			// データ不整合であり、匿名扱いではなく500で失敗させる。
			profile, err := profileFinder.FindByID(r.Context(), identity.UserID)
			if err != nil {
				slog.Error("failed to find profile for session",
					slog.String("user_id", identity.UserID),
					slog.String("error", err.Error()),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if profile == nil {
				slog.Error("profile missing for valid session",
					slog.String("user_id", identity.UserID),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			identity.Username = profile.Username
			identity.Role = profile.Role

			// 3. 認証済みユーザーのUX正規化リダイレクト
			if path == "/" {
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
				return
			}
			if path == "/auth" {
				http.Redirect(w, r, "/u/"+profile.Username, http.StatusSeeOther)
				return
			}

			// 4. スタッフ領域はuserロール以外を要求する
			if strings.HasPrefix(path, "/staff") && profile.Role == model.RoleUser {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveIdentity はCookieのセッショントークンを発行元に対して再検証し、
// アイデンティティを構築する。トークンの欠如・再検証の失敗は理由を問わず
// すべて匿名アイデンティティとして扱い、呼び出し元にエラーを返さない。
func resolveIdentity(r *http.Request, authority auth.CredentialAuthority) Identity {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return anonymousIdentity
	}

	session, err := authority.ReValidate(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("credential re-validation failed",
			slog.String("error", err.Error()),
		)
		return anonymousIdentity
	}
	if session == nil {
		// 期限切れ・失効済みは未ログインと同じ扱い
		return anonymousIdentity
	}

	return Identity{Authenticated: true, UserID: session.UserID}
}

// requiresAuthentication は非匿名アイデンティティを要求するパスかどうかを判定する。
func requiresAuthentication(path string) bool {
	if strings.HasPrefix(path, "/staff") || strings.HasPrefix(path, "/userbar") {
		return true
	}
	return strings.Contains(path, "/notifications") || strings.Contains(path, "/settings")
}

// RequireAuthentication は匿名アイデンティティのリクエストを401で拒否するミドルウェア。
// 認可テーブルが扱わないAPIルートグループで使用する。
// アイデンティティミドルウェアの後に配置すること。
func RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.Authenticated {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext はリクエストコンテキストからアイデンティティを取得する。
// アイデンティティミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
// 未認証の場合はエラーを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	if !ok || !identity.Authenticated || identity.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストにアイデンティティを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
