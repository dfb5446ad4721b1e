// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は登録直後のデフォルトロール。
	RoleUser Role = "user"
	// RoleModerator はスタッフエリアにアクセスできるモデレーターロール。
	RoleModerator Role = "moderator"
	// RoleAdmin は全権限を持つ管理者ロール。
	RoleAdmin Role = "admin"
)

// Profile はユーザーの最小プロフィール投影を表す。
// セッション検証ミドルウェアがリクエストコンテキストに注入する。
type Profile struct {
	ID        string
	Username  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdP（Google等）との紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はサーバー側セッションを表す。
// Cookieにはセッション ID のみを格納し、本体はDBで管理する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
