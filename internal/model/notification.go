package model

import "time"

// Notification はアプリ内通知を表す。
// UserIDがnil（NULL）の場合は全ユーザー向けのブロードキャスト通知であり、
// 既読状態はnotification_readsテーブルでユーザーごとに独立して管理される。
type Notification struct {
	ID        string
	UserID    *string
	Message   string
	Icon      string
	Link      string
	LinkText  string
	CreatedAt time.Time
}

// NotificationWithReadState は通知とリクエストユーザーの既読状態を結合した投影。
type NotificationWithReadState struct {
	Notification
	Read bool
}
