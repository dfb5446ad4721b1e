package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/cubedex/internal/model"
)

// TestSessionAuthority_ReValidate_ValidToken は有効なトークンでセッションが返ることを検証する。
func TestSessionAuthority_ReValidate_ValidToken(t *testing.T) {
	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	authority := NewSessionAuthority(sessions)

	session, err := authority.ReValidate(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("ReValidate() がエラーを返した: %v", err)
	}
	if session == nil {
		t.Fatal("有効なトークンでセッションが返るべき")
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-1")
	}
}

// TestSessionAuthority_ReValidate_UnknownToken は未知のトークンで (nil, nil) を返すことを検証する。
func TestSessionAuthority_ReValidate_UnknownToken(t *testing.T) {
	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil
		},
	}
	authority := NewSessionAuthority(sessions)

	session, err := authority.ReValidate(context.Background(), "unknown-token")
	if err != nil {
		t.Fatalf("未知のトークンはエラーではなく (nil, nil) を返すべき: %v", err)
	}
	if session != nil {
		t.Error("未知のトークンでセッションが返ってはならない")
	}
}

// TestSessionAuthority_ReValidate_StoreFailure はストア到達不能時にエラーを返すことを検証する。
func TestSessionAuthority_ReValidate_StoreFailure(t *testing.T) {
	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	authority := NewSessionAuthority(sessions)

	_, err := authority.ReValidate(context.Background(), "token-1")
	if err == nil {
		t.Fatal("ストア到達不能時はエラーを返すべき")
	}
}
