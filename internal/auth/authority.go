package auth

import (
	"context"

	"github.com/hitoshi/cubedex/internal/model"
	"github.com/hitoshi/cubedex/internal/repository"
)

// CredentialAuthority は提示されたクレデンシャルを発行元に対して再検証する
// 能力を表すインターフェース。
// ローカルにデコードしたセッションクレームを信用せず、リクエストごとに
// 発行元への往復で有効性（存在・期限）を確認する。
// 準拠する実装であれば任意のIDプロバイダーに差し替えられる。
type CredentialAuthority interface {
	// ReValidate はトークンを再検証し、有効なセッションを返す。
	// 無効・期限切れ・失効済みの場合は (nil, nil) を返す。
	// エラーはストア到達不能など検証自体が行えなかった場合のみ返す。
	ReValidate(ctx context.Context, token string) (*model.Session, error)
}

// SessionAuthority はセッションストアを発行元とするCredentialAuthorityの実装。
type SessionAuthority struct {
	sessions repository.SessionRepository
}

// NewSessionAuthority はSessionAuthorityを生成する。
func NewSessionAuthority(sessions repository.SessionRepository) *SessionAuthority {
	return &SessionAuthority{sessions: sessions}
}

// ReValidate はセッションストアへの往復でトークンの有効性を確認する。
// FindByIDは期限切れセッションをnilとして返すため、期限判定はストア側で行われる。
func (a *SessionAuthority) ReValidate(ctx context.Context, token string) (*model.Session, error) {
	return a.sessions.FindByID(ctx, token)
}

// compile-time interface check
var _ CredentialAuthority = (*SessionAuthority)(nil)
