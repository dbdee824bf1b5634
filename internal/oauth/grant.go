package oauth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/repository"
)

// 認可コードの入力上限。grantsテーブルの列幅に合わせる。
const (
	MaxCodeLength        = 255
	MaxRedirectURILength = 255
)

// GrantInput は認可コード保存パラメータ。
type GrantInput struct {
	ClientID    string
	Code        string
	RedirectURI string
	Scopes      []string
	UserID      int64
}

// SaveGrant は認可コードを保存する。有効期限は現在時刻+GrantTTLで固定。
func (s *Service) SaveGrant(ctx context.Context, in GrantInput) (*model.GrantSnapshot, error) {
	if err := validateClientID(in.ClientID); err != nil {
		return nil, err
	}
	if in.Code == "" {
		return nil, model.NewInvalidParamsError("code is required")
	}
	if utf8.RuneCountInString(in.Code) > MaxCodeLength {
		return nil, model.NewInvalidParamsError(fmt.Sprintf("code must be at most %d characters", MaxCodeLength))
	}
	if utf8.RuneCountInString(in.RedirectURI) > MaxRedirectURILength {
		return nil, model.NewInvalidParamsError(fmt.Sprintf("redirect_uri must be at most %d characters", MaxRedirectURILength))
	}
	if in.RedirectURI != "" {
		if err := s.redirects.Validate(in.RedirectURI); err != nil {
			return nil, model.NewInvalidRedirectURIError(in.RedirectURI)
		}
	}
	if err := s.scopes.Validate(in.Scopes); err != nil {
		return nil, err
	}

	grant := &model.Grant{
		UserID:      in.UserID,
		ClientID:    in.ClientID,
		Code:        in.Code,
		RedirectURI: in.RedirectURI,
		Expires:     s.currentTime().Add(s.grantTTL),
		Scopes:      in.Scopes,
	}
	if err := s.grantRepo.Create(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, unknownReference(err)
		}
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	snapshot := grant.Snapshot()
	return &snapshot, nil
}

// GetGrant は(client_id, code)で認可コードを取得する。見つからない場合はnil, nilを返す。
// 期限切れの認可コードも返すため、有効性は呼び出し元がExpiresで判定する。
func (s *Service) GetGrant(ctx context.Context, clientID, code string) (*model.GrantSnapshot, error) {
	if clientID == "" || code == "" {
		return nil, nil
	}
	grant, err := s.grantRepo.FindByClientAndCode(ctx, clientID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	if grant == nil {
		return nil, nil
	}
	snapshot := grant.Snapshot()
	return &snapshot, nil
}
