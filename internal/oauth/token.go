package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/repository"
)

// トークンの入力上限。長さはtokensテーブルの列幅に合わせる。
const (
	MaxTokenLength   = 255
	MaxTokenLifetime = 10 * 365 * 24 * time.Hour
)

// TokenInput はトークン保存パラメータ。
type TokenInput struct {
	ClientID     string
	UserID       int64
	ExpiresIn    int64 // 秒
	AccessToken  string
	RefreshToken string // 任意
	TokenType    string
	Scopes       []string
}

// SaveToken は(client_id, user_id)の既存トークンを置き換えて新しいトークンを保存する。
// 書き込み前にtoken_typeとスコープを検証する。
func (s *Service) SaveToken(ctx context.Context, in TokenInput) (*model.TokenSnapshot, error) {
	if in.TokenType != model.TokenTypeBearer {
		return nil, model.NewInvalidTokenTypeError(in.TokenType)
	}
	if err := s.scopes.Validate(in.Scopes); err != nil {
		return nil, err
	}
	if err := validateClientID(in.ClientID); err != nil {
		return nil, err
	}
	if in.AccessToken == "" {
		return nil, model.NewInvalidParamsError("access_token is required")
	}
	if model.HasWhitespace(in.AccessToken) || model.HasWhitespace(in.RefreshToken) {
		return nil, model.NewInvalidParamsError("tokens must not contain whitespace")
	}
	if utf8.RuneCountInString(in.AccessToken) > MaxTokenLength || utf8.RuneCountInString(in.RefreshToken) > MaxTokenLength {
		return nil, model.NewInvalidParamsError(fmt.Sprintf("tokens must be at most %d characters", MaxTokenLength))
	}
	if in.ExpiresIn < 0 {
		return nil, model.NewInvalidParamsError("expires_in must not be negative")
	}
	if in.ExpiresIn > int64(MaxTokenLifetime/time.Second) {
		return nil, model.NewInvalidParamsError(fmt.Sprintf("expires_in must be at most %d seconds", int64(MaxTokenLifetime/time.Second)))
	}

	token := &model.Token{
		ClientID:     in.ClientID,
		UserID:       in.UserID,
		TokenType:    in.TokenType,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		Expires:      s.currentTime().Add(time.Duration(in.ExpiresIn) * time.Second),
		Scopes:       in.Scopes,
	}
	if err := s.tokenRepo.Replace(ctx, token); err != nil {
		switch {
		case errors.Is(err, repository.ErrForeignKey):
			return nil, unknownReference(err)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewInvalidParamsError("access_token or refresh_token is already in use")
		}
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	snapshot := token.Snapshot()
	return &snapshot, nil
}

// GetTokenByAccessToken はアクセストークン値でトークンを取得する。見つからない場合はnil, nilを返す。
func (s *Service) GetTokenByAccessToken(ctx context.Context, accessToken string) (*model.TokenSnapshot, error) {
	if accessToken == "" {
		return nil, nil
	}
	return s.snapshotToken(s.tokenRepo.FindByAccessToken(ctx, accessToken))
}

// GetTokenByRefreshToken はリフレッシュトークン値でトークンを取得する。見つからない場合はnil, nilを返す。
// 空文字列はリフレッシュトークン未発行を意味するため、常にnil, nilとなる。
func (s *Service) GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*model.TokenSnapshot, error) {
	if refreshToken == "" {
		return nil, nil
	}
	return s.snapshotToken(s.tokenRepo.FindByRefreshToken(ctx, refreshToken))
}

func (s *Service) snapshotToken(token *model.Token, err error) (*model.TokenSnapshot, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if token == nil {
		return nil, nil
	}
	snapshot := token.Snapshot()
	return &snapshot, nil
}
