package handler

import (
	"context"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/oauth"
	"github.com/hitoshi/accountd/internal/rpc"
)

// OAuthServiceInterface はOAuth2ハンドラーが必要とするサービスインターフェース。
type OAuthServiceInterface interface {
	CreateClient(ctx context.Context, in oauth.ClientInput) (*model.ClientSnapshot, error)
	GetClient(ctx context.Context, clientID string) (*model.ClientSnapshot, error)
	SaveGrant(ctx context.Context, in oauth.GrantInput) (*model.GrantSnapshot, error)
	GetGrant(ctx context.Context, clientID, code string) (*model.GrantSnapshot, error)
	SaveToken(ctx context.Context, in oauth.TokenInput) (*model.TokenSnapshot, error)
	GetTokenByAccessToken(ctx context.Context, accessToken string) (*model.TokenSnapshot, error)
	GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*model.TokenSnapshot, error)
}

// TokenMetrics はトークン発行の記録先。
type TokenMetrics interface {
	RecordTokenIssued()
}

// GetTokenByAccessTokenParams はOAuth2.get_token_by_access_tokenのパラメータ。
type GetTokenByAccessTokenParams struct {
	AccessToken string `json:"access_token"`
}

// GetTokenByRefreshTokenParams はOAuth2.get_token_by_refresh_tokenのパラメータ。
type GetTokenByRefreshTokenParams struct {
	RefreshToken string `json:"refresh_token"`
}

// SaveTokenParams はOAuth2.save_tokenのパラメータ。
type SaveTokenParams struct {
	ClientID     string   `json:"client_id"`
	UserID       int64    `json:"user_id"`
	ExpiresIn    int64    `json:"expires_in"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	Scopes       []string `json:"scopes"`
}

// Validate は必須パラメータを検証する。token_typeとスコープの値はサービス層で検証する。
func (p *SaveTokenParams) Validate() error {
	if p.ClientID == "" {
		return model.NewInvalidParamsError("client_id is required")
	}
	if p.UserID <= 0 {
		return model.NewInvalidParamsError("user_id must be a positive integer")
	}
	if p.AccessToken == "" {
		return model.NewInvalidParamsError("access_token is required")
	}
	return nil
}

// GetClientParams はOAuth2.get_clientのパラメータ。
type GetClientParams struct {
	ClientID string `json:"client_id"`
}

// SaveClientParams はOAuth2.save_clientのパラメータ。
type SaveClientParams struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	UserID         *int64   `json:"user_id"`
	IsConfidential bool     `json:"is_confidential"`
	RedirectURIs   []string `json:"redirect_uris"`
	DefaultScopes  []string `json:"default_scopes"`
}

// GetGrantParams はOAuth2.get_grantのパラメータ。
type GetGrantParams struct {
	ClientID string `json:"client_id"`
	Code     string `json:"code"`
}

// SaveGrantParams はOAuth2.save_grantのパラメータ。
type SaveGrantParams struct {
	ClientID    string   `json:"client_id"`
	Code        string   `json:"code"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
	UserID      int64    `json:"user_id"`
}

// Validate は必須パラメータを検証する。
func (p *SaveGrantParams) Validate() error {
	if p.UserID <= 0 {
		return model.NewInvalidParamsError("user_id must be a positive integer")
	}
	return nil
}

// OAuthHandler はOAuth2.*メソッドのハンドラー。
type OAuthHandler struct {
	service OAuthServiceInterface
	metrics TokenMetrics
}

// NewOAuthHandler はOAuthHandlerを生成する。metricsはnilでもよい。
func NewOAuthHandler(service OAuthServiceInterface, metrics TokenMetrics) *OAuthHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &OAuthHandler{
		service: service,
		metrics: metrics,
	}
}

// Register はOAuth2.*メソッドをサーバーに登録する。
func (h *OAuthHandler) Register(s *rpc.Server) {
	s.Register("OAuth2.get_token_by_access_token", rpc.Method(h.GetTokenByAccessToken))
	s.Register("OAuth2.get_token_by_refresh_token", rpc.Method(h.GetTokenByRefreshToken))
	s.Register("OAuth2.save_token", rpc.Method(h.SaveToken))
	s.Register("OAuth2.get_client", rpc.Method(h.GetClient))
	s.Register("OAuth2.save_client", rpc.Method(h.SaveClient))
	s.Register("OAuth2.get_grant", rpc.Method(h.GetGrant))
	s.Register("OAuth2.save_grant", rpc.Method(h.SaveGrant))
}

// GetTokenByAccessToken はアクセストークンでトークンを検索する。
func (h *OAuthHandler) GetTokenByAccessToken(ctx context.Context, p GetTokenByAccessTokenParams) (*TokenResult, error) {
	token, err := h.service.GetTokenByAccessToken(ctx, p.AccessToken)
	if err != nil {
		return nil, err
	}
	return newTokenResult(token), nil
}

// GetTokenByRefreshToken はリフレッシュトークンでトークンを検索する。
func (h *OAuthHandler) GetTokenByRefreshToken(ctx context.Context, p GetTokenByRefreshTokenParams) (*TokenResult, error) {
	token, err := h.service.GetTokenByRefreshToken(ctx, p.RefreshToken)
	if err != nil {
		return nil, err
	}
	return newTokenResult(token), nil
}

// SaveToken は(client_id, user_id)のトークンを置き換えて保存する。
func (h *OAuthHandler) SaveToken(ctx context.Context, p SaveTokenParams) (*TokenResult, error) {
	token, err := h.service.SaveToken(ctx, oauth.TokenInput{
		ClientID:     p.ClientID,
		UserID:       p.UserID,
		ExpiresIn:    p.ExpiresIn,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		Scopes:       p.Scopes,
	})
	if err != nil {
		return nil, err
	}
	h.metrics.RecordTokenIssued()
	return newTokenResult(token), nil
}

// GetClient はclient_idでクライアントを検索する。
func (h *OAuthHandler) GetClient(ctx context.Context, p GetClientParams) (*model.ClientSnapshot, error) {
	return h.service.GetClient(ctx, p.ClientID)
}

// SaveClient はクライアントを登録し、生成したclient_idとclient_secretを含むスナップショットを返す。
func (h *OAuthHandler) SaveClient(ctx context.Context, p SaveClientParams) (*model.ClientSnapshot, error) {
	return h.service.CreateClient(ctx, oauth.ClientInput{
		Name:           p.Name,
		Description:    p.Description,
		UserID:         p.UserID,
		IsConfidential: p.IsConfidential,
		RedirectURIs:   p.RedirectURIs,
		DefaultScopes:  p.DefaultScopes,
	})
}

// GetGrant は(client_id, code)で認可コードを検索する。期限切れでもそのまま返す。
func (h *OAuthHandler) GetGrant(ctx context.Context, p GetGrantParams) (*GrantResult, error) {
	grant, err := h.service.GetGrant(ctx, p.ClientID, p.Code)
	if err != nil {
		return nil, err
	}
	return newGrantResult(grant), nil
}

// SaveGrant は認可コードを保存する。
func (h *OAuthHandler) SaveGrant(ctx context.Context, p SaveGrantParams) (*GrantResult, error) {
	grant, err := h.service.SaveGrant(ctx, oauth.GrantInput{
		ClientID:    p.ClientID,
		Code:        p.Code,
		RedirectURI: p.RedirectURI,
		Scopes:      p.Scopes,
		UserID:      p.UserID,
	})
	if err != nil {
		return nil, err
	}
	return newGrantResult(grant), nil
}
