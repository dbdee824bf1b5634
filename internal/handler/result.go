package handler

import "github.com/hitoshi/accountd/internal/model"

// GrantResult はRPCで返す認可コード。expiresはUnix秒。
type GrantResult struct {
	ID          int64    `json:"id"`
	UserID      int64    `json:"user_id"`
	ClientID    string   `json:"client_id"`
	Code        string   `json:"code"`
	RedirectURI string   `json:"redirect_uri"`
	Expires     int64    `json:"expires"`
	Scopes      []string `json:"scopes"`
}

func newGrantResult(g *model.GrantSnapshot) *GrantResult {
	if g == nil {
		return nil
	}
	return &GrantResult{
		ID:          g.ID,
		UserID:      g.UserID,
		ClientID:    g.ClientID,
		Code:        g.Code,
		RedirectURI: g.RedirectURI,
		Expires:     g.Expires.Unix(),
		Scopes:      nonNil(g.Scopes),
	}
}

// TokenResult はRPCで返すトークン。expiresはUnix秒。
type TokenResult struct {
	ID           int64    `json:"id"`
	ClientID     string   `json:"client_id"`
	UserID       int64    `json:"user_id"`
	TokenType    string   `json:"token_type"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	Expires      int64    `json:"expires"`
	Scopes       []string `json:"scopes"`
}

func newTokenResult(t *model.TokenSnapshot) *TokenResult {
	if t == nil {
		return nil
	}
	return &TokenResult{
		ID:           t.ID,
		ClientID:     t.ClientID,
		UserID:       t.UserID,
		TokenType:    t.TokenType,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expires:      t.Expires.Unix(),
		Scopes:       nonNil(t.Scopes),
	}
}

// nonNil はnilスライスを空スライスに置き換える（JSONでnullではなく[]にする）。
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
