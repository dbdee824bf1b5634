// Package model はドメインモデルを定義する。
package model

// ClientType はOAuth2クライアントの種別を表す。
type ClientType string

const (
	// ClientTypeConfidential はシークレットを安全に保持できるクライアント。
	ClientTypeConfidential ClientType = "confidential"
	// ClientTypePublic はシークレットを保持できないクライアント。
	ClientTypePublic ClientType = "public"
)

// Client はOAuth2クライアントアプリケーションを表す。
// ClientIDとClientSecretは作成時に生成され、以後変更されない。
type Client struct {
	ClientID       string
	ClientSecret   string
	Name           string
	Description    string
	UserID         *int64 // 所有ユーザー（任意）
	IsConfidential bool
	RedirectURIs   []string
	DefaultScopes  []string
}

// Type はクライアント種別を返す。
func (c *Client) Type() ClientType {
	if c.IsConfidential {
		return ClientTypeConfidential
	}
	return ClientTypePublic
}

// DefaultRedirectURI は先頭のリダイレクトURIを返す。未登録の場合は空文字列。
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// ClientSnapshot はクライアントの読み取り専用コピー。
type ClientSnapshot struct {
	ClientID           string     `json:"client_id"`
	ClientSecret       string     `json:"client_secret"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	UserID             *int64     `json:"user_id"`
	ClientType         ClientType `json:"client_type"`
	RedirectURIs       []string   `json:"redirect_uris"`
	DefaultRedirectURI *string    `json:"default_redirect_uri"`
	DefaultScopes      []string   `json:"default_scopes"`
}

// Snapshot はClientのスナップショットを返す。
// スライスとポインタはコピーされ、元のエンティティとは共有しない。
func (c *Client) Snapshot() ClientSnapshot {
	s := ClientSnapshot{
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		Name:          c.Name,
		Description:   c.Description,
		ClientType:    c.Type(),
		RedirectURIs:  cloneStrings(c.RedirectURIs),
		DefaultScopes: cloneStrings(c.DefaultScopes),
	}
	if c.UserID != nil {
		id := *c.UserID
		s.UserID = &id
	}
	if uri := c.DefaultRedirectURI(); uri != "" {
		s.DefaultRedirectURI = &uri
	}
	return s
}
