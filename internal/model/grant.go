// Package model はドメインモデルを定義する。
package model

import "time"

// GrantTTL は認可コードの有効期間。発行時刻からの固定値。
const GrantTTL = 100 * time.Second

// Grant は短命な認可コードを表す。
// クライアント・ユーザー・リダイレクトURI・スコープに紐付く。
type Grant struct {
	ID          int64
	UserID      int64
	ClientID    string
	Code        string
	RedirectURI string
	Expires     time.Time
	Scopes      []string
}

// GrantSnapshot は認可コードの読み取り専用コピー。
type GrantSnapshot struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ClientID    string    `json:"client_id"`
	Code        string    `json:"code"`
	RedirectURI string    `json:"redirect_uri"`
	Expires     time.Time `json:"expires"`
	Scopes      []string  `json:"scopes"`
}

// Snapshot はGrantのスナップショットを返す。
func (g *Grant) Snapshot() GrantSnapshot {
	return GrantSnapshot{
		ID:          g.ID,
		UserID:      g.UserID,
		ClientID:    g.ClientID,
		Code:        g.Code,
		RedirectURI: g.RedirectURI,
		Expires:     g.Expires,
		Scopes:      cloneStrings(g.Scopes),
	}
}
