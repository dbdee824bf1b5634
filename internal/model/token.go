// Package model はドメインモデルを定義する。
package model

import "time"

// TokenTypeBearer は受け付ける唯一のトークン種別。
const TokenTypeBearer = "bearer"

// Token はアクセストークンとリフレッシュトークンの組を表す。
// (ClientID, UserID) の組ごとに同時に存在できるのは高々1行。
type Token struct {
	ID           int64
	ClientID     string
	UserID       int64
	TokenType    string
	AccessToken  string
	RefreshToken string
	Expires      time.Time
	Scopes       []string
}

// TokenSnapshot はトークンの読み取り専用コピー。
type TokenSnapshot struct {
	ID           int64     `json:"id"`
	ClientID     string    `json:"client_id"`
	UserID       int64     `json:"user_id"`
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expires      time.Time `json:"expires"`
	Scopes       []string  `json:"scopes"`
}

// Snapshot はTokenのスナップショットを返す。
func (t *Token) Snapshot() TokenSnapshot {
	return TokenSnapshot{
		ID:           t.ID,
		ClientID:     t.ClientID,
		UserID:       t.UserID,
		TokenType:    t.TokenType,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expires:      t.Expires,
		Scopes:       cloneStrings(t.Scopes),
	}
}
