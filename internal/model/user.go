// Package model はドメインモデルを定義する。
package model

import "time"

// User はアカウントの本体を表す。
type User struct {
	ID          int64
	Nickname    string
	Description string
	IsEnabled   bool
}

// UserEmail はユーザーが所有するメールアドレスを表す。
// emailはストア全体で一意（大文字小文字は区別する）。
type UserEmail struct {
	ID          int64
	UserID      int64
	Email       string
	ConfirmedAt *time.Time
	IsPrimary   bool
}

// UserAuth はユーザーのパスワード認証情報を表す。
// Passwordは常にソルト付き一方向ハッシュであり、平文は保持しない。
type UserAuth struct {
	ID                 int64
	UserID             int64
	Password           string
	ResetPasswordToken string
}

// UserSnapshot は呼び出し元に返すユーザーの読み取り専用コピー。
// 認証情報（パスワードハッシュ等）は含まない。
type UserSnapshot struct {
	ID          int64  `json:"id"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	IsEnabled   bool   `json:"is_enabled"`
}

// Snapshot はUserのスナップショットを返す。
func (u *User) Snapshot() UserSnapshot {
	return UserSnapshot{
		ID:          u.ID,
		Nickname:    u.Nickname,
		Description: u.Description,
		IsEnabled:   u.IsEnabled,
	}
}
