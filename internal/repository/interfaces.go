// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/accountd/internal/model"
)

// ストアの整合性制約違反を表すセンチネルエラー。
// ドライバ固有のエラーはリポジトリ境界でこれらに変換される。
var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("unique constraint violation")
	// ErrForeignKey は外部キー制約違反を表す。
	ErrForeignKey = errors.New("foreign key constraint violation")
)

// UserRepository はユーザー・メールアドレス・認証情報の永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindEmail はメールアドレスの完全一致でUserEmailを取得する。見つからない場合はnilを返す。
	FindEmail(ctx context.Context, email string) (*model.UserEmail, error)

	// FindAuthByUserID はユーザーのパスワード認証情報を取得する。見つからない場合はnilを返す。
	FindAuthByUserID(ctx context.Context, userID int64) (*model.UserAuth, error)

	// CreateWithEmailAndAuth はユーザー・メールアドレス・認証情報を同一トランザクションで作成する。
	// 採番されたIDは各引数に書き戻す。メールアドレスが重複する場合はErrDuplicateを返し、
	// いずれの行も残さない。
	CreateWithEmailAndAuth(ctx context.Context, user *model.User, email *model.UserEmail, auth *model.UserAuth) error
}

// ClientRepository はOAuth2クライアントの永続化インターフェース。
type ClientRepository interface {
	// Create はクライアントを作成する。
	// client_idまたはclient_secretが重複する場合はErrDuplicate、
	// 所有ユーザーが存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, client *model.Client) error

	// FindByClientID はclient_idの完全一致でクライアントを取得する。見つからない場合はnilを返す。
	FindByClientID(ctx context.Context, clientID string) (*model.Client, error)
}

// GrantRepository は認可コードの永続化インターフェース。
type GrantRepository interface {
	// Create は認可コードを作成し、採番されたIDを書き戻す。
	// クライアントまたはユーザーが存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, grant *model.Grant) error

	// FindByClientAndCode は(client_id, code)の完全一致で認可コードを取得する。
	// 有効期限切れの行も返す。見つからない場合はnilを返す。
	FindByClientAndCode(ctx context.Context, clientID, code string) (*model.Grant, error)

	// DeleteExpiredBefore はcutoffより前に期限切れとなった認可コードを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenRepository はアクセストークン/リフレッシュトークンの永続化インターフェース。
type TokenRepository interface {
	// Replace は同一(client_id, user_id)の既存トークンを削除してから新しいトークンを作成する。
	// 削除と作成は同一トランザクションで行い、組ごとに高々1行となることを保証する。
	// 採番されたIDを書き戻す。
	Replace(ctx context.Context, token *model.Token) error

	// FindByAccessToken はアクセストークン値でトークンを取得する。見つからない場合はnilを返す。
	FindByAccessToken(ctx context.Context, accessToken string) (*model.Token, error)

	// FindByRefreshToken はリフレッシュトークン値でトークンを取得する。見つからない場合はnilを返す。
	FindByRefreshToken(ctx context.Context, refreshToken string) (*model.Token, error)

	// DeleteExpiredBefore はcutoffより前に期限切れとなったトークンを削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
