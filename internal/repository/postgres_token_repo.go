package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/accountd/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したトークンリポジトリ。
// tokensテーブルは(client_id, user_id)に一意制約を持つ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Replace は同一(client_id, user_id)の既存トークンを削除してから新しいトークンを作成する。
//
// DELETEとINSERTの間に並行トランザクションが同じ組でコミットした場合でも、
// ON CONFLICTで上書きするため行は1つに保たれる。
// refresh_tokenが空の場合はNULLとして保存する。
func (r *PostgresTokenRepo) Replace(ctx context.Context, token *model.Token) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 既存トークンを削除
	_, err = tx.ExecContext(ctx,
		`DELETE FROM tokens WHERE client_id = $1 AND user_id = $2`,
		token.ClientID, token.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete previous tokens: %w", err)
	}

	// 2. 新しいトークンを作成
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO tokens (client_id, user_id, token_type, access_token, refresh_token, expires, scopes)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		 ON CONFLICT (client_id, user_id) DO UPDATE SET
		     token_type    = EXCLUDED.token_type,
		     access_token  = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     expires       = EXCLUDED.expires,
		     scopes        = EXCLUDED.scopes
		 RETURNING id`,
		token.ClientID, token.UserID, token.TokenType, token.AccessToken, token.RefreshToken,
		token.Expires, model.JoinList(token.Scopes),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	token.ID = id
	return nil
}

// FindByAccessToken はアクセストークン値でトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresTokenRepo) FindByAccessToken(ctx context.Context, accessToken string) (*model.Token, error) {
	return r.findOne(ctx, `WHERE access_token = $1`, accessToken)
}

// FindByRefreshToken はリフレッシュトークン値でトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresTokenRepo) FindByRefreshToken(ctx context.Context, refreshToken string) (*model.Token, error) {
	return r.findOne(ctx, `WHERE refresh_token = $1`, refreshToken)
}

// DeleteExpiredBefore はcutoffより前に期限切れとなったトークンを削除する。
func (r *PostgresTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *PostgresTokenRepo) findOne(ctx context.Context, where string, arg string) (*model.Token, error) {
	token := &model.Token{}
	var scopes string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, user_id, token_type, access_token, COALESCE(refresh_token, ''), expires, scopes
		 FROM tokens `+where,
		arg,
	).Scan(&token.ID, &token.ClientID, &token.UserID, &token.TokenType,
		&token.AccessToken, &token.RefreshToken, &token.Expires, &scopes)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	token.Expires = token.Expires.UTC()
	token.Scopes = model.SplitList(scopes)
	return token, nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
