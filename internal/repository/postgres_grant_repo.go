package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/accountd/internal/model"
)

// PostgresGrantRepo はPostgreSQLを使用した認可コードリポジトリ。
type PostgresGrantRepo struct {
	db *sql.DB
}

// NewPostgresGrantRepo はPostgresGrantRepoを生成する。
func NewPostgresGrantRepo(db *sql.DB) *PostgresGrantRepo {
	return &PostgresGrantRepo{db: db}
}

// Create は認可コードを作成し、採番されたIDを書き戻す。
func (r *PostgresGrantRepo) Create(ctx context.Context, grant *model.Grant) error {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO grants (user_id, client_id, code, redirect_uri, expires, scopes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		grant.UserID, grant.ClientID, grant.Code, grant.RedirectURI, grant.Expires,
		model.JoinList(grant.Scopes),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", translateError(err))
	}

	grant.ID = id
	return nil
}

// FindByClientAndCode は(client_id, code)の完全一致で認可コードを取得する。
// 有効期限の判定は呼び出し元が行う。見つからない場合はnilを返す。
func (r *PostgresGrantRepo) FindByClientAndCode(ctx context.Context, clientID, code string) (*model.Grant, error) {
	grant := &model.Grant{}
	var scopes string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, client_id, code, COALESCE(redirect_uri, ''), expires, scopes
		 FROM grants
		 WHERE client_id = $1 AND code = $2
		 ORDER BY id DESC
		 LIMIT 1`,
		clientID, code,
	).Scan(&grant.ID, &grant.UserID, &grant.ClientID, &grant.Code, &grant.RedirectURI, &grant.Expires, &scopes)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}

	grant.Expires = grant.Expires.UTC()
	grant.Scopes = model.SplitList(scopes)
	return grant, nil
}

// DeleteExpiredBefore はcutoffより前に期限切れとなった認可コードを削除する。
func (r *PostgresGrantRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM grants WHERE expires < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ GrantRepository = (*PostgresGrantRepo)(nil)
