package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/accountd/internal/model"
)

// PostgresClientRepo はPostgreSQLを使用したOAuth2クライアントリポジトリ。
// redirect_urisとdefault_scopesは空白区切りのTEXT列として保存する。
type PostgresClientRepo struct {
	db *sql.DB
}

// NewPostgresClientRepo はPostgresClientRepoを生成する。
func NewPostgresClientRepo(db *sql.DB) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

// Create はクライアントを作成する。
func (r *PostgresClientRepo) Create(ctx context.Context, client *model.Client) error {
	var userID sql.NullInt64
	if client.UserID != nil {
		userID = sql.NullInt64{Int64: *client.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (client_id, client_secret, name, description, user_id,
		                      is_confidential, redirect_uris, default_scopes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		client.ClientID, client.ClientSecret, client.Name, client.Description, userID,
		client.IsConfidential, model.JoinList(client.RedirectURIs), model.JoinList(client.DefaultScopes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", translateError(err))
	}
	return nil
}

// FindByClientID はclient_idの完全一致でクライアントを取得する。見つからない場合はnilを返す。
func (r *PostgresClientRepo) FindByClientID(ctx context.Context, clientID string) (*model.Client, error) {
	client := &model.Client{}
	var (
		userID        sql.NullInt64
		redirectURIs  string
		defaultScopes string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT client_id, client_secret, name, description, user_id,
		        is_confidential, redirect_uris, default_scopes
		 FROM clients
		 WHERE client_id = $1`,
		clientID,
	).Scan(&client.ClientID, &client.ClientSecret, &client.Name, &client.Description, &userID,
		&client.IsConfidential, &redirectURIs, &defaultScopes)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}

	if userID.Valid {
		id := userID.Int64
		client.UserID = &id
	}
	client.RedirectURIs = model.SplitList(redirectURIs)
	client.DefaultScopes = model.SplitList(defaultScopes)
	return client, nil
}

// compile-time interface check
var _ ClientRepository = (*PostgresClientRepo)(nil)
