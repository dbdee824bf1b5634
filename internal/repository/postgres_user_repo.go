package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/accountd/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, nickname, description, is_enabled FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Nickname, &user.Description, &user.IsEnabled)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindEmail はメールアドレスの完全一致でUserEmailを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindEmail(ctx context.Context, email string) (*model.UserEmail, error) {
	ue := &model.UserEmail{}
	var confirmedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, confirmed_at, is_primary
		 FROM user_emails
		 WHERE email = $1`,
		email,
	).Scan(&ue.ID, &ue.UserID, &ue.Email, &confirmedAt, &ue.IsPrimary)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user email: %w", err)
	}

	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		ue.ConfirmedAt = &t
	}
	return ue, nil
}

// FindAuthByUserID はユーザーのパスワード認証情報を取得する。見つからない場合はnilを返す。
// 複数行ある場合は最も古い行を返す。
func (r *PostgresUserRepo) FindAuthByUserID(ctx context.Context, userID int64) (*model.UserAuth, error) {
	auth := &model.UserAuth{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, password, reset_password_token
		 FROM user_auths
		 WHERE user_id = $1
		 ORDER BY id
		 LIMIT 1`,
		userID,
	).Scan(&auth.ID, &auth.UserID, &auth.Password, &auth.ResetPasswordToken)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user auth: %w", err)
	}

	return auth, nil
}

// CreateWithEmailAndAuth はユーザー・メールアドレス・認証情報を同一トランザクションで作成する。
// user_emails.emailの一意制約違反はErrDuplicateに変換され、トランザクションはロールバックされる。
func (r *PostgresUserRepo) CreateWithEmailAndAuth(ctx context.Context, user *model.User, email *model.UserEmail, auth *model.UserAuth) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	var userID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (nickname, description, is_enabled)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		user.Nickname, user.Description, user.IsEnabled,
	).Scan(&userID)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", translateError(err))
	}

	// メールアドレスを作成（一意制約はここで検出される）
	var emailID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_emails (user_id, email, confirmed_at, is_primary)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		userID, email.Email, email.ConfirmedAt, email.IsPrimary,
	).Scan(&emailID)
	if err != nil {
		return fmt.Errorf("failed to insert user email: %w", translateError(err))
	}

	// 認証情報を作成
	var authID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_auths (user_id, password, reset_password_token)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		userID, auth.Password, auth.ResetPasswordToken,
	).Scan(&authID)
	if err != nil {
		return fmt.Errorf("failed to insert user auth: %w", translateError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	user.ID = userID
	email.ID, email.UserID = emailID, userID
	auth.ID, auth.UserID = authID, userID
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
