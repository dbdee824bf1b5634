package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// 制約名。migrationsの定義（外部キーはPostgreSQLの自動命名）と一致させる。
const (
	ConstraintEmailUnique        = "user_emails_email_key"
	ConstraintClientPK           = "clients_pkey"
	ConstraintClientSecretUnique = "clients_client_secret_key"
	ConstraintClientUserFK       = "clients_user_id_fkey"
	ConstraintGrantClientFK      = "grants_client_id_fkey"
	ConstraintGrantUserFK        = "grants_user_id_fkey"
	ConstraintTokenClientFK      = "tokens_client_id_fkey"
	ConstraintTokenUserFK        = "tokens_user_id_fkey"
	ConstraintAccessTokenUnique  = "tokens_access_token_key"
	ConstraintRefreshTokenUnique = "tokens_refresh_token_key"
)

// ConstraintError は整合性制約違反を表す。
// KindはErrDuplicateまたはErrForeignKeyで、errors.Isで判定できる。
type ConstraintError struct {
	Kind       error
	Constraint string
}

func (e *ConstraintError) Error() string {
	return e.Kind.Error() + ": " + e.Constraint
}

func (e *ConstraintError) Unwrap() error {
	return e.Kind
}

// ViolatedConstraint はerrに含まれる制約違反の制約名を返す。制約違反でない場合は空文字列。
func ViolatedConstraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// translateError はlib/pqの整合性制約違反をConstraintErrorに変換する。
// それ以外のエラーはそのまま返す。
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return &ConstraintError{Kind: ErrDuplicate, Constraint: pqErr.Constraint}
	case pqForeignKeyViolation:
		return &ConstraintError{Kind: ErrForeignKey, Constraint: pqErr.Constraint}
	default:
		return err
	}
}
