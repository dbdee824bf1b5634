// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
// スキーマはアカウント（users, user_emails, user_auths）と
// OAuth2資格情報（clients, grants, tokens）から成る。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion はこのバイナリが前提とするマイグレーションの版数。
const SchemaVersion uint = 2

// ErrDirtySchema は前回のマイグレーションが途中で失敗していることを示す。
var ErrDirtySchema = errors.New("database schema is dirty")

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後の版数を返す。
// すでに最新の場合はエラーなしで返る。
// dirty状態のデータベースには手を付けずErrDirtySchemaを返す。
func RunMigrations(databaseURL string) (uint, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	version, dirty, err := currentVersion(m)
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("%w (version %d); manual intervention required", ErrDirtySchema, version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return version, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err = currentVersion(m)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// currentVersion は適用済みの版数を返す。未適用の場合は0を返す。
func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
