package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationURL rewrites a postgres DSN into the pgx5 scheme understood by migrate.
func MigrationURL(dsn string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("platform/db: unsupported dsn scheme for migrations")
}

// Migrate applies every embedded migration. It reports whether anything changed.
func Migrate(dsn string) (bool, error) {
	url, err := MigrationURL(dsn)
	if err != nil {
		return false, err
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return false, fmt.Errorf("platform/db: init migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("platform/db: apply migrations: %w", err)
	}
	return true, nil
}
