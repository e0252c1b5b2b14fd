package db

import (
	"context"
	"fmt"
	"io/fs"

	"ekomarket_backend/platform/config"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies every pending goose migration found in migrations.
// The filesystem is normally the embedded ekomarket_backend/migrations FS.
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig, migrations fs.FS) error {
	provider, closeDB, err := newProvider(cfg, migrations)
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports each known migration and whether it is applied.
func MigrationStatus(ctx context.Context, cfg config.DatabaseConfig, migrations fs.FS) ([]*goose.MigrationStatus, error) {
	provider, closeDB, err := newProvider(cfg, migrations)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	status, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	return status, nil
}

// RollbackOne reverts the most recently applied migration.
func RollbackOne(ctx context.Context, cfg config.DatabaseConfig, migrations fs.FS) error {
	provider, closeDB, err := newProvider(cfg, migrations)
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

func newProvider(cfg config.DatabaseConfig, migrations fs.FS) (*goose.Provider, func(), error) {
	connConfig, err := pgxConnConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, nil, err
	}

	sqlDB := stdlib.OpenDB(*connConfig)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, func() { _ = sqlDB.Close() }, nil
}
