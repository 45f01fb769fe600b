// Package database opens the relational store and applies its schema.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open connects to the configured database
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return db, nil
}

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; sqlite, used for local runs, is auto-migrated from the models.
func Migrate(ctx context.Context, db *gorm.DB, cfg *config.DatabaseConfig) error {
	if !cfg.AutoMigrate {
		return nil
	}
	if strings.EqualFold(cfg.Driver, "sqlite") {
		return db.WithContext(ctx).AutoMigrate(
			&types.Conflict{}, &types.ProfileDocument{}, &types.CalendarInsight{}, &types.SegmentText{},
		)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	var m *migrate.Migrate
	if cfg.MigrationsDir != "" {
		// an on-disk directory overrides the embedded set
		m, err = migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsDir, "postgres", driver)
	} else {
		source, serr := iofs.New(migrationFS, "migrations")
		if serr != nil {
			return fmt.Errorf("failed to open migrations: %w", serr)
		}
		m, err = migrate.NewWithInstance("iofs", source, "postgres", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	logger.Infof(ctx, "[Database] Schema at version %d (dirty=%v)", version, dirty)
	return nil
}
