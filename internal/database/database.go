package database

import (
	"fmt"

	"github.com/ksred/klear-commissions/internal/config"
	"github.com/ksred/klear-commissions/internal/database/migrations"
	"github.com/ksred/klear-commissions/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the configured gorm connection and migrates the schema
func NewDatabase(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if cfg.LogSQL {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One connection keeps in-memory databases alive and serializes sqlite writers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migrations in order
func Migrate(db *gorm.DB) error {
	if err := migrations.AddDealsAndPayments(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddPaymentSplits(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	if err := db.AutoMigrate(
		&types.Broker{},
		&types.IdempotencyRecord{},
	); err != nil {
		return err
	}

	return nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		return sqlite.Open(cfg.DSN), nil
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
