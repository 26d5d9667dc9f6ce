package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vending-fleet-backend/config"
	"vending-fleet-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableTimescale {
		log.Println("TimescaleDB is enabled, applying TimescaleDB-specific DDL...")
		if err := applyTimescaleDDL(db); err != nil {
			log.Printf("Warning: failed to apply some TimescaleDB DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs the schema migrations for every model. Shared with tests
// that run against in-memory SQLite.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Machine{},
		&model.Heartbeat{},
		&model.TelemetrySample{},
		&model.Alarm{},
		&model.CleaningLog{},
		&model.MachineCommand{},
		&model.PushSubscription{},
	)
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",

		// Telemetry is append-only and queried latest-first per machine.
		"SELECT create_hypertable('telemetry_samples', 'recorded_at', if_not_exists => TRUE);",
		"CREATE INDEX IF NOT EXISTS idx_telemetry_machine_recorded_desc ON telemetry_samples (machine_id, recorded_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
