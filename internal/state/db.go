// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS router_events (
			event_id SERIAL PRIMARY KEY,
			sequence BIGINT NOT NULL UNIQUE,
			tx_id VARCHAR(64) NOT NULL DEFAULT '',
			event_type VARCHAR(50) NOT NULL,
			asset VARCHAR(128),
			receipt_asset VARCHAR(128),
			amount NUMERIC(78, 0),
			claimed NUMERIC(78, 0),
			old_ratio_bps INTEGER,
			new_ratio_bps INTEGER,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			payload JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_router_events_timestamp ON router_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_router_events_type ON router_events(event_type);
		CREATE INDEX IF NOT EXISTS idx_router_events_asset ON router_events(asset);

		CREATE TABLE IF NOT EXISTS asset_registrations (
			asset VARCHAR(128) PRIMARY KEY,
			receipt_asset VARCHAR(128) NOT NULL,
			supported BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS router_config (
			id INTEGER PRIMARY KEY DEFAULT 1,
			reserve_ratio_bps INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1),
			CONSTRAINT reserve_ratio_range CHECK (reserve_ratio_bps BETWEEN 0 AND 10000)
		);

		CREATE TABLE IF NOT EXISTS harvest_cycle (
			id INTEGER PRIMARY KEY DEFAULT 1,
			last_cycle BIGINT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every router table. Used by the reset script and tests.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`
		DROP TABLE IF EXISTS router_events CASCADE;
		DROP TABLE IF EXISTS asset_registrations CASCADE;
		DROP TABLE IF EXISTS router_config CASCADE;
		DROP TABLE IF EXISTS harvest_cycle CASCADE;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop router tables: %w", err)
	}
	log.Warn().Msg("Router tables dropped")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
