package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the HTTP API listen port.
	WebPort int
	// GRPCPort is the gRPC health service listen port.
	GRPCPort int

	// DBHost is the Postgres host. Empty disables persistence.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort, err = getEnvAsIntOrDefault("WEB_PORT", 8080)
	if err != nil {
		return err
	}

	GRPCPort, err = getEnvAsIntOrDefault("GRPC_PORT", 9090)
	if err != nil {
		return err
	}

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBUser = getEnvOrDefault("DB_USER", "postgres")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "yieldhook")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Int("WebPort", WebPort).
		Int("GRPCPort", GRPCPort).
		Str("DBHost", DBHost).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// PersistenceEnabled reports whether a Postgres host was configured.
func PersistenceEnabled() bool {
	return DBHost != ""
}
