package main

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	counterOnly := flag.Bool("counter-only", false, "only reset the harvest cycle counter, keep events and registry")
	flag.Parse()

	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		log.Fatal().Msg("DB_USER environment variable not set.")
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		log.Fatal().Msg("DB_NAME environment variable not set.")
	}
	dbSSLMode := os.Getenv("DB_SSLMODE")
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}
	dbPort := 5432
	if s := os.Getenv("DB_PORT"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil {
			log.Fatal().Err(err).Str("DB_PORT", s).Msg("DB_PORT is not a number")
		}
		dbPort = p
	}

	dbCfg := state.DBConfig{
		Host:     dbHost,
		Port:     dbPort,
		User:     dbUser,
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   dbName,
		SSLMode:  dbSSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if *counterOnly {
		if err := state.SetHarvestCycle(context.Background(), 0); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset harvest cycle")
		}
		log.Info().Msg("Harvest cycle reset to 0")
		return
	}

	log.Info().Msg("Connected to database. Dropping router tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete!")
}
