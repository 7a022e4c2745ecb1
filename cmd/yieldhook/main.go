package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/elys-network/yieldhook/internal/bank"
	"github.com/elys-network/yieldhook/internal/config"
	"github.com/elys-network/yieldhook/internal/events"
	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/lending"
	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/metrics"
	"github.com/elys-network/yieldhook/internal/pool"
	"github.com/elys-network/yieldhook/internal/router"
	"github.com/elys-network/yieldhook/internal/state"
	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// main is the entry point for the yield router service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Yield router starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistence := config.PersistenceEnabled()
	if persistence {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	} else {
		log.Warn().Msg("DB_HOST not set, running without persistence")
	}

	// --- 2. Ledger, lending market and event journal ---
	keeper := bank.NewKeeper()
	market, err := lending.NewMarket(keeper, config.LendingAddress, config.RewardDenom)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create lending market")
	}
	for asset, receipt := range config.DefaultReceiptDenoms {
		if err := market.ListReserve(asset, receipt); err != nil {
			log.Fatal().Err(err).Str("asset", asset).Msg("Failed to list lending reserve")
		}
	}

	routerMetrics := metrics.New()
	journal := events.NewJournal(events.NewLogSink(), routerMetrics)
	if persistence {
		journal.AddSink(state.NewEventSink())
		last, err := state.LastEventSequence(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read last event sequence")
		}
		journal.SetSequence(last)
	}

	// --- 3. Router, host and pool manager ---
	yieldRouter, err := router.New(router.Config{
		Address:          config.RouterAddress,
		Authority:        config.RouterAuthority,
		LendingAddress:   config.LendingAddress,
		Ledger:           keeper,
		Lending:          market.Session(config.RouterAddress),
		Emitter:          journal,
		ReserveRatioBps:  config.ReserveRatioBps,
		MinDepositAmount: config.MinDepositAmount,
		ReferralCode:     config.ReferralCode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create yield router")
	}

	txHost := host.New(keeper, market, yieldRouter, journal)
	pools, err := pool.NewManager(pool.Config{
		Ledger:      keeper,
		Executor:    txHost,
		Hooks:       yieldRouter,
		HookAddress: config.RouterAddress,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool manager")
	}
	txHost.Register(pools)
	yieldRouter.SetQuoter(pools)

	if err := restoreOrBootstrap(ctx, persistence, market, yieldRouter, txHost); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize router registry")
	}
	routerMetrics.SetReserveRatio(yieldRouter.ReserveRatio())
	log.Info().Int("assets", len(yieldRouter.Registrations())).Uint64("reserveRatioBps", yieldRouter.ReserveRatio()).Msg("Router registry ready")

	// --- 4. Start Web and gRPC health servers ---
	webPort := strconv.Itoa(config.WebPort)
	webServer := web.NewWebServer(webPort, web.Deps{
		Router:      yieldRouter,
		Host:        txHost,
		Pools:       pools,
		Journal:     journal,
		Ledger:      keeper,
		Market:      market,
		Metrics:     routerMetrics,
		AdminToken:  config.AdminToken,
		Persistence: persistence,
		Bech32:      config.Bech32Prefix,
	})
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting router API")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	healthServer := web.NewHealthServer(persistence)
	go func() {
		if err := healthServer.Serve(strconv.Itoa(config.GRPCPort)); err != nil {
			log.Error().Err(err).Msg("gRPC health server failed")
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				healthServer.Refresh()
			}
		}
	}()

	// --- 5. Harvest loop ---
	var next router.CycleCounter
	if persistence {
		next = state.NextHarvestCycle
	}

	// Blocks until a shutdown signal cancels ctx
	yieldRouter.RunHarvestLoop(ctx, txHost, config.HarvestInterval, next)

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	healthServer.Stop()
	log.Info().Msg("Yield router stopped")
}

// restoreOrBootstrap loads the persisted registry, or registers the default assets on a fresh deployment.
func restoreOrBootstrap(ctx context.Context, persistence bool, market *lending.Market, r *router.Router, txHost *host.Host) error {
	if persistence {
		regs, params, found, err := state.LoadRegistry(ctx)
		if err != nil {
			return err
		}
		if found {
			for _, reg := range regs {
				if _, listed := market.Reserve(reg.Asset); listed {
					continue
				}
				if err := market.ListReserve(reg.Asset, reg.ReceiptAsset); err != nil {
					return err
				}
			}
			log.Info().Int("assets", len(regs)).Msg("Restoring persisted router registry")
			return r.Restore(regs, params)
		}
	}

	return txHost.Atomic(ctx, "bootstrap registry", func(ctx context.Context) error {
		if persistence {
			// Stored up front so LoadRegistry finds it on the next start.
			if err := state.SaveRouterParameters(ctx, types.RouterParameters{ReserveRatioBps: r.ReserveRatio()}); err != nil {
				return err
			}
		}
		for asset, receipt := range config.DefaultReceiptDenoms {
			if err := r.RegisterAsset(ctx, r.Authority(), asset, receipt); err != nil {
				return err
			}
		}
		return nil
	})
}
