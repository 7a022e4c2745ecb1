package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldhook/internal/bank"
	"github.com/elys-network/yieldhook/internal/events"
	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/lending"
	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/metrics"
	"github.com/elys-network/yieldhook/internal/pool"
	"github.com/elys-network/yieldhook/internal/router"
	"github.com/elys-network/yieldhook/internal/state"
	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

const displayPrecision = 6

// Deps are the components the API reads from and drives.
type Deps struct {
	Router  *router.Router
	Host    *host.Host
	Pools   *pool.Manager
	Journal *events.Journal
	Ledger  *bank.Keeper
	Market  *lending.Market
	Metrics *metrics.Metrics // optional

	AdminToken  string
	Persistence bool // query Postgres for event history
	Bech32      string
}

// WebServer exposes the router over HTTP
type WebServer struct {
	router    *mux.Router
	port      string
	deps      Deps
	startedAt time.Time
	logger    zerolog.Logger
	server    *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, deps Deps) *WebServer {
	if port == "" {
		port = "8080"
	}
	if deps.Bech32 == "" {
		deps.Bech32 = "elys"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		deps:      deps,
		startedAt: time.Now(),
		logger:    logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/assets", ws.handleGetAssets).Methods("GET")
	api.HandleFunc("/assets/{asset}/withdrawable", ws.handleGetWithdrawable).Methods("GET")
	api.HandleFunc("/assets/{asset}/summary", ws.handleGetAssetSummary).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/events/{sequence}", ws.handleGetEvent).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{id}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances", ws.handleGetBalances).Methods("GET")

	// Admin endpoints act as the router authority
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(ws.adminMiddleware)
	admin.HandleFunc("/assets", ws.handleRegisterAsset).Methods("POST")
	admin.HandleFunc("/assets/{asset}", ws.handleUnregisterAsset).Methods("DELETE")
	admin.HandleFunc("/assets/{asset}/stake", ws.handleStake).Methods("POST")
	admin.HandleFunc("/assets/{asset}/harvest", ws.handleHarvest).Methods("POST")
	admin.HandleFunc("/reserve-ratio", ws.handleSetReserveRatio).Methods("PUT")
	admin.HandleFunc("/harvest", ws.handleHarvestAll).Methods("POST")
	admin.HandleFunc("/pools", ws.handleInitializePool).Methods("POST")
	admin.HandleFunc("/pools/{id}/liquidity", ws.handleAddLiquidity).Methods("POST")
	admin.HandleFunc("/pools/{id}/liquidity", ws.handleRemoveLiquidity).Methods("DELETE")
	admin.HandleFunc("/pools/{id}/swap", ws.handleSwap).Methods("POST")
	admin.HandleFunc("/faucet", ws.handleFaucet).Methods("POST")
	admin.HandleFunc("/lending/interest", ws.handleAccrueInterest).Methods("POST")
	admin.HandleFunc("/lending/rewards", ws.handleAccrueRewards).Methods("POST")

	if ws.deps.Metrics != nil {
		ws.router.Handle("/metrics", ws.deps.Metrics.Handler()).Methods("GET")
		ws.router.Use(ws.deps.Metrics.Middleware)
	}

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return ws.server.ListenAndServe()
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Get runtime memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := true
	var harvestCycle interface{}
	if ws.deps.Persistence {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		} else if cycle, err := state.HarvestCycle(r.Context()); err != nil {
			ws.logger.Warn().Err(err).Msg("Failed to read harvest cycle")
		} else {
			harvestCycle = cycle
		}
	}

	var lastEvent interface{}
	if recent := ws.deps.Journal.Recent(1); len(recent) > 0 {
		lastEvent = recent[0]
	}

	// Determine overall status
	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
			"uptime_seconds":     int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yieldhook-router",
			"version": "1.0.0",
		},
		"router_status": map[string]interface{}{
			"persistence":       ws.deps.Persistence,
			"database_healthy":  dbHealthy,
			"supported_assets":  len(ws.supportedAssets()),
			"reserve_ratio_bps": ws.deps.Router.ReserveRatio(),
			"last_event":        lastEvent,
			"harvest_cycle":     harvestCycle,
		},
	}

	// Set appropriate HTTP status code
	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetConfig returns the router's identity and parameters
func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":           ws.bech32(ws.deps.Router.Address()),
		"authority":         ws.bech32(ws.deps.Router.Authority()),
		"reserve_ratio_bps": ws.deps.Router.ReserveRatio(),
		"timestamp":         time.Now().UTC(),
	})
}

type assetView struct {
	types.AssetRegistration
	Liquid         sdkmath.Int `json:"liquid"`
	Staked         sdkmath.Int `json:"staked"`
	ReserveTarget  sdkmath.Int `json:"reserve_target"`
	Withdrawable   sdkmath.Int `json:"withdrawable"`
	WithdrawableUI float64     `json:"withdrawable_display"`
}

// handleGetAssets lists every registry entry with current balances
func (ws *WebServer) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	regs := ws.deps.Router.Registrations()
	views := make([]assetView, 0, len(regs))
	err := ws.deps.Host.View(r.Context(), func(ctx context.Context) error {
		for _, reg := range regs {
			view, err := ws.assetView(ctx, reg)
			if err != nil {
				return err
			}
			views = append(views, view)
		}
		return nil
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"assets": views,
		"count":  len(views),
	})
}

// handleGetWithdrawable returns the withdrawable approximation for one asset
func (ws *WebServer) handleGetWithdrawable(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	var amount sdkmath.Int
	_ = ws.deps.Host.View(r.Context(), func(ctx context.Context) error {
		amount = ws.deps.Router.CalculateWithdrawableAmount(ctx, asset)
		return nil
	})

	display, err := utils.SDKIntToFloat64(amount, displayPrecision)
	if err != nil {
		ws.logger.Warn().Err(err).Str("asset", asset).Msg("Failed to convert withdrawable amount for display")
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"asset":                asset,
		"withdrawable":         amount,
		"withdrawable_display": display,
		"supported":            ws.deps.Router.IsSupported(asset),
	})
}

// handleGetAssetSummary returns aggregated event history for one asset
func (ws *WebServer) handleGetAssetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.deps.Persistence {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Event history requires persistence")
		return
	}
	asset := mux.Vars(r)["asset"]
	summary, err := state.GetAssetFlowSummary(r.Context(), asset)
	if err != nil {
		ws.logger.Error().Err(err).Str("asset", asset).Msg("Failed to get asset summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve asset summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetEvents returns recent events, from Postgres when persistence is enabled
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}
	var filter []types.EventType
	if t := r.URL.Query().Get("type"); t != "" {
		for _, part := range strings.Split(t, ",") {
			filter = append(filter, types.EventType(strings.ToUpper(strings.TrimSpace(part))))
		}
	}

	var evs []types.RouterEvent
	if ws.deps.Persistence {
		var err error
		evs, err = state.GetRecentEvents(r.Context(), limit, filter...)
		if err != nil {
			ws.logger.Error().Err(err).Msg("Failed to get recent events")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
			return
		}
	} else {
		evs = filterEvents(ws.deps.Journal.Recent(0), filter, limit)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": evs,
		"count":  len(evs),
		"limit":  limit,
	})
}

// handleGetEvent returns a stored event by sequence
func (ws *WebServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["sequence"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid event sequence")
		return
	}

	if ws.deps.Persistence {
		ev, err := state.GetEventBySequence(r.Context(), seq)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusNotFound, "Event not found")
			return
		}
		ws.writeJSONResponse(w, http.StatusOK, ev)
		return
	}

	for _, ev := range ws.deps.Journal.Recent(0) {
		if ev.Sequence == seq {
			ws.writeJSONResponse(w, http.StatusOK, ev)
			return
		}
	}
	ws.writeErrorResponse(w, http.StatusNotFound, "Event not found")
}

// handleGetPools lists pool snapshots
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.deps.Pools.Pools()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}

// handleGetPool returns a single pool snapshot
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	p, err := ws.deps.Pools.Pool(types.PoolID(mux.Vars(r)["id"]))
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, p)
}

// handleGetBalances returns every ledger balance of an account
func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, err := ws.parseAddress(mux.Vars(r)["address"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	var balances sdk.Coins
	_ = ws.deps.Host.View(r.Context(), func(context.Context) error {
		balances = ws.deps.Ledger.Balances(addr)
		return nil
	})
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  ws.bech32(addr),
		"balances": balances,
	})
}

type registerRequest struct {
	Asset        string `json:"asset"`
	ReceiptAsset string `json:"receipt_asset"`
}

func (ws *WebServer) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !ws.decode(w, r, &req) {
		return
	}
	err := ws.deps.Host.Atomic(r.Context(), "register asset", func(ctx context.Context) error {
		return ws.deps.Router.RegisterAsset(ctx, ws.deps.Router.Authority(), req.Asset, req.ReceiptAsset)
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	reg, _ := ws.deps.Router.Registration(req.Asset)
	ws.writeJSONResponse(w, http.StatusCreated, reg)
}

func (ws *WebServer) handleUnregisterAsset(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	err := ws.deps.Host.Atomic(r.Context(), "unregister asset", func(ctx context.Context) error {
		return ws.deps.Router.UnregisterAsset(ctx, ws.deps.Router.Authority(), asset)
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	reg, _ := ws.deps.Router.Registration(asset)
	ws.writeJSONResponse(w, http.StatusOK, reg)
}

type reserveRatioRequest struct {
	RatioBps *uint64 `json:"ratio_bps"`
}

func (ws *WebServer) handleSetReserveRatio(w http.ResponseWriter, r *http.Request) {
	var req reserveRatioRequest
	if !ws.decode(w, r, &req) {
		return
	}
	if req.RatioBps == nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "ratio_bps is required")
		return
	}
	err := ws.deps.Host.Atomic(r.Context(), "set reserve ratio", func(ctx context.Context) error {
		return ws.deps.Router.SetReserveRatio(ctx, ws.deps.Router.Authority(), *req.RatioBps)
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"reserve_ratio_bps": ws.deps.Router.ReserveRatio()})
}

func (ws *WebServer) handleStake(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	var deposited sdkmath.Int
	err := ws.deps.Host.Atomic(r.Context(), "stake available", func(ctx context.Context) error {
		var err error
		deposited, err = ws.deps.Router.StakeAvailable(ctx, asset)
		return err
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"asset": asset, "deposited": deposited})
}

func (ws *WebServer) handleHarvest(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	var res router.HarvestResult
	err := ws.deps.Host.Atomic(r.Context(), "harvest "+asset, func(ctx context.Context) error {
		var err error
		res, err = ws.deps.Router.HarvestYield(ctx, asset)
		return err
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, res)
}

func (ws *WebServer) handleHarvestAll(w http.ResponseWriter, r *http.Request) {
	results, errs := ws.deps.Router.HarvestAll(r.Context(), ws.deps.Host)
	failures := make([]string, 0, len(errs))
	for _, err := range errs {
		failures = append(failures, err.Error())
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"results":  results,
		"failures": failures,
	})
}

type initializePoolRequest struct {
	CurrencyA   string  `json:"currency_a"`
	CurrencyB   string  `json:"currency_b"`
	Fee         *uint32 `json:"fee"`
	TickSpacing int32   `json:"tick_spacing"`
}

func (ws *WebServer) handleInitializePool(w http.ResponseWriter, r *http.Request) {
	var req initializePoolRequest
	if !ws.decode(w, r, &req) {
		return
	}
	fee := uint32(3_000)
	if req.Fee != nil {
		fee = *req.Fee
	}
	key, err := types.NewPoolKey(req.CurrencyA, req.CurrencyB, fee, req.TickSpacing, ws.deps.Router.Address())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	id, err := ws.deps.Pools.Initialize(r.Context(), ws.deps.Router.Authority(), key)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	p, _ := ws.deps.Pools.Pool(id)
	ws.writeJSONResponse(w, http.StatusCreated, p)
}

type liquidityRequest struct {
	Sender  string `json:"sender"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
	Shares  string `json:"shares"`
}

func (ws *WebServer) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	key, sender, req, ok := ws.poolRequest(w, r)
	if !ok {
		return
	}
	amount0, err0 := utils.ParseAmount(req.Amount0)
	amount1, err1 := utils.ParseAmount(req.Amount1)
	if err := errors.Join(err0, err1); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount0 and amount1 must be non-negative integers")
		return
	}
	shares, delta, err := ws.deps.Pools.AddLiquidity(r.Context(), sender, key, amount0, amount1)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"shares": shares, "delta": delta})
}

func (ws *WebServer) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	key, sender, req, ok := ws.poolRequest(w, r)
	if !ok {
		return
	}
	shares, err := utils.ParseAmount(req.Shares)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "shares must be a non-negative integer")
		return
	}
	delta, err := ws.deps.Pools.RemoveLiquidity(r.Context(), sender, key, shares)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"delta": delta})
}

type swapRequest struct {
	Sender          string `json:"sender"`
	ZeroForOne      bool   `json:"zero_for_one"`
	AmountSpecified string `json:"amount_specified"`
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	p, err := ws.deps.Pools.Pool(types.PoolID(mux.Vars(r)["id"]))
	if err != nil {
		ws.writeError(w, err)
		return
	}
	var req swapRequest
	if !ws.decode(w, r, &req) {
		return
	}
	sender, err := ws.parseAddress(req.Sender)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid sender address")
		return
	}
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(req.AmountSpecified))
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount_specified must be an integer")
		return
	}

	delta, err := ws.deps.Pools.Swap(r.Context(), sender, p.Key, types.SwapParams{ZeroForOne: req.ZeroForOne, AmountSpecified: amount})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"delta": delta})
}

type faucetRequest struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
	Amount  string `json:"amount"`
}

// handleFaucet mints tokens on the in-memory ledger
func (ws *WebServer) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if !ws.decode(w, r, &req) {
		return
	}
	addr, err := ws.parseAddress(req.Address)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil || sdk.ValidateDenom(req.Denom) != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid denom or amount")
		return
	}
	var balance sdkmath.Int
	err = ws.deps.Host.Atomic(r.Context(), "faucet", func(context.Context) error {
		if err := ws.deps.Ledger.Mint(addr, req.Denom, amount); err != nil {
			return err
		}
		balance = ws.deps.Ledger.Balance(addr, req.Denom)
		return nil
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": ws.bech32(addr),
		"balance": balance,
	})
}

type interestRequest struct {
	Asset string `json:"asset"`
	Bps   uint64 `json:"bps"`
}

// handleAccrueInterest grows every receipt balance of an asset on the in-memory market
func (ws *WebServer) handleAccrueInterest(w http.ResponseWriter, r *http.Request) {
	var req interestRequest
	if !ws.decode(w, r, &req) {
		return
	}
	var interest sdkmath.Int
	err := ws.deps.Host.Atomic(r.Context(), "accrue interest", func(context.Context) error {
		var err error
		interest, err = ws.deps.Market.AccrueInterest(req.Asset, req.Bps)
		return err
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"asset": req.Asset, "interest": interest})
}

type rewardsRequest struct {
	ReceiptAsset string `json:"receipt_asset"`
	Amount       string `json:"amount"`
}

// handleAccrueRewards credits claimable rewards to the router on the in-memory market
func (ws *WebServer) handleAccrueRewards(w http.ResponseWriter, r *http.Request) {
	var req rewardsRequest
	if !ws.decode(w, r, &req) {
		return
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be a non-negative integer")
		return
	}
	var accrued sdkmath.Int
	err = ws.deps.Host.Atomic(r.Context(), "accrue rewards", func(context.Context) error {
		if err := ws.deps.Market.AccrueRewards(req.ReceiptAsset, ws.deps.Router.Address(), amount); err != nil {
			return err
		}
		accrued = ws.deps.Market.AccruedRewards(ws.deps.Router.Address(), req.ReceiptAsset)
		return nil
	})
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipt_asset": req.ReceiptAsset,
		"accrued":       accrued,
	})
}

func (ws *WebServer) poolRequest(w http.ResponseWriter, r *http.Request) (types.PoolKey, sdk.AccAddress, liquidityRequest, bool) {
	var req liquidityRequest
	p, err := ws.deps.Pools.Pool(types.PoolID(mux.Vars(r)["id"]))
	if err != nil {
		ws.writeError(w, err)
		return types.PoolKey{}, nil, req, false
	}
	if !ws.decode(w, r, &req) {
		return types.PoolKey{}, nil, req, false
	}
	sender, err := ws.parseAddress(req.Sender)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid sender address")
		return types.PoolKey{}, nil, req, false
	}
	return p.Key, sender, req, true
}

// assetView reads ledger balances; callers run it inside Host.View.
func (ws *WebServer) assetView(ctx context.Context, reg types.AssetRegistration) (assetView, error) {
	liquid := ws.deps.Ledger.Balance(ws.deps.Router.Address(), reg.Asset)
	staked := ws.deps.Ledger.Balance(ws.deps.Router.Address(), reg.ReceiptAsset)
	target, err := ws.deps.Router.ReserveTarget(reg.Asset)
	if err != nil {
		return assetView{}, err
	}
	withdrawable := ws.deps.Router.CalculateWithdrawableAmount(ctx, reg.Asset)
	display, _ := utils.SDKIntToFloat64(withdrawable, displayPrecision)
	return assetView{
		AssetRegistration: reg,
		Liquid:            liquid,
		Staked:            staked,
		ReserveTarget:     target,
		Withdrawable:      withdrawable,
		WithdrawableUI:    display,
	}, nil
}

func (ws *WebServer) supportedAssets() []string {
	var out []string
	for _, reg := range ws.deps.Router.Registrations() {
		if reg.Supported {
			out = append(out, reg.Asset)
		}
	}
	return out
}

func filterEvents(evs []types.RouterEvent, filter []types.EventType, limit int) []types.RouterEvent {
	out := make([]types.RouterEvent, 0, limit)
	for _, ev := range evs {
		if len(out) == limit {
			break
		}
		if len(filter) > 0 && !containsType(filter, ev.Type) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func containsType(list []types.EventType, t types.EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func (ws *WebServer) parseAddress(s string) (sdk.AccAddress, error) {
	bz, err := sdk.GetFromBech32(strings.TrimSpace(s), ws.deps.Bech32)
	if err != nil {
		return nil, err
	}
	return sdk.AccAddress(bz), nil
}

func (ws *WebServer) bech32(addr sdk.AccAddress) string {
	s, err := sdk.Bech32ifyAddressBytes(ws.deps.Bech32, addr)
	if err != nil {
		return addr.String()
	}
	return s
}

func (ws *WebServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, router.ErrUnsupportedAsset),
		errors.Is(err, pool.ErrPoolNotFound),
		errors.Is(err, lending.ErrReserveNotListed):
		return http.StatusNotFound
	case errors.Is(err, router.ErrInvalidConfiguration),
		errors.Is(err, router.ErrInvalidDenom),
		errors.Is(err, types.ErrInvalidPoolKey),
		errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrHooksMismatch),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, utils.ErrBpsOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrInsufficientExternalLiquidity),
		errors.Is(err, router.ErrReentrantCall),
		errors.Is(err, pool.ErrInsufficientPoolLiquidity),
		errors.Is(err, pool.ErrInsufficientShares),
		errors.Is(err, pool.ErrPoolExists),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and writes it
func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		ws.logger.Error().Err(err).Msg("Request failed")
	}
	ws.writeErrorResponse(w, status, err.Error())
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// adminMiddleware requires the bearer admin token
func (ws *WebServer) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || ws.deps.AdminToken == "" || token != ws.deps.AdminToken {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
