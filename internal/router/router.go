package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldhook/internal/lending"
	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

const (
	// DefaultReserveRatioBps keeps 20% of every supported asset liquid.
	DefaultReserveRatioBps uint64 = 2000
)

// Ledger is the token ledger holding the router's spendable balances.
type Ledger interface {
	Balance(addr sdk.AccAddress, denom string) sdkmath.Int
	Approve(owner, spender sdk.AccAddress, denom string, amount sdkmath.Int) error
}

// Emitter records router notifications.
type Emitter interface {
	Emit(ctx context.Context, event types.RouterEvent)
}

// Quoter estimates the output of an exact-input trade before it executes.
type Quoter interface {
	QuoteExactInput(ctx context.Context, key types.PoolKey, zeroForOne bool, amountIn sdkmath.Int) (sdkmath.Int, error)
}

// Config holds the dependencies and settings for creating a Router.
type Config struct {
	Address         sdk.AccAddress // the router's own account
	Authority       sdk.AccAddress // the only caller allowed to change configuration
	LendingAddress  sdk.AccAddress // spender granted the standing allowance
	Ledger          Ledger
	Lending         lending.Service
	Emitter         Emitter
	Quoter          Quoter // optional
	ReserveRatioBps uint64
	// MinDepositAmount suppresses deposits smaller than this amount. Zero or nil disables it.
	MinDepositAmount sdkmath.Int
	ReferralCode     uint16
}

// Router decides when idle pool liquidity moves into and out of the lending service.
type Router struct {
	logger zerolog.Logger

	address        sdk.AccAddress
	authority      sdk.AccAddress
	lendingAddress sdk.AccAddress
	ledger         Ledger
	lending        lending.Service
	emitter        Emitter
	quoter         Quoter
	minDeposit     sdkmath.Int
	referralCode   uint16

	mu       sync.RWMutex
	registry map[string]types.AssetRegistration
	params   types.RouterParameters

	entered atomic.Bool
}

// New creates a router after validating its configuration.
func New(cfg Config) (*Router, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, err)
	}

	r := &Router{
		logger:         logger.GetForComponent("yield_router"),
		address:        cfg.Address,
		authority:      cfg.Authority,
		lendingAddress: cfg.LendingAddress,
		ledger:         cfg.Ledger,
		lending:        cfg.Lending,
		emitter:        cfg.Emitter,
		quoter:         cfg.Quoter,
		minDeposit:     utils.OrZero(cfg.MinDepositAmount),
		referralCode:   cfg.ReferralCode,
		registry:       make(map[string]types.AssetRegistration),
		params:         types.RouterParameters{ReserveRatioBps: cfg.ReserveRatioBps},
	}

	r.logger.Info().
		Str("address", r.address.String()).
		Str("authority", r.authority.String()).
		Uint64("reserveRatioBps", cfg.ReserveRatioBps).
		Str("minDeposit", r.minDeposit.String()).
		Msg("Yield router created")

	return r, nil
}

func validateConfig(cfg Config) error {
	if cfg.Address.Empty() {
		return errors.New("router address cannot be empty")
	}
	if cfg.Authority.Empty() {
		return errors.New("authority cannot be empty")
	}
	if cfg.LendingAddress.Empty() {
		return errors.New("lending address cannot be empty")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if cfg.Lending == nil {
		return errors.New("lending service cannot be nil")
	}
	if cfg.Emitter == nil {
		return errors.New("emitter cannot be nil")
	}
	if cfg.ReserveRatioBps > utils.BasisPoints {
		return fmt.Errorf("reserve ratio %d exceeds %d bps", cfg.ReserveRatioBps, utils.BasisPoints)
	}
	if !cfg.MinDepositAmount.IsNil() && cfg.MinDepositAmount.IsNegative() {
		return errors.New("minimum deposit cannot be negative")
	}
	return nil
}

// SetQuoter wires the trade quoter once the pool engine exists. Call it before the first callback.
func (r *Router) SetQuoter(q Quoter) {
	r.quoter = q
}

// Address returns the router's account.
func (r *Router) Address() sdk.AccAddress { return r.address }

// Authority returns the account allowed to change configuration.
func (r *Router) Authority() sdk.AccAddress { return r.authority }

// ReserveRatio returns the configured reserve ratio in basis points.
func (r *Router) ReserveRatio() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params.ReserveRatioBps
}

// Registration returns the entry for asset, if one was ever recorded.
func (r *Router) Registration(asset string) (types.AssetRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registry[asset]
	return reg, ok
}

// Registrations returns every entry sorted by asset.
func (r *Router) Registrations() []types.AssetRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AssetRegistration, 0, len(r.registry))
	for _, reg := range r.registry {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// IsSupported reports whether routing logic runs for asset.
func (r *Router) IsSupported(asset string) bool {
	reg, ok := r.Registration(asset)
	return ok && reg.Supported
}

// CalculateWithdrawableAmount approximates everything recoverable for asset: the router's
// un-deposited balance plus its receipt token balance. Outside a transaction, call it from Host.View.
func (r *Router) CalculateWithdrawableAmount(_ context.Context, asset string) sdkmath.Int {
	total := r.ledger.Balance(r.address, asset)
	if reg, ok := r.Registration(asset); ok && reg.ReceiptAsset != "" {
		total = total.Add(r.ledger.Balance(r.address, reg.ReceiptAsset))
	}
	return total
}

// Restore loads persisted registry state and re-grants the lending allowance for supported assets.
func (r *Router) Restore(regs []types.AssetRegistration, params types.RouterParameters) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	if params.ReserveRatioBps > utils.BasisPoints {
		return errors.Join(ErrInvalidConfiguration, fmt.Errorf("persisted reserve ratio %d", params.ReserveRatioBps))
	}
	registry := make(map[string]types.AssetRegistration, len(regs))
	for _, reg := range regs {
		if reg.Supported && reg.ReceiptAsset == "" {
			return errors.Join(ErrInvalidConfiguration, fmt.Errorf("supported asset %s has no receipt asset", reg.Asset))
		}
		registry[reg.Asset] = reg
	}
	for _, reg := range registry {
		if !reg.Supported {
			continue
		}
		if err := r.ledger.Approve(r.address, r.lendingAddress, reg.Asset, utils.MaxInt()); err != nil {
			return fmt.Errorf("re-approve %s: %w", reg.Asset, err)
		}
	}

	r.mu.Lock()
	r.registry = registry
	r.params = params
	r.mu.Unlock()

	r.logger.Info().
		Int("assets", len(registry)).
		Uint64("reserveRatioBps", params.ReserveRatioBps).
		Msg("Router state restored")
	return nil
}

// Checkpoint snapshots registry and parameters for the host.
func (r *Router) Checkpoint() func() {
	r.mu.RLock()
	registry := make(map[string]types.AssetRegistration, len(r.registry))
	for k, v := range r.registry {
		registry[k] = v
	}
	params := r.params
	r.mu.RUnlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.registry = registry
		r.params = params
	}
}

// enter marks the router busy for the duration of an operation that calls out.
func (r *Router) enter() error {
	if !r.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (r *Router) exit() {
	r.entered.Store(false)
}

func (r *Router) requireAuthority(caller sdk.AccAddress) error {
	if caller.Empty() || !caller.Equals(r.authority) {
		return errors.Join(ErrUnauthorized, fmt.Errorf("caller %q", caller.String()))
	}
	return nil
}

// supportedRegistration returns the entry for asset or ErrUnsupportedAsset.
func (r *Router) supportedRegistration(asset string) (types.AssetRegistration, error) {
	reg, ok := r.Registration(asset)
	if !ok || !reg.Supported {
		return types.AssetRegistration{}, errors.Join(ErrUnsupportedAsset, fmt.Errorf("asset %q", asset))
	}
	return reg, nil
}
