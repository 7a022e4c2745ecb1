/*

This file contains the reference constant-product pool engine. Pool tokens are held by the hook
account; every operation runs as one host transaction that calls the before-hook, settles transfers
between the trader and the hook account, updates reserves and then calls the after-hook.

*/

package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/types"
)

var (
	ErrInvalidHookResponse       = errors.New("hook returned an unexpected selector")
	ErrPoolNotFound              = errors.New("pool not found")
	ErrPoolExists                = errors.New("pool already initialized")
	ErrHooksMismatch             = errors.New("pool key names a different hook account")
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrInsufficientPoolLiquidity = errors.New("pool reserves cannot cover trade")
	ErrInsufficientShares        = errors.New("insufficient liquidity shares")
)

// Ledger moves tokens between accounts.
type Ledger interface {
	Send(from, to sdk.AccAddress, denom string, amount sdkmath.Int) error
}

// Executor runs fn atomically.
type Executor interface {
	Atomic(ctx context.Context, label string, fn func(ctx context.Context) error) error
}

// Config holds the dependencies for creating a Manager.
type Config struct {
	Ledger      Ledger
	Executor    Executor
	Hooks       types.Hooks
	HookAddress sdk.AccAddress // custodian of every pool's tokens
}

// State is a snapshot of a single pool.
type State struct {
	ID          types.PoolID  `json:"id"`
	Key         types.PoolKey `json:"key"`
	Reserve0    sdkmath.Int   `json:"reserve0"`
	Reserve1    sdkmath.Int   `json:"reserve1"`
	TotalShares sdkmath.Int   `json:"total_shares"`
}

type poolState struct {
	key         types.PoolKey
	reserve0    sdkmath.Int
	reserve1    sdkmath.Int
	totalShares sdkmath.Int
	shares      map[string]sdkmath.Int
}

func (p *poolState) clone() *poolState {
	shares := make(map[string]sdkmath.Int, len(p.shares))
	for k, v := range p.shares {
		shares[k] = v
	}
	c := *p
	c.shares = shares
	return &c
}

func (p *poolState) reserves(zeroForOne bool) (in, out sdkmath.Int) {
	if zeroForOne {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

// Manager owns pool state and drives the hook lifecycle.
type Manager struct {
	logger      zerolog.Logger
	ledger      Ledger
	exec        Executor
	hooks       types.Hooks
	hookAddress sdk.AccAddress

	mu    sync.RWMutex
	pools map[types.PoolID]*poolState
}

// NewManager creates a pool engine bound to one hook.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Ledger == nil || cfg.Executor == nil || cfg.Hooks == nil {
		return nil, errors.New("ledger, executor and hooks are required")
	}
	if cfg.HookAddress.Empty() {
		return nil, errors.New("hook address cannot be empty")
	}
	return &Manager{
		logger:      logger.GetForComponent("pool_manager"),
		ledger:      cfg.Ledger,
		exec:        cfg.Executor,
		hooks:       cfg.Hooks,
		hookAddress: cfg.HookAddress,
		pools:       make(map[types.PoolID]*poolState),
	}, nil
}

// Initialize creates an empty pool for key.
func (m *Manager) Initialize(ctx context.Context, sender sdk.AccAddress, key types.PoolKey) (types.PoolID, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if !key.Hooks.Equals(m.hookAddress) {
		return "", errors.Join(ErrHooksMismatch, fmt.Errorf("key hooks %s", key.Hooks))
	}
	id := key.ID()
	perms := m.hooks.Permissions()

	err := m.exec.Atomic(ctx, "pool initialize", func(ctx context.Context) error {
		if _, err := m.pool(id); err == nil {
			return errors.Join(ErrPoolExists, fmt.Errorf("pool %s", id))
		}
		if perms.BeforeInitialize {
			sel, err := m.hooks.BeforeInitialize(ctx, sender, key)
			if err := checkSelector(sel, err, types.SelectorBeforeInitialize); err != nil {
				return err
			}
		}

		m.mu.Lock()
		m.pools[id] = &poolState{
			key:         key,
			reserve0:    sdkmath.ZeroInt(),
			reserve1:    sdkmath.ZeroInt(),
			totalShares: sdkmath.ZeroInt(),
			shares:      make(map[string]sdkmath.Int),
		}
		m.mu.Unlock()

		if perms.AfterInitialize {
			sel, err := m.hooks.AfterInitialize(ctx, sender, key)
			if err := checkSelector(sel, err, types.SelectorAfterInitialize); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info().
		Str("poolId", string(id)).
		Str("currency0", key.Currency0).
		Str("currency1", key.Currency1).
		Uint32("fee", key.Fee).
		Msg("Pool initialized")
	return id, nil
}

// AddLiquidity deposits up to amount0/amount1 from sender and mints liquidity shares.
// The returned delta is negative for what sender paid.
func (m *Manager) AddLiquidity(ctx context.Context, sender sdk.AccAddress, key types.PoolKey, amount0, amount1 sdkmath.Int) (sdkmath.Int, types.BalanceDelta, error) {
	if !isPositive(amount0) || !isPositive(amount1) {
		return sdkmath.ZeroInt(), types.BalanceDelta{}, ErrInvalidAmount
	}
	id := key.ID()
	perms := m.hooks.Permissions()
	var (
		minted sdkmath.Int
		delta  types.BalanceDelta
	)

	err := m.exec.Atomic(ctx, "pool add liquidity", func(ctx context.Context) error {
		p, err := m.pool(id)
		if err != nil {
			return err
		}
		shares, used0, used1 := sharesFor(p.reserve0, p.reserve1, p.totalShares, amount0, amount1)
		if !shares.IsPositive() {
			return errors.Join(ErrInvalidAmount, errors.New("deposit too small to mint shares"))
		}
		params := types.ModifyLiquidityParams{LiquidityDelta: shares}

		if perms.BeforeAddLiquidity {
			sel, err := m.hooks.BeforeAddLiquidity(ctx, sender, key, params)
			if err := checkSelector(sel, err, types.SelectorBeforeAddLiquidity); err != nil {
				return err
			}
		}

		if err := m.ledger.Send(sender, m.hookAddress, key.Currency0, used0); err != nil {
			return fmt.Errorf("settle %s: %w", key.Currency0, err)
		}
		if err := m.ledger.Send(sender, m.hookAddress, key.Currency1, used1); err != nil {
			return fmt.Errorf("settle %s: %w", key.Currency1, err)
		}

		m.mu.Lock()
		p.reserve0 = p.reserve0.Add(used0)
		p.reserve1 = p.reserve1.Add(used1)
		p.totalShares = p.totalShares.Add(shares)
		p.shares[sender.String()] = p.ownerShares(sender).Add(shares)
		m.mu.Unlock()

		minted = shares
		delta = types.BalanceDelta{Amount0: used0.Neg(), Amount1: used1.Neg()}

		if perms.AfterAddLiquidity {
			sel, err := m.hooks.AfterAddLiquidity(ctx, sender, key, params, delta)
			if err := checkSelector(sel, err, types.SelectorAfterAddLiquidity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), types.BalanceDelta{}, err
	}

	m.logger.Debug().
		Str("poolId", string(id)).
		Str("sender", sender.String()).
		Str("shares", minted.String()).
		Str("amount0", delta.Amount0.Neg().String()).
		Str("amount1", delta.Amount1.Neg().String()).
		Msg("Liquidity added")
	return minted, delta, nil
}

// RemoveLiquidity burns shares and pays sender its pro-rata reserves from the hook account.
// Staked funds are not recalled, so a removal beyond the liquid balance fails.
func (m *Manager) RemoveLiquidity(ctx context.Context, sender sdk.AccAddress, key types.PoolKey, shares sdkmath.Int) (types.BalanceDelta, error) {
	if !isPositive(shares) {
		return types.BalanceDelta{}, ErrInvalidAmount
	}
	id := key.ID()
	perms := m.hooks.Permissions()
	var delta types.BalanceDelta

	err := m.exec.Atomic(ctx, "pool remove liquidity", func(ctx context.Context) error {
		p, err := m.pool(id)
		if err != nil {
			return err
		}
		owned := p.ownerShares(sender)
		if owned.LT(shares) {
			return errors.Join(ErrInsufficientShares, fmt.Errorf("%s owns %s, burning %s", sender, owned, shares))
		}
		out0, out1 := amountsFor(p.reserve0, p.reserve1, p.totalShares, shares)
		params := types.ModifyLiquidityParams{LiquidityDelta: shares.Neg()}

		if perms.BeforeRemoveLiquidity {
			sel, err := m.hooks.BeforeRemoveLiquidity(ctx, sender, key, params)
			if err := checkSelector(sel, err, types.SelectorBeforeRemoveLiquidity); err != nil {
				return err
			}
		}

		if err := m.ledger.Send(m.hookAddress, sender, key.Currency0, out0); err != nil {
			return fmt.Errorf("settle %s: %w", key.Currency0, err)
		}
		if err := m.ledger.Send(m.hookAddress, sender, key.Currency1, out1); err != nil {
			return fmt.Errorf("settle %s: %w", key.Currency1, err)
		}

		m.mu.Lock()
		p.reserve0 = p.reserve0.Sub(out0)
		p.reserve1 = p.reserve1.Sub(out1)
		p.totalShares = p.totalShares.Sub(shares)
		if remaining := owned.Sub(shares); remaining.IsZero() {
			delete(p.shares, sender.String())
		} else {
			p.shares[sender.String()] = remaining
		}
		m.mu.Unlock()

		delta = types.BalanceDelta{Amount0: out0, Amount1: out1}

		if perms.AfterRemoveLiquidity {
			sel, err := m.hooks.AfterRemoveLiquidity(ctx, sender, key, params, delta)
			if err := checkSelector(sel, err, types.SelectorAfterRemoveLiquidity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.BalanceDelta{}, err
	}
	return delta, nil
}

// Swap executes a trade. AmountSpecified < 0 spends exactly |AmountSpecified| of the input currency;
// AmountSpecified > 0 receives exactly that much of the output currency.
func (m *Manager) Swap(ctx context.Context, sender sdk.AccAddress, key types.PoolKey, params types.SwapParams) (types.BalanceDelta, error) {
	if !params.Amount().IsPositive() {
		return types.BalanceDelta{}, ErrInvalidAmount
	}
	id := key.ID()
	perms := m.hooks.Permissions()
	var delta types.BalanceDelta

	err := m.exec.Atomic(ctx, "pool swap", func(ctx context.Context) error {
		if _, err := m.pool(id); err != nil {
			return err
		}

		if perms.BeforeSwap {
			sel, err := m.hooks.BeforeSwap(ctx, sender, key, params)
			if err := checkSelector(sel, err, types.SelectorBeforeSwap); err != nil {
				return err
			}
		}

		p, err := m.pool(id)
		if err != nil {
			return err
		}
		amountIn, amountOut, err := price(p, params)
		if err != nil {
			return err
		}

		input, output := params.InputCurrency(key), params.OutputCurrency(key)
		if err := m.ledger.Send(sender, m.hookAddress, input, amountIn); err != nil {
			return fmt.Errorf("settle input %s: %w", input, err)
		}
		if err := m.ledger.Send(m.hookAddress, sender, output, amountOut); err != nil {
			return fmt.Errorf("settle output %s: %w", output, err)
		}

		m.mu.Lock()
		if params.ZeroForOne {
			p.reserve0 = p.reserve0.Add(amountIn)
			p.reserve1 = p.reserve1.Sub(amountOut)
			delta = types.BalanceDelta{Amount0: amountIn.Neg(), Amount1: amountOut}
		} else {
			p.reserve1 = p.reserve1.Add(amountIn)
			p.reserve0 = p.reserve0.Sub(amountOut)
			delta = types.BalanceDelta{Amount0: amountOut, Amount1: amountIn.Neg()}
		}
		m.mu.Unlock()

		if perms.AfterSwap {
			sel, err := m.hooks.AfterSwap(ctx, sender, key, params, delta)
			if err := checkSelector(sel, err, types.SelectorAfterSwap); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.BalanceDelta{}, err
	}

	m.logger.Debug().
		Str("poolId", string(id)).
		Str("sender", sender.String()).
		Bool("zeroForOne", params.ZeroForOne).
		Str("amount0", delta.Amount0.String()).
		Str("amount1", delta.Amount1.String()).
		Msg("Swap executed")
	return delta, nil
}

// QuoteExactInput returns the output an exact-input trade would receive at current reserves.
func (m *Manager) QuoteExactInput(_ context.Context, key types.PoolKey, zeroForOne bool, amountIn sdkmath.Int) (sdkmath.Int, error) {
	p, err := m.pool(key.ID())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	_, out, err := price(p, types.SwapParams{ZeroForOne: zeroForOne, AmountSpecified: amountIn.Abs().Neg()})
	return out, err
}

// Pool returns a snapshot of the pool identified by id.
func (m *Manager) Pool(id types.PoolID) (State, error) {
	p, err := m.pool(id)
	if err != nil {
		return State{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return p.snapshot(id), nil
}

// Pools returns snapshots of every pool sorted by ID.
func (m *Manager) Pools() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.pools))
	for id, p := range m.pools {
		out = append(out, p.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shares returns the liquidity shares owner holds in pool id.
func (m *Manager) Shares(id types.PoolID, owner sdk.AccAddress) sdkmath.Int {
	p, err := m.pool(id)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return p.ownerShares(owner)
}

// Checkpoint implements host.Checkpointer.
func (m *Manager) Checkpoint() func() {
	m.mu.RLock()
	saved := make(map[types.PoolID]*poolState, len(m.pools))
	for id, p := range m.pools {
		saved[id] = p.clone()
	}
	m.mu.RUnlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pools = saved
	}
}

func (m *Manager) pool(id types.PoolID) (*poolState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, errors.Join(ErrPoolNotFound, fmt.Errorf("pool %s", id))
	}
	return p, nil
}

func (p *poolState) ownerShares(owner sdk.AccAddress) sdkmath.Int {
	if s, ok := p.shares[owner.String()]; ok {
		return s
	}
	return sdkmath.ZeroInt()
}

func (p *poolState) snapshot(id types.PoolID) State {
	return State{ID: id, Key: p.key, Reserve0: p.reserve0, Reserve1: p.reserve1, TotalShares: p.totalShares}
}

// price returns the input paid and output received for params at p's reserves.
func price(p *poolState, params types.SwapParams) (amountIn, amountOut sdkmath.Int, err error) {
	reserveIn, reserveOut := p.reserves(params.ZeroForOne)
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Join(ErrInsufficientPoolLiquidity, errors.New("pool is empty"))
	}

	amount := params.Amount()
	if params.ExactOutput() {
		if amount.GTE(reserveOut) {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Join(ErrInsufficientPoolLiquidity,
				fmt.Errorf("output %s exceeds reserve %s", amount, reserveOut))
		}
		return amountInGivenOut(reserveIn, reserveOut, amount, p.key.Fee), amount, nil
	}

	out := amountOutGivenIn(reserveIn, reserveOut, amount, p.key.Fee)
	if !out.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Join(ErrInvalidAmount, fmt.Errorf("input %s yields no output", amount))
	}
	return amount, out, nil
}

func checkSelector(got types.Selector, err error, want types.Selector) error {
	if err != nil {
		return err
	}
	if got != want {
		return errors.Join(ErrInvalidHookResponse, fmt.Errorf("got %s, want %s", got, want))
	}
	return nil
}

func isPositive(v sdkmath.Int) bool {
	return !v.IsNil() && v.IsPositive()
}
