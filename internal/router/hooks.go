/*

This file contains the router's pool lifecycle callbacks. Before a trade the router recalls enough of
the output currency from lending to pay the trader; after every trade or liquidity change it
re-deposits whatever exceeds the reserve target. Currencies that are not registered pass through.

*/

package router

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/yieldhook/internal/types"
)

var _ types.Hooks = (*Router)(nil)

// Permissions subscribes the router to every lifecycle callback.
func (r *Router) Permissions() types.HookPermissions {
	return types.HookPermissions{
		BeforeInitialize:      true,
		AfterInitialize:       true,
		BeforeAddLiquidity:    true,
		AfterAddLiquidity:     true,
		BeforeRemoveLiquidity: true,
		AfterRemoveLiquidity:  true,
		BeforeSwap:            true,
		AfterSwap:             true,
	}
}

func (r *Router) BeforeInitialize(context.Context, sdk.AccAddress, types.PoolKey) (types.Selector, error) {
	return r.acknowledge(types.SelectorBeforeInitialize)
}

func (r *Router) AfterInitialize(context.Context, sdk.AccAddress, types.PoolKey) (types.Selector, error) {
	return r.acknowledge(types.SelectorAfterInitialize)
}

func (r *Router) BeforeAddLiquidity(context.Context, sdk.AccAddress, types.PoolKey, types.ModifyLiquidityParams) (types.Selector, error) {
	return r.acknowledge(types.SelectorBeforeAddLiquidity)
}

// BeforeRemoveLiquidity does not recall staked funds. A removal larger than the liquid reserve
// fails in the pool engine's settlement.
func (r *Router) BeforeRemoveLiquidity(context.Context, sdk.AccAddress, types.PoolKey, types.ModifyLiquidityParams) (types.Selector, error) {
	return r.acknowledge(types.SelectorBeforeRemoveLiquidity)
}

func (r *Router) AfterAddLiquidity(ctx context.Context, _ sdk.AccAddress, key types.PoolKey, _ types.ModifyLiquidityParams, _ types.BalanceDelta) (types.Selector, error) {
	if err := r.restakePool(ctx, key); err != nil {
		return types.Selector{}, err
	}
	return types.SelectorAfterAddLiquidity, nil
}

func (r *Router) AfterRemoveLiquidity(ctx context.Context, _ sdk.AccAddress, key types.PoolKey, _ types.ModifyLiquidityParams, _ types.BalanceDelta) (types.Selector, error) {
	if err := r.restakePool(ctx, key); err != nil {
		return types.Selector{}, err
	}
	return types.SelectorAfterRemoveLiquidity, nil
}

// BeforeSwap makes sure the output currency is liquid enough to pay the trader.
func (r *Router) BeforeSwap(ctx context.Context, _ sdk.AccAddress, key types.PoolKey, params types.SwapParams) (types.Selector, error) {
	if err := r.enter(); err != nil {
		return types.Selector{}, err
	}
	defer r.exit()

	output := params.OutputCurrency(key)
	if !r.IsSupported(output) {
		return types.SelectorBeforeSwap, nil
	}

	required, err := r.requiredOutput(ctx, key, params)
	if err != nil {
		return types.Selector{}, err
	}
	if required.IsZero() {
		return types.SelectorBeforeSwap, nil
	}

	if _, err := r.ensureLiquidity(ctx, output, required); err != nil {
		return types.Selector{}, err
	}
	return types.SelectorBeforeSwap, nil
}

func (r *Router) AfterSwap(ctx context.Context, _ sdk.AccAddress, key types.PoolKey, _ types.SwapParams, _ types.BalanceDelta) (types.Selector, error) {
	if err := r.restakePool(ctx, key); err != nil {
		return types.Selector{}, err
	}
	return types.SelectorAfterSwap, nil
}

// acknowledge answers a pass-through callback. It still fails while another router call is in flight.
func (r *Router) acknowledge(sel types.Selector) (types.Selector, error) {
	if err := r.enter(); err != nil {
		return types.Selector{}, err
	}
	r.exit()
	return sel, nil
}

// requiredOutput is the amount of output currency the trade pays out. Exact-output trades state it
// directly; exact-input trades are quoted, or fall back to the specified magnitude without a quoter.
func (r *Router) requiredOutput(ctx context.Context, key types.PoolKey, params types.SwapParams) (sdkmath.Int, error) {
	amount := params.Amount()
	if params.ExactOutput() || amount.IsZero() || r.quoter == nil {
		return amount, nil
	}
	quoted, err := r.quoter.QuoteExactInput(ctx, key, params.ZeroForOne, amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("quote exact input on pool %s: %w", key.ID(), err)
	}
	return quoted, nil
}

// restakePool re-deposits excess for each supported currency of the pool.
func (r *Router) restakePool(ctx context.Context, key types.PoolKey) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	for _, currency := range key.Currencies() {
		if !r.IsSupported(currency) {
			continue
		}
		if _, err := r.stakeAvailable(ctx, currency); err != nil {
			return err
		}
	}
	return nil
}
