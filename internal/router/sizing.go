package router

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

// StakeAvailable deposits everything above the reserve target into the lending service and returns
// the amount deposited. Calling it twice without an intervening balance change deposits zero the
// second time.
func (r *Router) StakeAvailable(ctx context.Context, asset string) (sdkmath.Int, error) {
	if err := r.enter(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer r.exit()
	return r.stakeAvailable(ctx, asset)
}

// EnsureLiquidity withdraws the shortfall between required and the router's balance of asset.
func (r *Router) EnsureLiquidity(ctx context.Context, asset string, required sdkmath.Int) (sdkmath.Int, error) {
	if err := r.enter(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer r.exit()
	return r.ensureLiquidity(ctx, asset, required)
}

// ReserveTarget returns floor(balance * ratio / 10000) for asset.
func (r *Router) ReserveTarget(asset string) (sdkmath.Int, error) {
	balance := r.ledger.Balance(r.address, asset)
	return utils.MulBps(balance, r.ReserveRatio())
}

func (r *Router) stakeAvailable(ctx context.Context, asset string) (sdkmath.Int, error) {
	reg, err := r.supportedRegistration(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	balance := r.ledger.Balance(r.address, asset)
	reserve, err := utils.MulBps(balance, r.ReserveRatio())
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("reserve target for %s: %w", asset, err)
	}
	if !balance.GT(reserve) {
		return sdkmath.ZeroInt(), nil
	}

	excess := balance.Sub(reserve)
	if r.minDeposit.IsPositive() && excess.LT(r.minDeposit) {
		r.logger.Debug().
			Str("asset", asset).
			Str("excess", excess.String()).
			Str("minDeposit", r.minDeposit.String()).
			Msg("Excess below minimum deposit, skipping")
		return sdkmath.ZeroInt(), nil
	}

	if err := r.lending.Deposit(ctx, asset, excess, r.address, r.referralCode); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("deposit %s%s: %w", excess, asset, err)
	}

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:         types.EventAssetStaked,
		Asset:        asset,
		ReceiptAsset: reg.ReceiptAsset,
		Amount:       excess,
	})

	r.logger.Debug().
		Str("asset", asset).
		Str("balance", balance.String()).
		Str("reserve", reserve.String()).
		Str("deposited", excess.String()).
		Msg("Staked excess liquidity")
	return excess, nil
}

func (r *Router) ensureLiquidity(ctx context.Context, asset string, required sdkmath.Int) (sdkmath.Int, error) {
	if required.IsNil() || required.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("required amount for %s: %w", asset, utils.ErrAmountNegative)
	}
	reg, err := r.supportedRegistration(asset)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	balance := r.ledger.Balance(r.address, asset)
	if balance.GTE(required) {
		return sdkmath.ZeroInt(), nil
	}

	shortfall := required.Sub(balance)
	withdrawn, err := r.lending.Withdraw(ctx, asset, shortfall, r.address)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrInsufficientExternalLiquidity, fmt.Errorf("withdraw %s%s: %w", shortfall, asset, err))
	}
	if after := r.ledger.Balance(r.address, asset); after.LT(required) {
		return sdkmath.ZeroInt(), errors.Join(ErrInsufficientExternalLiquidity,
			fmt.Errorf("balance %s%s after withdrawal is below required %s", after, asset, required))
	}

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:         types.EventAssetWithdrawn,
		Asset:        asset,
		ReceiptAsset: reg.ReceiptAsset,
		Amount:       withdrawn,
	})

	r.logger.Debug().
		Str("asset", asset).
		Str("required", required.String()).
		Str("withdrawn", withdrawn.String()).
		Msg("Recalled liquidity from lending")
	return withdrawn, nil
}
