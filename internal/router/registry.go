package router

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

// RegisterAsset enables routing for asset and grants the lending service an unlimited allowance on it.
// Registering an already supported asset replaces its receipt asset.
func (r *Router) RegisterAsset(ctx context.Context, caller sdk.AccAddress, asset, receiptAsset string) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	if err := r.requireAuthority(caller); err != nil {
		return err
	}
	if err := validateDenoms(asset, receiptAsset); err != nil {
		return err
	}

	r.mu.Lock()
	previous, existed := r.registry[asset]
	r.registry[asset] = types.AssetRegistration{Asset: asset, ReceiptAsset: receiptAsset, Supported: true}
	r.mu.Unlock()

	if err := r.ledger.Approve(r.address, r.lendingAddress, asset, utils.MaxInt()); err != nil {
		r.mu.Lock()
		if existed {
			r.registry[asset] = previous
		} else {
			delete(r.registry, asset)
		}
		r.mu.Unlock()
		return fmt.Errorf("approve lending service for %s: %w", asset, err)
	}

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:         types.EventAssetRegistered,
		Asset:        asset,
		ReceiptAsset: receiptAsset,
	})

	r.logger.Info().
		Str("asset", asset).
		Str("receiptAsset", receiptAsset).
		Bool("replaced", existed && previous.Supported).
		Msg("Asset registered")
	return nil
}

// UnregisterAsset disables routing for asset and revokes the allowance. The receipt asset mapping is
// kept so previously deposited funds stay visible and recoverable.
func (r *Router) UnregisterAsset(ctx context.Context, caller sdk.AccAddress, asset string) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	if err := r.requireAuthority(caller); err != nil {
		return err
	}
	reg, err := r.supportedRegistration(asset)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.registry[asset] = types.AssetRegistration{Asset: asset, ReceiptAsset: reg.ReceiptAsset, Supported: false}
	r.mu.Unlock()

	if err := r.ledger.Approve(r.address, r.lendingAddress, asset, sdkmath.ZeroInt()); err != nil {
		r.mu.Lock()
		r.registry[asset] = reg
		r.mu.Unlock()
		return fmt.Errorf("revoke lending allowance for %s: %w", asset, err)
	}

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:         types.EventAssetUnregistered,
		Asset:        asset,
		ReceiptAsset: reg.ReceiptAsset,
	})

	r.logger.Info().Str("asset", asset).Msg("Asset unregistered")
	return nil
}

// SetReserveRatio updates the share of each balance kept liquid, in basis points.
func (r *Router) SetReserveRatio(ctx context.Context, caller sdk.AccAddress, ratioBps uint64) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.exit()

	if err := r.requireAuthority(caller); err != nil {
		return err
	}
	if ratioBps > utils.BasisPoints {
		return errors.Join(ErrInvalidConfiguration, fmt.Errorf("reserve ratio %d exceeds %d bps", ratioBps, utils.BasisPoints))
	}

	r.mu.Lock()
	old := r.params.ReserveRatioBps
	r.params.ReserveRatioBps = ratioBps
	r.mu.Unlock()

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:        types.EventReserveRatioUpdated,
		OldRatioBps: old,
		NewRatioBps: ratioBps,
	})

	r.logger.Info().
		Uint64("oldRatioBps", old).
		Uint64("newRatioBps", ratioBps).
		Msg("Reserve ratio updated")
	return nil
}

func validateDenoms(asset, receiptAsset string) error {
	if err := sdk.ValidateDenom(asset); err != nil {
		return errors.Join(ErrInvalidDenom, fmt.Errorf("asset %q: %w", asset, err))
	}
	if err := sdk.ValidateDenom(receiptAsset); err != nil {
		return errors.Join(ErrInvalidDenom, fmt.Errorf("receipt asset %q: %w", receiptAsset, err))
	}
	if asset == receiptAsset {
		return errors.Join(ErrInvalidDenom, fmt.Errorf("receipt asset must differ from asset %q", asset))
	}
	return nil
}
