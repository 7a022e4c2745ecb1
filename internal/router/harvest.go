package router

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

// HarvestResult is the outcome of a single HarvestYield call.
type HarvestResult struct {
	Asset          string      `json:"asset"`
	ReceiptAsset   string      `json:"receipt_asset"`
	Claimed        sdkmath.Int `json:"claimed"`
	ReceiptBalance sdkmath.Int `json:"receipt_balance"`
}

// HarvestYield claims all pending lending rewards attributable to asset's receipt token into the
// router's own account. The emitted amount is the receipt token's total balance after the claim;
// it is a snapshot, not the profit earned since the last harvest.
func (r *Router) HarvestYield(ctx context.Context, asset string) (HarvestResult, error) {
	if err := r.enter(); err != nil {
		return HarvestResult{}, err
	}
	defer r.exit()

	reg, err := r.supportedRegistration(asset)
	if err != nil {
		return HarvestResult{}, err
	}

	claimed, err := r.lending.ClaimRewards(ctx, []string{reg.ReceiptAsset}, utils.MaxInt(), r.address, false)
	if err != nil {
		return HarvestResult{}, fmt.Errorf("claim rewards for %s: %w", reg.ReceiptAsset, err)
	}
	claimed = utils.OrZero(claimed)
	balance := r.ledger.Balance(r.address, reg.ReceiptAsset)

	r.emitter.Emit(ctx, types.RouterEvent{
		Type:         types.EventYieldHarvested,
		Asset:        asset,
		ReceiptAsset: reg.ReceiptAsset,
		Amount:       balance,
		Claimed:      claimed,
	})

	r.logger.Info().
		Str("asset", asset).
		Str("receiptAsset", reg.ReceiptAsset).
		Str("claimed", claimed.String()).
		Str("receiptBalance", balance.String()).
		Msg("Yield harvested")

	return HarvestResult{
		Asset:          asset,
		ReceiptAsset:   reg.ReceiptAsset,
		Claimed:        claimed,
		ReceiptBalance: balance,
	}, nil
}
