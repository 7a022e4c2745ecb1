package lending

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Service defines the lending operations the router relies on.
// The caller identity is bound by the implementation (see Market.Session), so every call acts
// on behalf of one account.
type Service interface {
	// Deposit pulls amount of asset from the caller through its standing allowance and credits
	// receipt tokens to onBehalfOf.
	Deposit(ctx context.Context, asset string, amount sdkmath.Int, onBehalfOf sdk.AccAddress, referralCode uint16) error

	// Withdraw burns the caller's receipt tokens and sends the underlying asset to `to`.
	// It returns the amount actually withdrawn.
	Withdraw(ctx context.Context, asset string, amount sdkmath.Int, to sdk.AccAddress) (sdkmath.Int, error)

	// ClaimRewards pays up to amount of accrued incentives for the given receipt assets to `to`.
	// It returns the amount claimed.
	ClaimRewards(ctx context.Context, assets []string, amount sdkmath.Int, to sdk.AccAddress, stake bool) (sdkmath.Int, error)
}
