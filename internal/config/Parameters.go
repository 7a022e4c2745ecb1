/*

This file contains the default parameters for the yield router.

*/

package config

import (
	"time"

	"github.com/elys-network/yieldhook/internal/types"
)

// DefaultRouterParameters is used when neither the environment nor the database supplies a value.
var DefaultRouterParameters = types.RouterParameters{
	ReserveRatioBps: 2000, // Keep 20% of every supported balance liquid for trades.
}

// DefaultHarvestInterval is the period between harvest cycles.
const DefaultHarvestInterval = time.Hour

// DefaultRewardDenom is the lending market's reward denom.
const DefaultRewardDenom = "uelys"

// DefaultPoolFee is 0.30% in hundredths of a basis point.
const DefaultPoolFee uint32 = 3_000

// DefaultTickSpacing matches the 0.30% fee tier.
const DefaultTickSpacing int32 = 60

// DefaultReceiptDenoms maps each asset the in-memory market lists to its receipt token.
// A fresh deployment registers these with the router when no registry was persisted.
var DefaultReceiptDenoms = map[string]string{
	"uusdc": "ausdc",
	"uatom": "aatom",
}
