package pool

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestCeilDiv(t *testing.T) {
	require.Equal(t, int64(3), ceilDiv(sdkmath.NewInt(9), sdkmath.NewInt(3)).Int64())
	require.Equal(t, int64(4), ceilDiv(sdkmath.NewInt(10), sdkmath.NewInt(3)).Int64())
	require.Equal(t, int64(0), ceilDiv(sdkmath.ZeroInt(), sdkmath.NewInt(3)).Int64())
}

func TestExactOutputCostsAtLeastExactInputQuote(t *testing.T) {
	reserveIn, reserveOut := sdkmath.NewInt(10_000), sdkmath.NewInt(10_000)

	in := amountInGivenOut(reserveIn, reserveOut, sdkmath.NewInt(906), 3_000)
	require.LessOrEqual(t, in.Int64(), int64(1_000))
	require.GreaterOrEqual(t, amountOutGivenIn(reserveIn, reserveOut, in, 3_000).Int64(), int64(906))

	// Zero fee, no rounding: 10000*5000/5000.
	require.Equal(t, int64(10_000), amountInGivenOut(reserveIn, reserveOut, sdkmath.NewInt(5_000), 0).Int64())
	require.True(t, amountOutGivenIn(reserveIn, reserveOut, sdkmath.NewInt(1), 3_000).IsZero())
}

func TestShares(t *testing.T) {
	require.Equal(t, int64(2_000), initialShares(sdkmath.NewInt(1_000), sdkmath.NewInt(4_000)).Int64())

	shares, used0, used1 := sharesFor(sdkmath.NewInt(1_000), sdkmath.NewInt(4_000), sdkmath.NewInt(2_000),
		sdkmath.NewInt(500), sdkmath.NewInt(500))
	require.Equal(t, int64(250), shares.Int64())
	require.Equal(t, int64(125), used0.Int64())
	require.Equal(t, int64(500), used1.Int64())

	out0, out1 := amountsFor(sdkmath.NewInt(1_000), sdkmath.NewInt(4_000), sdkmath.NewInt(2_000), sdkmath.NewInt(1_000))
	require.Equal(t, int64(500), out0.Int64())
	require.Equal(t, int64(2_000), out1.Int64())
}
