package pool

import (
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldhook/internal/types"
)

var feeDenominator = sdkmath.NewIntFromUint64(uint64(types.FeeDenominator))

// ceilDiv returns ceil(a / b) for non-negative a and positive b.
func ceilDiv(a, b sdkmath.Int) sdkmath.Int {
	q, r := a.Quo(b), a.Mod(b)
	if r.IsZero() {
		return q
	}
	return q.AddRaw(1)
}

// amountOutGivenIn prices an exact-input trade; the fee is taken from the input and stays in the pool.
func amountOutGivenIn(reserveIn, reserveOut, amountIn sdkmath.Int, fee uint32) sdkmath.Int {
	afterFee := amountIn.Mul(feeDenominator.SubRaw(int64(fee))).Quo(feeDenominator)
	if afterFee.IsZero() {
		return sdkmath.ZeroInt()
	}
	return reserveOut.Mul(afterFee).Quo(reserveIn.Add(afterFee))
}

// amountInGivenOut prices an exact-output trade, rounding the input up. amountOut must be below reserveOut.
func amountInGivenOut(reserveIn, reserveOut, amountOut sdkmath.Int, fee uint32) sdkmath.Int {
	net := ceilDiv(reserveIn.Mul(amountOut), reserveOut.Sub(amountOut))
	return ceilDiv(net.Mul(feeDenominator), feeDenominator.SubRaw(int64(fee)))
}

// initialShares is floor(sqrt(amount0 * amount1)).
func initialShares(amount0, amount1 sdkmath.Int) sdkmath.Int {
	product := amount0.Mul(amount1).BigInt()
	return sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(product))
}

// sharesFor mints shares pro rata, bounded by the scarcer side, and returns the amounts actually used.
func sharesFor(reserve0, reserve1, totalShares, amount0, amount1 sdkmath.Int) (shares, used0, used1 sdkmath.Int) {
	if totalShares.IsZero() {
		return initialShares(amount0, amount1), amount0, amount1
	}
	shares = sdkmath.MinInt(amount0.Mul(totalShares).Quo(reserve0), amount1.Mul(totalShares).Quo(reserve1))
	used0 = ceilDiv(shares.Mul(reserve0), totalShares)
	used1 = ceilDiv(shares.Mul(reserve1), totalShares)
	return shares, used0, used1
}

// amountsFor returns the reserves owed for burning shares, rounded down.
func amountsFor(reserve0, reserve1, totalShares, shares sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	return shares.Mul(reserve0).Quo(totalShares), shares.Mul(reserve1).Quo(totalShares)
}
