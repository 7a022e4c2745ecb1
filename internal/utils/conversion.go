/*
This file contains common utility functions for basis point arithmetic and SDK Int handling
used by the sizing logic and the API layer.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// BasisPoints is the denominator for all ratio arithmetic (10000 = 100%).
const BasisPoints uint64 = 10_000

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrBpsOutOfRange    = errors.New("basis points out of range")
)

// maxUint256 is the largest value an SDK Int can carry.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// MaxInt returns 2^256-1, the value used for unlimited allowances and "claim everything" requests.
func MaxInt() sdkmath.Int {
	return sdkmath.NewIntFromBigInt(maxUint256)
}

// IsMaxInt reports whether amount equals MaxInt.
func IsMaxInt(amount sdkmath.Int) bool {
	if amount.IsNil() {
		return false
	}
	return amount.BigInt().Cmp(maxUint256) == 0
}

// MulBps returns floor(amount * bps / 10000). The amount must be non-negative.
func MulBps(amount sdkmath.Int, bps uint64) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if bps > BasisPoints {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrBpsOutOfRange, bps, BasisPoints)
	}
	// The product can exceed 256 bits; the quotient never exceeds amount.
	product := new(big.Int).Mul(amount.BigInt(), new(big.Int).SetUint64(bps))
	return sdkmath.NewIntFromBigInt(product.Quo(product, new(big.Int).SetUint64(BasisPoints))), nil
}

// OrZero replaces a nil Int with zero.
func OrZero(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(s string) (sdkmath.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty amount", ErrConversionFailed)
	}
	amount, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q is not an integer", ErrConversionFailed, s)
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return amount, nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(sdkmath.LegacyNewDec(10).Power(uint64(precision)))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
