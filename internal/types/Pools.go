/*

This file contains the pool-side types handed to the router by the pool lifecycle source:
the pool key, trade parameters, liquidity parameters and the settled balance delta.

*/

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// FeeDenominator is the fee unit used by pool keys: hundredths of a basis point (1e6 = 100%).
const FeeDenominator uint32 = 1_000_000

var (
	ErrInvalidPoolKey = errors.New("pool key is invalid")
)

// PoolID is the hex encoded hash of a pool key.
type PoolID string

// PoolKey uniquely identifies a pool: the ordered asset pair, the fee tier and the hook account.
type PoolKey struct {
	Currency0   string         `json:"currency0"` // lower denom
	Currency1   string         `json:"currency1"` // higher denom
	Fee         uint32         `json:"fee"`       // e.g., 3000 = 0.30%
	TickSpacing int32          `json:"tick_spacing"`
	Hooks       sdk.AccAddress `json:"hooks"`
}

// NewPoolKey orders the pair and validates the result.
func NewPoolKey(denomA, denomB string, fee uint32, tickSpacing int32, hooks sdk.AccAddress) (PoolKey, error) {
	if denomA > denomB {
		denomA, denomB = denomB, denomA
	}
	key := PoolKey{Currency0: denomA, Currency1: denomB, Fee: fee, TickSpacing: tickSpacing, Hooks: hooks}
	if err := key.Validate(); err != nil {
		return PoolKey{}, err
	}
	return key, nil
}

// Validate checks denoms, ordering and fee range.
func (k PoolKey) Validate() error {
	if err := sdk.ValidateDenom(k.Currency0); err != nil {
		return errors.Join(ErrInvalidPoolKey, fmt.Errorf("currency0: %w", err))
	}
	if err := sdk.ValidateDenom(k.Currency1); err != nil {
		return errors.Join(ErrInvalidPoolKey, fmt.Errorf("currency1: %w", err))
	}
	if k.Currency0 >= k.Currency1 {
		return errors.Join(ErrInvalidPoolKey, fmt.Errorf("currencies must be strictly ordered: %s >= %s", k.Currency0, k.Currency1))
	}
	if k.Fee >= FeeDenominator {
		return errors.Join(ErrInvalidPoolKey, fmt.Errorf("fee %d must be below %d", k.Fee, FeeDenominator))
	}
	return nil
}

// ID hashes the key fields into a stable identifier.
func (k PoolKey) ID() PoolID {
	h := sha256.New()
	h.Write([]byte(k.Currency0))
	h.Write([]byte{0})
	h.Write([]byte(k.Currency1))
	h.Write([]byte{0})

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], k.Fee)
	binary.BigEndian.PutUint32(buf[4:], uint32(k.TickSpacing))
	h.Write(buf[:])
	h.Write(k.Hooks.Bytes())

	return PoolID(hex.EncodeToString(h.Sum(nil)))
}

// Currencies returns both pool denoms in key order.
func (k PoolKey) Currencies() [2]string {
	return [2]string{k.Currency0, k.Currency1}
}

// SwapParams describes a trade.
// AmountSpecified > 0 requests an exact output, AmountSpecified < 0 spends an exact input.
type SwapParams struct {
	ZeroForOne      bool        `json:"zero_for_one"` // true = pay currency0, receive currency1
	AmountSpecified sdkmath.Int `json:"amount_specified"`
}

// ExactOutput reports whether the trade fixes the output amount.
func (p SwapParams) ExactOutput() bool {
	return !p.AmountSpecified.IsNil() && p.AmountSpecified.IsPositive()
}

// Amount returns the absolute value of AmountSpecified.
func (p SwapParams) Amount() sdkmath.Int {
	if p.AmountSpecified.IsNil() {
		return sdkmath.ZeroInt()
	}
	return p.AmountSpecified.Abs()
}

// InputCurrency returns the denom the trader pays.
func (p SwapParams) InputCurrency(key PoolKey) string {
	if p.ZeroForOne {
		return key.Currency0
	}
	return key.Currency1
}

// OutputCurrency returns the denom the pool pays out.
func (p SwapParams) OutputCurrency(key PoolKey) string {
	if p.ZeroForOne {
		return key.Currency1
	}
	return key.Currency0
}

// ModifyLiquidityParams describes a liquidity change.
// LiquidityDelta > 0 adds liquidity shares, < 0 removes them.
type ModifyLiquidityParams struct {
	TickLower      int32       `json:"tick_lower"`
	TickUpper      int32       `json:"tick_upper"`
	LiquidityDelta sdkmath.Int `json:"liquidity_delta"`
	Salt           [32]byte    `json:"salt"`
}

// BalanceDelta is the net token movement of an operation from the caller's point of view.
// Negative = the caller pays the pool, positive = the pool pays the caller.
type BalanceDelta struct {
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`
}

// ZeroBalanceDelta returns a zero balance delta
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{Amount0: sdkmath.ZeroInt(), Amount1: sdkmath.ZeroInt()}
}

// IsZero returns true if both amounts are zero
func (d BalanceDelta) IsZero() bool {
	return (d.Amount0.IsNil() || d.Amount0.IsZero()) && (d.Amount1.IsNil() || d.Amount1.IsZero())
}
