/*

This file contains the lifecycle hook contract between a pool engine and a hook implementation.
Each callback answers with the fixed selector of that callback to acknowledge it handled the event.

*/

package types

import (
	"context"
	"encoding/hex"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Selector is the 4-byte acknowledgment a hook returns for a handled callback.
type Selector [4]byte

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// Hook function selectors
var (
	SelectorBeforeInitialize      = Selector{0x01, 0x00, 0x00, 0x01}
	SelectorAfterInitialize       = Selector{0x01, 0x00, 0x00, 0x02}
	SelectorBeforeAddLiquidity    = Selector{0x02, 0x00, 0x00, 0x01}
	SelectorAfterAddLiquidity     = Selector{0x02, 0x00, 0x00, 0x02}
	SelectorBeforeRemoveLiquidity = Selector{0x02, 0x00, 0x00, 0x03}
	SelectorAfterRemoveLiquidity  = Selector{0x02, 0x00, 0x00, 0x04}
	SelectorBeforeSwap            = Selector{0x03, 0x00, 0x00, 0x01}
	SelectorAfterSwap             = Selector{0x03, 0x00, 0x00, 0x02}
)

// HookPermissions lists the callbacks a hook wants to receive.
type HookPermissions struct {
	BeforeInitialize      bool `json:"before_initialize"`
	AfterInitialize       bool `json:"after_initialize"`
	BeforeAddLiquidity    bool `json:"before_add_liquidity"`
	AfterAddLiquidity     bool `json:"after_add_liquidity"`
	BeforeRemoveLiquidity bool `json:"before_remove_liquidity"`
	AfterRemoveLiquidity  bool `json:"after_remove_liquidity"`
	BeforeSwap            bool `json:"before_swap"`
	AfterSwap             bool `json:"after_swap"`
}

// Hooks is the capability set a pool engine invokes synchronously around pool operations.
// A non-nil error aborts the enclosing pool operation.
type Hooks interface {
	Permissions() HookPermissions

	BeforeInitialize(ctx context.Context, sender sdk.AccAddress, key PoolKey) (Selector, error)
	AfterInitialize(ctx context.Context, sender sdk.AccAddress, key PoolKey) (Selector, error)

	BeforeAddLiquidity(ctx context.Context, sender sdk.AccAddress, key PoolKey, params ModifyLiquidityParams) (Selector, error)
	AfterAddLiquidity(ctx context.Context, sender sdk.AccAddress, key PoolKey, params ModifyLiquidityParams, delta BalanceDelta) (Selector, error)

	BeforeRemoveLiquidity(ctx context.Context, sender sdk.AccAddress, key PoolKey, params ModifyLiquidityParams) (Selector, error)
	AfterRemoveLiquidity(ctx context.Context, sender sdk.AccAddress, key PoolKey, params ModifyLiquidityParams, delta BalanceDelta) (Selector, error)

	BeforeSwap(ctx context.Context, sender sdk.AccAddress, key PoolKey, params SwapParams) (Selector, error)
	AfterSwap(ctx context.Context, sender sdk.AccAddress, key PoolKey, params SwapParams, delta BalanceDelta) (Selector, error)
}
