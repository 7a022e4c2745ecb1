/*

This file contains the in-memory token ledger the router, the lending market and the pool engine
settle against: balances, standing allowances, minting and burning of receipt tokens.

*/

package bank

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/yieldhook/internal/utils"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount must not be negative")
	ErrInvalidAddress        = errors.New("address is empty")
	ErrSupplyOverflow        = errors.New("supply would exceed 256 bits")
)

type allowanceKey struct {
	owner   string
	spender string
	denom   string
}

// Keeper holds all balances and allowances. It is not safe for concurrent use;
// mutations run inside a host transaction and reads inside Host.View.
type Keeper struct {
	balances   map[string]map[string]sdkmath.Int // address -> denom -> amount
	allowances map[allowanceKey]sdkmath.Int
	supply     map[string]sdkmath.Int
}

// NewKeeper returns an empty ledger.
func NewKeeper() *Keeper {
	return &Keeper{
		balances:   make(map[string]map[string]sdkmath.Int),
		allowances: make(map[allowanceKey]sdkmath.Int),
		supply:     make(map[string]sdkmath.Int),
	}
}

// Balance returns the holding of denom for addr.
func (k *Keeper) Balance(addr sdk.AccAddress, denom string) sdkmath.Int {
	return utils.OrZero(k.balances[string(addr)][denom])
}

// Balances returns every non-zero holding of addr sorted by denom.
func (k *Keeper) Balances(addr sdk.AccAddress) sdk.Coins {
	coins := make(sdk.Coins, 0, len(k.balances[string(addr)]))
	for denom, amount := range k.balances[string(addr)] {
		if amount.IsPositive() {
			coins = append(coins, sdk.NewCoin(denom, amount))
		}
	}
	return coins.Sort()
}

// Supply returns the total minted amount of denom minus burns.
func (k *Keeper) Supply(denom string) sdkmath.Int {
	return utils.OrZero(k.supply[denom])
}

// Holders returns every address holding a positive amount of denom, in stable order.
func (k *Keeper) Holders(denom string) []sdk.AccAddress {
	holders := make([]sdk.AccAddress, 0)
	for addr, denoms := range k.balances {
		if amount, ok := denoms[denom]; ok && amount.IsPositive() {
			holders = append(holders, sdk.AccAddress(addr))
		}
	}
	sort.Slice(holders, func(i, j int) bool { return string(holders[i]) < string(holders[j]) })
	return holders
}

// Send moves amount of denom from one account to another.
func (k *Keeper) Send(from, to sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	balance := k.Balance(from, denom)
	if balance.LT(amount) {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s has %s%s, needs %s%s", from, balance, denom, amount, denom))
	}
	k.setBalance(from, denom, balance.Sub(amount))
	k.setBalance(to, denom, k.Balance(to, denom).Add(amount))
	return nil
}

// Approve sets the standing allowance of spender over owner's denom. Zero revokes it.
func (k *Keeper) Approve(owner, spender sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if owner.Empty() || spender.Empty() {
		return ErrInvalidAddress
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	key := allowanceKey{owner: string(owner), spender: string(spender), denom: denom}
	if amount.IsZero() {
		delete(k.allowances, key)
		return nil
	}
	k.allowances[key] = amount
	return nil
}

// Allowance returns how much of owner's denom spender may move.
func (k *Keeper) Allowance(owner, spender sdk.AccAddress, denom string) sdkmath.Int {
	return utils.OrZero(k.allowances[allowanceKey{owner: string(owner), spender: string(spender), denom: denom}])
}

// TransferFrom moves owner's tokens on behalf of spender. An unlimited allowance is not decremented.
func (k *Keeper) TransferFrom(spender, owner, to sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if err := validateTransfer(owner, to, amount); err != nil {
		return err
	}
	allowance := k.Allowance(owner, spender, denom)
	if allowance.LT(amount) {
		return errors.Join(ErrInsufficientAllowance, fmt.Errorf("%s may move %s%s of %s, needs %s", spender, allowance, denom, owner, amount))
	}
	if err := k.Send(owner, to, denom, amount); err != nil {
		return err
	}
	if !utils.IsMaxInt(allowance) {
		return k.Approve(owner, spender, denom, allowance.Sub(amount))
	}
	return nil
}

// Mint creates amount of denom in addr.
func (k *Keeper) Mint(addr sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if addr.Empty() {
		return ErrInvalidAddress
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	// Every balance is bounded by the supply, so only the supply sum can overflow.
	supply, err := k.Supply(denom).SafeAdd(amount)
	if err != nil {
		return errors.Join(ErrSupplyOverflow, fmt.Errorf("mint %s%s: %w", amount, denom, err))
	}
	k.setBalance(addr, denom, k.Balance(addr, denom).Add(amount))
	k.supply[denom] = supply
	return nil
}

// Burn destroys amount of denom held by addr.
func (k *Keeper) Burn(addr sdk.AccAddress, denom string, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	balance := k.Balance(addr, denom)
	if balance.LT(amount) {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("cannot burn %s%s from %s holding %s", amount, denom, addr, balance))
	}
	k.setBalance(addr, denom, balance.Sub(amount))
	k.supply[denom] = k.Supply(denom).Sub(amount)
	return nil
}

// Checkpoint snapshots the ledger and returns a function restoring it.
func (k *Keeper) Checkpoint() func() {
	balances := make(map[string]map[string]sdkmath.Int, len(k.balances))
	for addr, denoms := range k.balances {
		copied := make(map[string]sdkmath.Int, len(denoms))
		for denom, amount := range denoms {
			copied[denom] = amount
		}
		balances[addr] = copied
	}
	allowances := make(map[allowanceKey]sdkmath.Int, len(k.allowances))
	for key, amount := range k.allowances {
		allowances[key] = amount
	}
	supply := make(map[string]sdkmath.Int, len(k.supply))
	for denom, amount := range k.supply {
		supply[denom] = amount
	}

	return func() {
		k.balances = balances
		k.allowances = allowances
		k.supply = supply
	}
}

func (k *Keeper) setBalance(addr sdk.AccAddress, denom string, amount sdkmath.Int) {
	denoms, ok := k.balances[string(addr)]
	if !ok {
		denoms = make(map[string]sdkmath.Int)
		k.balances[string(addr)] = denoms
	}
	if amount.IsZero() {
		delete(denoms, denom)
		return
	}
	denoms[denom] = amount
}

func validateTransfer(from, to sdk.AccAddress, amount sdkmath.Int) error {
	if from.Empty() || to.Empty() {
		return ErrInvalidAddress
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
