/*

This file contains the in-memory lending market used as the router's lending service by the daemon
and the tests. Deposits mint receipt tokens 1:1, interest is credited by minting more receipt tokens,
and incentives accrue per receipt holder until claimed.

*/

package lending

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldhook/internal/bank"
	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/utils"
)

var (
	errNilMarket             = errors.New("lending market: not initialised")
	ErrReserveNotListed      = errors.New("lending market: reserve not listed")
	ErrReserveExists         = errors.New("lending market: reserve already listed")
	ErrInvalidAmount         = errors.New("lending market: amount must be positive")
	ErrInsufficientReceipt   = errors.New("lending market: receipt balance too low")
	ErrInsufficientLiquidity = errors.New("lending market: insufficient liquidity")
	ErrStakeNotSupported     = errors.New("lending market: staking claimed rewards is not supported")
)

// Reserve is a listed asset and the receipt token minted for deposits of it.
type Reserve struct {
	Asset        string `json:"asset"`
	ReceiptDenom string `json:"receipt_denom"`
}

// Market is a single-account lending pool settled on a bank.Keeper.
type Market struct {
	bank        *bank.Keeper
	address     sdk.AccAddress
	rewardDenom string

	reserves map[string]Reserve // asset -> reserve
	receipts map[string]string  // receipt denom -> asset
	rewards  map[string]map[string]sdkmath.Int

	logger zerolog.Logger
}

// NewMarket creates a market custodying deposits at address and paying incentives in rewardDenom.
func NewMarket(keeper *bank.Keeper, address sdk.AccAddress, rewardDenom string) (*Market, error) {
	if keeper == nil {
		return nil, errNilMarket
	}
	if address.Empty() {
		return nil, errors.New("lending market: address cannot be empty")
	}
	if err := sdk.ValidateDenom(rewardDenom); err != nil {
		return nil, fmt.Errorf("lending market: reward denom: %w", err)
	}
	return &Market{
		bank:        keeper,
		address:     address,
		rewardDenom: rewardDenom,
		reserves:    make(map[string]Reserve),
		receipts:    make(map[string]string),
		rewards:     make(map[string]map[string]sdkmath.Int),
		logger:      logger.GetForComponent("lending_market"),
	}, nil
}

// Address returns the account that custodies deposits and needs the depositor's allowance.
func (m *Market) Address() sdk.AccAddress { return m.address }

// RewardDenom returns the incentive token.
func (m *Market) RewardDenom() string { return m.rewardDenom }

// ListReserve makes asset depositable against receiptDenom.
func (m *Market) ListReserve(asset, receiptDenom string) error {
	if err := sdk.ValidateDenom(asset); err != nil {
		return fmt.Errorf("lending market: asset: %w", err)
	}
	if err := sdk.ValidateDenom(receiptDenom); err != nil {
		return fmt.Errorf("lending market: receipt denom: %w", err)
	}
	if _, ok := m.reserves[asset]; ok {
		return errors.Join(ErrReserveExists, fmt.Errorf("asset %s", asset))
	}
	if _, ok := m.receipts[receiptDenom]; ok {
		return errors.Join(ErrReserveExists, fmt.Errorf("receipt %s", receiptDenom))
	}
	m.reserves[asset] = Reserve{Asset: asset, ReceiptDenom: receiptDenom}
	m.receipts[receiptDenom] = asset
	m.logger.Info().Str("asset", asset).Str("receipt", receiptDenom).Msg("Reserve listed")
	return nil
}

// Reserve returns the listing for asset.
func (m *Market) Reserve(asset string) (Reserve, bool) {
	r, ok := m.reserves[asset]
	return r, ok
}

// Reserves returns every listing sorted by asset.
func (m *Market) Reserves() []Reserve {
	out := make([]Reserve, 0, len(m.reserves))
	for _, r := range m.reserves {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// AvailableLiquidity is the underlying the market can pay out right now.
func (m *Market) AvailableLiquidity(asset string) sdkmath.Int {
	return m.bank.Balance(m.address, asset)
}

// Borrow lends market liquidity to borrower, reducing what depositors can withdraw.
func (m *Market) Borrow(borrower sdk.AccAddress, asset string, amount sdkmath.Int) error {
	if _, ok := m.reserves[asset]; !ok {
		return errors.Join(ErrReserveNotListed, fmt.Errorf("asset %s", asset))
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if m.AvailableLiquidity(asset).LT(amount) {
		return errors.Join(ErrInsufficientLiquidity, fmt.Errorf("borrow %s%s, available %s", amount, asset, m.AvailableLiquidity(asset)))
	}
	return m.bank.Send(m.address, borrower, asset, amount)
}

// AccrueInterest credits bps of every holder's receipt balance as new receipt tokens and funds the
// market with the matching underlying. It returns the total interest minted.
func (m *Market) AccrueInterest(asset string, bps uint64) (sdkmath.Int, error) {
	reserve, ok := m.reserves[asset]
	if !ok {
		return sdkmath.ZeroInt(), errors.Join(ErrReserveNotListed, fmt.Errorf("asset %s", asset))
	}
	total := sdkmath.ZeroInt()
	for _, holder := range m.bank.Holders(reserve.ReceiptDenom) {
		interest, err := utils.MulBps(m.bank.Balance(holder, reserve.ReceiptDenom), bps)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if interest.IsZero() {
			continue
		}
		if err := m.bank.Mint(holder, reserve.ReceiptDenom, interest); err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(interest)
	}
	if total.IsPositive() {
		if err := m.bank.Mint(m.address, asset, total); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	m.logger.Debug().Str("asset", asset).Uint64("bps", bps).Str("interest", total.String()).Msg("Interest accrued")
	return total, nil
}

// AccrueRewards credits incentive tokens to holder for holding receiptDenom.
func (m *Market) AccrueRewards(receiptDenom string, holder sdk.AccAddress, amount sdkmath.Int) error {
	if _, ok := m.receipts[receiptDenom]; !ok {
		return errors.Join(ErrReserveNotListed, fmt.Errorf("receipt %s", receiptDenom))
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	holders, ok := m.rewards[receiptDenom]
	if !ok {
		holders = make(map[string]sdkmath.Int)
		m.rewards[receiptDenom] = holders
	}
	holders[string(holder)] = utils.OrZero(holders[string(holder)]).Add(amount)
	return nil
}

// AccruedRewards returns holder's unclaimed incentives over the given receipt denoms.
func (m *Market) AccruedRewards(holder sdk.AccAddress, receiptDenoms ...string) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, denom := range receiptDenoms {
		total = total.Add(utils.OrZero(m.rewards[denom][string(holder)]))
	}
	return total
}

// Session binds the caller identity and returns the lending Service for it.
func (m *Market) Session(caller sdk.AccAddress) Service {
	return &session{market: m, caller: caller}
}

// Checkpoint snapshots listings and accrued incentives. Balances live in the bank keeper,
// which is checkpointed separately.
func (m *Market) Checkpoint() func() {
	reserves := make(map[string]Reserve, len(m.reserves))
	for k, v := range m.reserves {
		reserves[k] = v
	}
	receipts := make(map[string]string, len(m.receipts))
	for k, v := range m.receipts {
		receipts[k] = v
	}
	rewards := make(map[string]map[string]sdkmath.Int, len(m.rewards))
	for denom, holders := range m.rewards {
		copied := make(map[string]sdkmath.Int, len(holders))
		for h, amount := range holders {
			copied[h] = amount
		}
		rewards[denom] = copied
	}
	return func() {
		m.reserves = reserves
		m.receipts = receipts
		m.rewards = rewards
	}
}

type session struct {
	market *Market
	caller sdk.AccAddress
}

func (s *session) Deposit(_ context.Context, asset string, amount sdkmath.Int, onBehalfOf sdk.AccAddress, referralCode uint16) error {
	m := s.market
	reserve, ok := m.reserves[asset]
	if !ok {
		return errors.Join(ErrReserveNotListed, fmt.Errorf("asset %s", asset))
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := m.bank.TransferFrom(m.address, s.caller, m.address, asset, amount); err != nil {
		return fmt.Errorf("lending market: pull deposit: %w", err)
	}
	if err := m.bank.Mint(onBehalfOf, reserve.ReceiptDenom, amount); err != nil {
		return fmt.Errorf("lending market: mint receipt: %w", err)
	}
	m.logger.Debug().
		Str("asset", asset).
		Str("amount", amount.String()).
		Str("onBehalfOf", onBehalfOf.String()).
		Uint16("referral", referralCode).
		Msg("Deposit accepted")
	return nil
}

func (s *session) Withdraw(_ context.Context, asset string, amount sdkmath.Int, to sdk.AccAddress) (sdkmath.Int, error) {
	m := s.market
	reserve, ok := m.reserves[asset]
	if !ok {
		return sdkmath.ZeroInt(), errors.Join(ErrReserveNotListed, fmt.Errorf("asset %s", asset))
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	receiptBalance := m.bank.Balance(s.caller, reserve.ReceiptDenom)
	if utils.IsMaxInt(amount) {
		amount = receiptBalance
		if amount.IsZero() {
			return sdkmath.ZeroInt(), ErrInsufficientReceipt
		}
	}
	if receiptBalance.LT(amount) {
		return sdkmath.ZeroInt(), errors.Join(ErrInsufficientReceipt, fmt.Errorf("withdraw %s%s, receipt balance %s", amount, asset, receiptBalance))
	}
	if available := m.AvailableLiquidity(asset); available.LT(amount) {
		return sdkmath.ZeroInt(), errors.Join(ErrInsufficientLiquidity, fmt.Errorf("withdraw %s%s, available %s", amount, asset, available))
	}
	if err := m.bank.Burn(s.caller, reserve.ReceiptDenom, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := m.bank.Send(m.address, to, asset, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (s *session) ClaimRewards(_ context.Context, assets []string, amount sdkmath.Int, to sdk.AccAddress, stake bool) (sdkmath.Int, error) {
	m := s.market
	if stake {
		return sdkmath.ZeroInt(), ErrStakeNotSupported
	}
	if amount.IsNil() || amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	for _, denom := range assets {
		if _, ok := m.receipts[denom]; !ok {
			return sdkmath.ZeroInt(), errors.Join(ErrReserveNotListed, fmt.Errorf("receipt %s", denom))
		}
	}

	remaining := amount
	claimed := sdkmath.ZeroInt()
	for _, denom := range assets {
		if remaining.IsZero() {
			break
		}
		accrued := utils.OrZero(m.rewards[denom][string(s.caller)])
		take := sdkmath.MinInt(accrued, remaining)
		if take.IsZero() {
			continue
		}
		m.rewards[denom][string(s.caller)] = accrued.Sub(take)
		remaining = remaining.Sub(take)
		claimed = claimed.Add(take)
	}
	if claimed.IsPositive() {
		if err := m.bank.Mint(to, m.rewardDenom, claimed); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	return claimed, nil
}
