package router

import (
	"context"
	"errors"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldhook/internal/bank"
	"github.com/elys-network/yieldhook/internal/events"
	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/lending"
	"github.com/elys-network/yieldhook/internal/types"
	"github.com/elys-network/yieldhook/internal/utils"
)

var (
	routerAddr = sdk.AccAddress("yield_router________")
	authority  = sdk.AccAddress("router_authority____")
	stranger   = sdk.AccAddress("stranger____________")
	marketAddr = sdk.AccAddress("lending_market______")
)

type fixture struct {
	router  *Router
	keeper  *bank.Keeper
	market  *lending.Market
	journal *events.Journal
	host    *host.Host
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	keeper := bank.NewKeeper()
	market, err := lending.NewMarket(keeper, marketAddr, "ureward")
	require.NoError(t, err)
	require.NoError(t, market.ListReserve("uusdc", "ausdc"))
	require.NoError(t, market.ListReserve("uatom", "aatom"))
	journal := events.NewJournal()

	cfg := Config{
		Address:         routerAddr,
		Authority:       authority,
		LendingAddress:  marketAddr,
		Ledger:          keeper,
		Lending:         market.Session(routerAddr),
		Emitter:         journal,
		ReserveRatioBps: DefaultReserveRatioBps,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)

	return &fixture{
		router:  r,
		keeper:  keeper,
		market:  market,
		journal: journal,
		host:    host.New(keeper, market, r, journal),
	}
}

func (f *fixture) register(t *testing.T, asset, receipt string) {
	t.Helper()
	require.NoError(t, f.router.RegisterAsset(context.Background(), authority, asset, receipt))
}

func (f *fixture) fund(t *testing.T, denom string, amount int64) {
	t.Helper()
	require.NoError(t, f.keeper.Mint(routerAddr, denom, sdkmath.NewInt(amount)))
}

func eventTypes(evs []types.RouterEvent) []types.EventType {
	out := make([]types.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

type fixedQuoter struct {
	out   sdkmath.Int
	err   error
	calls int
}

func (q *fixedQuoter) QuoteExactInput(context.Context, types.PoolKey, bool, sdkmath.Int) (sdkmath.Int, error) {
	q.calls++
	return q.out, q.err
}

// reentrantLending calls back into the router from inside Deposit.
type reentrantLending struct {
	lending.Service
	router *Router
}

func (l *reentrantLending) Deposit(ctx context.Context, asset string, _ sdkmath.Int, _ sdk.AccAddress, _ uint16) error {
	_, err := l.router.StakeAvailable(ctx, asset)
	return err
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	keeper := bank.NewKeeper()
	journal := events.NewJournal()
	market, err := lending.NewMarket(keeper, marketAddr, "ureward")
	require.NoError(t, err)

	base := Config{
		Address:        routerAddr,
		Authority:      authority,
		LendingAddress: marketAddr,
		Ledger:         keeper,
		Lending:        market.Session(routerAddr),
		Emitter:        journal,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ratio above 10000", func(c *Config) { c.ReserveRatioBps = 10_001 }},
		{"missing authority", func(c *Config) { c.Authority = nil }},
		{"missing ledger", func(c *Config) { c.Ledger = nil }},
		{"missing lending", func(c *Config) { c.Lending = nil }},
		{"negative minimum", func(c *Config) { c.MinDepositAmount = sdkmath.NewInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	r, err := New(base)
	require.NoError(t, err)
	require.Zero(t, r.ReserveRatio())
}

func TestRegisterAssetGrantsUnlimitedAllowance(t *testing.T) {
	f := newFixture(t)
	f.register(t, "uusdc", "ausdc")

	reg, ok := f.router.Registration("uusdc")
	require.True(t, ok)
	require.Equal(t, types.AssetRegistration{Asset: "uusdc", ReceiptAsset: "ausdc", Supported: true}, reg)
	require.True(t, utils.IsMaxInt(f.keeper.Allowance(routerAddr, marketAddr, "uusdc")))
	require.Equal(t, []types.EventType{types.EventAssetRegistered}, eventTypes(f.journal.Pending()))
}

func TestRegisterAssetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.router.RegisterAsset(ctx, stranger, "uusdc", "ausdc"), ErrUnauthorized)
	require.ErrorIs(t, f.router.RegisterAsset(ctx, authority, "", "ausdc"), ErrInvalidDenom)
	require.ErrorIs(t, f.router.RegisterAsset(ctx, authority, "uusdc", "uusdc"), ErrInvalidDenom)
	require.Empty(t, f.router.Registrations())
	require.Empty(t, f.journal.Pending())
}

func TestUnregisterAssetRevokesAllowanceAndKeepsReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)
	_, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)

	require.ErrorIs(t, f.router.UnregisterAsset(ctx, stranger, "uusdc"), ErrUnauthorized)
	require.NoError(t, f.router.UnregisterAsset(ctx, authority, "uusdc"))

	reg, ok := f.router.Registration("uusdc")
	require.True(t, ok)
	require.False(t, reg.Supported)
	require.Equal(t, "ausdc", reg.ReceiptAsset)
	require.True(t, f.keeper.Allowance(routerAddr, marketAddr, "uusdc").IsZero())

	_, err = f.router.StakeAvailable(ctx, "uusdc")
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.ErrorIs(t, f.router.UnregisterAsset(ctx, authority, "uusdc"), ErrUnsupportedAsset)
	require.ErrorIs(t, f.router.UnregisterAsset(ctx, authority, "uatom"), ErrUnsupportedAsset)

	require.Equal(t, int64(1_000), f.router.CalculateWithdrawableAmount(ctx, "uusdc").Int64())
}

func TestStakeAvailableHandlesHugeBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	balance := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 250))
	require.NoError(t, f.keeper.Mint(routerAddr, "uusdc", balance))

	reserve, err := f.router.ReserveTarget("uusdc")
	require.NoError(t, err)
	require.Equal(t, balance.QuoRaw(5).String(), reserve.String())

	deposited, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.Equal(t, balance.Sub(reserve).String(), deposited.String())
	require.Equal(t, reserve.String(), f.keeper.Balance(routerAddr, "uusdc").String())
	require.Equal(t, balance.String(), f.router.CalculateWithdrawableAmount(ctx, "uusdc").String())
}

func TestStakeAvailableKeepsReserveAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)

	deposited, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.Equal(t, int64(800), deposited.Int64())
	require.Equal(t, int64(200), f.keeper.Balance(routerAddr, "uusdc").Int64())
	require.Equal(t, int64(800), f.keeper.Balance(routerAddr, "ausdc").Int64())

	deposited, err = f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.True(t, deposited.IsZero())

	pending := f.journal.Pending()
	require.Equal(t, []types.EventType{types.EventAssetRegistered, types.EventAssetStaked}, eventTypes(pending))
	require.Equal(t, int64(800), pending[1].Amount.Int64())
	require.Equal(t, "ausdc", pending[1].ReceiptAsset)
}

func TestStakeAvailableFloorsReserveTarget(t *testing.T) {
	f := newFixture(t)
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 7)

	// floor(7 * 2000 / 10000) = 1
	deposited, err := f.router.StakeAvailable(context.Background(), "uusdc")
	require.NoError(t, err)
	require.Equal(t, int64(6), deposited.Int64())
	require.Equal(t, int64(1), f.keeper.Balance(routerAddr, "uusdc").Int64())
}

func TestStakeAvailableUnsupportedAsset(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "uusdc", 1_000)
	_, err := f.router.StakeAvailable(context.Background(), "uusdc")
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.Equal(t, int64(1_000), f.keeper.Balance(routerAddr, "uusdc").Int64())
}

func TestStakeAvailableRespectsMinimumDeposit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MinDepositAmount = sdkmath.NewInt(1_000) })
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)

	deposited, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.True(t, deposited.IsZero())
	require.True(t, f.keeper.Balance(routerAddr, "ausdc").IsZero())

	f.fund(t, "uusdc", 250)
	deposited, err = f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), deposited.Int64())
}

func TestSetReserveRatio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)

	require.ErrorIs(t, f.router.SetReserveRatio(ctx, stranger, 5_000), ErrUnauthorized)
	require.ErrorIs(t, f.router.SetReserveRatio(ctx, authority, 10_001), ErrInvalidConfiguration)
	require.Equal(t, DefaultReserveRatioBps, f.router.ReserveRatio())

	require.NoError(t, f.router.SetReserveRatio(ctx, authority, 10_000))
	deposited, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.True(t, deposited.IsZero())

	require.NoError(t, f.router.SetReserveRatio(ctx, authority, 0))
	deposited, err = f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.Equal(t, int64(1_000), deposited.Int64())

	var updates []types.RouterEvent
	for _, ev := range f.journal.Pending() {
		if ev.Type == types.EventReserveRatioUpdated {
			updates = append(updates, ev)
		}
	}
	require.Len(t, updates, 2)
	require.Equal(t, DefaultReserveRatioBps, updates[0].OldRatioBps)
	require.Equal(t, uint64(10_000), updates[0].NewRatioBps)
	require.Equal(t, uint64(0), updates[1].NewRatioBps)
}

func TestEnsureLiquidityWithdrawsShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)
	_, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.NoError(t, f.keeper.Send(routerAddr, stranger, "uusdc", sdkmath.NewInt(150)))

	withdrawn, err := f.router.EnsureLiquidity(ctx, "uusdc", sdkmath.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, int64(250), withdrawn.Int64())
	require.Equal(t, int64(300), f.keeper.Balance(routerAddr, "uusdc").Int64())
	require.Equal(t, int64(550), f.keeper.Balance(routerAddr, "ausdc").Int64())

	pending := f.journal.Pending()
	last := pending[len(pending)-1]
	require.Equal(t, types.EventAssetWithdrawn, last.Type)
	require.Equal(t, int64(250), last.Amount.Int64())
}

func TestEnsureLiquidityNoopWhenCovered(t *testing.T) {
	f := newFixture(t)
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 300)
	before := len(f.journal.Pending())

	withdrawn, err := f.router.EnsureLiquidity(context.Background(), "uusdc", sdkmath.NewInt(300))
	require.NoError(t, err)
	require.True(t, withdrawn.IsZero())
	require.Len(t, f.journal.Pending(), before)
}

func TestEnsureLiquidityFailsWhenLendingIsIlliquid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)
	_, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.NoError(t, f.market.Borrow(stranger, "uusdc", sdkmath.NewInt(750)))

	_, err = f.router.EnsureLiquidity(ctx, "uusdc", sdkmath.NewInt(300))
	require.ErrorIs(t, err, ErrInsufficientExternalLiquidity)
	require.ErrorIs(t, err, lending.ErrInsufficientLiquidity)
	require.Equal(t, int64(200), f.keeper.Balance(routerAddr, "uusdc").Int64())

	_, err = f.router.EnsureLiquidity(ctx, "uatom", sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestHarvestYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(t, "uusdc", 1_000)
	before := f.keeper.Balances(routerAddr).String()
	_, err := f.router.HarvestYield(ctx, "uusdc")
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.Equal(t, before, f.keeper.Balances(routerAddr).String())
	require.Empty(t, f.journal.Pending())

	f.register(t, "uusdc", "ausdc")
	_, err = f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	require.NoError(t, f.market.AccrueRewards("ausdc", routerAddr, sdkmath.NewInt(40)))

	res, err := f.router.HarvestYield(ctx, "uusdc")
	require.NoError(t, err)
	require.Equal(t, int64(40), res.Claimed.Int64())
	require.Equal(t, int64(800), res.ReceiptBalance.Int64())
	require.Equal(t, int64(40), f.keeper.Balance(routerAddr, "ureward").Int64())

	pending := f.journal.Pending()
	last := pending[len(pending)-1]
	require.Equal(t, types.EventYieldHarvested, last.Type)
	require.Equal(t, int64(800), last.Amount.Int64())
	require.Equal(t, int64(40), last.Claimed.Int64())

	// Nothing left to claim still reports the receipt balance.
	res, err = f.router.HarvestYield(ctx, "uusdc")
	require.NoError(t, err)
	require.True(t, res.Claimed.IsZero())
	require.Equal(t, int64(800), res.ReceiptBalance.Int64())

	// Unregistered: rewards stay with the market, asset, receipt and reward balances are untouched.
	require.NoError(t, f.router.UnregisterAsset(ctx, authority, "uusdc"))
	require.NoError(t, f.market.AccrueRewards("ausdc", routerAddr, sdkmath.NewInt(15)))
	emitted := len(f.journal.Pending())
	before = f.keeper.Balances(routerAddr).String()

	_, err = f.router.HarvestYield(ctx, "uusdc")
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	require.Equal(t, before, f.keeper.Balances(routerAddr).String())
	require.Equal(t, int64(200), f.keeper.Balance(routerAddr, "uusdc").Int64())
	require.Equal(t, int64(800), f.keeper.Balance(routerAddr, "ausdc").Int64())
	require.Equal(t, int64(40), f.keeper.Balance(routerAddr, "ureward").Int64())
	require.Equal(t, int64(15), f.market.AccruedRewards(routerAddr, "ausdc").Int64())
	require.Len(t, f.journal.Pending(), emitted)
}

func TestCalculateWithdrawableAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "uatom", 42)
	require.Equal(t, int64(42), f.router.CalculateWithdrawableAmount(ctx, "uatom").Int64())

	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)
	_, err := f.router.StakeAvailable(ctx, "uusdc")
	require.NoError(t, err)
	_, err = f.market.AccrueInterest("uusdc", 100)
	require.NoError(t, err)

	// 200 liquid + 808 receipt
	require.Equal(t, int64(1_008), f.router.CalculateWithdrawableAmount(ctx, "uusdc").Int64())
}

func TestReentrantCallIsRejected(t *testing.T) {
	reentrant := &reentrantLending{}
	f := newFixture(t, func(c *Config) {
		reentrant.Service = c.Lending
		c.Lending = reentrant
	})
	reentrant.router = f.router
	f.register(t, "uusdc", "ausdc")
	f.fund(t, "uusdc", 1_000)

	_, err := f.router.StakeAvailable(context.Background(), "uusdc")
	require.ErrorIs(t, err, ErrReentrantCall)

	// The guard is released once the outer call returns.
	_, err = f.router.EnsureLiquidity(context.Background(), "uusdc", sdkmath.NewInt(1))
	require.NoError(t, err)
}

func TestConfigurationChangesRejectReentry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.router.entered.Store(true)
	require.ErrorIs(t, f.router.SetReserveRatio(ctx, authority, 5_000), ErrReentrantCall)
	require.ErrorIs(t, f.router.Restore(nil, types.RouterParameters{ReserveRatioBps: 100}), ErrReentrantCall)
	require.Equal(t, uint64(DefaultReserveRatioBps), f.router.ReserveRatio())
	require.Empty(t, f.journal.Pending())

	f.router.entered.Store(false)
	require.NoError(t, f.router.SetReserveRatio(ctx, authority, 5_000))
	require.Equal(t, uint64(5_000), f.router.ReserveRatio())
}

func TestAtomicRevertDropsStateAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "uusdc", 1_000)
	boom := errors.New("boom")

	err := f.host.Atomic(ctx, "register and stake", func(ctx context.Context) error {
		if err := f.router.RegisterAsset(ctx, authority, "uusdc", "ausdc"); err != nil {
			return err
		}
		if _, err := f.router.StakeAvailable(ctx, "uusdc"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.False(t, f.router.IsSupported("uusdc"))
	require.Equal(t, int64(1_000), f.keeper.Balance(routerAddr, "uusdc").Int64())
	require.True(t, f.keeper.Balance(routerAddr, "ausdc").IsZero())
	require.True(t, f.keeper.Allowance(routerAddr, marketAddr, "uusdc").IsZero())
	require.Empty(t, f.journal.Pending())
	require.Empty(t, f.journal.Recent(0))
}

func TestRestoreReapprovesSupportedAssets(t *testing.T) {
	f := newFixture(t)
	regs := []types.AssetRegistration{
		{Asset: "uusdc", ReceiptAsset: "ausdc", Supported: true},
		{Asset: "uatom", ReceiptAsset: "aatom", Supported: false},
	}
	require.NoError(t, f.router.Restore(regs, types.RouterParameters{ReserveRatioBps: 3_000}))

	require.True(t, f.router.IsSupported("uusdc"))
	require.False(t, f.router.IsSupported("uatom"))
	require.Equal(t, uint64(3_000), f.router.ReserveRatio())
	require.True(t, utils.IsMaxInt(f.keeper.Allowance(routerAddr, marketAddr, "uusdc")))
	require.True(t, f.keeper.Allowance(routerAddr, marketAddr, "uatom").IsZero())

	err := f.router.Restore(nil, types.RouterParameters{ReserveRatioBps: 20_000})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	err = f.router.Restore([]types.AssetRegistration{{Asset: "uosmo", Supported: true}}, types.RouterParameters{})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestHarvestAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "uusdc", "ausdc")
	// uosmo is not listed on the market, so claiming its receipt fails.
	f.register(t, "uosmo", "aosmo")
	f.journal.Commit(ctx)
	require.NoError(t, f.market.AccrueRewards("ausdc", routerAddr, sdkmath.NewInt(5)))

	results, errs := f.router.HarvestAll(ctx, f.host)
	require.Len(t, results, 1)
	require.Equal(t, "uusdc", results[0].Asset)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], lending.ErrReserveNotListed)

	recent := f.journal.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, types.EventYieldHarvested, recent[0].Type)
	require.NotEmpty(t, recent[0].TxID)
}
