package pool

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldhook/internal/bank"
	"github.com/elys-network/yieldhook/internal/events"
	"github.com/elys-network/yieldhook/internal/host"
	"github.com/elys-network/yieldhook/internal/lending"
	"github.com/elys-network/yieldhook/internal/router"
	"github.com/elys-network/yieldhook/internal/types"
)

var (
	routerAddr = sdk.AccAddress("yield_router________")
	authority  = sdk.AccAddress("router_authority____")
	marketAddr = sdk.AccAddress("lending_market______")
	lp         = sdk.AccAddress("liquidity_provider__")
	trader     = sdk.AccAddress("trader______________")
	borrower   = sdk.AccAddress("borrower____________")
)

type env struct {
	keeper  *bank.Keeper
	market  *lending.Market
	router  *router.Router
	journal *events.Journal
	host    *host.Host
	manager *Manager
	key     types.PoolKey
}

// newEnv seeds a 10000/10000 uatom/uusdc pool whose hook is the yield router.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	keeper := bank.NewKeeper()
	market, err := lending.NewMarket(keeper, marketAddr, "ureward")
	require.NoError(t, err)
	require.NoError(t, market.ListReserve("uusdc", "ausdc"))
	require.NoError(t, market.ListReserve("uatom", "aatom"))
	journal := events.NewJournal()

	r, err := router.New(router.Config{
		Address:         routerAddr,
		Authority:       authority,
		LendingAddress:  marketAddr,
		Ledger:          keeper,
		Lending:         market.Session(routerAddr),
		Emitter:         journal,
		ReserveRatioBps: router.DefaultReserveRatioBps,
	})
	require.NoError(t, err)
	h := host.New(keeper, market, r, journal)

	m, err := NewManager(Config{Ledger: keeper, Executor: h, Hooks: r, HookAddress: routerAddr})
	require.NoError(t, err)
	h.Register(m)
	r.SetQuoter(m)

	require.NoError(t, r.RegisterAsset(ctx, authority, "uusdc", "ausdc"))
	require.NoError(t, r.RegisterAsset(ctx, authority, "uatom", "aatom"))
	journal.Commit(ctx)

	key, err := types.NewPoolKey("uusdc", "uatom", 3_000, 60, routerAddr)
	require.NoError(t, err)
	_, err = m.Initialize(ctx, lp, key)
	require.NoError(t, err)

	require.NoError(t, keeper.Mint(lp, "uatom", sdkmath.NewInt(10_000)))
	require.NoError(t, keeper.Mint(lp, "uusdc", sdkmath.NewInt(10_000)))
	shares, _, err := m.AddLiquidity(ctx, lp, key, sdkmath.NewInt(10_000), sdkmath.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(10_000), shares.Int64())

	return &env{keeper: keeper, market: market, router: r, journal: journal, host: h, manager: m, key: key}
}

// requireCustodyMatchesReserves checks liquid plus staked equals the pool reserve for both currencies.
func (e *env) requireCustodyMatchesReserves(t *testing.T) {
	t.Helper()
	state, err := e.manager.Pool(e.key.ID())
	require.NoError(t, err)
	require.Equal(t, state.Reserve0.Int64(), e.router.CalculateWithdrawableAmount(context.Background(), "uatom").Int64())
	require.Equal(t, state.Reserve1.Int64(), e.router.CalculateWithdrawableAmount(context.Background(), "uusdc").Int64())
}

func TestAddLiquidityRestakesExcess(t *testing.T) {
	e := newEnv(t)

	require.Equal(t, int64(2_000), e.keeper.Balance(routerAddr, "uatom").Int64())
	require.Equal(t, int64(8_000), e.keeper.Balance(routerAddr, "aatom").Int64())
	require.Equal(t, int64(2_000), e.keeper.Balance(routerAddr, "uusdc").Int64())
	require.Equal(t, int64(8_000), e.keeper.Balance(routerAddr, "ausdc").Int64())
	e.requireCustodyMatchesReserves(t)

	recent := e.journal.Recent(2)
	require.Len(t, recent, 2)
	for _, ev := range recent {
		require.Equal(t, types.EventAssetStaked, ev.Type)
		require.NotEmpty(t, ev.TxID)
	}
	require.Equal(t, recent[0].TxID, recent[1].TxID)
}

func TestSwapExactInputSettlesAndRestakes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.keeper.Mint(trader, "uatom", sdkmath.NewInt(1_000)))

	quote, err := e.manager.QuoteExactInput(ctx, e.key, true, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(906), quote.Int64())

	delta, err := e.manager.Swap(ctx, trader, e.key, types.SwapParams{ZeroForOne: true, AmountSpecified: sdkmath.NewInt(-1_000)})
	require.NoError(t, err)
	require.Equal(t, int64(-1_000), delta.Amount0.Int64())
	require.Equal(t, int64(906), delta.Amount1.Int64())
	require.Equal(t, int64(906), e.keeper.Balance(trader, "uusdc").Int64())
	require.True(t, e.keeper.Balance(trader, "uatom").IsZero())

	// uatom: 3000 liquid, keep 600. uusdc: 1094 liquid, keep 218.
	require.Equal(t, int64(600), e.keeper.Balance(routerAddr, "uatom").Int64())
	require.Equal(t, int64(10_400), e.keeper.Balance(routerAddr, "aatom").Int64())
	require.Equal(t, int64(218), e.keeper.Balance(routerAddr, "uusdc").Int64())
	require.Equal(t, int64(8_876), e.keeper.Balance(routerAddr, "ausdc").Int64())
	e.requireCustodyMatchesReserves(t)
}

func TestSwapExactOutputRecallsFromLending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.keeper.Mint(trader, "uatom", sdkmath.NewInt(20_000)))

	delta, err := e.manager.Swap(ctx, trader, e.key, types.SwapParams{ZeroForOne: true, AmountSpecified: sdkmath.NewInt(5_000)})
	require.NoError(t, err)
	require.Equal(t, int64(5_000), delta.Amount1.Int64())
	require.Equal(t, int64(5_000), e.keeper.Balance(trader, "uusdc").Int64())
	require.True(t, delta.Amount0.IsNegative())
	e.requireCustodyMatchesReserves(t)

	var withdrawn bool
	for _, ev := range e.journal.Recent(0) {
		if ev.Type == types.EventAssetWithdrawn && ev.Asset == "uusdc" {
			withdrawn = true
			require.Equal(t, int64(3_000), ev.Amount.Int64())
		}
	}
	require.True(t, withdrawn)
}

func TestSwapFailureRevertsEverything(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.keeper.Mint(trader, "uatom", sdkmath.NewInt(20_000)))
	require.NoError(t, e.market.Borrow(borrower, "uusdc", sdkmath.NewInt(7_500)))
	before := e.keeper.Balances(routerAddr).String()
	committed := len(e.journal.Recent(0))

	_, err := e.manager.Swap(ctx, trader, e.key, types.SwapParams{ZeroForOne: true, AmountSpecified: sdkmath.NewInt(5_000)})
	require.ErrorIs(t, err, router.ErrInsufficientExternalLiquidity)

	require.Equal(t, before, e.keeper.Balances(routerAddr).String())
	require.Equal(t, int64(20_000), e.keeper.Balance(trader, "uatom").Int64())
	require.True(t, e.keeper.Balance(trader, "uusdc").IsZero())
	require.Empty(t, e.journal.Pending())
	require.Len(t, e.journal.Recent(0), committed)
	e.requireCustodyMatchesReserves(t)
}

func TestRemoveLiquidityIsLimitedByLiquidBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	delta, err := e.manager.RemoveLiquidity(ctx, lp, e.key, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(1_000), delta.Amount0.Int64())
	require.Equal(t, int64(1_000), delta.Amount1.Int64())
	require.Equal(t, int64(9_000), e.manager.Shares(e.key.ID(), lp).Int64())
	e.requireCustodyMatchesReserves(t)

	_, err = e.manager.RemoveLiquidity(ctx, lp, e.key, sdkmath.NewInt(5_000))
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	require.Equal(t, int64(9_000), e.manager.Shares(e.key.ID(), lp).Int64())

	_, err = e.manager.RemoveLiquidity(ctx, trader, e.key, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)
}

// wrongSelectorHooks acknowledges before-swap with the after-swap selector.
type wrongSelectorHooks struct {
	types.Hooks
}

func (h wrongSelectorHooks) BeforeSwap(ctx context.Context, sender sdk.AccAddress, key types.PoolKey, params types.SwapParams) (types.Selector, error) {
	if _, err := h.Hooks.BeforeSwap(ctx, sender, key, params); err != nil {
		return types.Selector{}, err
	}
	return types.SelectorAfterSwap, nil
}

func TestWrongHookSelectorAbortsOperation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m, err := NewManager(Config{Ledger: e.keeper, Executor: e.host, Hooks: wrongSelectorHooks{e.router}, HookAddress: routerAddr})
	require.NoError(t, err)
	e.host.Register(m)

	_, err = m.Initialize(ctx, lp, e.key)
	require.NoError(t, err)
	require.NoError(t, e.keeper.Mint(lp, "uatom", sdkmath.NewInt(1_000)))
	require.NoError(t, e.keeper.Mint(lp, "uusdc", sdkmath.NewInt(1_000)))
	_, _, err = m.AddLiquidity(ctx, lp, e.key, sdkmath.NewInt(1_000), sdkmath.NewInt(1_000))
	require.NoError(t, err)

	require.NoError(t, e.keeper.Mint(trader, "uatom", sdkmath.NewInt(100)))
	_, err = m.Swap(ctx, trader, e.key, types.SwapParams{ZeroForOne: true, AmountSpecified: sdkmath.NewInt(-100)})
	require.ErrorIs(t, err, ErrInvalidHookResponse)
	require.Equal(t, int64(100), e.keeper.Balance(trader, "uatom").Int64())
}

func TestInitializeValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.manager.Initialize(ctx, lp, e.key)
	require.ErrorIs(t, err, ErrPoolExists)

	other, err := types.NewPoolKey("uusdc", "uatom", 3_000, 60, trader)
	require.NoError(t, err)
	_, err = e.manager.Initialize(ctx, lp, other)
	require.ErrorIs(t, err, ErrHooksMismatch)

	missing, err := types.NewPoolKey("uusdc", "uosmo", 500, 10, routerAddr)
	require.NoError(t, err)
	_, err = e.manager.Swap(ctx, trader, missing, types.SwapParams{ZeroForOne: true, AmountSpecified: sdkmath.NewInt(-1)})
	require.ErrorIs(t, err, ErrPoolNotFound)

	_, err = e.manager.Swap(ctx, trader, e.key, types.SwapParams{AmountSpecified: sdkmath.ZeroInt()})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Len(t, e.manager.Pools(), 1)
}
