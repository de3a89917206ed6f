package vault_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/liquidity"
	"github.com/elys-network/clvault/internal/route"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

type deployedFixture struct {
	ctx     context.Context
	chain   *simulations.Chain
	engine  *vault.Engine
	manager *liquidity.Manager
	events  *types.EventRecorder
}

// setupDeployed binds the vault to a position manager and lets alice deposit 1000 USDT.
func setupDeployed(t *testing.T) *deployedFixture {
	t.Helper()
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	rec := types.NewEventRecorder(0)

	id, err := auth.NewIdentity(auth.Roles{Governance: governance, Admin: admin, Strategist: strategist, Rewards: rewards})
	require.NoError(t, err)
	require.NoError(t, id.AddAuthorized(governance, operator))

	manager, err := liquidity.NewManager(liquidity.Config{
		Address:    managerAdr,
		Ledger:     chain.Ledger(),
		Exchange:   chain.Router(),
		Custody:    chain.Custody(),
		Staker:     simulations.StakerAddress,
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       rec,
		Env:        chain,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Bind(ctx, governance, vaultAddr, simulations.USDT))
	require.NoError(t, manager.SetUnderlyings(ctx, governance, []common.Address{simulations.WETH}))
	for _, token := range []common.Address{simulations.WETH, simulations.USDT} {
		require.NoError(t, manager.SafeApproveAll(ctx, governance, token))
	}
	for _, pair := range [][2]common.Address{{simulations.WETH, simulations.USDT}, {simulations.USDT, simulations.WETH}} {
		path, err := route.EncodePath(pair[:], []uint32{simulations.DefaultFeeTier})
		require.NoError(t, err)
		require.NoError(t, manager.SettingSwapRoute(ctx, admin, path))
	}

	engine, err := vault.NewEngine(vault.Config{
		Address:    vaultAddr,
		Ledger:     chain.Ledger(),
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       rec,
		Env:        chain,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Bind(ctx, governance, simulations.USDT, manager))
	require.NoError(t, engine.SetCap(ctx, admin, usdt(10_000)))

	chain.Mint(simulations.USDT, alice, usdt(1000))
	require.NoError(t, chain.Ledger().Approve(ctx, simulations.USDT, alice, vaultAddr, usdt(1000)))
	_, err = engine.JoinPool(ctx, alice, usdt(1000))
	require.NoError(t, err)
	return &deployedFixture{ctx: ctx, chain: chain, engine: engine, manager: manager, events: rec}
}

// deploy opens a centered WETH/USDT position funded with amount of the manager's USDT.
func (f *deployedFixture) deploy(t *testing.T, amount sdkmath.Int) types.Position {
	t.Helper()
	return f.deployWidth(t, amount, 10)
}

// deployWidth is deploy with a range of width tick spacings on each side of the price.
func (f *deployedFixture) deployWidth(t *testing.T, amount sdkmath.Int, width int) types.Position {
	t.Helper()
	pool, err := f.chain.Custody().Pool(f.ctx, types.PoolKey{Token0: simulations.WETH, Token1: simulations.USDT, Fee: simulations.DefaultFeeTier})
	require.NoError(t, err)
	base := (pool.Tick / pool.TickSpacing) * pool.TickSpacing
	pos, err := f.manager.Mint(f.ctx, operator, liquidity.MintRequest{
		Token0:         simulations.WETH,
		Token1:         simulations.USDT,
		Fee:            simulations.DefaultFeeTier,
		TickLower:      base - width*pool.TickSpacing,
		TickUpper:      base + width*pool.TickSpacing,
		Amount0Desired: sdkmath.ZeroInt(),
		Amount1Desired: amount,
	})
	require.NoError(t, err)
	return pos
}

func (f *deployedFixture) balance(t *testing.T, token, holder common.Address) sdkmath.Int {
	t.Helper()
	bal, err := f.chain.Ledger().BalanceOf(f.ctx, token, holder)
	require.NoError(t, err)
	return bal
}

func TestExitPaidFromIdleLeavesPositions(t *testing.T) {
	f := setupDeployed(t)
	pos := f.deploy(t, usdt(500))

	// ACT
	paid, err := f.engine.ExitPool(f.ctx, alice, usdt(100))

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, paid, f.balance(t, simulations.USDT, alice))
	after, ok := f.manager.PositionByToken(pos.TokenID)
	require.True(t, ok)
	assert.Equal(t, pos.Liquidity, after.Liquidity)
}

func TestExitFreesDeployedLiquidity(t *testing.T) {
	f := setupDeployed(t)
	pos := f.deploy(t, usdt(1000))
	idleBefore := f.balance(t, simulations.USDT, managerAdr)
	require.True(t, idleBefore.LT(usdt(500)))

	// ACT
	paid, err := f.engine.ExitPool(f.ctx, alice, usdt(500))

	// ASSERT
	require.NoError(t, err)
	assert.True(t, paid.GT(usdt(490)), "paid %s", paid)
	assert.Equal(t, paid, f.balance(t, simulations.USDT, alice))
	after, ok := f.manager.PositionByToken(pos.TokenID)
	require.True(t, ok)
	assert.True(t, after.Liquidity.LT(pos.Liquidity))
	assert.True(t, after.Liquidity.IsPositive())
	assert.Equal(t, usdt(500), f.engine.BalanceOf(alice))
	requireConserved(t, f.engine)
}

func TestExitBeyondDeployedValueRollsBack(t *testing.T) {
	f := setupDeployed(t)
	pos := f.deploy(t, usdt(1000))
	sharesBefore := f.engine.TotalShares()

	// Swap costs on the way in leave less than the full deposit to pay out.
	_, err := f.engine.ExitPoolOfUnderlying(f.ctx, alice, usdt(1000))

	require.Error(t, err)
	after, ok := f.manager.PositionByToken(pos.TokenID)
	require.True(t, ok)
	assert.Equal(t, pos.Liquidity, after.Liquidity)
	assert.Equal(t, sharesBefore, f.engine.TotalShares())
	assert.True(t, f.balance(t, simulations.USDT, alice).IsZero())
}

func TestFailedExitRestoresPositionRecords(t *testing.T) {
	f := setupDeployed(t)
	// ARRANGE: only the first position can be unwound once the second is in the staker's custody.
	kept := f.deployWidth(t, usdt(400), 10)
	staked := f.deployWidth(t, usdt(500), 20)
	require.NotEqual(t, kept.TokenID, staked.TokenID)
	require.NoError(t, f.chain.Custody().SafeTransferFrom(f.ctx, managerAdr, managerAdr, simulations.StakerAddress, staked.TokenID, nil))
	f.events.Reset()

	// ACT
	_, err := f.engine.ExitPool(f.ctx, alice, f.engine.BalanceOf(alice))

	// ASSERT
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	record, ok := f.manager.PositionByToken(kept.TokenID)
	require.True(t, ok)
	data, err := f.chain.Custody().Positions(f.ctx, kept.TokenID)
	require.NoError(t, err)
	assert.Equal(t, kept.Liquidity, record.Liquidity)
	assert.Equal(t, data.Liquidity, record.Liquidity)
	assert.Empty(t, f.events.Events())

	// The restored position still backs a smaller exit beyond the manager's idle balance.
	require.True(t, f.balance(t, simulations.USDT, managerAdr).LT(usdt(130)))
	_, err = f.engine.ExitPool(f.ctx, alice, usdt(140))
	require.NoError(t, err)
	record, ok = f.manager.PositionByToken(kept.TokenID)
	require.True(t, ok)
	data, err = f.chain.Custody().Positions(f.ctx, kept.TokenID)
	require.NoError(t, err)
	assert.True(t, record.Liquidity.LT(kept.Liquidity))
	assert.Equal(t, data.Liquidity, record.Liquidity)
	assert.NotEmpty(t, f.events.Named(types.EventDecreaseLiquidity))
	assert.Len(t, f.events.Named(types.EventPoolExited), 1)
}

func TestStateReportsPositions(t *testing.T) {
	f := setupDeployed(t)
	f.deploy(t, usdt(400))

	st, err := f.engine.State(f.ctx)
	require.NoError(t, err)

	require.Len(t, st.Positions, 1)
	assert.True(t, st.LiquidityAssets.IsPositive())
	assert.True(t, st.IdleAssets.IsPositive())
	assert.Equal(t, st.TotalAssets, st.IdleAssets.Add(st.LiquidityAssets))
}
