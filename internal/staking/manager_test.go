package staking_test

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
	"github.com/elys-network/clvault/internal/staking"
	"github.com/elys-network/clvault/internal/types"
)

const start = int64(1_700_000_000)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	rewards    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	operator   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	holder     = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

type fixture struct {
	ctx       context.Context
	chain     *simulations.Chain
	positions *liquidity.Manager
	staking   *staking.Manager
	recorder  *types.EventRecorder
	pool      types.PoolState
	tokenID   types.TokenID
}

// setupStaking opens one WETH/USDT position held by the position manager and funds it with UNI for incentives.
func setupStaking(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)

	id, err := auth.NewIdentity(auth.Roles{Governance: governance, Admin: admin, Rewards: rewards})
	require.NoError(t, err)
	require.NoError(t, id.AddAuthorized(governance, operator))

	positions, err := liquidity.NewManager(liquidity.Config{
		Address:    holder,
		Ledger:     chain.Ledger(),
		Exchange:   chain.Router(),
		Custody:    chain.Custody(),
		Staker:     simulations.StakerAddress,
		Authorizer: id,
		Clock:      chain.Now,
		Env:        chain,
	})
	require.NoError(t, err)
	require.NoError(t, positions.Bind(ctx, governance, vaultAddr, simulations.USDT))
	require.NoError(t, positions.SetUnderlyings(ctx, governance, []common.Address{simulations.WETH}))
	for _, token := range []common.Address{simulations.WETH, simulations.USDT} {
		require.NoError(t, positions.SafeApproveAll(ctx, governance, token))
	}
	require.NoError(t, positions.SafeApproveStaker(ctx, governance, simulations.UNI))
	for _, pair := range [][2]common.Address{{simulations.WETH, simulations.USDT}, {simulations.USDT, simulations.WETH}} {
		path, err := route.EncodePath(pair[:], []uint32{simulations.DefaultFeeTier})
		require.NoError(t, err)
		require.NoError(t, positions.SettingSwapRoute(ctx, admin, path))
	}

	key := types.PoolKey{Token0: simulations.WETH, Token1: simulations.USDT, Fee: simulations.DefaultFeeTier}
	pool, err := chain.Custody().Pool(ctx, key)
	require.NoError(t, err)

	chain.Mint(simulations.WETH, holder, simulations.WholeUnits(1, 18))
	chain.Mint(simulations.USDT, holder, simulations.WholeUnits(2000, 6))
	chain.Mint(simulations.UNI, holder, simulations.WholeUnits(1000, 18))
	base := (pool.Tick / pool.TickSpacing) * pool.TickSpacing
	pos, err := positions.Mint(ctx, operator, liquidity.MintRequest{
		Token0:         simulations.WETH,
		Token1:         simulations.USDT,
		Fee:            simulations.DefaultFeeTier,
		TickLower:      base - 10*pool.TickSpacing,
		TickUpper:      base + 10*pool.TickSpacing,
		Amount0Desired: simulations.WholeUnits(1, 18),
		Amount1Desired: simulations.WholeUnits(2000, 6),
	})
	require.NoError(t, err)

	recorder := types.NewEventRecorder(0)
	sm, err := staking.NewManager(staking.Config{
		Holder:     holder,
		Custody:    chain.Custody(),
		Staker:     chain.Staker(),
		Positions:  positions,
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       recorder,
		Env:        chain,
	})
	require.NoError(t, err)
	return &fixture{ctx: ctx, chain: chain, positions: positions, staking: sm, recorder: recorder, pool: pool, tokenID: pos.TokenID}
}

func (f *fixture) createIncentive(t *testing.T, duration int64, reward int64) types.IncentiveKey {
	t.Helper()
	now := f.chain.Now()
	key, err := f.staking.CreateIncentive(f.ctx, admin, simulations.UNI, f.pool.Address, now, now+duration, simulations.WholeUnits(reward, 18))
	require.NoError(t, err)
	return key
}

func (f *fixture) balance(t *testing.T, token, owner common.Address) sdkmath.Int {
	t.Helper()
	bal, err := f.chain.Ledger().BalanceOf(f.ctx, token, owner)
	require.NoError(t, err)
	return bal
}

func TestStakingLifecycle(t *testing.T) {
	f := setupStaking(t)

	// ARRANGE
	key := f.createIncentive(t, 1000, 100)
	assert.Equal(t, holder, key.Refundee)
	assert.Equal(t, simulations.WholeUnits(900, 18), f.balance(t, simulations.UNI, holder))

	// ACT: deposit and stake
	require.NoError(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID))
	deposited, err := f.staking.CheckStakers(f.ctx, f.tokenID)
	require.NoError(t, err)
	assert.True(t, deposited)
	require.NoError(t, f.staking.StakeToken(f.ctx, operator, key, f.tokenID))
	staked, ok := f.staking.StakedIncentive(f.tokenID)
	require.True(t, ok)
	assert.Equal(t, key, staked)

	// ACT: half the window later, unstake and claim
	f.chain.Advance(500)
	require.NoError(t, f.staking.UnStakeToken(f.ctx, operator, key, f.tokenID))
	_, ok = f.staking.StakedIncentive(f.tokenID)
	assert.False(t, ok)
	deposited, err = f.staking.CheckStakers(f.ctx, f.tokenID)
	require.NoError(t, err)
	assert.True(t, deposited, "unstaking leaves custody with the staker")

	owed, err := f.staking.Rewards(f.ctx, simulations.UNI)
	require.NoError(t, err)
	assert.Equal(t, simulations.WholeUnits(50, 18), owed)
	claimed, err := f.staking.ClaimReward(f.ctx, operator, simulations.UNI)
	require.NoError(t, err)
	assert.Equal(t, simulations.WholeUnits(50, 18), claimed)

	// ACT: bring the token home and close the incentive
	require.NoError(t, f.staking.WithdrawToken(f.ctx, operator, f.tokenID, nil))
	owner, err := f.chain.Custody().OwnerOf(f.ctx, f.tokenID)
	require.NoError(t, err)
	assert.Equal(t, holder, owner)

	f.chain.Advance(600)
	refund, err := f.staking.EndIncentive(f.ctx, admin, key)
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, simulations.WholeUnits(50, 18), refund)
	assert.Equal(t, simulations.WholeUnits(1000, 18), f.balance(t, simulations.UNI, holder))
	assert.Empty(t, f.staking.Incentives())
	assert.Len(t, f.recorder.Named(types.EventStaker), 1)
	assert.Len(t, f.recorder.Named(types.EventUnStaker), 1)
}

func TestClaimWithNothingOwedReturnsZero(t *testing.T) {
	f := setupStaking(t)
	claimed, err := f.staking.ClaimReward(f.ctx, operator, simulations.UNI)
	require.NoError(t, err)
	assert.True(t, claimed.IsZero())
}

func TestStakeRequiresDepositAndActiveIncentive(t *testing.T) {
	f := setupStaking(t)
	key := f.createIncentive(t, 1000, 100)

	err := f.staking.StakeToken(f.ctx, operator, key, f.tokenID)
	require.ErrorIs(t, err, types.ErrNotStaked)

	require.NoError(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID))
	require.ErrorIs(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID), types.ErrAlreadyStaked)

	f.chain.Advance(1000)
	err = f.staking.StakeToken(f.ctx, operator, key, f.tokenID)
	require.ErrorIs(t, err, types.ErrIncentiveInactive)
	_, ok := f.staking.StakedIncentive(f.tokenID)
	assert.False(t, ok)
}

func TestWithdrawTokenWhileStakedFails(t *testing.T) {
	f := setupStaking(t)
	key := f.createIncentive(t, 1000, 100)
	require.NoError(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID))
	require.NoError(t, f.staking.StakeToken(f.ctx, operator, key, f.tokenID))

	require.ErrorIs(t, f.staking.WithdrawToken(f.ctx, operator, f.tokenID, nil), types.ErrAlreadyStaked)
	require.ErrorIs(t, f.staking.StakeToken(f.ctx, operator, key, f.tokenID), types.ErrAlreadyStaked)
}

func TestEndIncentiveUnstakesRemainingTokens(t *testing.T) {
	f := setupStaking(t)
	key := f.createIncentive(t, 1000, 100)
	require.NoError(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID))
	require.NoError(t, f.staking.StakeToken(f.ctx, operator, key, f.tokenID))

	_, err := f.staking.EndIncentive(f.ctx, admin, key)
	require.ErrorIs(t, err, types.ErrInvalidWindow)

	f.chain.Advance(1000)
	refund, err := f.staking.EndIncentive(f.ctx, admin, key)
	require.NoError(t, err)

	// The stake earned the full window, so nothing is refunded.
	assert.True(t, refund.IsZero())
	_, ok := f.staking.StakedIncentive(f.tokenID)
	assert.False(t, ok)
	deposited, err := f.staking.CheckStakers(f.ctx, f.tokenID)
	require.NoError(t, err)
	assert.True(t, deposited)
	owed, err := f.staking.Rewards(f.ctx, simulations.UNI)
	require.NoError(t, err)
	assert.Equal(t, simulations.WholeUnits(100, 18), owed)
}

func TestStakedPositionsAreSkippedByWithdraw(t *testing.T) {
	f := setupStaking(t)
	require.NoError(t, f.staking.StakerNFT(f.ctx, operator, f.tokenID))

	views, err := f.positions.PositionViews(f.ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Staked)

	paid, err := f.positions.Withdraw(f.ctx, vaultAddr, vaultAddr, simulations.WholeUnits(100, 6), sdkmath.NewIntWithDecimal(1, 18))
	require.NoError(t, err)
	assert.True(t, paid.LT(simulations.WholeUnits(100, 6)))
	pos, ok := f.positions.PositionByToken(f.tokenID)
	require.True(t, ok)
	assert.True(t, pos.Liquidity.IsPositive())
}

func TestStakingCapabilities(t *testing.T) {
	f := setupStaking(t)
	now := f.chain.Now()
	_, err := f.staking.CreateIncentive(f.ctx, operator, simulations.UNI, f.pool.Address, now, now+10, sdkmath.OneInt())
	require.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = f.staking.CreateIncentive(f.ctx, admin, simulations.UNI, f.pool.Address, now+10, now+10, sdkmath.OneInt())
	require.ErrorIs(t, err, types.ErrInvalidWindow)
	require.ErrorIs(t, f.staking.StakerNFT(f.ctx, stranger, f.tokenID), types.ErrUnauthorized)
	_, err = f.staking.ClaimReward(f.ctx, stranger, simulations.UNI)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestFailedCallRollsBack(t *testing.T) {
	f := setupStaking(t)
	now := f.chain.Now()
	before := f.balance(t, simulations.UNI, holder)

	// More reward than the holder owns fails inside the staker.
	_, err := f.staking.CreateIncentive(f.ctx, admin, simulations.UNI, f.pool.Address, now, now+100, simulations.WholeUnits(5000, 18))
	require.Error(t, err)
	assert.Empty(t, f.staking.Incentives())
	assert.Equal(t, before, f.balance(t, simulations.UNI, holder))
}
