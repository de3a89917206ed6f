package simulations_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/route"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/types"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const start = int64(1_700_000_000)

func TestLedgerAllowance(t *testing.T) {
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	ledger := chain.Ledger()
	chain.Mint(simulations.USDT, alice, sdkmath.NewInt(100))

	err := ledger.TransferFrom(ctx, simulations.USDT, bob, alice, bob, sdkmath.NewInt(10))
	require.ErrorIs(t, err, simulations.ErrInsufficientAllow)

	require.NoError(t, ledger.Approve(ctx, simulations.USDT, alice, bob, sdkmath.NewInt(10)))
	require.NoError(t, ledger.TransferFrom(ctx, simulations.USDT, bob, alice, bob, sdkmath.NewInt(10)))

	allowance, err := ledger.Allowance(ctx, simulations.USDT, alice, bob)
	require.NoError(t, err)
	assert.True(t, allowance.IsZero())

	bal, err := ledger.BalanceOf(ctx, simulations.USDT, bob)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(10), bal)

	require.ErrorIs(t, ledger.Transfer(ctx, simulations.USDT, bob, alice, sdkmath.NewInt(11)), simulations.ErrInsufficientBalance)
}

func TestRouterQuotesAndSwaps(t *testing.T) {
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	router := chain.Router()
	path, err := route.EncodePath([]common.Address{simulations.WETH, simulations.USDT}, []uint32{3000})
	require.NoError(t, err)

	// 1 WETH at 2000 less 0.3%
	out, err := router.QuoteExactInput(ctx, path, simulations.WholeUnits(1, 18))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_994_000_000), out)

	chain.Mint(simulations.WETH, alice, simulations.WholeUnits(1, 18))
	require.NoError(t, chain.Ledger().Approve(ctx, simulations.WETH, alice, simulations.RouterAddress, types.MaxUint256))
	got, err := router.ExactInput(ctx, alice, types.ExactInputParams{
		Path: path, Recipient: alice, Deadline: start, AmountIn: simulations.WholeUnits(1, 18), AmountOutMinimum: out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, got)

	reversed, err := route.ReversePath(path)
	require.NoError(t, err)
	in, err := router.QuoteExactOutput(ctx, reversed, sdkmath.NewInt(1_994_000_000))
	require.NoError(t, err)
	assert.Equal(t, simulations.WholeUnits(1, 18), in)

	_, err = router.ExactInput(ctx, alice, types.ExactInputParams{
		Path: path, Recipient: alice, Deadline: start - 1, AmountIn: sdkmath.NewInt(1), AmountOutMinimum: sdkmath.ZeroInt(),
	})
	require.ErrorIs(t, err, simulations.ErrDeadlinePassed)
}

func TestCheckpointRevert(t *testing.T) {
	chain := simulations.NewDefaultChain(start)
	chain.Mint(simulations.USDT, alice, sdkmath.NewInt(100))

	revert := chain.Checkpoint()
	chain.Mint(simulations.USDT, alice, sdkmath.NewInt(50))
	chain.Advance(10)
	revert()

	bal, err := chain.Ledger().BalanceOf(context.Background(), simulations.USDT, alice)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100), bal)
	assert.Equal(t, start, chain.Now())
}

func TestCustodyLifecycle(t *testing.T) {
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	custody := chain.Custody()
	key := types.PoolKey{Token0: simulations.WETH, Token1: simulations.USDT, Fee: simulations.DefaultFeeTier}

	pool, err := custody.Pool(ctx, key)
	require.NoError(t, err)
	tickLower := (pool.Tick/60 - 10) * 60
	tickUpper := (pool.Tick/60 + 10) * 60

	chain.Mint(simulations.WETH, alice, simulations.WholeUnits(1, 18))
	chain.Mint(simulations.USDT, alice, simulations.WholeUnits(2000, 6))
	require.NoError(t, chain.Ledger().Approve(ctx, simulations.WETH, alice, simulations.CustodyAddress, types.MaxUint256))
	require.NoError(t, chain.Ledger().Approve(ctx, simulations.USDT, alice, simulations.CustodyAddress, types.MaxUint256))

	minted, err := custody.Mint(ctx, alice, types.MintParams{
		Key: key, TickLower: tickLower, TickUpper: tickUpper,
		Amount0Desired: simulations.WholeUnits(1, 18), Amount1Desired: simulations.WholeUnits(2000, 6),
		Amount0Min: sdkmath.ZeroInt(), Amount1Min: sdkmath.ZeroInt(),
		Recipient: alice, Deadline: start,
	})
	require.NoError(t, err)
	assert.True(t, minted.Liquidity.IsPositive())

	_, err = custody.DecreaseLiquidity(ctx, bob, types.DecreaseLiquidityParams{TokenID: minted.TokenID, Liquidity: minted.Liquidity, Deadline: start})
	require.ErrorIs(t, err, simulations.ErrNotOwner)

	dec, err := custody.DecreaseLiquidity(ctx, alice, types.DecreaseLiquidityParams{
		TokenID: minted.TokenID, Liquidity: minted.Liquidity,
		Amount0Min: sdkmath.ZeroInt(), Amount1Min: sdkmath.ZeroInt(), Deadline: start,
	})
	require.NoError(t, err)

	data, err := custody.Positions(ctx, minted.TokenID)
	require.NoError(t, err)
	assert.True(t, data.Liquidity.IsZero())
	assert.Equal(t, dec.Amount0, data.TokensOwed0)

	a0, a1, err := custody.Collect(ctx, alice, types.CollectParams{
		TokenID: minted.TokenID, Recipient: alice, Amount0Max: types.MaxUint256, Amount1Max: types.MaxUint256,
	})
	require.NoError(t, err)
	assert.Equal(t, dec.Amount0, a0)
	assert.Equal(t, dec.Amount1, a1)
}
