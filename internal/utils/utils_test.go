package utils_test

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

func TestMulDiv(t *testing.T) {
	assert.Equal(t, sdkmath.NewInt(3), utils.MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(3)))
	assert.Equal(t, sdkmath.NewInt(4), utils.MulDivRoundUp(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(3)))
	assert.Equal(t, sdkmath.NewInt(5), utils.MulDivRoundUp(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(2)))
	assert.Equal(t, "1000000000000000000", utils.OneE18.String())
}

func TestConversionRoundTrip(t *testing.T) {
	amount, err := utils.ParseAmount("1000.5", 6)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1_000_500_000), amount)

	d, err := utils.SDKIntToDecimal(amount, 6)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1000.5")))

	_, err = utils.ParseAmount("-1", 6)
	assert.ErrorIs(t, err, utils.ErrAmountNegative)

	_, err = utils.SDKIntToDecimal(sdkmath.NewInt(1), 40)
	assert.ErrorIs(t, err, utils.ErrInvalidPrecision)

	assert.Equal(t, "1.5", utils.FormatFixedPoint(sdkmath.NewIntWithDecimal(15, 17)))
}

func TestReentrancyGuard(t *testing.T) {
	var g utils.ReentrancyGuard

	release, err := g.Enter("joinPool")
	require.NoError(t, err)
	assert.True(t, g.Busy())

	_, err = g.Enter("exitPool")
	require.ErrorIs(t, err, types.ErrReentrantCall)
	assert.Contains(t, err.Error(), "joinPool")

	release()
	assert.False(t, g.Busy())

	release, err = g.Enter("exitPool")
	require.NoError(t, err)
	release()
}

func TestEventBufferNests(t *testing.T) {
	rec := types.NewEventRecorder(0)
	b := utils.NewEventBuffer(rec)
	ctx := context.Background()

	b.Hold()
	b.Emit(ctx, types.CapChanged{})
	b.Hold()
	b.Emit(ctx, types.Swap{})
	b.Drop()
	b.Hold()
	b.Emit(ctx, types.Collect{})
	b.Flush(ctx)
	assert.Empty(t, rec.Events(), "inner flush waits for the outer unit")

	b.Flush(ctx)
	names := []string{}
	for _, ev := range rec.Events() {
		names = append(names, ev.EventName())
	}
	assert.Equal(t, []string{types.EventCapChanged, types.EventCollect}, names)

	b.Emit(ctx, types.Mint{})
	assert.Len(t, rec.Events(), 3)
}

func TestEventBufferOuterDropDiscardsCommittedInner(t *testing.T) {
	rec := types.NewEventRecorder(0)
	b := utils.NewEventBuffer(rec)
	ctx := context.Background()

	b.Hold()
	b.Hold()
	b.Emit(ctx, types.Swap{})
	b.Flush(ctx)
	b.Drop()

	assert.Empty(t, rec.Events())
}

func TestAmountsForLiquidity(t *testing.T) {
	sqrtLower, err := utils.SqrtRatioAtTick(-600)
	require.NoError(t, err)
	sqrtUpper, err := utils.SqrtRatioAtTick(600)
	require.NoError(t, err)
	sqrtMid, err := utils.SqrtRatioAtTick(0)
	require.NoError(t, err)
	liquidity := sdkmath.NewIntWithDecimal(1, 18)

	// In range: both tokens, symmetric around tick 0.
	a0, a1 := utils.AmountsForLiquidity(sqrtMid, sqrtLower, sqrtUpper, liquidity)
	assert.True(t, a0.IsPositive())
	assert.True(t, a1.IsPositive())

	// Funding the amounts back yields at most the original liquidity.
	l := utils.LiquidityForAmounts(sqrtMid, sqrtLower, sqrtUpper, a0, a1)
	assert.True(t, l.LTE(liquidity))
	assert.True(t, l.GT(liquidity.MulRaw(999).QuoRaw(1000)))

	// Below range: only token0.
	b0, b1 := utils.AmountsForLiquidity(sqrtLower, sqrtLower, sqrtUpper, liquidity)
	assert.True(t, b0.IsPositive())
	assert.True(t, b1.IsZero())

	// Above range: only token1.
	c0, c1 := utils.AmountsForLiquidity(sqrtUpper, sqrtLower, sqrtUpper, liquidity)
	assert.True(t, c0.IsZero())
	assert.True(t, c1.IsPositive())

	up0, up1 := utils.AmountsForLiquidityRoundUp(sqrtMid, sqrtLower, sqrtUpper, liquidity)
	assert.True(t, up0.GTE(a0))
	assert.True(t, up1.GTE(a1))
}

func TestPriceConversion(t *testing.T) {
	// 1 token0 (18 decimals) = 2000 token1 (6 decimals).
	sqrtPrice := utils.SqrtPriceX96FromRatio(sdkmath.NewIntWithDecimal(1, 18), sdkmath.NewIntWithDecimal(2000, 6))

	value := utils.Token0ToToken1(sdkmath.NewIntWithDecimal(1, 18), sqrtPrice)
	assert.InDelta(t, 2000_000_000, value.Int64(), 2)

	back := utils.Token1ToToken0(sdkmath.NewIntWithDecimal(2000, 6), sqrtPrice)
	assert.InDelta(t, 1e18, float64(back.Int64()), 1e9)
}
