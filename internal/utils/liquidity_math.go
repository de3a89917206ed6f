package utils

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	v3utils "github.com/daoleno/uniswapv3-sdk/utils"
)

// Tick bounds of the concentrated liquidity AMM.
const (
	MinTick = -887272
	MaxTick = -MinTick
)

var (
	q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	q192 = new(big.Int).Lsh(big.NewInt(1), 192)
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	return v3utils.GetSqrtRatioAtTick(tick)
}

// AmountsForLiquidity returns the token amounts represented by liquidity at the current price, rounded down.
func AmountsForLiquidity(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96 *big.Int, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	l := liquidity.BigInt()
	amount0, amount1 := new(big.Int), new(big.Int)
	switch {
	case sqrtPriceX96.Cmp(sqrtRatioAX96) <= 0:
		amount0 = v3utils.GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, l, false)
	case sqrtPriceX96.Cmp(sqrtRatioBX96) < 0:
		amount0 = v3utils.GetAmount0Delta(sqrtPriceX96, sqrtRatioBX96, l, false)
		amount1 = v3utils.GetAmount1Delta(sqrtRatioAX96, sqrtPriceX96, l, false)
	default:
		amount1 = v3utils.GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, l, false)
	}
	return sdkmath.NewIntFromBigInt(amount0), sdkmath.NewIntFromBigInt(amount1)
}

// AmountsForLiquidityRoundUp is AmountsForLiquidity rounded up, the amounts a deposit of liquidity costs.
func AmountsForLiquidityRoundUp(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96 *big.Int, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	l := liquidity.BigInt()
	amount0, amount1 := new(big.Int), new(big.Int)
	switch {
	case sqrtPriceX96.Cmp(sqrtRatioAX96) <= 0:
		amount0 = v3utils.GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, l, true)
	case sqrtPriceX96.Cmp(sqrtRatioBX96) < 0:
		amount0 = v3utils.GetAmount0Delta(sqrtPriceX96, sqrtRatioBX96, l, true)
		amount1 = v3utils.GetAmount1Delta(sqrtRatioAX96, sqrtPriceX96, l, true)
	default:
		amount1 = v3utils.GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, l, true)
	}
	return sdkmath.NewIntFromBigInt(amount0), sdkmath.NewIntFromBigInt(amount1)
}

// LiquidityForAmounts returns the largest liquidity that amount0 and amount1 can fund at the current price.
func LiquidityForAmounts(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96 *big.Int, amount0, amount1 sdkmath.Int) sdkmath.Int {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	var l *big.Int
	switch {
	case sqrtPriceX96.Cmp(sqrtRatioAX96) <= 0:
		l = liquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0.BigInt())
	case sqrtPriceX96.Cmp(sqrtRatioBX96) < 0:
		l0 := liquidityForAmount0(sqrtPriceX96, sqrtRatioBX96, amount0.BigInt())
		l1 := liquidityForAmount1(sqrtRatioAX96, sqrtPriceX96, amount1.BigInt())
		l = l0
		if l1.Cmp(l0) < 0 {
			l = l1
		}
	default:
		l = liquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1.BigInt())
	}
	return sdkmath.NewIntFromBigInt(l)
}

func liquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *big.Int) *big.Int {
	intermediate := new(big.Int).Mul(sqrtRatioAX96, sqrtRatioBX96)
	intermediate.Quo(intermediate, q96)
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	l := new(big.Int).Mul(amount0, intermediate)
	return l.Quo(l, diff)
}

func liquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if diff.Sign() == 0 {
		return new(big.Int)
	}
	l := new(big.Int).Mul(amount1, q96)
	return l.Quo(l, diff)
}

// Token0ToToken1 values amount0 in token1 at the given sqrt price, rounded down.
func Token0ToToken1(amount0 sdkmath.Int, sqrtPriceX96 *big.Int) sdkmath.Int {
	v := new(big.Int).Mul(amount0.BigInt(), sqrtPriceX96)
	v.Mul(v, sqrtPriceX96)
	v.Quo(v, q192)
	return sdkmath.NewIntFromBigInt(v)
}

// Token1ToToken0 values amount1 in token0 at the given sqrt price, rounded down.
func Token1ToToken0(amount1 sdkmath.Int, sqrtPriceX96 *big.Int) sdkmath.Int {
	if sqrtPriceX96.Sign() == 0 {
		return sdkmath.ZeroInt()
	}
	v := new(big.Int).Mul(amount1.BigInt(), q192)
	v.Quo(v, sqrtPriceX96)
	v.Quo(v, sqrtPriceX96)
	return sdkmath.NewIntFromBigInt(v)
}

// SqrtPriceX96FromRatio returns sqrt(amount1/amount0) in Q64.96, the pool price at which
// amount0 of token0 is worth amount1 of token1.
func SqrtPriceX96FromRatio(amount0, amount1 sdkmath.Int) *big.Int {
	ratio := new(big.Int).Mul(amount1.BigInt(), q192)
	ratio.Quo(ratio, amount0.BigInt())
	return ratio.Sqrt(ratio)
}
