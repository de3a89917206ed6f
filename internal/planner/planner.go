package planner

import (
	"errors"
	"fmt"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPoolState  = errors.New("pool state is invalid for operation")
	ErrInvalidAmounts    = errors.New("desired amounts are invalid")
	ErrMathematicalError = errors.New("mathematical calculation error")
)

// DefaultDustBps skips rebalancing swaps worth less than this share of the deposit, in basis points.
const DefaultDustBps = 10

// referenceLiquidity prices the range's token ratio; large enough that rounding is negligible.
var referenceLiquidity = sdkmath.NewIntWithDecimal(1, 30)

var planLogger = logger.GetForComponent("mint_planner")

// SwapDirection says which side of the pair a rebalance sells.
type SwapDirection int

const (
	SwapNone SwapDirection = iota
	SwapToken0ForToken1
	SwapToken1ForToken0
)

func (d SwapDirection) String() string {
	switch d {
	case SwapToken0ForToken1:
		return "token0->token1"
	case SwapToken1ForToken0:
		return "token1->token0"
	default:
		return "none"
	}
}

// RebalancePlan is the swap that brings desired amounts to the range's ratio at the current price.
type RebalancePlan struct {
	Direction SwapDirection
	AmountIn  sdkmath.Int // Exact input of the sold token
	Target0   sdkmath.Int // Expected token0 after the swap, ignoring fees
	Target1   sdkmath.Int // Expected token1 after the swap, ignoring fees
}

// ValidateTickRange checks ordering, bounds and spacing of a position range.
func ValidateTickRange(tickLower, tickUpper, tickSpacing int) error {
	if tickSpacing <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidTickRange, "pool tick spacing %d", tickSpacing)
	}
	if tickLower >= tickUpper {
		return errorsmod.Wrapf(types.ErrInvalidTickRange, "lower %d must be below upper %d", tickLower, tickUpper)
	}
	if tickLower < utils.MinTick || tickUpper > utils.MaxTick {
		return errorsmod.Wrapf(types.ErrInvalidTickRange, "[%d, %d] outside [%d, %d]", tickLower, tickUpper, utils.MinTick, utils.MaxTick)
	}
	if tickLower%tickSpacing != 0 || tickUpper%tickSpacing != 0 {
		return errorsmod.Wrapf(types.ErrInvalidTickRange, "[%d, %d] not multiples of spacing %d", tickLower, tickUpper, tickSpacing)
	}
	return nil
}

// PlanMintRebalance sizes the swap that lets amount0 and amount1 fund a position at the
// pool's current price with as little left over as possible. Out-of-range positions take a
// single token, so the whole other side is sold.
func PlanMintRebalance(pool types.PoolState, tickLower, tickUpper int, amount0, amount1 sdkmath.Int, dustBps int64) (RebalancePlan, error) {
	if err := validateInputs(pool, amount0, amount1); err != nil {
		planLogger.Error().Err(err).Msg("Input validation failed")
		return RebalancePlan{}, err
	}
	if err := ValidateTickRange(tickLower, tickUpper, pool.TickSpacing); err != nil {
		return RebalancePlan{}, err
	}
	sqrtA, err := utils.SqrtRatioAtTick(tickLower)
	if err != nil {
		return RebalancePlan{}, errorsmod.Wrap(types.ErrInvalidTickRange, err.Error())
	}
	sqrtB, err := utils.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return RebalancePlan{}, errorsmod.Wrap(types.ErrInvalidTickRange, err.Error())
	}

	plan := RebalancePlan{Direction: SwapNone, AmountIn: sdkmath.ZeroInt(), Target0: amount0, Target1: amount1}
	price := pool.SqrtPriceX96
	switch {
	case price.Cmp(sqrtA) <= 0:
		if amount1.IsPositive() {
			plan.Direction, plan.AmountIn = SwapToken1ForToken0, amount1
			plan.Target0 = amount0.Add(utils.Token1ToToken0(amount1, price))
			plan.Target1 = sdkmath.ZeroInt()
		}
	case price.Cmp(sqrtB) >= 0:
		if amount0.IsPositive() {
			plan.Direction, plan.AmountIn = SwapToken0ForToken1, amount0
			plan.Target0 = sdkmath.ZeroInt()
			plan.Target1 = amount1.Add(utils.Token0ToToken1(amount0, price))
		}
	default:
		plan, err = inRangePlan(price, sqrtA, sqrtB, amount0, amount1)
		if err != nil {
			return RebalancePlan{}, err
		}
	}

	if plan.Direction != SwapNone && isDust(plan, price, amount0, amount1, dustBps) {
		planLogger.Debug().Str("direction", plan.Direction.String()).Str("amountIn", plan.AmountIn.String()).Msg("Rebalance below dust threshold, skipping swap")
		return RebalancePlan{Direction: SwapNone, AmountIn: sdkmath.ZeroInt(), Target0: amount0, Target1: amount1}, nil
	}
	planLogger.Debug().
		Str("direction", plan.Direction.String()).
		Str("amountIn", plan.AmountIn.String()).
		Str("target0", plan.Target0.String()).
		Str("target1", plan.Target1.String()).
		Msg("Mint rebalance planned")
	return plan, nil
}

// inRangePlan splits the combined value (in token1) in the ratio the range holds at the current price.
func inRangePlan(price, sqrtA, sqrtB *big.Int, amount0, amount1 sdkmath.Int) (RebalancePlan, error) {
	r0, r1 := utils.AmountsForLiquidity(price, sqrtA, sqrtB, referenceLiquidity)
	denom := utils.Token0ToToken1(r0, price).Add(r1)
	if !denom.IsPositive() {
		return RebalancePlan{}, errors.Join(ErrMathematicalError, fmt.Errorf("range ratio is degenerate: r0=%s r1=%s", r0, r1))
	}
	total := utils.Token0ToToken1(amount0, price).Add(amount1)
	target0 := total.Mul(r0).Quo(denom)
	target1 := total.Mul(r1).Quo(denom)

	plan := RebalancePlan{Direction: SwapNone, AmountIn: sdkmath.ZeroInt(), Target0: target0, Target1: target1}
	switch {
	case amount0.GT(target0):
		plan.Direction = SwapToken0ForToken1
		plan.AmountIn = amount0.Sub(target0)
	case amount1.GT(target1):
		plan.Direction = SwapToken1ForToken0
		plan.AmountIn = amount1.Sub(target1)
	}
	return plan, nil
}

func isDust(plan RebalancePlan, price *big.Int, amount0, amount1 sdkmath.Int, dustBps int64) bool {
	if dustBps <= 0 {
		return !plan.AmountIn.IsPositive()
	}
	total := utils.Token0ToToken1(amount0, price).Add(amount1)
	sold := plan.AmountIn
	if plan.Direction == SwapToken0ForToken1 {
		sold = utils.Token0ToToken1(plan.AmountIn, price)
	}
	return sold.MulRaw(10_000).LT(total.MulRaw(dustBps))
}

// validateInputs performs validation of the pool state and desired amounts
func validateInputs(pool types.PoolState, amount0, amount1 sdkmath.Int) error {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 {
		return errors.Join(ErrInvalidPoolState, errors.New("sqrt price must be positive"))
	}
	if amount0.IsNil() || amount1.IsNil() {
		return errors.Join(ErrInvalidAmounts, errors.New("amounts cannot be nil"))
	}
	if amount0.IsNegative() || amount1.IsNegative() {
		return errors.Join(ErrInvalidAmounts, errors.New("amounts cannot be negative"))
	}
	if amount0.IsZero() && amount1.IsZero() {
		return errors.Join(ErrInvalidAmounts, errors.New("at least one amount must be positive"))
	}
	return nil
}
