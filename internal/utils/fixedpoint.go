package utils

import (
	sdkmath "cosmossdk.io/math"
)

// FixedPointDecimals is the scale of net values and withdrawal scale factors.
const FixedPointDecimals = 18

// OneE18 is the fixed-point unit.
var OneE18 = sdkmath.NewIntWithDecimal(1, FixedPointDecimals)

// MulDiv returns a*b/c truncated toward zero. c must be non-zero.
func MulDiv(a, b, c sdkmath.Int) sdkmath.Int {
	return a.Mul(b).Quo(c)
}

// MulDivRoundUp returns ceil(a*b/c) for non-negative operands.
func MulDivRoundUp(a, b, c sdkmath.Int) sdkmath.Int {
	product := a.Mul(b)
	q := product.Quo(c)
	if !product.Mod(c).IsZero() {
		q = q.AddRaw(1)
	}
	return q
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// OrZero replaces a nil Int with zero.
func OrZero(v sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return sdkmath.ZeroInt()
	}
	return v
}
