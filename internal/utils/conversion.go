/*
This file contains common utility functions for converting between on-ledger integer amounts
and human readable decimals, particularly for configuration and reporting.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
)

// SDKIntToDecimal converts an integer amount with the given decimals to a decimal value.
func SDKIntToDecimal(amount sdkmath.Int, precision int) (decimal.Decimal, error) {
	if precision < 0 || precision > 36 {
		return decimal.Zero, fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	if amount.IsNegative() {
		return decimal.Zero, ErrAmountNegative
	}
	return decimal.NewFromBigInt(amount.BigInt(), int32(-precision)), nil
}

// DecimalToSDKInt scales a decimal by 10^precision and truncates the remainder.
func DecimalToSDKInt(amount decimal.Decimal, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 36 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, precision)
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	scaled := amount.Shift(int32(precision)).Truncate(0)
	result, ok := sdkmath.NewIntFromString(scaled.String())
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrConversionFailed, scaled.String())
	}
	return result, nil
}

// ParseAmount parses a decimal string such as "1000.5" into base units.
func ParseAmount(value string, precision int) (sdkmath.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return DecimalToSDKInt(d, precision)
}

// FormatFixedPoint renders a 1e18 fixed-point value as a decimal string.
func FormatFixedPoint(value sdkmath.Int) string {
	if value.IsNil() {
		return "0"
	}
	return decimal.NewFromBigInt(value.BigInt(), -FixedPointDecimals).String()
}
