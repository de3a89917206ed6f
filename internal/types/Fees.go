/*

This file contains the fee types for the vault's share ledger.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// FeeKind indexes the vault's fee settings.
type FeeKind uint8

const (
	FeeEntry FeeKind = iota
	FeeExit
	FeeManagement
	FeePerformance
)

// DefaultFeeDenominator is used whenever a fee setting's denominator is zero.
const DefaultFeeDenominator = 1000

// SecondsPerYear anchors management fee accrual (365.25 days).
const SecondsPerYear = 31557600

var feeKindNames = map[FeeKind]string{
	FeeEntry:       "entry",
	FeeExit:        "exit",
	FeeManagement:  "management",
	FeePerformance: "performance",
}

func (k FeeKind) String() string {
	if name, ok := feeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fee(%d)", uint8(k))
}

// Valid reports whether k names one of the four fee settings.
func (k FeeKind) Valid() bool {
	_, ok := feeKindNames[k]
	return ok
}

// AllFeeKinds lists the fee kinds in index order.
func AllFeeKinds() []FeeKind {
	return []FeeKind{FeeEntry, FeeExit, FeeManagement, FeePerformance}
}

// FeeSetting holds one fee's ratio. Invariant: Ratio <= EffectiveDenominator().
type FeeSetting struct {
	Ratio         sdkmath.Int `json:"ratio"`
	Denominator   sdkmath.Int `json:"denominator"`
	LastTimestamp int64       `json:"last_timestamp"`
	Reserved      sdkmath.Int `json:"reserved"`
}

// NewFeeSetting returns a zero fee with the default base.
func NewFeeSetting() FeeSetting {
	return FeeSetting{
		Ratio:       sdkmath.ZeroInt(),
		Denominator: sdkmath.ZeroInt(),
		Reserved:    sdkmath.ZeroInt(),
	}
}

// EffectiveDenominator substitutes the default base for an unset denominator.
func (f FeeSetting) EffectiveDenominator() sdkmath.Int {
	if f.Denominator.IsNil() || f.Denominator.IsZero() {
		return sdkmath.NewInt(DefaultFeeDenominator)
	}
	return f.Denominator
}

// Apply returns amount * ratio / denominator, floored.
func (f FeeSetting) Apply(amount sdkmath.Int) sdkmath.Int {
	if f.Ratio.IsNil() || f.Ratio.IsZero() || amount.IsZero() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(f.Ratio).Quo(f.EffectiveDenominator())
}

// FeeParameter is one persisted fee configuration entry.
type FeeParameter struct {
	Kind        FeeKind `json:"kind"`
	Ratio       int64   `json:"ratio"`
	Denominator int64   `json:"denominator"`
}

// FeeParameters is the full set of fees applied to a vault at bootstrap.
type FeeParameters struct {
	Entry       FeeParameter `json:"entry"`
	Exit        FeeParameter `json:"exit"`
	Management  FeeParameter `json:"management"`
	Performance FeeParameter `json:"performance"`
}

// List returns the parameters in fee kind order.
func (p FeeParameters) List() []FeeParameter {
	return []FeeParameter{p.Entry, p.Exit, p.Management, p.Performance}
}
