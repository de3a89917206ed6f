/*

This file contains the types for concentrated liquidity positions and the parameters exchanged with the position custody.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TokenID is the opaque identifier the position custody returns on mint.
type TokenID uint64

// Position is the manager's record of one tick-range position.
// Unique per (Pool, TickLower, TickUpper); kept after liquidity returns to zero.
type Position struct {
	Pool      common.Address `json:"pool"`
	Key       PoolKey        `json:"key"`
	TickLower int            `json:"tick_lower"`
	TickUpper int            `json:"tick_upper"`
	TokenID   TokenID        `json:"token_id"`
	Liquidity sdkmath.Int    `json:"liquidity"`
}

// Exists reports whether the record refers to a minted position.
func (p Position) Exists() bool {
	return p.TokenID != 0
}

// PositionRange identifies a position slot within a pool.
type PositionRange struct {
	Pool      common.Address
	TickLower int
	TickUpper int
}

// PositionData is the custody's view of a position token.
type PositionData struct {
	Key         PoolKey     `json:"key"`
	TickLower   int         `json:"tick_lower"`
	TickUpper   int         `json:"tick_upper"`
	Liquidity   sdkmath.Int `json:"liquidity"`
	TokensOwed0 sdkmath.Int `json:"tokens_owed0"`
	TokensOwed1 sdkmath.Int `json:"tokens_owed1"`
}

type MintParams struct {
	Key            PoolKey
	TickLower      int
	TickUpper      int
	Amount0Desired sdkmath.Int
	Amount1Desired sdkmath.Int
	Amount0Min     sdkmath.Int
	Amount1Min     sdkmath.Int
	Recipient      common.Address
	Deadline       int64
}

type MintResult struct {
	TokenID   TokenID
	Liquidity sdkmath.Int
	Amount0   sdkmath.Int
	Amount1   sdkmath.Int
}

type IncreaseLiquidityParams struct {
	TokenID        TokenID
	Amount0Desired sdkmath.Int
	Amount1Desired sdkmath.Int
	Amount0Min     sdkmath.Int
	Amount1Min     sdkmath.Int
	Deadline       int64
}

type DecreaseLiquidityParams struct {
	TokenID    TokenID
	Liquidity  sdkmath.Int
	Amount0Min sdkmath.Int
	Amount1Min sdkmath.Int
	Deadline   int64
}

// LiquidityResult is returned by increase and decrease.
type LiquidityResult struct {
	Liquidity sdkmath.Int
	Amount0   sdkmath.Int
	Amount1   sdkmath.Int
}

type CollectParams struct {
	TokenID    TokenID
	Recipient  common.Address
	Amount0Max sdkmath.Int
	Amount1Max sdkmath.Int
}

// PositionView is a position enriched with its current token amounts for reporting.
type PositionView struct {
	Position
	Amount0     sdkmath.Int `json:"amount0"`
	Amount1     sdkmath.Int `json:"amount1"`
	TokensOwed0 sdkmath.Int `json:"tokens_owed0"`
	TokensOwed1 sdkmath.Int `json:"tokens_owed1"`
	Value       sdkmath.Int `json:"value"`
	Staked      bool        `json:"staked"`
}
