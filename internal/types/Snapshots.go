/*

This file contains the snapshot types captured by the keeper loop and persisted for analytics.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// VaultState is a point-in-time view of the share ledger and the deployed assets.
type VaultState struct {
	IOToken         string         `json:"io_token"`
	TotalShares     sdkmath.Int    `json:"total_shares"`
	TotalAssets     sdkmath.Int    `json:"total_assets"`
	IdleAssets      sdkmath.Int    `json:"idle_assets"`
	LiquidityAssets sdkmath.Int    `json:"liquidity_assets"`
	NetValue        sdkmath.Int    `json:"net_value"` // Per share, 1e18 fixed point
	Cap             sdkmath.Int    `json:"cap"`
	Accounts        int            `json:"accounts"`
	Fees            []FeeView      `json:"fees"`
	Positions       []PositionView `json:"positions"`
}

// FeeView is a fee setting labelled with its kind.
type FeeView struct {
	Kind string `json:"kind"`
	FeeSetting
}

// CycleSnapshot records one keeper cycle.
type CycleSnapshot struct {
	SnapshotID          int64       `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleNumber         int         `json:"cycle_number"`
	CycleID             string      `json:"cycle_id"`
	Timestamp           time.Time   `json:"timestamp"`
	FeeParamsID         *int64      `json:"fee_params_id,omitempty"` // Active fee configuration, nil when none is persisted
	ManagementFeeShares sdkmath.Int `json:"management_fee_shares"`
	NetValueDisplay     string      `json:"net_value_display"` // Net value per share as a decimal string
	State               VaultState  `json:"state"`
	PositionTokenIDs    []int64     `json:"position_token_ids"`
	Success             bool        `json:"success"`
	ErrorMessage        string      `json:"error_message,omitempty"`
}
