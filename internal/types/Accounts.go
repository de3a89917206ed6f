package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Account is a depositor's entry in the share ledger.
type Account struct {
	Address       common.Address `json:"address"`
	ShareBalance  sdkmath.Int    `json:"share_balance"`
	EntryNetValue sdkmath.Int    `json:"entry_net_value"` // Net value per share (1e18) at the last join
}

// NewAccount returns an empty account for addr.
func NewAccount(addr common.Address) Account {
	return Account{
		Address:       addr,
		ShareBalance:  sdkmath.ZeroInt(),
		EntryNetValue: sdkmath.ZeroInt(),
	}
}

// AccountView is an account with its current notional value.
type AccountView struct {
	Account
	NetValue sdkmath.Int `json:"net_value"`
}
