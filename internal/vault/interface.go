package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
)

// Reader is the read side of the share ledger the API depends on.
type Reader interface {
	// IOToken is the underlying token deposits and payouts are made in.
	IOToken() common.Address

	// GlobalNetValue is assets per share, 1e18 fixed point, or 0 while no shares exist.
	GlobalNetValue(ctx context.Context) (sdkmath.Int, error)

	// AccountNetValue is the notional value of an account's shares in the underlying token.
	AccountNetValue(ctx context.Context, addr common.Address) (sdkmath.Int, error)

	// Account returns the ledger entry for addr.
	Account(addr common.Address) (types.Account, bool)

	// Accounts lists every account in the order it was created.
	Accounts() []types.Account

	// State captures the ledger together with the asset manager's holdings.
	State(ctx context.Context) (types.VaultState, error)
}

var _ Reader = (*Engine)(nil)
