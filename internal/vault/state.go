package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/clvault/internal/types"
)

// positionReporter is implemented by asset managers that can break their assets down.
type positionReporter interface {
	IdleAssets(ctx context.Context) (sdkmath.Int, error)
	LiquidityAssets(ctx context.Context) (sdkmath.Int, error)
	PositionViews(ctx context.Context) ([]types.PositionView, error)
}

// State captures the ledger and, when the asset manager reports them, its idle and deployed holdings.
func (e *Engine) State(ctx context.Context) (types.VaultState, error) {
	st := types.VaultState{
		IOToken:         e.ioToken.Hex(),
		TotalShares:     e.totalShares,
		TotalAssets:     sdkmath.ZeroInt(),
		IdleAssets:      sdkmath.ZeroInt(),
		LiquidityAssets: sdkmath.ZeroInt(),
		NetValue:        sdkmath.ZeroInt(),
		Cap:             e.cap,
		Accounts:        len(e.order),
		Fees:            e.Fees(),
	}
	if !e.bound {
		return st, nil
	}
	total, err := e.Assets(ctx)
	if err != nil {
		return st, err
	}
	st.TotalAssets = total
	if st.NetValue, err = e.GlobalNetValue(ctx); err != nil {
		return st, err
	}
	vaultIdle, err := e.ledger.BalanceOf(ctx, e.ioToken, e.address)
	if err != nil {
		return st, err
	}
	st.IdleAssets = vaultIdle

	reporter, ok := e.am.(positionReporter)
	if !ok {
		st.LiquidityAssets = total.Sub(vaultIdle)
		return st, nil
	}
	idle, err := reporter.IdleAssets(ctx)
	if err != nil {
		return st, err
	}
	st.IdleAssets = st.IdleAssets.Add(idle)
	if st.LiquidityAssets, err = reporter.LiquidityAssets(ctx); err != nil {
		return st, err
	}
	if st.Positions, err = reporter.PositionViews(ctx); err != nil {
		return st, err
	}
	return st, nil
}
