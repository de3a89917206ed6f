package vault

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

var secondsPerYear = sdkmath.NewInt(types.SecondsPerYear)

// accrueManagementFee mints totalShares*elapsed*ratio/(denominator*secondsPerYear) shares to the
// rewards address and moves the anchor to now. Nothing accrues before the fee was ever set or while
// the vault is empty; the anchor still moves.
func (e *Engine) accrueManagementFee(ctx context.Context) (sdkmath.Int, error) {
	setting := e.fees[types.FeeManagement]
	now := e.clock()
	elapsed := now - setting.LastTimestamp
	if elapsed <= 0 {
		return sdkmath.ZeroInt(), nil
	}
	minted := sdkmath.ZeroInt()
	if setting.LastTimestamp != 0 && e.totalShares.IsPositive() && !utils.OrZero(setting.Ratio).IsZero() {
		minted = e.totalShares.MulRaw(elapsed).Mul(setting.Ratio).Quo(setting.EffectiveDenominator().Mul(secondsPerYear))
	}
	if minted.IsPositive() {
		if err := e.creditFee(ctx, minted, sdkmath.Int{}); err != nil {
			return sdkmath.ZeroInt(), err
		}
		e.totalShares = e.totalShares.Add(minted)
		e.logger.Info().
			Int64("elapsed", elapsed).
			Str("shares", minted.String()).
			Msg("Management fee accrued")
	}
	setting.LastTimestamp = now
	e.fees[types.FeeManagement] = setting
	return minted, nil
}

// exitFees splits an exit of shares held since entryNet into the exit fee and the performance fee.
// The performance fee is only taken on a gain and never when the exit fee consumes the shares.
func (e *Engine) exitFees(shares, entryNet, currentNet sdkmath.Int) (exitFee, perfFee sdkmath.Int, err error) {
	exitFee = e.fees[types.FeeExit].Apply(shares)
	perfFee = sdkmath.ZeroInt()
	perf := e.fees[types.FeePerformance]
	if exitFee.LT(shares) && currentNet.GT(entryNet) && !utils.OrZero(perf.Ratio).IsZero() {
		gain := currentNet.Sub(entryNet)
		perfFee = shares.Sub(exitFee).Mul(gain).Mul(perf.Ratio).Quo(perf.EffectiveDenominator().Mul(currentNet))
	}
	if exitFee.Add(perfFee).GT(shares) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Wrapf(types.ErrFeeInvariant,
			"exit fee %s + performance fee %s > %s shares", exitFee, perfFee, shares)
	}
	return exitFee, perfFee, nil
}

// creditFee adds fee shares to the rewards account at net value net, or the current net value when
// net is nil. The caller adjusts totalShares.
func (e *Engine) creditFee(ctx context.Context, shares, net sdkmath.Int) error {
	if !shares.IsPositive() {
		return nil
	}
	rewards := e.authz.Rewards()
	acct := e.account(rewards)
	if acct.ShareBalance.IsZero() {
		if net.IsNil() {
			var err error
			if net, err = e.GlobalNetValue(ctx); err != nil {
				return errors.Wrap(err, "fee account entry net value")
			}
		}
		acct.EntryNetValue = net
	}
	acct.ShareBalance = acct.ShareBalance.Add(shares)
	e.accounts[rewards] = acct
	return nil
}

// account returns the entry for addr, creating it on first use.
func (e *Engine) account(addr common.Address) types.Account {
	if acct, ok := e.accounts[addr]; ok {
		return acct
	}
	acct := types.NewAccount(addr)
	e.accounts[addr] = acct
	e.order = append(e.order, addr)
	return acct
}

func (e *Engine) touch(kinds ...types.FeeKind) {
	now := e.clock()
	for _, kind := range kinds {
		setting := e.fees[kind]
		setting.LastTimestamp = now
		e.fees[kind] = setting
	}
}
