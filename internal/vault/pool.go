package vault

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// JoinPool moves amount of the underlying from caller to the asset manager and credits shares at the
// current net value, less the entry fee. The caller must have approved the vault address.
// Returns the shares credited to caller.
func (e *Engine) JoinPool(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	credited := sdkmath.ZeroInt()
	err := e.run(ctx, "joinPool", func() error {
		var err error
		credited, err = e.join(ctx, caller, amount)
		return err
	})
	return credited, err
}

func (e *Engine) join(ctx context.Context, caller common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if err := e.requireBound("joinPool"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "joinPool: amount must be positive")
	}
	if _, err := e.accrueManagementFee(ctx); err != nil {
		return sdkmath.ZeroInt(), err
	}

	assets, err := e.Assets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if assets.Add(amount).GT(e.cap) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrCapExceeded, "joinPool: assets %s + %s > cap %s", assets, amount, e.cap)
	}

	var shares, net sdkmath.Int
	if e.totalShares.IsZero() {
		shares, net = amount, utils.OneE18
	} else {
		net = utils.MulDiv(assets, utils.OneE18, e.totalShares)
		if net.IsZero() {
			return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "joinPool: vault has shares but no assets")
		}
		shares = utils.MulDiv(amount, utils.OneE18, net)
	}
	if shares.IsZero() {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrInvalidAmount, "joinPool: %s buys no shares at net value %s", amount, net)
	}
	entryFee := e.fees[types.FeeEntry].Apply(shares)
	credited := shares.Sub(entryFee)

	if err := e.ledger.TransferFrom(ctx, e.ioToken, e.address, caller, e.am.Address(), amount); err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "joinPool: transfer to asset manager")
	}

	acct := e.account(caller)
	acct.ShareBalance = acct.ShareBalance.Add(credited)
	acct.EntryNetValue = net
	e.accounts[caller] = acct
	if err := e.creditFee(ctx, entryFee, net); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.totalShares = e.totalShares.Add(shares)
	e.touch(types.FeeEntry)

	e.events.Emit(ctx, types.PoolJoined{Investor: caller, Amount: credited, Deposit: amount, EntryFee: entryFee})
	e.logger.Info().
		Str("investor", caller.Hex()).
		Str("deposit", amount.String()).
		Str("shares", credited.String()).
		Str("entryFee", entryFee.String()).
		Str("netValue", net.String()).
		Msg("Pool joined")
	return credited, nil
}

// ExitPool burns shareAmount of caller's shares and pays the underlying worth of what is left after
// the exit and performance fees. Returns the amount paid.
func (e *Engine) ExitPool(ctx context.Context, caller common.Address, shareAmount sdkmath.Int) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := e.run(ctx, "exitPool", func() error {
		if err := e.requireBound("exitPool"); err != nil {
			return err
		}
		if _, err := e.accrueManagementFee(ctx); err != nil {
			return err
		}
		var err error
		paid, err = e.exit(ctx, caller, shareAmount)
		return err
	})
	return paid, err
}

// ExitPoolOfUnderlying converts underlyingAmount into shares at the current net value and exits them.
func (e *Engine) ExitPoolOfUnderlying(ctx context.Context, caller common.Address, underlyingAmount sdkmath.Int) (sdkmath.Int, error) {
	paid := sdkmath.ZeroInt()
	err := e.run(ctx, "exitPoolOfUnderlying", func() error {
		if err := e.requireBound("exitPoolOfUnderlying"); err != nil {
			return err
		}
		if underlyingAmount.IsNil() || !underlyingAmount.IsPositive() {
			return errors.Wrap(types.ErrInvalidAmount, "exitPoolOfUnderlying: amount must be positive")
		}
		if _, err := e.accrueManagementFee(ctx); err != nil {
			return err
		}
		net, err := e.GlobalNetValue(ctx)
		if err != nil {
			return err
		}
		if net.IsZero() {
			return errors.Wrap(types.ErrInsufficientShares, "exitPoolOfUnderlying: vault has no shares")
		}
		paid, err = e.exit(ctx, caller, utils.MulDiv(underlyingAmount, utils.OneE18, net))
		return err
	})
	return paid, err
}

func (e *Engine) exit(ctx context.Context, caller common.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exitPool: share amount must be positive")
	}
	acct, ok := e.accounts[caller]
	if !ok || acct.ShareBalance.LT(shares) {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrInsufficientShares, "exitPool: %s holds %s, needs %s",
			caller.Hex(), e.BalanceOf(caller), shares)
	}
	net, err := e.GlobalNetValue(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	exitFee, perfFee, err := e.exitFees(shares, acct.EntryNetValue, net)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "exitPool")
	}
	payout := utils.MulDiv(shares.Sub(exitFee).Sub(perfFee), net, utils.OneE18)

	acct.ShareBalance = acct.ShareBalance.Sub(shares)
	if acct.ShareBalance.IsZero() {
		acct.EntryNetValue = sdkmath.ZeroInt()
	}
	e.accounts[caller] = acct
	e.totalShares = e.totalShares.Sub(shares)
	fee := exitFee.Add(perfFee)
	if err := e.creditFee(ctx, fee, net); err != nil {
		return sdkmath.ZeroInt(), err
	}
	e.totalShares = e.totalShares.Add(fee)
	e.touch(types.FeeExit, types.FeePerformance)

	if err := e.pay(ctx, caller, payout); err != nil {
		return sdkmath.ZeroInt(), err
	}

	e.events.Emit(ctx, types.PoolExited{
		Investor:       caller,
		Amount:         payout,
		Shares:         shares,
		ExitFee:        exitFee,
		PerformanceFee: perfFee,
	})
	e.logger.Info().
		Str("investor", caller.Hex()).
		Str("shares", shares.String()).
		Str("exitFee", exitFee.String()).
		Str("performanceFee", perfFee.String()).
		Str("paid", payout.String()).
		Str("netValue", net.String()).
		Msg("Pool exited")
	return payout, nil
}

// pay sends amount of the underlying to `to`, asking the asset manager to free the shortfall when
// the vault's own balance is not enough.
func (e *Engine) pay(ctx context.Context, to common.Address, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	idle, err := e.ledger.BalanceOf(ctx, e.ioToken, e.address)
	if err != nil {
		return errors.Wrap(err, "exitPool: vault balance")
	}
	if idle.LT(amount) {
		shortfall := amount.Sub(idle)
		deployed, err := e.am.Assets(ctx)
		if err != nil {
			return errors.Wrap(err, "exitPool: asset manager assets")
		}
		if !deployed.IsPositive() {
			return errors.Wrapf(types.ErrInsufficientLiquidity, "exitPool: short %s with nothing deployed", shortfall)
		}
		scale := e.withdrawScale(shortfall, deployed)
		got, err := e.am.Withdraw(ctx, e.address, e.address, shortfall, scale)
		if err != nil {
			return errors.Wrap(err, "exitPool: asset manager withdraw")
		}
		if got.LT(shortfall) {
			return errors.Wrapf(types.ErrInsufficientLiquidity, "exitPool: asset manager paid %s of %s", got, shortfall)
		}
		e.logger.Debug().
			Str("shortfall", shortfall.String()).
			Str("scale", scale.String()).
			Msg("Shortfall freed from asset manager")
	}
	if err := e.ledger.Transfer(ctx, e.ioToken, e.address, to, amount); err != nil {
		return errors.Wrap(err, "exitPool: payout")
	}
	return nil
}

// withdrawScale is the 1e18 fraction of deployed assets to free for shortfall, rounded up, padded by
// the withdraw buffer and capped at the whole.
func (e *Engine) withdrawScale(shortfall, deployed sdkmath.Int) sdkmath.Int {
	padded := utils.MulDivRoundUp(shortfall, sdkmath.NewInt(10_000+e.bufferBps), sdkmath.NewInt(10_000))
	return utils.MinInt(utils.MulDivRoundUp(padded, utils.OneE18, deployed), utils.OneE18)
}
