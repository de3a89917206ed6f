package liquidity

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// valueOf expresses amount of token in the accounting token through the stored routes.
func (m *Manager) valueOf(ctx context.Context, token common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsZero() || token == m.ioToken {
		return amount, nil
	}
	return m.routes.EstimateAmountOut(ctx, token, m.ioToken, amount)
}

func (m *Manager) requireBound(op string) error {
	if !m.bound {
		return errors.Wrapf(types.ErrNotBound, "%s: manager has no vault", op)
	}
	return nil
}

// Assets is idle plus deployed value in the accounting token.
func (m *Manager) Assets(ctx context.Context) (sdkmath.Int, error) {
	idle, err := m.IdleAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	deployed, err := m.LiquidityAssets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return idle.Add(deployed), nil
}

// IdleBalances lists the manager's holding of every underlying with its value.
func (m *Manager) IdleBalances(ctx context.Context) ([]types.TokenBalance, error) {
	if err := m.requireBound("idleAssets"); err != nil {
		return nil, err
	}
	out := make([]types.TokenBalance, 0, len(m.underlyings))
	for _, token := range m.underlyings {
		bal, err := m.ledger.BalanceOf(ctx, token, m.address)
		if err != nil {
			return nil, err
		}
		value, err := m.valueOf(ctx, token, bal)
		if err != nil {
			return nil, errors.Wrapf(err, "idleAssets: valuing %s", token.Hex())
		}
		out = append(out, types.TokenBalance{Token: token, Amount: bal, Value: value})
	}
	return out, nil
}

// IdleAssets values the underlying balances held directly by the manager.
func (m *Manager) IdleAssets(ctx context.Context) (sdkmath.Int, error) {
	balances, err := m.IdleBalances(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := sdkmath.ZeroInt()
	for _, b := range balances {
		total = total.Add(b.Value)
	}
	return total, nil
}

// LiquidityAssets values every recorded position: liquidity at the current price plus owed tokens.
func (m *Manager) LiquidityAssets(ctx context.Context) (sdkmath.Int, error) {
	views, err := m.PositionViews(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := sdkmath.ZeroInt()
	for _, v := range views {
		total = total.Add(v.Value)
	}
	return total, nil
}

// PositionViews reports each recorded position with its amounts, value and staking state.
func (m *Manager) PositionViews(ctx context.Context) ([]types.PositionView, error) {
	if err := m.requireBound("liquidityAssets"); err != nil {
		return nil, err
	}
	out := make([]types.PositionView, 0, len(m.order))
	for _, slot := range m.order {
		pos := m.positions[slot]
		data, err := m.custody.Positions(ctx, pos.TokenID)
		if err != nil {
			return nil, errors.Wrapf(err, "liquidityAssets: position %d", pos.TokenID)
		}
		pool, err := m.custody.Pool(ctx, pos.Key)
		if err != nil {
			return nil, err
		}
		a0, a1, err := amountsAt(pool, pos.TickLower, pos.TickUpper, data.Liquidity)
		if err != nil {
			return nil, err
		}
		v0, err := m.valueOf(ctx, pos.Key.Token0, a0.Add(data.TokensOwed0))
		if err != nil {
			return nil, errors.Wrapf(err, "liquidityAssets: valuing %s", pos.Key.Token0.Hex())
		}
		v1, err := m.valueOf(ctx, pos.Key.Token1, a1.Add(data.TokensOwed1))
		if err != nil {
			return nil, errors.Wrapf(err, "liquidityAssets: valuing %s", pos.Key.Token1.Hex())
		}
		owner, err := m.custody.OwnerOf(ctx, pos.TokenID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.PositionView{
			Position:    pos,
			Amount0:     a0,
			Amount1:     a1,
			TokensOwed0: data.TokensOwed0,
			TokensOwed1: data.TokensOwed1,
			Value:       v0.Add(v1),
			Staked:      owner != m.address,
		})
	}
	return out, nil
}

type removal struct {
	tokenID   types.TokenID
	liquidity sdkmath.Int
}

// Withdraw pays amount of the accounting token to `to`. When idle funds fall short it removes
// scale/1e18 of every open position it holds custody of, collects, converts other underlyings
// into the accounting token, and pays what it has up to amount. Only the bound vault may call it.
func (m *Manager) Withdraw(ctx context.Context, caller, to common.Address, amount, scale sdkmath.Int) (sdkmath.Int, error) {
	var paid sdkmath.Int
	err := m.run(ctx, "withdraw", func() error {
		var err error
		paid, err = m.withdraw(ctx, caller, to, amount, scale)
		return err
	})
	return paid, err
}

func (m *Manager) withdraw(ctx context.Context, caller, to common.Address, amount, scale sdkmath.Int) (sdkmath.Int, error) {
	if err := m.requireBound("withdraw"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if caller != m.vault {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrUnauthorized, "withdraw: %s is not the vault", caller.Hex())
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "withdraw: amount must be positive")
	}
	idle, err := m.ledger.BalanceOf(ctx, m.ioToken, m.address)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if idle.GTE(amount) {
		if err := m.ledger.Transfer(ctx, m.ioToken, m.address, to, amount); err != nil {
			return sdkmath.ZeroInt(), err
		}
		m.logger.Info().Str("to", to.Hex()).Str("amount", amount.String()).Msg("Withdrawal paid from idle balance")
		return amount, nil
	}

	scale = utils.MinInt(utils.OrZero(scale), utils.OneE18)
	plan, err := m.planRemovals(ctx, scale)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	for _, r := range plan {
		if err := m.decreaseLiquidity(ctx, r.tokenID, r.liquidity, sdkmath.ZeroInt(), sdkmath.ZeroInt()); err != nil {
			return sdkmath.ZeroInt(), err
		}
		if _, _, err := m.collect(ctx, r.tokenID, types.MaxUint256, types.MaxUint256); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}

	idle, err = m.convertToIO(ctx, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	paid := utils.MinInt(amount, idle)
	if paid.IsPositive() {
		if err := m.ledger.Transfer(ctx, m.ioToken, m.address, to, paid); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	m.logger.Info().
		Str("to", to.Hex()).
		Str("requested", amount.String()).
		Str("paid", paid.String()).
		Str("scale", scale.String()).
		Int("positions", len(plan)).
		Msg("Withdrawal paid after proportional removal")
	return paid, nil
}

// planRemovals is the first pass: liquidity*scale/1e18 per open position in the manager's custody.
func (m *Manager) planRemovals(ctx context.Context, scale sdkmath.Int) ([]removal, error) {
	var plan []removal
	if !scale.IsPositive() {
		return plan, nil
	}
	for _, slot := range m.order {
		pos := m.positions[slot]
		if !pos.Liquidity.IsPositive() {
			continue
		}
		owner, err := m.custody.OwnerOf(ctx, pos.TokenID)
		if err != nil {
			return nil, err
		}
		if owner != m.address {
			continue
		}
		remove := utils.MinInt(utils.MulDiv(pos.Liquidity, scale, utils.OneE18), pos.Liquidity)
		if remove.IsPositive() {
			plan = append(plan, removal{tokenID: pos.TokenID, liquidity: remove})
		}
	}
	return plan, nil
}

// convertToIO swaps other underlyings into the accounting token until amount is idle or nothing is left.
// It returns the idle accounting balance afterwards.
func (m *Manager) convertToIO(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	idle, err := m.ledger.BalanceOf(ctx, m.ioToken, m.address)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	for _, token := range m.underlyings {
		if idle.GTE(amount) {
			break
		}
		if token == m.ioToken {
			continue
		}
		if _, ok := m.routes.Route(token, m.ioToken); !ok {
			continue
		}
		bal, err := m.ledger.BalanceOf(ctx, token, m.address)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !bal.IsPositive() {
			continue
		}
		need := amount.Sub(idle)
		in, err := m.routes.EstimateAmountIn(ctx, token, m.ioToken, need)
		if err == nil && in.IsPositive() && in.LTE(bal) {
			if _, err := m.routes.ExactOutput(ctx, m.address, token, m.ioToken, need, in); err != nil {
				return sdkmath.ZeroInt(), err
			}
		} else {
			quote, err := m.routes.EstimateAmountOut(ctx, token, m.ioToken, bal)
			if err != nil {
				return sdkmath.ZeroInt(), err
			}
			minOut := quote.MulRaw(10_000 - m.slippageBps).QuoRaw(10_000)
			if _, err := m.routes.ExactInput(ctx, m.address, token, m.ioToken, bal, minOut); err != nil {
				return sdkmath.ZeroInt(), err
			}
		}
		idle, err = m.ledger.BalanceOf(ctx, m.ioToken, m.address)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	return idle, nil
}
