package liquidity

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/planner"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// MintRequest opens a position or adds to the existing one for the same range.
// Token order is free; the pool key is sorted before use.
type MintRequest struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int
	TickUpper      int
	Amount0Desired sdkmath.Int
	Amount1Desired sdkmath.Int
}

type IncreaseRequest struct {
	TokenID        types.TokenID
	Amount0Desired sdkmath.Int
	Amount1Desired sdkmath.Int
	Amount0Min     sdkmath.Int
	Amount1Min     sdkmath.Int
}

type DecreaseRequest struct {
	TokenID    types.TokenID
	Liquidity  sdkmath.Int
	Amount0Min sdkmath.Int
	Amount1Min sdkmath.Int
}

type CollectRequest struct {
	TokenID    types.TokenID
	Amount0Max sdkmath.Int
	Amount1Max sdkmath.Int
}

// ExactInput swaps amountIn of tokenIn for at least minOut of tokenOut along the stored route.
func (m *Manager) ExactInput(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := m.run(ctx, "exactInput", func() error {
		var err error
		out, err = m.exactInput(ctx, caller, tokenIn, tokenOut, amountIn, minOut)
		return err
	})
	return out, err
}

func (m *Manager) exactInput(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	if err := auth.Require(m.authz, auth.Authorized, caller, "exactInput"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := m.requireUnderlying("exactInput", tokenIn, tokenOut); err != nil {
		return sdkmath.ZeroInt(), err
	}
	amountIn = utils.OrZero(amountIn)
	if !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exactInput: amountIn must be positive")
	}
	if err := m.checkLimit(caller, tokenIn, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return m.routes.ExactInput(ctx, m.address, tokenIn, tokenOut, amountIn, utils.OrZero(minOut))
}

// ExactOutput buys amountOut of tokenOut spending at most maxIn of tokenIn along the stored route.
func (m *Manager) ExactOutput(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountOut, maxIn sdkmath.Int) (sdkmath.Int, error) {
	var in sdkmath.Int
	err := m.run(ctx, "exactOutput", func() error {
		var err error
		in, err = m.exactOutput(ctx, caller, tokenIn, tokenOut, amountOut, maxIn)
		return err
	})
	return in, err
}

func (m *Manager) exactOutput(ctx context.Context, caller, tokenIn, tokenOut common.Address, amountOut, maxIn sdkmath.Int) (sdkmath.Int, error) {
	if err := auth.Require(m.authz, auth.Authorized, caller, "exactOutput"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := m.requireUnderlying("exactOutput", tokenIn, tokenOut); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amountOut = utils.OrZero(amountOut); !amountOut.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exactOutput: amountOut must be positive")
	}
	if maxIn.IsNil() || !maxIn.IsPositive() {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidAmount, "exactOutput: maxIn must be positive")
	}
	if err := m.checkLimit(caller, tokenIn, maxIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return m.routes.ExactOutput(ctx, m.address, tokenIn, tokenOut, amountOut, maxIn)
}

// Mint rebalances the desired amounts to the pool's price and opens the position, or increases
// it when the range is already open.
func (m *Manager) Mint(ctx context.Context, caller common.Address, req MintRequest) (types.Position, error) {
	var pos types.Position
	err := m.run(ctx, "mint", func() error {
		var err error
		pos, err = m.mint(ctx, caller, req)
		return err
	})
	return pos, err
}

func (m *Manager) mint(ctx context.Context, caller common.Address, req MintRequest) (types.Position, error) {
	if err := auth.Require(m.authz, auth.Authorized, caller, "mint"); err != nil {
		return types.Position{}, err
	}
	key := types.PoolKey{Token0: req.Token0, Token1: req.Token1, Fee: req.Fee}
	amount0, amount1 := utils.OrZero(req.Amount0Desired), utils.OrZero(req.Amount1Desired)
	if sorted := key.Sorted(); sorted.Token0 != key.Token0 {
		key = sorted
		amount0, amount1 = amount1, amount0
	}
	if err := m.requireUnderlying("mint", key.Token0, key.Token1); err != nil {
		return types.Position{}, err
	}
	if err := m.checkLimit(caller, key.Token0, amount0); err != nil {
		return types.Position{}, err
	}
	if err := m.checkLimit(caller, key.Token1, amount1); err != nil {
		return types.Position{}, err
	}
	if err := m.requireHeld(ctx, "mint", key.Token0, amount0); err != nil {
		return types.Position{}, err
	}
	if err := m.requireHeld(ctx, "mint", key.Token1, amount1); err != nil {
		return types.Position{}, err
	}

	pool, err := m.custody.Pool(ctx, key)
	if err != nil {
		return types.Position{}, errors.Wrap(err, "mint: pool lookup")
	}
	if err := planner.ValidateTickRange(req.TickLower, req.TickUpper, pool.TickSpacing); err != nil {
		return types.Position{}, err
	}
	amount0, amount1, err = m.rebalance(ctx, pool, req.TickLower, req.TickUpper, amount0, amount1)
	if err != nil {
		return types.Position{}, err
	}

	slot := types.PositionRange{Pool: pool.Address, TickLower: req.TickLower, TickUpper: req.TickUpper}
	if existing, ok := m.positions[slot]; ok {
		if err := m.increaseLiquidity(ctx, existing.TokenID, amount0, amount1, sdkmath.ZeroInt(), sdkmath.ZeroInt()); err != nil {
			return types.Position{}, err
		}
		return m.positions[slot], nil
	}

	res, err := m.custody.Mint(ctx, m.address, types.MintParams{
		Key:            key,
		TickLower:      req.TickLower,
		TickUpper:      req.TickUpper,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     sdkmath.ZeroInt(),
		Amount1Min:     sdkmath.ZeroInt(),
		Recipient:      m.address,
		Deadline:       m.deadline(),
	})
	if err != nil {
		return types.Position{}, errors.Wrap(err, "mint")
	}
	pos := types.Position{
		Pool:      pool.Address,
		Key:       key,
		TickLower: req.TickLower,
		TickUpper: req.TickUpper,
		TokenID:   res.TokenID,
		Liquidity: res.Liquidity,
	}
	m.positions[slot] = pos
	m.order = append(m.order, slot)
	m.byToken[res.TokenID] = slot
	m.events.Emit(ctx, types.Mint{
		TokenID:   res.TokenID,
		Pool:      pool.Address,
		TickLower: req.TickLower,
		TickUpper: req.TickUpper,
		Liquidity: res.Liquidity,
		Amount0:   res.Amount0,
		Amount1:   res.Amount1,
	})
	m.logger.Info().
		Uint64("tokenId", uint64(res.TokenID)).
		Str("pool", pool.Address.Hex()).
		Int("tickLower", req.TickLower).
		Int("tickUpper", req.TickUpper).
		Str("liquidity", res.Liquidity.String()).
		Msg("Position minted")
	return pos, nil
}

// rebalance swaps the surplus side so the amounts match the range's ratio at the current price.
func (m *Manager) rebalance(ctx context.Context, pool types.PoolState, tickLower, tickUpper int, amount0, amount1 sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	plan, err := planner.PlanMintRebalance(pool, tickLower, tickUpper, amount0, amount1, m.dustBps)
	if err != nil {
		return amount0, amount1, err
	}
	if plan.Direction == planner.SwapNone {
		return amount0, amount1, nil
	}
	sold, bought := pool.Key.Token0, pool.Key.Token1
	if plan.Direction == planner.SwapToken1ForToken0 {
		sold, bought = bought, sold
	}
	quote, err := m.routes.EstimateAmountOut(ctx, sold, bought, plan.AmountIn)
	if err != nil {
		return amount0, amount1, errors.Wrap(err, "mint: rebalance quote")
	}
	minOut := quote.MulRaw(10_000 - m.slippageBps).QuoRaw(10_000)
	out, err := m.routes.ExactInput(ctx, m.address, sold, bought, plan.AmountIn, minOut)
	if err != nil {
		return amount0, amount1, errors.Wrap(err, "mint: rebalance swap")
	}
	if plan.Direction == planner.SwapToken0ForToken1 {
		return amount0.Sub(plan.AmountIn), amount1.Add(out), nil
	}
	return amount0.Add(out), amount1.Sub(plan.AmountIn), nil
}

func (m *Manager) requireHeld(ctx context.Context, op string, token common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return errors.Wrapf(types.ErrInvalidAmount, "%s: negative amount of %s", op, token.Hex())
	}
	if amount.IsZero() {
		return nil
	}
	bal, err := m.ledger.BalanceOf(ctx, token, m.address)
	if err != nil {
		return err
	}
	if bal.LT(amount) {
		return errors.Wrapf(types.ErrInvalidAmount, "%s: holding %s of %s, need %s", op, bal, token.Hex(), amount)
	}
	return nil
}

func (m *Manager) position(op string, tokenID types.TokenID) (types.PositionRange, types.Position, error) {
	slot, ok := m.byToken[tokenID]
	if !ok {
		return types.PositionRange{}, types.Position{}, errors.Wrapf(types.ErrPositionNotFound, "%s: token %d", op, tokenID)
	}
	return slot, m.positions[slot], nil
}

// IncreaseLiquidity adds the desired amounts to an open or drained position.
func (m *Manager) IncreaseLiquidity(ctx context.Context, caller common.Address, req IncreaseRequest) error {
	return m.run(ctx, "increaseLiquidity", func() error {
		return m.increase(ctx, caller, req)
	})
}

func (m *Manager) increase(ctx context.Context, caller common.Address, req IncreaseRequest) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "increaseLiquidity"); err != nil {
		return err
	}
	_, pos, err := m.position("increaseLiquidity", req.TokenID)
	if err != nil {
		return err
	}
	amount0, amount1 := utils.OrZero(req.Amount0Desired), utils.OrZero(req.Amount1Desired)
	if err := m.checkLimit(caller, pos.Key.Token0, amount0); err != nil {
		return err
	}
	if err := m.checkLimit(caller, pos.Key.Token1, amount1); err != nil {
		return err
	}
	return m.increaseLiquidity(ctx, req.TokenID, amount0, amount1, utils.OrZero(req.Amount0Min), utils.OrZero(req.Amount1Min))
}

func (m *Manager) increaseLiquidity(ctx context.Context, tokenID types.TokenID, amount0, amount1, min0, min1 sdkmath.Int) error {
	slot, pos, err := m.position("increaseLiquidity", tokenID)
	if err != nil {
		return err
	}
	res, err := m.custody.IncreaseLiquidity(ctx, m.address, types.IncreaseLiquidityParams{
		TokenID:        tokenID,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     min0,
		Amount1Min:     min1,
		Deadline:       m.deadline(),
	})
	if err != nil {
		return errors.Wrap(err, "increaseLiquidity")
	}
	pos.Liquidity = pos.Liquidity.Add(res.Liquidity)
	m.positions[slot] = pos
	m.events.Emit(ctx, types.IncreaseLiquidity{TokenID: tokenID, Liquidity: res.Liquidity, Amount0: res.Amount0, Amount1: res.Amount1})
	m.logger.Info().
		Uint64("tokenId", uint64(tokenID)).
		Str("liquidity", res.Liquidity.String()).
		Str("amount0", res.Amount0.String()).
		Str("amount1", res.Amount1.String()).
		Msg("Liquidity increased")
	return nil
}

// DecreaseLiquidity removes liquidity. Draining to zero keeps the record; owed tokens still need collecting.
func (m *Manager) DecreaseLiquidity(ctx context.Context, caller common.Address, req DecreaseRequest) error {
	return m.run(ctx, "decreaseLiquidity", func() error {
		return m.decrease(ctx, caller, req)
	})
}

func (m *Manager) decrease(ctx context.Context, caller common.Address, req DecreaseRequest) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "decreaseLiquidity"); err != nil {
		return err
	}
	return m.decreaseLiquidity(ctx, req.TokenID, utils.OrZero(req.Liquidity), utils.OrZero(req.Amount0Min), utils.OrZero(req.Amount1Min))
}

func (m *Manager) decreaseLiquidity(ctx context.Context, tokenID types.TokenID, liquidity, min0, min1 sdkmath.Int) error {
	slot, pos, err := m.position("decreaseLiquidity", tokenID)
	if err != nil {
		return err
	}
	if !liquidity.IsPositive() || liquidity.GT(pos.Liquidity) {
		return errors.Wrapf(types.ErrInvalidAmount, "decreaseLiquidity: removing %s of %s", liquidity, pos.Liquidity)
	}
	res, err := m.custody.DecreaseLiquidity(ctx, m.address, types.DecreaseLiquidityParams{
		TokenID:    tokenID,
		Liquidity:  liquidity,
		Amount0Min: min0,
		Amount1Min: min1,
		Deadline:   m.deadline(),
	})
	if err != nil {
		return errors.Wrap(err, "decreaseLiquidity")
	}
	pos.Liquidity = pos.Liquidity.Sub(liquidity)
	m.positions[slot] = pos
	m.events.Emit(ctx, types.DecreaseLiquidity{TokenID: tokenID, Liquidity: liquidity, Amount0: res.Amount0, Amount1: res.Amount1})
	m.logger.Info().
		Uint64("tokenId", uint64(tokenID)).
		Str("liquidity", liquidity.String()).
		Str("remaining", pos.Liquidity.String()).
		Msg("Liquidity decreased")
	return nil
}

// Collect sweeps owed tokens of a position into the manager's balance.
func (m *Manager) Collect(ctx context.Context, caller common.Address, req CollectRequest) (sdkmath.Int, sdkmath.Int, error) {
	var a0, a1 sdkmath.Int
	err := m.run(ctx, "collect", func() error {
		var err error
		a0, a1, err = m.collectFor(ctx, caller, req)
		return err
	})
	return a0, a1, err
}

func (m *Manager) collectFor(ctx context.Context, caller common.Address, req CollectRequest) (sdkmath.Int, sdkmath.Int, error) {
	if err := auth.Require(m.authz, auth.Authorized, caller, "collect"); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	max0, max1 := req.Amount0Max, req.Amount1Max
	if max0.IsNil() {
		max0 = types.MaxUint256
	}
	if max1.IsNil() {
		max1 = types.MaxUint256
	}
	return m.collect(ctx, req.TokenID, max0, max1)
}

func (m *Manager) collect(ctx context.Context, tokenID types.TokenID, max0, max1 sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	if _, _, err := m.position("collect", tokenID); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	a0, a1, err := m.custody.Collect(ctx, m.address, types.CollectParams{
		TokenID:    tokenID,
		Recipient:  m.address,
		Amount0Max: max0,
		Amount1Max: max1,
	})
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Wrap(err, "collect")
	}
	m.events.Emit(ctx, types.Collect{TokenID: tokenID, Amount0: a0, Amount1: a1})
	m.logger.Info().
		Uint64("tokenId", uint64(tokenID)).
		Str("amount0", a0.String()).
		Str("amount1", a1.String()).
		Msg("Position collected")
	return a0, a1, nil
}

// CheckPos returns the position recorded for the range, or the zero Position.
func (m *Manager) CheckPos(pool common.Address, tickLower, tickUpper int) types.Position {
	return m.positions[types.PositionRange{Pool: pool, TickLower: tickLower, TickUpper: tickUpper}]
}

// PositionByToken looks a position up by its custody token id.
func (m *Manager) PositionByToken(tokenID types.TokenID) (types.Position, bool) {
	slot, ok := m.byToken[tokenID]
	if !ok {
		return types.Position{}, false
	}
	return m.positions[slot], true
}

// WorksPos lists the positions with liquidity, in mint order.
func (m *Manager) WorksPos() []types.Position {
	var out []types.Position
	for _, slot := range m.order {
		if pos := m.positions[slot]; pos.Liquidity.IsPositive() {
			out = append(out, pos)
		}
	}
	return out
}

// AllPositions lists every recorded position, drained ones included, in mint order.
func (m *Manager) AllPositions() []types.Position {
	out := make([]types.Position, 0, len(m.order))
	for _, slot := range m.order {
		out = append(out, m.positions[slot])
	}
	return out
}

// GetAmountsForLiquidity returns the token amounts liquidity represents in the range at the pool's current price.
func (m *Manager) GetAmountsForLiquidity(ctx context.Context, key types.PoolKey, tickLower, tickUpper int, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	pool, err := m.custody.Pool(ctx, key)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return amountsAt(pool, tickLower, tickUpper, liquidity)
}

func amountsAt(pool types.PoolState, tickLower, tickUpper int, liquidity sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	sqrtA, err := utils.SqrtRatioAtTick(tickLower)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidTickRange, err.Error())
	}
	sqrtB, err := utils.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), errors.Wrap(types.ErrInvalidTickRange, err.Error())
	}
	a0, a1 := utils.AmountsForLiquidity(pool.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	return a0, a1, nil
}
