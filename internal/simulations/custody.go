package simulations

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	v3utils "github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// CreatePool registers a pool for the sorted pair. The pool price always tracks the oracle prices.
func (c *Chain) CreatePool(key types.PoolKey, tickSpacing int) common.Address {
	key = key.Sorted()
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.st.pools[key]; ok {
		return p.address
	}
	seed := append(append(key.Token0.Bytes(), key.Token1.Bytes()...), byte(key.Fee>>16), byte(key.Fee>>8), byte(key.Fee))
	addr := common.BytesToAddress(crypto.Keccak256(seed)[12:])
	c.st.pools[key] = poolInfo{address: addr, key: key, tickSpacing: tickSpacing}
	custodyLogger.Debug().Str("pool", addr.Hex()).Uint32("fee", key.Fee).Msg("Paper pool created")
	return addr
}

// AccrueFees credits swap fees to a position, as if traders had crossed its range.
func (c *Chain) AccrueFees(tokenID types.TokenID, amount0, amount1 sdkmath.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.st.positions[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPosition, tokenID)
	}
	pos.owed0 = pos.owed0.Add(amount0)
	pos.owed1 = pos.owed1.Add(amount1)
	c.st.positions[tokenID] = pos
	return nil
}

// Custody returns the position custody facade.
func (c *Chain) Custody() *Custody {
	return &Custody{chain: c}
}

// Custody implements types.PositionCustody.
type Custody struct {
	chain *Chain
}

var _ types.PositionCustody = (*Custody)(nil)

func (p *Custody) Address() common.Address {
	return CustodyAddress
}

func (p *Custody) Pool(_ context.Context, key types.PoolKey) (types.PoolState, error) {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	return p.chain.poolState(key)
}

func (c *Chain) poolState(key types.PoolKey) (types.PoolState, error) {
	key = key.Sorted()
	pool, ok := c.st.pools[key]
	if !ok {
		return types.PoolState{}, fmt.Errorf("%w: %s/%s/%d", ErrUnknownPool, key.Token0.Hex(), key.Token1.Hex(), key.Fee)
	}
	t0, t1, err := c.prices(key.Token0, key.Token1)
	if err != nil {
		return types.PoolState{}, err
	}
	// one whole token0 is worth p0/p1 whole token1
	amount0 := pow10(t0.Decimals).Mul(t1.Price)
	amount1 := pow10(t1.Decimals).Mul(t0.Price)
	sqrtPrice := utils.SqrtPriceX96FromRatio(amount0, amount1)
	tick, err := v3utils.GetTickAtSqrtRatio(sqrtPrice)
	if err != nil {
		return types.PoolState{}, err
	}
	return types.PoolState{
		Address:      pool.address,
		Key:          key,
		TickSpacing:  pool.tickSpacing,
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
	}, nil
}

func rangeRatios(tickLower, tickUpper int) (*big.Int, *big.Int, error) {
	sqrtA, err := utils.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := utils.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}
	return sqrtA, sqrtB, nil
}

func (p *Custody) Mint(_ context.Context, caller common.Address, params types.MintParams) (types.MintResult, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Deadline < c.st.now {
		return types.MintResult{}, ErrDeadlinePassed
	}
	pool, err := c.poolState(params.Key)
	if err != nil {
		return types.MintResult{}, err
	}
	liquidity, amount0, amount1, err := c.fund(caller, pool, params.TickLower, params.TickUpper,
		params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
	if err != nil {
		return types.MintResult{}, err
	}
	id := c.st.nextTokenID
	c.st.nextTokenID++
	c.st.positions[id] = positionNFT{
		owner:     params.Recipient,
		key:       pool.Key,
		tickLower: params.TickLower,
		tickUpper: params.TickUpper,
		liquidity: liquidity,
		owed0:     sdkmath.ZeroInt(),
		owed1:     sdkmath.ZeroInt(),
	}
	custodyLogger.Debug().Uint64("tokenId", uint64(id)).Str("liquidity", liquidity.String()).Msg("Paper position minted")
	return types.MintResult{TokenID: id, Liquidity: liquidity, Amount0: amount0, Amount1: amount1}, nil
}

// fund computes the liquidity the desired amounts buy and pulls the exact amounts from payer into the pool.
func (c *Chain) fund(payer common.Address, pool types.PoolState, tickLower, tickUpper int, desired0, desired1, min0, min1 sdkmath.Int) (sdkmath.Int, sdkmath.Int, sdkmath.Int, error) {
	sqrtA, sqrtB, err := rangeRatios(tickLower, tickUpper)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	liquidity := utils.LiquidityForAmounts(pool.SqrtPriceX96, sqrtA, sqrtB, desired0, desired1)
	if !liquidity.IsPositive() {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: desired amounts fund no liquidity", ErrInsufficientBalance)
	}
	amount0, amount1 := utils.AmountsForLiquidityRoundUp(pool.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	// rounding up may exceed the desired amount by a unit
	amount0 = utils.MinInt(amount0, desired0)
	amount1 = utils.MinInt(amount1, desired1)
	if amount0.LT(utils.OrZero(min0)) || amount1.LT(utils.OrZero(min1)) {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("price slippage check: got %s/%s", amount0, amount1)
	}
	if err := c.spend(pool.Key.Token0, CustodyAddress, payer, pool.Address, amount0); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	if err := c.spend(pool.Key.Token1, CustodyAddress, payer, pool.Address, amount1); err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, sdkmath.Int{}, err
	}
	return liquidity, amount0, amount1, nil
}

func (c *Chain) ownedPosition(caller common.Address, id types.TokenID) (positionNFT, error) {
	pos, ok := c.st.positions[id]
	if !ok {
		return positionNFT{}, fmt.Errorf("%w: %d", ErrUnknownPosition, id)
	}
	if pos.owner != caller {
		return positionNFT{}, fmt.Errorf("%w: %d is held by %s", ErrNotOwner, id, pos.owner.Hex())
	}
	return pos, nil
}

func (p *Custody) IncreaseLiquidity(_ context.Context, caller common.Address, params types.IncreaseLiquidityParams) (types.LiquidityResult, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Deadline < c.st.now {
		return types.LiquidityResult{}, ErrDeadlinePassed
	}
	pos, err := c.ownedPosition(caller, params.TokenID)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	pool, err := c.poolState(pos.key)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	liquidity, amount0, amount1, err := c.fund(caller, pool, pos.tickLower, pos.tickUpper,
		params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	pos.liquidity = pos.liquidity.Add(liquidity)
	c.st.positions[params.TokenID] = pos
	return types.LiquidityResult{Liquidity: liquidity, Amount0: amount0, Amount1: amount1}, nil
}

func (p *Custody) DecreaseLiquidity(_ context.Context, caller common.Address, params types.DecreaseLiquidityParams) (types.LiquidityResult, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if params.Deadline < c.st.now {
		return types.LiquidityResult{}, ErrDeadlinePassed
	}
	pos, err := c.ownedPosition(caller, params.TokenID)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	if params.Liquidity.GT(pos.liquidity) {
		return types.LiquidityResult{}, fmt.Errorf("%w: removing %s of %s", ErrInsufficientBalance, params.Liquidity, pos.liquidity)
	}
	pool, err := c.poolState(pos.key)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	sqrtA, sqrtB, err := rangeRatios(pos.tickLower, pos.tickUpper)
	if err != nil {
		return types.LiquidityResult{}, err
	}
	amount0, amount1 := utils.AmountsForLiquidity(pool.SqrtPriceX96, sqrtA, sqrtB, params.Liquidity)
	if amount0.LT(utils.OrZero(params.Amount0Min)) || amount1.LT(utils.OrZero(params.Amount1Min)) {
		return types.LiquidityResult{}, fmt.Errorf("price slippage check: got %s/%s", amount0, amount1)
	}
	pos.liquidity = pos.liquidity.Sub(params.Liquidity)
	pos.owed0 = pos.owed0.Add(amount0)
	pos.owed1 = pos.owed1.Add(amount1)
	c.st.positions[params.TokenID] = pos
	return types.LiquidityResult{Liquidity: params.Liquidity, Amount0: amount0, Amount1: amount1}, nil
}

func (p *Custody) Collect(_ context.Context, caller common.Address, params types.CollectParams) (sdkmath.Int, sdkmath.Int, error) {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, err := c.ownedPosition(caller, params.TokenID)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	pool, err := c.poolState(pos.key)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	amount0 := utils.MinInt(pos.owed0, params.Amount0Max)
	amount1 := utils.MinInt(pos.owed1, params.Amount1Max)
	pos.owed0 = pos.owed0.Sub(amount0)
	pos.owed1 = pos.owed1.Sub(amount1)
	c.st.positions[params.TokenID] = pos
	c.payOut(pos.key.Token0, pool.Address, params.Recipient, amount0)
	c.payOut(pos.key.Token1, pool.Address, params.Recipient, amount1)
	return amount0, amount1, nil
}

func (p *Custody) Positions(_ context.Context, tokenID types.TokenID) (types.PositionData, error) {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	pos, ok := p.chain.st.positions[tokenID]
	if !ok {
		return types.PositionData{}, fmt.Errorf("%w: %d", ErrUnknownPosition, tokenID)
	}
	return types.PositionData{
		Key:         pos.key,
		TickLower:   pos.tickLower,
		TickUpper:   pos.tickUpper,
		Liquidity:   pos.liquidity,
		TokensOwed0: pos.owed0,
		TokensOwed1: pos.owed1,
	}, nil
}

func (p *Custody) OwnerOf(_ context.Context, tokenID types.TokenID) (common.Address, error) {
	p.chain.mu.Lock()
	defer p.chain.mu.Unlock()
	pos, ok := p.chain.st.positions[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownPosition, tokenID)
	}
	return pos.owner, nil
}

// SafeTransferFrom moves a position token. Transfers to the staker register a deposit for `from`.
func (p *Custody) SafeTransferFrom(_ context.Context, caller, from, to common.Address, tokenID types.TokenID, _ []byte) error {
	c := p.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != from {
		return fmt.Errorf("%w: %s cannot move tokens of %s", ErrNotOwner, caller.Hex(), from.Hex())
	}
	pos, err := c.ownedPosition(from, tokenID)
	if err != nil {
		return err
	}
	pos.owner = to
	c.st.positions[tokenID] = pos
	if to == StakerAddress {
		c.st.deposits[tokenID] = depositState{owner: from}
	}
	return nil
}
