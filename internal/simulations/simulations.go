/*

This package contains an in-memory paper chain: a token ledger, an oracle-priced router,
a concentrated liquidity position custody and an incentive staker. It backs the paper mode
of the binary and is the collaborator double in tests. Nothing here is meant to match an
on-chain implementation beyond the interfaces in internal/types.

*/

package simulations

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

// Error definitions for the paper chain
var (
	ErrUnknownToken        = errors.New("unknown token")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAllow   = errors.New("insufficient allowance")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrUnknownPosition     = errors.New("unknown position token")
	ErrNotOwner            = errors.New("caller is not the position owner")
	ErrDeadlinePassed      = errors.New("transaction too old")
	ErrPriceNotSet         = errors.New("token price not set")
	ErrIncentiveExists     = errors.New("incentive already exists")
	ErrUnknownIncentive    = errors.New("unknown incentive")
	ErrTokenStaked         = errors.New("token has active stakes")
	ErrNotDeposited        = errors.New("token not deposited")
)

var (
	chainLogger   = logger.GetForComponent("paper_chain")
	swapLogger    = logger.GetForComponent("paper_router")
	custodyLogger = logger.GetForComponent("paper_custody")
	stakerLogger  = logger.GetForComponent("paper_staker")
)

// Well-known collaborator addresses on the paper chain.
var (
	RouterAddress  = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	CustodyAddress = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	StakerAddress  = common.HexToAddress("0xe34139463bA50bD61336E0c446Bd8C0867c6fE65")
)

// TokenInfo describes a paper token. Price is the numeraire value of one whole token, 1e18 fixed point.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals int
	Price    sdkmath.Int
}

type poolInfo struct {
	address     common.Address
	key         types.PoolKey
	tickSpacing int
}

type positionNFT struct {
	owner     common.Address
	key       types.PoolKey
	tickLower int
	tickUpper int
	liquidity sdkmath.Int
	owed0     sdkmath.Int
	owed1     sdkmath.Int
}

type incentiveState struct {
	reward         sdkmath.Int
	unclaimed      sdkmath.Int
	numberOfStakes int
}

type depositState struct {
	owner          common.Address
	numberOfStakes int
}

type stakeKey struct {
	key     types.IncentiveKey
	tokenID types.TokenID
}

// state is everything a checkpoint captures.
type state struct {
	now         int64
	tokens      map[common.Address]TokenInfo
	balances    map[common.Address]map[common.Address]sdkmath.Int
	allowances  map[common.Address]map[common.Address]map[common.Address]sdkmath.Int
	pools       map[types.PoolKey]poolInfo
	positions   map[types.TokenID]positionNFT
	nextTokenID types.TokenID
	incentives  map[types.IncentiveKey]incentiveState
	deposits    map[types.TokenID]depositState
	stakes      map[stakeKey]int64
	rewards     map[common.Address]map[common.Address]sdkmath.Int
}

// Chain is the paper environment. All facades share its state and lock.
type Chain struct {
	mu     sync.Mutex
	st     state
	logger zerolog.Logger
}

// NewChain starts an empty chain at unix time now.
func NewChain(now int64) *Chain {
	return &Chain{
		st: state{
			now:         now,
			tokens:      make(map[common.Address]TokenInfo),
			balances:    make(map[common.Address]map[common.Address]sdkmath.Int),
			allowances:  make(map[common.Address]map[common.Address]map[common.Address]sdkmath.Int),
			pools:       make(map[types.PoolKey]poolInfo),
			positions:   make(map[types.TokenID]positionNFT),
			nextTokenID: 1,
			incentives:  make(map[types.IncentiveKey]incentiveState),
			deposits:    make(map[types.TokenID]depositState),
			stakes:      make(map[stakeKey]int64),
			rewards:     make(map[common.Address]map[common.Address]sdkmath.Int),
		},
		logger: chainLogger,
	}
}

// Now is the chain clock, usable as a types.Clock.
func (c *Chain) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.now
}

// Advance moves the clock forward.
func (c *Chain) Advance(seconds int64) {
	c.mu.Lock()
	c.st.now += seconds
	c.mu.Unlock()
}

// AddToken registers a token with its decimals and numeraire price.
func (c *Chain) AddToken(addr common.Address, symbol string, decimals int, price sdkmath.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.tokens[addr] = TokenInfo{Address: addr, Symbol: symbol, Decimals: decimals, Price: price}
}

// SetPrice reprices a token; pool prices follow.
func (c *Chain) SetPrice(addr common.Address, price sdkmath.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.st.tokens[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	info.Price = price
	c.st.tokens[addr] = info
	c.logger.Debug().Str("token", info.Symbol).Str("price", price.String()).Msg("Price updated")
	return nil
}

// Token returns the registered token info.
func (c *Chain) Token(addr common.Address) (TokenInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.st.tokens[addr]
	return info, ok
}

// Mint credits amount of token to holder out of thin air.
func (c *Chain) Mint(token, holder common.Address, amount sdkmath.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(token, holder, amount)
}

// Burn removes amount of token from holder, e.g. to simulate a realized loss.
func (c *Chain) Burn(token, holder common.Address, amount sdkmath.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debit(token, holder, amount)
}

// Checkpoint captures the full chain state; calling revert restores it.
func (c *Chain) Checkpoint() func() {
	c.mu.Lock()
	saved := c.st.clone()
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.st = saved.clone()
		c.mu.Unlock()
	}
}

var _ types.Checkpointer = (*Chain)(nil)

func (c *Chain) balance(token, holder common.Address) sdkmath.Int {
	if holders, ok := c.st.balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return bal
		}
	}
	return sdkmath.ZeroInt()
}

func (c *Chain) credit(token, holder common.Address, amount sdkmath.Int) {
	holders, ok := c.st.balances[token]
	if !ok {
		holders = make(map[common.Address]sdkmath.Int)
		c.st.balances[token] = holders
	}
	holders[holder] = c.balance(token, holder).Add(amount)
}

func (c *Chain) debit(token, holder common.Address, amount sdkmath.Int) error {
	bal := c.balance(token, holder)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, holder.Hex(), bal, token.Hex(), amount)
	}
	c.st.balances[token][holder] = bal.Sub(amount)
	return nil
}

func (c *Chain) move(token, from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative transfer", ErrInsufficientBalance)
	}
	if amount.IsZero() {
		return nil
	}
	if err := c.debit(token, from, amount); err != nil {
		return err
	}
	c.credit(token, to, amount)
	return nil
}

// payOut sends amount from a reserve address, minting any shortfall. The paper router and
// pools behave as if deep external liquidity stands behind them.
func (c *Chain) payOut(token, reserve, to common.Address, amount sdkmath.Int) {
	if bal := c.balance(token, reserve); bal.LT(amount) {
		c.credit(token, reserve, amount.Sub(bal))
	}
	_ = c.move(token, reserve, to, amount)
}

func (c *Chain) allowance(token, owner, spender common.Address) sdkmath.Int {
	if owners, ok := c.st.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[spender]; ok {
				return a
			}
		}
	}
	return sdkmath.ZeroInt()
}

func (c *Chain) setAllowance(token, owner, spender common.Address, amount sdkmath.Int) {
	owners, ok := c.st.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]sdkmath.Int)
		c.st.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]sdkmath.Int)
		owners[owner] = spenders
	}
	spenders[spender] = amount
}

// spend pulls amount from `from` on behalf of spender, consuming allowance unless it is unlimited.
func (c *Chain) spend(token, spender, from, to common.Address, amount sdkmath.Int) error {
	if spender != from {
		allowed := c.allowance(token, from, spender)
		if allowed.LT(amount) {
			return fmt.Errorf("%w: %s may spend %s of %s for %s", ErrInsufficientAllow, spender.Hex(), allowed, token.Hex(), from.Hex())
		}
		if !allowed.Equal(types.MaxUint256) {
			c.setAllowance(token, from, spender, allowed.Sub(amount))
		}
	}
	return c.move(token, from, to, amount)
}

// Ledger returns the token ledger facade.
func (c *Chain) Ledger() *Ledger {
	return &Ledger{chain: c}
}

// Ledger implements types.TokenLedger over the paper chain.
type Ledger struct {
	chain *Chain
}

var _ types.TokenLedger = (*Ledger)(nil)

func (l *Ledger) BalanceOf(_ context.Context, token, holder common.Address) (sdkmath.Int, error) {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return l.chain.balance(token, holder), nil
}

func (l *Ledger) Transfer(_ context.Context, token, from, to common.Address, amount sdkmath.Int) error {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return l.chain.move(token, from, to, amount)
}

func (l *Ledger) TransferFrom(_ context.Context, token, spender, from, to common.Address, amount sdkmath.Int) error {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return l.chain.spend(token, spender, from, to, amount)
}

func (l *Ledger) Approve(_ context.Context, token, owner, spender common.Address, amount sdkmath.Int) error {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	l.chain.setAllowance(token, owner, spender, amount)
	return nil
}

func (l *Ledger) Allowance(_ context.Context, token, owner, spender common.Address) (sdkmath.Int, error) {
	l.chain.mu.Lock()
	defer l.chain.mu.Unlock()
	return l.chain.allowance(token, owner, spender), nil
}

func (s state) clone() state {
	out := state{
		now:         s.now,
		tokens:      make(map[common.Address]TokenInfo, len(s.tokens)),
		balances:    make(map[common.Address]map[common.Address]sdkmath.Int, len(s.balances)),
		allowances:  make(map[common.Address]map[common.Address]map[common.Address]sdkmath.Int, len(s.allowances)),
		pools:       make(map[types.PoolKey]poolInfo, len(s.pools)),
		positions:   make(map[types.TokenID]positionNFT, len(s.positions)),
		nextTokenID: s.nextTokenID,
		incentives:  make(map[types.IncentiveKey]incentiveState, len(s.incentives)),
		deposits:    make(map[types.TokenID]depositState, len(s.deposits)),
		stakes:      make(map[stakeKey]int64, len(s.stakes)),
		rewards:     make(map[common.Address]map[common.Address]sdkmath.Int, len(s.rewards)),
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	for token, holders := range s.balances {
		m := make(map[common.Address]sdkmath.Int, len(holders))
		for h, v := range holders {
			m[h] = v
		}
		out.balances[token] = m
	}
	for token, owners := range s.allowances {
		om := make(map[common.Address]map[common.Address]sdkmath.Int, len(owners))
		for o, spenders := range owners {
			sm := make(map[common.Address]sdkmath.Int, len(spenders))
			for sp, v := range spenders {
				sm[sp] = v
			}
			om[o] = sm
		}
		out.allowances[token] = om
	}
	for k, v := range s.pools {
		out.pools[k] = v
	}
	for k, v := range s.positions {
		out.positions[k] = v
	}
	for k, v := range s.incentives {
		out.incentives[k] = v
	}
	for k, v := range s.deposits {
		out.deposits[k] = v
	}
	for k, v := range s.stakes {
		out.stakes[k] = v
	}
	for token, owners := range s.rewards {
		m := make(map[common.Address]sdkmath.Int, len(owners))
		for o, v := range owners {
			m[o] = v
		}
		out.rewards[token] = m
	}
	return out
}

// pow10 returns 10^n as an Int.
func pow10(n int) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}
