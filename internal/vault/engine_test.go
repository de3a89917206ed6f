package vault_test

import (
	"context"
	"testing"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
	"github.com/elys-network/clvault/internal/vault"
)

const start = int64(1_700_000_000)

var (
	governance = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	strategist = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	rewards    = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	operator   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	managerAdr = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

func usdt(n int64) sdkmath.Int {
	return simulations.WholeUnits(n, 6)
}

// ledgerAM keeps the deposited underlying as a plain balance, paying at most shortBy less than asked.
type ledgerAM struct {
	ledger  types.TokenLedger
	shortBy sdkmath.Int
}

func (a *ledgerAM) Address() common.Address { return managerAdr }
func (a *ledgerAM) Token() common.Address   { return simulations.USDT }

func (a *ledgerAM) Assets(ctx context.Context) (sdkmath.Int, error) {
	return a.ledger.BalanceOf(ctx, simulations.USDT, managerAdr)
}

func (a *ledgerAM) Withdraw(ctx context.Context, caller, to common.Address, amount, _ sdkmath.Int) (sdkmath.Int, error) {
	if caller != vaultAddr {
		return sdkmath.ZeroInt(), errors.Wrap(types.ErrUnauthorized, "withdraw")
	}
	bal, err := a.Assets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	pay := utils.MinInt(amount, bal)
	if !a.shortBy.IsNil() {
		pay = pay.Sub(a.shortBy)
	}
	if err := a.ledger.Transfer(ctx, simulations.USDT, managerAdr, to, pay); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pay, nil
}

type fixture struct {
	ctx      context.Context
	chain    *simulations.Chain
	engine   *vault.Engine
	am       *ledgerAM
	recorder *types.EventRecorder
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)

	id, err := auth.NewIdentity(auth.Roles{Governance: governance, Admin: admin, Strategist: strategist, Rewards: rewards})
	require.NoError(t, err)

	recorder := types.NewEventRecorder(0)
	engine, err := vault.NewEngine(vault.Config{
		Address:    vaultAddr,
		Ledger:     chain.Ledger(),
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       recorder,
		Env:        chain,
	})
	require.NoError(t, err)

	am := &ledgerAM{ledger: chain.Ledger()}
	require.NoError(t, engine.Bind(ctx, governance, simulations.USDT, am))
	require.NoError(t, engine.SetCap(ctx, admin, usdt(1_000_000)))
	return &fixture{ctx: ctx, chain: chain, engine: engine, am: am, recorder: recorder}
}

// fund mints amount to the investor and approves the vault for it.
func (f *fixture) fund(t *testing.T, investor common.Address, amount sdkmath.Int) {
	t.Helper()
	f.chain.Mint(simulations.USDT, investor, amount)
	require.NoError(t, f.chain.Ledger().Approve(f.ctx, simulations.USDT, investor, vaultAddr, amount))
}

func (f *fixture) join(t *testing.T, investor common.Address, amount sdkmath.Int) sdkmath.Int {
	t.Helper()
	f.fund(t, investor, amount)
	shares, err := f.engine.JoinPool(f.ctx, investor, amount)
	require.NoError(t, err)
	return shares
}

func (f *fixture) setFee(t *testing.T, kind types.FeeKind, ratio, denominator int64) {
	t.Helper()
	require.NoError(t, f.engine.SetFee(f.ctx, governance, kind, sdkmath.NewInt(ratio), sdkmath.NewInt(denominator), sdkmath.ZeroInt()))
}

func (f *fixture) balance(t *testing.T, holder common.Address) sdkmath.Int {
	t.Helper()
	bal, err := f.chain.Ledger().BalanceOf(f.ctx, simulations.USDT, holder)
	require.NoError(t, err)
	return bal
}

func requireConserved(t *testing.T, engine *vault.Engine) {
	t.Helper()
	sum := sdkmath.ZeroInt()
	for _, acct := range engine.Accounts() {
		sum = sum.Add(acct.ShareBalance)
	}
	require.Equal(t, engine.TotalShares().String(), sum.String(), "total shares must equal the sum of balances")
}

func TestBind(t *testing.T) {
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	id, err := auth.NewIdentity(auth.Roles{Governance: governance, Admin: admin, Rewards: rewards})
	require.NoError(t, err)
	engine, err := vault.NewEngine(vault.Config{Address: vaultAddr, Ledger: chain.Ledger(), Authorizer: id, Clock: chain.Now})
	require.NoError(t, err)
	am := &ledgerAM{ledger: chain.Ledger()}

	_, err = engine.JoinPool(ctx, alice, usdt(1))
	require.ErrorIs(t, err, types.ErrNotBound)

	err = engine.Bind(ctx, admin, simulations.USDT, am)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Contains(t, err.Error(), "bind")
	require.ErrorIs(t, engine.Bind(ctx, governance, simulations.WETH, am), types.ErrInvalidAddress)

	require.NoError(t, engine.Bind(ctx, governance, simulations.USDT, am))
	require.ErrorIs(t, engine.Bind(ctx, governance, simulations.USDT, am), types.ErrAlreadyBound)
	assert.Equal(t, simulations.USDT, engine.IOToken())
	assert.Equal(t, managerAdr, engine.AssetManager().Address())
}

func TestSetFee(t *testing.T) {
	f := setupEngine(t)

	err := f.engine.SetFee(f.ctx, operator, types.FeeEntry, sdkmath.OneInt(), sdkmath.NewInt(1000), sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrUnauthorized)

	err = f.engine.SetFee(f.ctx, admin, types.FeeEntry, sdkmath.NewInt(1001), sdkmath.NewInt(1000), sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidRatio)
	err = f.engine.SetFee(f.ctx, admin, types.FeeExit, sdkmath.NewInt(1001), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidRatio, "a zero denominator means the default base")
	err = f.engine.SetFee(f.ctx, admin, types.FeeKind(9), sdkmath.OneInt(), sdkmath.NewInt(10), sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrUnknownFeeKind)

	// A 100% fee is legal.
	require.NoError(t, f.engine.SetFee(f.ctx, admin, types.FeeExit, sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt()))
	f.chain.Advance(60)
	require.NoError(t, f.engine.SetFee(f.ctx, admin, types.FeePerformance, sdkmath.NewInt(20), sdkmath.NewInt(100), sdkmath.ZeroInt()))

	perf, err := f.engine.Fee(types.FeePerformance)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(20), perf.Ratio)
	assert.Equal(t, sdkmath.NewInt(100), perf.Denominator)
	assert.Equal(t, start+60, perf.LastTimestamp)

	changes := f.recorder.Named(types.EventFeeChanged)
	require.Len(t, changes, 2)
	last := changes[1].(types.FeeChanged)
	assert.Equal(t, admin, last.Setter)
	assert.True(t, last.OldRatio.IsZero())
	assert.Equal(t, sdkmath.NewInt(20), last.NewRatio)
}

func TestSetCapEmitsChange(t *testing.T) {
	f := setupEngine(t)
	require.ErrorIs(t, f.engine.SetCap(f.ctx, operator, usdt(1)), types.ErrUnauthorized)
	require.NoError(t, f.engine.SetCap(f.ctx, governance, usdt(5)))

	changes := f.recorder.Named(types.EventCapChanged)
	require.Len(t, changes, 2)
	ev := changes[1].(types.CapChanged)
	assert.Equal(t, usdt(1_000_000), ev.OldCap)
	assert.Equal(t, usdt(5), ev.NewCap)
	assert.Equal(t, usdt(5), f.engine.Cap())
}

func TestJoinWithoutFeesIsLossless(t *testing.T) {
	f := setupEngine(t)

	shares := f.join(t, alice, usdt(100))

	assert.Equal(t, usdt(100), shares)
	value, err := f.engine.AccountNetValue(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, usdt(100), value)
	net, err := f.engine.GlobalNetValue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, utils.OneE18, net)
	assert.Equal(t, usdt(100), f.balance(t, managerAdr), "deposits go straight to the asset manager")
}

func TestCapIsExact(t *testing.T) {
	f := setupEngine(t)
	require.NoError(t, f.engine.SetCap(f.ctx, admin, usdt(1000)))
	f.join(t, alice, usdt(600))

	f.fund(t, bob, usdt(401))
	_, err := f.engine.JoinPool(f.ctx, bob, usdt(401))
	require.ErrorIs(t, err, types.ErrCapExceeded)

	_, err = f.engine.JoinPool(f.ctx, bob, usdt(400))
	require.NoError(t, err)

	require.NoError(t, f.engine.SetCap(f.ctx, admin, sdkmath.ZeroInt()))
	f.fund(t, bob, usdt(1))
	_, err = f.engine.JoinPool(f.ctx, bob, usdt(1))
	require.ErrorIs(t, err, types.ErrCapExceeded)
}

func TestEntryFeeGoesToRewards(t *testing.T) {
	f := setupEngine(t)
	f.setFee(t, types.FeeEntry, 1, 1000)

	shares := f.join(t, alice, usdt(100))

	assert.Equal(t, sdkmath.NewInt(99_900_000), shares)
	assert.Equal(t, sdkmath.NewInt(100_000), f.engine.BalanceOf(rewards))
	assert.Equal(t, utils.OneE18, f.engine.EntryNetValue(alice))
	assert.Equal(t, utils.OneE18, f.engine.EntryNetValue(rewards))
	joined := f.recorder.Named(types.EventPoolJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, shares, joined[0].(types.PoolJoined).Amount)
	requireConserved(t, f.engine)
}

func TestManagementFeeAccrues(t *testing.T) {
	f := setupEngine(t)
	f.setFee(t, types.FeeManagement, 2, 1000)
	f.join(t, alice, usdt(100))

	f.chain.Advance(types.SecondsPerYear)
	_, err := f.engine.Poke(f.ctx, alice)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	minted, err := f.engine.Poke(f.ctx, strategist)
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(200_000), minted)
	assert.Equal(t, minted, f.engine.BalanceOf(rewards))
	fee, err := f.engine.Fee(types.FeeManagement)
	require.NoError(t, err)
	assert.Equal(t, start+types.SecondsPerYear, fee.LastTimestamp)

	again, err := f.engine.Poke(f.ctx, strategist)
	require.NoError(t, err)
	assert.True(t, again.IsZero())
	requireConserved(t, f.engine)
}

func TestPerformanceFeeOnlyOnGain(t *testing.T) {
	f := setupEngine(t)
	f.setFee(t, types.FeeExit, 1, 1000)
	f.setFee(t, types.FeePerformance, 20, 1000)
	f.join(t, alice, usdt(100))

	// No gain: only the exit fee is taken.
	_, err := f.engine.ExitPool(f.ctx, alice, usdt(10))
	require.NoError(t, err)
	exited := f.recorder.Named(types.EventPoolExited)
	require.Len(t, exited, 1)
	ev := exited[0].(types.PoolExited)
	assert.Equal(t, sdkmath.NewInt(10_000), ev.ExitFee)
	assert.True(t, ev.PerformanceFee.IsZero())
	assert.Equal(t, sdkmath.NewInt(9_990_000), ev.Amount)

	// A loss is not charged either.
	require.NoError(t, f.chain.Burn(simulations.USDT, managerAdr, usdt(9)))
	_, err = f.engine.ExitPool(f.ctx, alice, usdt(10))
	require.NoError(t, err)
	ev = f.recorder.Named(types.EventPoolExited)[1].(types.PoolExited)
	assert.True(t, ev.PerformanceFee.IsZero())

	// A gain is.
	f.chain.Mint(simulations.USDT, managerAdr, usdt(30))
	_, err = f.engine.ExitPool(f.ctx, alice, usdt(10))
	require.NoError(t, err)
	ev = f.recorder.Named(types.EventPoolExited)[2].(types.PoolExited)
	assert.True(t, ev.PerformanceFee.IsPositive())
	requireConserved(t, f.engine)
}

func TestFullExitFeeSkipsPerformanceFee(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(100))
	f.setFee(t, types.FeeExit, 1000, 1000)
	f.setFee(t, types.FeePerformance, 1000, 1000)
	f.chain.Mint(simulations.USDT, managerAdr, usdt(50))

	paid, err := f.engine.ExitPool(f.ctx, alice, usdt(40))
	require.NoError(t, err)

	assert.True(t, paid.IsZero())
	ev := f.recorder.Named(types.EventPoolExited)[0].(types.PoolExited)
	assert.Equal(t, usdt(40), ev.ExitFee)
	assert.True(t, ev.PerformanceFee.IsZero())
	assert.Equal(t, usdt(40), f.engine.BalanceOf(rewards))
	requireConserved(t, f.engine)
}

func TestExitPoolRequiresShares(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(10))

	_, err := f.engine.ExitPool(f.ctx, alice, usdt(11))
	require.ErrorIs(t, err, types.ErrInsufficientShares)
	_, err = f.engine.ExitPool(f.ctx, bob, sdkmath.OneInt())
	require.ErrorIs(t, err, types.ErrInsufficientShares)
	_, err = f.engine.ExitPool(f.ctx, alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestExitPoolOfUnderlying(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(100))
	f.chain.Mint(simulations.USDT, managerAdr, usdt(100))

	// ARRANGE: net value is 2, so 40 underlying is 20 shares.
	before := f.balance(t, alice)

	// ACT
	paid, err := f.engine.ExitPoolOfUnderlying(f.ctx, alice, usdt(40))

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, usdt(40), paid)
	assert.Equal(t, usdt(40), f.balance(t, alice).Sub(before))
	assert.Equal(t, usdt(80), f.engine.BalanceOf(alice))
}

func TestBalanceReachingZeroResetsEntryNetValue(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(100))
	f.chain.Mint(simulations.USDT, managerAdr, usdt(10))

	_, err := f.engine.ExitPool(f.ctx, alice, usdt(100))
	require.NoError(t, err)

	acct, ok := f.engine.Account(alice)
	require.True(t, ok)
	assert.True(t, acct.ShareBalance.IsZero())
	assert.True(t, acct.EntryNetValue.IsZero())
	value, err := f.engine.AccountNetValue(f.ctx, alice)
	require.NoError(t, err)
	assert.True(t, value.IsZero())
}

func TestShareConservation(t *testing.T) {
	f := setupEngine(t)
	f.setFee(t, types.FeeEntry, 3, 1000)
	f.setFee(t, types.FeeExit, 2, 1000)
	f.setFee(t, types.FeeManagement, 5, 1000)
	f.setFee(t, types.FeePerformance, 100, 1000)

	steps := []func(){
		func() { f.join(t, alice, usdt(250)) },
		func() { f.chain.Advance(86_400); f.join(t, bob, usdt(75)) },
		func() { f.chain.Mint(simulations.USDT, managerAdr, usdt(33)) },
		func() {
			f.chain.Advance(3_600)
			_, err := f.engine.ExitPool(f.ctx, alice, usdt(120))
			require.NoError(t, err)
		},
		func() {
			_, err := f.engine.ExitPoolOfUnderlying(f.ctx, bob, usdt(20))
			require.NoError(t, err)
		},
		func() {
			f.chain.Advance(7 * 86_400)
			_, err := f.engine.ExitPool(f.ctx, bob, f.engine.BalanceOf(bob))
			require.NoError(t, err)
		},
		func() {
			_, err := f.engine.ExitPool(f.ctx, rewards, f.engine.BalanceOf(rewards))
			require.NoError(t, err)
		},
	}
	for _, step := range steps {
		step()
		requireConserved(t, f.engine)
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := setupEngine(t)

	// ARRANGE: cap 1000, entry 0.1%, management 0.2%/year, performance 2%
	require.NoError(t, f.engine.SetCap(f.ctx, admin, usdt(1000)))
	f.setFee(t, types.FeeEntry, 1, 1000)
	f.setFee(t, types.FeeManagement, 2, 1000)
	f.setFee(t, types.FeePerformance, 20, 1000)

	shares := f.join(t, alice, usdt(100))
	assert.Equal(t, sdkmath.NewInt(99_900_000), shares)

	// ACT: the deployed assets gain 10% and a month passes
	f.chain.Mint(simulations.USDT, managerAdr, usdt(10))
	f.chain.Advance(30 * 86_400)
	paid, err := f.engine.ExitPool(f.ctx, alice, shares)
	require.NoError(t, err)

	// ASSERT
	assert.True(t, paid.GT(usdt(100)), "paid %s", paid)
	assert.True(t, paid.LT(usdt(110)), "paid %s", paid)
	assert.Equal(t, paid, f.balance(t, alice))
	ev := f.recorder.Named(types.EventPoolExited)[0].(types.PoolExited)
	assert.True(t, ev.PerformanceFee.IsPositive())
	assert.True(t, ev.ExitFee.IsZero())
	assert.True(t, f.engine.BalanceOf(alice).IsZero())
	assert.True(t, f.engine.BalanceOf(rewards).GT(sdkmath.NewInt(100_000)), "entry, management and performance fees")
	requireConserved(t, f.engine)
}

func TestFailedExitRollsBack(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(100))
	f.am.shortBy = sdkmath.OneInt()
	f.recorder.Reset()

	_, err := f.engine.ExitPool(f.ctx, alice, usdt(50))

	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	assert.Equal(t, usdt(100), f.engine.BalanceOf(alice))
	assert.Equal(t, usdt(100), f.engine.TotalShares())
	assert.Equal(t, usdt(100), f.balance(t, managerAdr), "the paper chain is reverted too")
	assert.True(t, f.balance(t, alice).IsZero())
	assert.Empty(t, f.recorder.Events())
}

// reentrantAM joins the vault again from inside an assets query.
type reentrantAM struct {
	*ledgerAM
	engine *vault.Engine
	err    error
}

func (a *reentrantAM) Assets(ctx context.Context) (sdkmath.Int, error) {
	if a.err == nil {
		_, a.err = a.engine.JoinPool(ctx, bob, usdt(1))
	}
	return a.ledgerAM.Assets(ctx)
}

func TestReentrantJoinIsRejected(t *testing.T) {
	ctx := context.Background()
	chain := simulations.NewDefaultChain(start)
	id, err := auth.NewIdentity(auth.Roles{Governance: governance, Rewards: rewards})
	require.NoError(t, err)
	engine, err := vault.NewEngine(vault.Config{Address: vaultAddr, Ledger: chain.Ledger(), Authorizer: id, Clock: chain.Now, Env: chain})
	require.NoError(t, err)
	am := &reentrantAM{ledgerAM: &ledgerAM{ledger: chain.Ledger()}, engine: engine}
	require.NoError(t, engine.Bind(ctx, governance, simulations.USDT, am))
	require.NoError(t, engine.SetCap(ctx, governance, usdt(1000)))

	chain.Mint(simulations.USDT, alice, usdt(10))
	require.NoError(t, chain.Ledger().Approve(ctx, simulations.USDT, alice, vaultAddr, usdt(10)))
	_, err = engine.JoinPool(ctx, alice, usdt(10))

	require.NoError(t, err)
	require.ErrorIs(t, am.err, types.ErrReentrantCall)
	assert.Equal(t, usdt(10), engine.TotalShares())
}

func TestState(t *testing.T) {
	f := setupEngine(t)
	f.join(t, alice, usdt(100))

	st, err := f.engine.State(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, simulations.USDT.Hex(), st.IOToken)
	assert.Equal(t, usdt(100), st.TotalAssets)
	assert.Equal(t, usdt(100), st.LiquidityAssets, "a plain asset manager reports everything as deployed")
	assert.Equal(t, utils.OneE18, st.NetValue)
	assert.Equal(t, 1, st.Accounts)
	assert.Len(t, st.Fees, 4)
}
