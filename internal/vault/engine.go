/*

This package contains the share ledger of the vault. Deposits in the underlying token mint shares at
the current net value, withdrawals burn them, and four fees (entry, exit, management, performance) are
taken as shares credited to the rewards address. Deployed funds are only reached through the
types.AssetManager interface.

*/

package vault

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// DefaultWithdrawBufferBps is the extra share of deployed assets asked for when exits must free liquidity.
// It covers the swap cost of converting freed tokens back into the underlying.
const DefaultWithdrawBufferBps = 100

// Config wires an Engine to its collaborators.
type Config struct {
	Address           common.Address // Account holding the vault's idle underlying
	Ledger            types.TokenLedger
	Authorizer        types.Authorizer
	Clock             types.Clock
	Sink              types.EventSink
	Env               types.Checkpointer
	WithdrawBufferBps int64
}

// Engine is the vault's share ledger.
type Engine struct {
	address common.Address
	ledger  types.TokenLedger
	authz   types.Authorizer
	clock   types.Clock
	env     types.Checkpointer
	events  *utils.EventBuffer
	guard   utils.ReentrancyGuard

	ioToken common.Address
	am      types.AssetManager
	bound   bool

	totalShares sdkmath.Int
	cap         sdkmath.Int
	fees        [4]types.FeeSetting
	accounts    map[common.Address]types.Account
	order       []common.Address

	bufferBps int64
	logger    zerolog.Logger
}

// NewEngine returns an unbound vault with no shares, a zero cap and zero fees.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidAddress, "vault address is required")
	}
	if cfg.Ledger == nil || cfg.Authorizer == nil || cfg.Clock == nil {
		return nil, errors.Wrap(types.ErrInvalidAddress, "ledger, authorizer and clock are required")
	}
	if cfg.WithdrawBufferBps < 0 || cfg.WithdrawBufferBps >= 10_000 {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "withdraw buffer %d bps out of range", cfg.WithdrawBufferBps)
	}
	if cfg.WithdrawBufferBps == 0 {
		cfg.WithdrawBufferBps = DefaultWithdrawBufferBps
	}
	e := &Engine{
		address:     cfg.Address,
		ledger:      cfg.Ledger,
		authz:       cfg.Authorizer,
		clock:       cfg.Clock,
		env:         cfg.Env,
		events:      utils.NewEventBuffer(cfg.Sink),
		totalShares: sdkmath.ZeroInt(),
		cap:         sdkmath.ZeroInt(),
		accounts:    make(map[common.Address]types.Account),
		bufferBps:   cfg.WithdrawBufferBps,
		logger:      logger.GetForComponent("vault_engine"),
	}
	for i := range e.fees {
		e.fees[i] = types.NewFeeSetting()
	}
	return e, nil
}

// run executes one atomic unit: guard, snapshot, call, then flush events or roll everything back.
func (e *Engine) run(ctx context.Context, op string, fn func() error) error {
	release, err := e.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	restore := e.snapshot()
	var revert func()
	if e.env != nil {
		revert = e.env.Checkpoint()
	}
	var (
		commitAM   func(context.Context)
		rollbackAM func()
	)
	if p, ok := e.am.(types.UnitParticipant); ok {
		commitAM, rollbackAM = p.Begin()
	}
	e.events.Hold()
	if err := fn(); err != nil {
		e.events.Drop()
		if rollbackAM != nil {
			rollbackAM()
		}
		restore()
		if revert != nil {
			revert()
		}
		e.logger.Warn().Err(err).Str("op", op).Msg("Operation rolled back")
		return err
	}
	if commitAM != nil {
		commitAM(ctx)
	}
	e.events.Flush(ctx)
	return nil
}

func (e *Engine) snapshot() func() {
	accounts := make(map[common.Address]types.Account, len(e.accounts))
	for k, v := range e.accounts {
		accounts[k] = v
	}
	order := append([]common.Address(nil), e.order...)
	totalShares, capacity, fees := e.totalShares, e.cap, e.fees
	ioToken, am, bound := e.ioToken, e.am, e.bound
	return func() {
		e.accounts, e.order = accounts, order
		e.totalShares, e.cap, e.fees = totalShares, capacity, fees
		e.ioToken, e.am, e.bound = ioToken, am, bound
	}
}

func (e *Engine) requireBound(op string) error {
	if !e.bound {
		return errors.Wrapf(types.ErrNotBound, "%s: vault has no asset manager", op)
	}
	return nil
}

// Bind sets the underlying token and the asset manager deploying it. It can happen once.
func (e *Engine) Bind(ctx context.Context, caller, ioToken common.Address, am types.AssetManager) error {
	if err := auth.Require(e.authz, auth.Governance, caller, "bind"); err != nil {
		return err
	}
	return e.run(ctx, "bind", func() error {
		if e.bound {
			return errors.Wrapf(types.ErrAlreadyBound, "bind: vault is bound to %s", e.am.Address().Hex())
		}
		if ioToken == (common.Address{}) || am == nil {
			return errors.Wrap(types.ErrInvalidAddress, "bind: io token and asset manager are required")
		}
		if am.Token() != ioToken {
			return errors.Wrapf(types.ErrInvalidAddress, "bind: asset manager manages %s, not %s", am.Token().Hex(), ioToken.Hex())
		}
		e.ioToken, e.am, e.bound = ioToken, am, true
		e.logger.Info().Str("ioToken", ioToken.Hex()).Str("assetManager", am.Address().Hex()).Msg("Vault bound")
		return nil
	})
}

// SetCap bounds total assets after a deposit. A zero cap blocks deposits.
func (e *Engine) SetCap(ctx context.Context, caller common.Address, newCap sdkmath.Int) error {
	if err := auth.Require(e.authz, auth.AdminOrGovernance, caller, "setCap"); err != nil {
		return err
	}
	if newCap.IsNil() || newCap.IsNegative() {
		return errors.Wrap(types.ErrInvalidAmount, "setCap: cap must not be negative")
	}
	return e.run(ctx, "setCap", func() error {
		if _, err := e.accrueManagementFee(ctx); err != nil {
			return err
		}
		old := e.cap
		e.cap = newCap
		e.events.Emit(ctx, types.CapChanged{Setter: caller, OldCap: old, NewCap: newCap})
		e.logger.Info().Str("oldCap", old.String()).Str("newCap", newCap.String()).Msg("Cap changed")
		return nil
	})
}

// SetFee replaces one fee setting and anchors its accrual at the current time.
// A zero denominator means the default base. ratio == denominator is a legal 100% fee.
func (e *Engine) SetFee(ctx context.Context, caller common.Address, kind types.FeeKind, ratio, denominator, reserved sdkmath.Int) error {
	if err := auth.Require(e.authz, auth.AdminOrGovernance, caller, "setFee"); err != nil {
		return err
	}
	if !kind.Valid() {
		return errors.Wrapf(types.ErrUnknownFeeKind, "setFee: %s", kind)
	}
	ratio, denominator, reserved = utils.OrZero(ratio), utils.OrZero(denominator), utils.OrZero(reserved)
	if ratio.IsNegative() || denominator.IsNegative() {
		return errors.Wrap(types.ErrInvalidAmount, "setFee: ratio and denominator must not be negative")
	}
	next := types.FeeSetting{Ratio: ratio, Denominator: denominator, Reserved: reserved}
	if ratio.GT(next.EffectiveDenominator()) {
		return errors.Wrapf(types.ErrInvalidRatio, "setFee: %s ratio %s > denominator %s", kind, ratio, next.EffectiveDenominator())
	}
	return e.run(ctx, "setFee", func() error {
		if _, err := e.accrueManagementFee(ctx); err != nil {
			return err
		}
		old := e.fees[kind]
		next.LastTimestamp = e.clock()
		e.fees[kind] = next
		e.events.Emit(ctx, types.FeeChanged{
			Setter:         caller,
			Kind:           kind,
			OldRatio:       old.Ratio,
			OldDenominator: old.Denominator,
			NewRatio:       ratio,
			NewDenominator: denominator,
		})
		e.logger.Info().
			Str("kind", kind.String()).
			Str("ratio", ratio.String()).
			Str("denominator", next.EffectiveDenominator().String()).
			Msg("Fee changed")
		return nil
	})
}

// Poke accrues the management fee without any other change. Returns the shares minted.
func (e *Engine) Poke(ctx context.Context, caller common.Address) (sdkmath.Int, error) {
	if err := auth.Require(e.authz, auth.StrategistOrGovernance, caller, "poke"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	minted := sdkmath.ZeroInt()
	err := e.run(ctx, "poke", func() error {
		var err error
		minted, err = e.accrueManagementFee(ctx)
		return err
	})
	return minted, err
}

// Address is the account holding the vault's idle underlying.
func (e *Engine) Address() common.Address {
	return e.address
}

func (e *Engine) IOToken() common.Address {
	return e.ioToken
}

// AssetManager returns the bound asset manager, nil before Bind.
func (e *Engine) AssetManager() types.AssetManager {
	return e.am
}

func (e *Engine) TotalShares() sdkmath.Int {
	return e.totalShares
}

func (e *Engine) Cap() sdkmath.Int {
	return e.cap
}

// Fee returns the setting for kind.
func (e *Engine) Fee(kind types.FeeKind) (types.FeeSetting, error) {
	if !kind.Valid() {
		return types.FeeSetting{}, errors.Wrapf(types.ErrUnknownFeeKind, "fee: %s", kind)
	}
	return e.fees[kind], nil
}

// Fees lists every fee setting labelled with its kind.
func (e *Engine) Fees() []types.FeeView {
	out := make([]types.FeeView, 0, len(e.fees))
	for _, kind := range types.AllFeeKinds() {
		out = append(out, types.FeeView{Kind: kind.String(), FeeSetting: e.fees[kind]})
	}
	return out
}

func (e *Engine) BalanceOf(addr common.Address) sdkmath.Int {
	if acct, ok := e.accounts[addr]; ok {
		return acct.ShareBalance
	}
	return sdkmath.ZeroInt()
}

// EntryNetValue is the net value per share recorded at the account's last join.
func (e *Engine) EntryNetValue(addr common.Address) sdkmath.Int {
	if acct, ok := e.accounts[addr]; ok {
		return acct.EntryNetValue
	}
	return sdkmath.ZeroInt()
}

func (e *Engine) Account(addr common.Address) (types.Account, bool) {
	acct, ok := e.accounts[addr]
	return acct, ok
}

func (e *Engine) Accounts() []types.Account {
	out := make([]types.Account, 0, len(e.order))
	for _, addr := range e.order {
		out = append(out, e.accounts[addr])
	}
	return out
}

// Assets is the vault's idle underlying plus what the asset manager reports.
func (e *Engine) Assets(ctx context.Context) (sdkmath.Int, error) {
	if err := e.requireBound("assets"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	idle, err := e.ledger.BalanceOf(ctx, e.ioToken, e.address)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "assets: vault balance")
	}
	deployed, err := e.am.Assets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Wrap(err, "assets: asset manager")
	}
	return idle.Add(deployed), nil
}

func (e *Engine) GlobalNetValue(ctx context.Context) (sdkmath.Int, error) {
	if e.totalShares.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	assets, err := e.Assets(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(assets, utils.OneE18, e.totalShares), nil
}

func (e *Engine) AccountNetValue(ctx context.Context, addr common.Address) (sdkmath.Int, error) {
	balance := e.BalanceOf(addr)
	if balance.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	net, err := e.GlobalNetValue(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(balance, net, utils.OneE18), nil
}
