/*

This package contains the concentrated liquidity position manager. It holds the vault's deployed
capital: idle underlying balances and the tick-range positions opened with them. It implements
types.AssetManager so the vault can value and redeem through it.

*/

package liquidity

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/planner"
	"github.com/elys-network/clvault/internal/route"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

// DefaultSlippageBps bounds the rebalancing swaps the manager initiates on its own.
const DefaultSlippageBps = 100

// Config wires a Manager to its collaborators.
type Config struct {
	Address    common.Address // The account the manager holds funds and positions under
	Ledger     types.TokenLedger
	Exchange   types.Exchange
	Custody    types.PositionCustody
	Staker     common.Address // Staking contract, the target of SafeApproveStaker
	Authorizer types.Authorizer
	Clock      types.Clock
	Sink       types.EventSink
	// Env, when set, is checkpointed around every mutating call and reverted on failure.
	Env         types.Checkpointer
	SlippageBps int64
	DustBps     int64
}

// Manager owns the position set, the swap routes and the token limits.
type Manager struct {
	address common.Address
	ledger  types.TokenLedger
	custody types.PositionCustody
	staker  common.Address
	routerA common.Address
	authz   types.Authorizer
	clock   types.Clock
	env     types.Checkpointer
	routes  *route.Registry
	events  *utils.EventBuffer
	guard   utils.ReentrancyGuard

	vault   common.Address
	ioToken common.Address
	bound   bool

	underlyings []common.Address
	positions   map[types.PositionRange]types.Position
	order       []types.PositionRange
	byToken     map[types.TokenID]types.PositionRange

	slippageBps int64
	dustBps     int64
	logger      zerolog.Logger
}

var _ types.AssetManager = (*Manager)(nil)

// NewManager validates cfg and returns an unbound manager with no positions.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Address == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidAddress, "manager address is required")
	}
	if cfg.Ledger == nil || cfg.Exchange == nil || cfg.Custody == nil || cfg.Authorizer == nil || cfg.Clock == nil {
		return nil, errors.Wrap(types.ErrInvalidAddress, "ledger, exchange, custody, authorizer and clock are required")
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.DustBps <= 0 {
		cfg.DustBps = planner.DefaultDustBps
	}
	events := utils.NewEventBuffer(cfg.Sink)
	return &Manager{
		address:     cfg.Address,
		ledger:      cfg.Ledger,
		custody:     cfg.Custody,
		staker:      cfg.Staker,
		routerA:     cfg.Exchange.Address(),
		authz:       cfg.Authorizer,
		clock:       cfg.Clock,
		env:         cfg.Env,
		routes:      route.NewRegistry(cfg.Exchange, cfg.Clock, events),
		events:      events,
		positions:   make(map[types.PositionRange]types.Position),
		byToken:     make(map[types.TokenID]types.PositionRange),
		slippageBps: cfg.SlippageBps,
		dustBps:     cfg.DustBps,
		logger:      logger.GetForComponent("position_manager"),
	}, nil
}

// run executes one atomic unit: guard, snapshot, call, then flush events or roll everything back.
func (m *Manager) run(ctx context.Context, op string, fn func() error) error {
	release, err := m.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	restore := m.snapshot()
	var revert func()
	if m.env != nil {
		revert = m.env.Checkpoint()
	}
	m.events.Hold()
	if err := fn(); err != nil {
		m.events.Drop()
		restore()
		if revert != nil {
			revert()
		}
		m.logger.Warn().Err(err).Str("op", op).Msg("Operation rolled back")
		return err
	}
	m.events.Flush(ctx)
	return nil
}

// Begin opens a unit spanning later calls. Nested operations commit into it; rollback restores the
// records and discards the events from every call since Begin. External state is the caller's to revert.
func (m *Manager) Begin() (commit func(ctx context.Context), rollback func()) {
	restore := m.snapshot()
	m.events.Hold()
	commit = func(ctx context.Context) { m.events.Flush(ctx) }
	rollback = func() {
		m.events.Drop()
		restore()
	}
	return commit, rollback
}

var _ types.UnitParticipant = (*Manager)(nil)

func (m *Manager) snapshot() func() {
	restoreRoutes := m.routes.Snapshot()
	positions := make(map[types.PositionRange]types.Position, len(m.positions))
	for k, v := range m.positions {
		positions[k] = v
	}
	byToken := make(map[types.TokenID]types.PositionRange, len(m.byToken))
	for k, v := range m.byToken {
		byToken[k] = v
	}
	order := append([]types.PositionRange(nil), m.order...)
	underlyings := append([]common.Address(nil), m.underlyings...)
	vault, ioToken, bound := m.vault, m.ioToken, m.bound
	return func() {
		restoreRoutes()
		m.positions, m.byToken, m.order, m.underlyings = positions, byToken, order, underlyings
		m.vault, m.ioToken, m.bound = vault, ioToken, bound
	}
}

func (m *Manager) deadline() int64 {
	return m.clock() + route.DefaultDeadlineWindow
}

// Bind sets the vault allowed to withdraw and the accounting token. It can happen once.
func (m *Manager) Bind(ctx context.Context, caller, vault, ioToken common.Address) error {
	if err := auth.Require(m.authz, auth.Governance, caller, "bind"); err != nil {
		return err
	}
	return m.run(ctx, "bind", func() error {
		if m.bound {
			return errors.Wrapf(types.ErrAlreadyBound, "bind: manager is bound to vault %s", m.vault.Hex())
		}
		if vault == (common.Address{}) || ioToken == (common.Address{}) {
			return errors.Wrap(types.ErrInvalidAddress, "bind: vault and io token are required")
		}
		m.vault, m.ioToken, m.bound = vault, ioToken, true
		m.addUnderlying(ioToken)
		m.logger.Info().Str("vault", vault.Hex()).Str("ioToken", ioToken.Hex()).Msg("Manager bound")
		return nil
	})
}

// SafeApproveAll grants the router and the position custody unlimited allowance over token.
func (m *Manager) SafeApproveAll(ctx context.Context, caller, token common.Address) error {
	if err := auth.Require(m.authz, auth.Governance, caller, "safeApproveAll"); err != nil {
		return err
	}
	return m.run(ctx, "safeApproveAll", func() error {
		for _, spender := range []common.Address{m.routerA, m.custody.Address()} {
			if err := m.approveMax(ctx, token, spender); err != nil {
				return err
			}
		}
		return nil
	})
}

// SafeApproveStaker grants the staking contract unlimited allowance over token, e.g. to fund incentives.
func (m *Manager) SafeApproveStaker(ctx context.Context, caller, token common.Address) error {
	if err := auth.Require(m.authz, auth.Governance, caller, "safeApproveStaker"); err != nil {
		return err
	}
	if m.staker == (common.Address{}) {
		return errors.Wrap(types.ErrInvalidAddress, "safeApproveStaker: no staking contract configured")
	}
	return m.run(ctx, "safeApproveStaker", func() error {
		return m.approveMax(ctx, token, m.staker)
	})
}

func (m *Manager) approveMax(ctx context.Context, token, spender common.Address) error {
	current, err := m.ledger.Allowance(ctx, token, m.address, spender)
	if err != nil {
		return err
	}
	if current.Equal(types.MaxUint256) {
		return nil
	}
	if err := m.ledger.Approve(ctx, token, m.address, spender, types.MaxUint256); err != nil {
		return errors.Wrapf(err, "approve %s for %s", token.Hex(), spender.Hex())
	}
	m.logger.Info().Str("token", token.Hex()).Str("spender", spender.Hex()).Msg("Unlimited allowance granted")
	return nil
}

// SettingSwapRoute stores an encoded path keyed by its first and last token.
func (m *Manager) SettingSwapRoute(ctx context.Context, caller common.Address, encodedPath []byte) error {
	if err := auth.Require(m.authz, auth.AdminOrGovernance, caller, "settingSwapRoute"); err != nil {
		return err
	}
	return m.run(ctx, "settingSwapRoute", func() error {
		_, err := m.routes.SetRoute(encodedPath)
		return err
	})
}

// SetTokenLimit caps how much of token operator may commit in one call. Zero removes the cap.
func (m *Manager) SetTokenLimit(ctx context.Context, caller, operator, token common.Address, amount sdkmath.Int) error {
	if err := auth.Require(m.authz, auth.AdminOrGovernance, caller, "setTokenLimit"); err != nil {
		return err
	}
	return m.run(ctx, "setTokenLimit", func() error {
		return m.routes.SetTokenLimit(operator, token, amount)
	})
}

// SetUnderlyings adds tokens to the set the manager may hold and swap.
func (m *Manager) SetUnderlyings(ctx context.Context, caller common.Address, tokens []common.Address) error {
	if err := auth.Require(m.authz, auth.Governance, caller, "setUnderlyings"); err != nil {
		return err
	}
	return m.run(ctx, "setUnderlyings", func() error {
		for _, t := range tokens {
			if t == (common.Address{}) {
				return errors.Wrap(types.ErrInvalidAddress, "setUnderlyings: zero address")
			}
			m.addUnderlying(t)
		}
		return nil
	})
}

// RemoveUnderlyings drops tokens from the underlying set. The accounting token cannot be removed.
func (m *Manager) RemoveUnderlyings(ctx context.Context, caller common.Address, tokens []common.Address) error {
	if err := auth.Require(m.authz, auth.Governance, caller, "removeUnderlyings"); err != nil {
		return err
	}
	return m.run(ctx, "removeUnderlyings", func() error {
		for _, t := range tokens {
			if m.bound && t == m.ioToken {
				return errors.Wrapf(types.ErrInvalidAddress, "removeUnderlyings: %s is the accounting token", t.Hex())
			}
			kept := m.underlyings[:0]
			for _, u := range m.underlyings {
				if u != t {
					kept = append(kept, u)
				}
			}
			m.underlyings = kept
		}
		return nil
	})
}

func (m *Manager) addUnderlying(token common.Address) {
	if m.isUnderlying(token) {
		return
	}
	m.underlyings = append(m.underlyings, token)
}

func (m *Manager) isUnderlying(token common.Address) bool {
	for _, u := range m.underlyings {
		if u == token {
			return true
		}
	}
	return false
}

func (m *Manager) requireUnderlying(op string, tokens ...common.Address) error {
	for _, t := range tokens {
		if !m.isUnderlying(t) {
			return errors.Wrapf(types.ErrNotUnderlying, "%s: %s", op, t.Hex())
		}
	}
	return nil
}

// checkLimit enforces the caller's token limit. Governance is exempt.
func (m *Manager) checkLimit(caller, token common.Address, amount sdkmath.Int) error {
	if m.authz.IsGovernance(caller) {
		return nil
	}
	return m.routes.CheckLimit(caller, token, amount)
}

// Address is the account holding the manager's funds and positions.
func (m *Manager) Address() common.Address {
	return m.address
}

// Token is the accounting token, zero until bound.
func (m *Manager) Token() common.Address {
	return m.ioToken
}

func (m *Manager) Vault() common.Address {
	return m.vault
}

// Underlyings lists the tokens the manager may hold, in the order they were added.
func (m *Manager) Underlyings() []common.Address {
	return append([]common.Address(nil), m.underlyings...)
}

func (m *Manager) TokenLimit(operator, token common.Address) sdkmath.Int {
	return m.routes.TokenLimit(operator, token)
}

// SwapRoute returns the exact path bytes stored for the pair.
func (m *Manager) SwapRoute(tokenIn, tokenOut common.Address) ([]byte, bool) {
	return m.routes.Route(tokenIn, tokenOut)
}

func (m *Manager) Routes() []types.RouteEntry {
	return m.routes.Routes()
}

func (m *Manager) EstimateAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	return m.routes.EstimateAmountOut(ctx, tokenIn, tokenOut, amountIn)
}

func (m *Manager) EstimateAmountIn(ctx context.Context, tokenIn, tokenOut common.Address, amountOut sdkmath.Int) (sdkmath.Int, error) {
	return m.routes.EstimateAmountIn(ctx, tokenIn, tokenOut, amountOut)
}
