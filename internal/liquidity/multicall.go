package liquidity

import (
	"context"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/auth"
)

// Call is one step of a Multicall. Each step checks its own capability against the multicall's caller.
type Call interface {
	Op() string
	exec(ctx context.Context, m *Manager, caller common.Address) error
}

type MintCall struct{ MintRequest }

func (MintCall) Op() string { return "mint" }

func (c MintCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	_, err := m.mint(ctx, caller, c.MintRequest)
	return err
}

type IncreaseCall struct{ IncreaseRequest }

func (IncreaseCall) Op() string { return "increaseLiquidity" }

func (c IncreaseCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	return m.increase(ctx, caller, c.IncreaseRequest)
}

type DecreaseCall struct{ DecreaseRequest }

func (DecreaseCall) Op() string { return "decreaseLiquidity" }

func (c DecreaseCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	return m.decrease(ctx, caller, c.DecreaseRequest)
}

type CollectCall struct{ CollectRequest }

func (CollectCall) Op() string { return "collect" }

func (c CollectCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	_, _, err := m.collectFor(ctx, caller, c.CollectRequest)
	return err
}

type ExactInputCall struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn sdkmath.Int
	MinOut   sdkmath.Int
}

func (ExactInputCall) Op() string { return "exactInput" }

func (c ExactInputCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	_, err := m.exactInput(ctx, caller, c.TokenIn, c.TokenOut, c.AmountIn, c.MinOut)
	return err
}

type ExactOutputCall struct {
	TokenIn   common.Address
	TokenOut  common.Address
	AmountOut sdkmath.Int
	MaxIn     sdkmath.Int
}

func (ExactOutputCall) Op() string { return "exactOutput" }

func (c ExactOutputCall) exec(ctx context.Context, m *Manager, caller common.Address) error {
	_, err := m.exactOutput(ctx, caller, c.TokenIn, c.TokenOut, c.AmountOut, c.MaxIn)
	return err
}

// Multicall runs calls in order as one unit. Any failure rolls back every earlier call.
func (m *Manager) Multicall(ctx context.Context, caller common.Address, calls []Call) error {
	if err := auth.Require(m.authz, auth.StrategistOrGovernance, caller, "multicall"); err != nil {
		return err
	}
	return m.run(ctx, "multicall", func() error {
		for i, call := range calls {
			if err := call.exec(ctx, m, caller); err != nil {
				return errors.Wrapf(err, "multicall[%d] %s", i, call.Op())
			}
		}
		m.logger.Info().Int("calls", len(calls)).Msg("Multicall committed")
		return nil
	})
}
