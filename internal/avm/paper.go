package avm

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/auth"
	"github.com/elys-network/clvault/internal/liquidity"
	"github.com/elys-network/clvault/internal/route"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/staking"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

// Accounts the paper vault and its position manager hold funds under.
var (
	PaperVaultAddress   = common.HexToAddress("0x00000000000000000000000000000000000c1a01")
	PaperManagerAddress = common.HexToAddress("0x00000000000000000000000000000000000c1a02")
)

// PaperConfig describes a vault wired to the in-memory paper chain.
type PaperConfig struct {
	Roles  auth.Roles
	Keeper common.Address // Added to the authorized set
	Now    int64
	Cap    sdkmath.Int
	Fees   types.FeeParameters
	Sink   types.EventSink
}

// PaperStack is a bound vault, position manager and staking manager on a paper chain.
type PaperStack struct {
	Chain    *simulations.Chain
	Identity *auth.Identity
	Components
}

// NewPaperStack builds the components over a default paper chain (WETH/USDT pool, USDT accounting
// token), applies cap and fees, and gives the manager routes in both directions.
func NewPaperStack(ctx context.Context, cfg PaperConfig) (*PaperStack, error) {
	chain := simulations.NewDefaultChain(cfg.Now)
	gov := cfg.Roles.Governance

	id, err := auth.NewIdentity(cfg.Roles)
	if err != nil {
		return nil, err
	}
	if err := id.AddAuthorized(gov, cfg.Keeper); err != nil {
		return nil, err
	}

	manager, err := liquidity.NewManager(liquidity.Config{
		Address:    PaperManagerAddress,
		Ledger:     chain.Ledger(),
		Exchange:   chain.Router(),
		Custody:    chain.Custody(),
		Staker:     simulations.StakerAddress,
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       cfg.Sink,
		Env:        chain,
	})
	if err != nil {
		return nil, err
	}
	if err := manager.Bind(ctx, gov, PaperVaultAddress, simulations.USDT); err != nil {
		return nil, err
	}
	if err := manager.SetUnderlyings(ctx, gov, []common.Address{simulations.WETH}); err != nil {
		return nil, err
	}
	for _, token := range []common.Address{simulations.WETH, simulations.USDT} {
		if err := manager.SafeApproveAll(ctx, gov, token); err != nil {
			return nil, err
		}
	}
	if err := manager.SafeApproveStaker(ctx, gov, simulations.UNI); err != nil {
		return nil, err
	}
	for _, pair := range [][2]common.Address{{simulations.WETH, simulations.USDT}, {simulations.USDT, simulations.WETH}} {
		path, err := route.EncodePath(pair[:], []uint32{simulations.DefaultFeeTier})
		if err != nil {
			return nil, err
		}
		if err := manager.SettingSwapRoute(ctx, gov, path); err != nil {
			return nil, err
		}
	}

	engine, err := vault.NewEngine(vault.Config{
		Address:    PaperVaultAddress,
		Ledger:     chain.Ledger(),
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       cfg.Sink,
		Env:        chain,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Bind(ctx, gov, simulations.USDT, manager); err != nil {
		return nil, err
	}
	if err := engine.SetCap(ctx, gov, cfg.Cap); err != nil {
		return nil, err
	}
	if err := ApplyFees(ctx, engine, gov, cfg.Fees); err != nil {
		return nil, err
	}

	stakingManager, err := staking.NewManager(staking.Config{
		Holder:     PaperManagerAddress,
		Custody:    chain.Custody(),
		Staker:     chain.Staker(),
		Positions:  manager,
		Authorizer: id,
		Clock:      chain.Now,
		Sink:       cfg.Sink,
		Env:        chain,
	})
	if err != nil {
		return nil, err
	}

	return &PaperStack{
		Chain:      chain,
		Identity:   id,
		Components: Components{Vault: engine, Positions: manager, Staking: stakingManager},
	}, nil
}

// ApplyFees sets all four fees on engine from a persisted fee configuration.
func ApplyFees(ctx context.Context, engine *vault.Engine, caller common.Address, fees types.FeeParameters) error {
	for _, p := range fees.List() {
		err := engine.SetFee(ctx, caller, p.Kind, sdkmath.NewInt(p.Ratio), sdkmath.NewInt(p.Denominator), sdkmath.ZeroInt())
		if err != nil {
			return fmt.Errorf("apply %s fee: %w", p.Kind, err)
		}
	}
	return nil
}
