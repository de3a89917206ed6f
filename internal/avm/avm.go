package avm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/elys-network/clvault/internal/liquidity"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/staking"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

const (
	DEFAULT_FEE_CONFIG_NAME    = "default_vault_fees"
	DEFAULT_FEE_CONFIG_VERSION = 1
)

// Components are the vault's stateful parts. They are only touched while the AVM lock is held.
type Components struct {
	Vault     *vault.Engine
	Positions *liquidity.Manager
	Staking   *staking.Manager // Optional
}

// AVM owns the components behind one mutex and runs the keeper loop.
type AVM struct {
	mu     sync.Mutex
	logger zerolog.Logger

	components  Components
	keeper      common.Address
	metrics     *metrics.Metrics
	persist     bool
	configName  string
	beforeCycle func(ctx context.Context) error
	afterCycle  func(types.CycleSnapshot)

	// Runtime state
	cycleCount int
	lastCycle  *types.CycleSnapshot
}

// Config holds the configuration for creating a new AVM instance
type Config struct {
	Components
	// Keeper must be strategist (for the fee poke) and authorized (for fee collection).
	Keeper     common.Address
	Metrics    *metrics.Metrics
	Persist    bool // Write cycle snapshots through internal/state
	ConfigName string
	// BeforeCycle runs under the lock at the start of every cycle, e.g. to move a paper clock.
	BeforeCycle func(ctx context.Context) error
	// AfterCycle receives every snapshot once it is recorded, outside the lock.
	AfterCycle func(types.CycleSnapshot)
}

// NewAVM creates a new AVM instance with dependency injection
func NewAVM(cfg Config) (*AVM, error) {
	if err := validateAVMConfig(cfg); err != nil {
		return nil, fmt.Errorf("AVM configuration validation failed: %w", err)
	}
	if cfg.ConfigName == "" {
		cfg.ConfigName = DEFAULT_FEE_CONFIG_NAME
	}

	a := &AVM{
		logger:      logger.GetForComponent("keeper"),
		components:  cfg.Components,
		keeper:      cfg.Keeper,
		metrics:     cfg.Metrics,
		persist:     cfg.Persist,
		configName:  cfg.ConfigName,
		beforeCycle: cfg.BeforeCycle,
		afterCycle:  cfg.AfterCycle,
	}
	a.logger.Info().
		Str("keeper", a.keeper.Hex()).
		Bool("persist", a.persist).
		Str("configName", a.configName).
		Msg("AVM instance created")
	return a, nil
}

func validateAVMConfig(cfg Config) error {
	if cfg.Vault == nil {
		return errors.New("vault engine cannot be nil")
	}
	if cfg.Positions == nil {
		return errors.New("position manager cannot be nil")
	}
	if cfg.Keeper == (common.Address{}) {
		return errors.New("keeper address cannot be zero")
	}
	return nil
}

// Do runs fn with exclusive access to the components.
func (a *AVM) Do(fn func(Components) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.components)
}

// LastCycle returns the most recent cycle snapshot, or nil before the first cycle.
func (a *AVM) LastCycle() *types.CycleSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastCycle == nil {
		return nil
	}
	c := *a.lastCycle
	return &c
}

// RunLoop runs a cycle immediately and then on every tick until ctx is cancelled.
func (a *AVM) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().Dur("interval", interval).Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// RunCycle accrues the management fee, collects owed position fees, captures the vault state and
// records it. A failed step still produces a snapshot, marked unsuccessful.
func (a *AVM) RunCycle(ctx context.Context) types.CycleSnapshot {
	start := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()

	snapshot := types.CycleSnapshot{
		CycleNumber:         a.nextCycleNumber(),
		CycleID:             cycleID,
		Timestamp:           start,
		FeeParamsID:         a.getFeeParamsID(),
		ManagementFeeShares: sdkmath.ZeroInt(),
	}
	cycleLogger.Info().Int("cycle", snapshot.CycleNumber).Msg("--- Starting keeper cycle ---")

	st, minted, err := a.execute(ctx, cycleLogger)
	snapshot.State = st
	snapshot.Success = err == nil
	if err != nil {
		snapshot.ErrorMessage = err.Error()
		cycleLogger.Error().Err(err).Msg("Keeper cycle failed")
	}
	if !minted.IsNil() {
		snapshot.ManagementFeeShares = minted
	}
	if !st.NetValue.IsNil() {
		snapshot.NetValueDisplay = decimal.NewFromBigInt(st.NetValue.BigInt(), -18).StringFixed(6)
	}
	for _, p := range st.Positions {
		snapshot.PositionTokenIDs = append(snapshot.PositionTokenIDs, int64(p.TokenID))
	}

	if a.persist {
		a.saveCycleSnapshot(snapshot, cycleLogger)
	}
	if a.metrics != nil {
		if snapshot.Success {
			a.metrics.ObserveState(st)
		}
		a.metrics.RecordCycle(snapshot.Success, time.Since(start))
	}

	a.mu.Lock()
	a.lastCycle = &snapshot
	a.mu.Unlock()

	a.logEndOfCycleState(snapshot, start, cycleLogger)
	if a.afterCycle != nil {
		a.afterCycle(snapshot)
	}
	return snapshot
}

func (a *AVM) execute(ctx context.Context, cycleLogger zerolog.Logger) (types.VaultState, sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.components

	if a.beforeCycle != nil {
		if err := a.beforeCycle(ctx); err != nil {
			return types.VaultState{}, sdkmath.ZeroInt(), fmt.Errorf("before-cycle hook: %w", err)
		}
	}

	minted, err := c.Vault.Poke(ctx, a.keeper)
	if err != nil {
		return types.VaultState{}, sdkmath.ZeroInt(), fmt.Errorf("accrue management fee: %w", err)
	}

	st, err := c.Vault.State(ctx)
	if err != nil {
		return st, minted, fmt.Errorf("capture vault state: %w", err)
	}

	collected := 0
	for _, p := range st.Positions {
		if p.Staked || (p.TokensOwed0.IsZero() && p.TokensOwed1.IsZero()) {
			continue
		}
		if _, _, err := c.Positions.Collect(ctx, a.keeper, liquidity.CollectRequest{TokenID: p.TokenID}); err != nil {
			return st, minted, fmt.Errorf("collect position %d: %w", p.TokenID, err)
		}
		collected++
	}
	if collected > 0 {
		cycleLogger.Info().Int("positions", collected).Msg("Collected owed position fees")
		if st, err = c.Vault.State(ctx); err != nil {
			return st, minted, fmt.Errorf("capture vault state: %w", err)
		}
	}
	return st, minted, nil
}

// nextCycleNumber increments the persistent counter, falling back to the in-process count.
func (a *AVM) nextCycleNumber() int {
	a.mu.Lock()
	a.cycleCount++
	local := a.cycleCount
	a.mu.Unlock()

	if !a.persist {
		return local
	}
	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to increment cycle number, using in-process count")
		return local
	}
	return cycleNumber
}

func (a *AVM) getFeeParamsID() *int64 {
	if !a.persist {
		return nil
	}
	paramsID, err := state.GetActiveFeeParametersID(a.configName)
	if err != nil {
		a.logger.Error().Err(err).Str("configName", a.configName).Msg("Failed to get active fee parameters ID")
		return nil
	}
	return paramsID
}

func (a *AVM) saveCycleSnapshot(snapshot types.CycleSnapshot, cycleLogger zerolog.Logger) {
	snapshotID, err := state.SaveCycleSnapshot(snapshot)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot to database")
		return
	}
	cycleLogger.Debug().Int64("snapshot_id", snapshotID).Msg("Cycle snapshot saved")
}

func (a *AVM) logEndOfCycleState(snapshot types.CycleSnapshot, start time.Time, cycleLogger zerolog.Logger) {
	ev := cycleLogger.Info()
	if !snapshot.Success {
		ev = cycleLogger.Warn()
	}
	st := snapshot.State
	ev.Int("cycle", snapshot.CycleNumber).
		Bool("success", snapshot.Success).
		Str("managementFeeShares", snapshot.ManagementFeeShares.String()).
		Str("netValue", snapshot.NetValueDisplay).
		Int("positions", len(st.Positions)).
		Int("accounts", st.Accounts).
		Str("cycleDuration", time.Since(start).String()).
		Msg("--- Keeper cycle completed ---")
}
