/*

This package contains the staking lifecycle of position tokens. It moves a position token held by
the position manager into the incentive staker, stakes it against time-boxed incentives, claims
the reward and brings the token back. It only keeps a back-reference from token id to incentive;
the custody contract stays the source of truth for who holds a token.

*/

package staking

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

// PositionLookup resolves position tokens the holder knows about.
type PositionLookup interface {
	PositionByToken(tokenID types.TokenID) (types.Position, bool)
}

// Config wires a Manager to its collaborators.
type Config struct {
	Holder     common.Address // Account owning the position tokens, normally the position manager
	Custody    types.PositionCustody
	Staker     types.StakingContract
	Positions  PositionLookup
	Authorizer types.Authorizer
	Clock      types.Clock
	Sink       types.EventSink
	Env        types.Checkpointer
}

// Manager tracks which incentive each position token is staked against.
type Manager struct {
	holder    common.Address
	custody   types.PositionCustody
	staker    types.StakingContract
	positions PositionLookup
	authz     types.Authorizer
	clock     types.Clock
	env       types.Checkpointer
	events    *utils.EventBuffer
	guard     utils.ReentrancyGuard

	staked     map[types.TokenID]types.IncentiveKey
	incentives map[types.IncentiveKey]bool
	logger     zerolog.Logger
}

// NewManager validates cfg and returns a manager with no stakes.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Holder == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidAddress, "holder address is required")
	}
	if cfg.Custody == nil || cfg.Staker == nil || cfg.Positions == nil || cfg.Authorizer == nil || cfg.Clock == nil {
		return nil, errors.Wrap(types.ErrInvalidAddress, "custody, staker, positions, authorizer and clock are required")
	}
	return &Manager{
		holder:     cfg.Holder,
		custody:    cfg.Custody,
		staker:     cfg.Staker,
		positions:  cfg.Positions,
		authz:      cfg.Authorizer,
		clock:      cfg.Clock,
		env:        cfg.Env,
		events:     utils.NewEventBuffer(cfg.Sink),
		staked:     make(map[types.TokenID]types.IncentiveKey),
		incentives: make(map[types.IncentiveKey]bool),
		logger:     logger.GetForComponent("staking_manager"),
	}, nil
}

func (m *Manager) run(ctx context.Context, op string, fn func() error) error {
	release, err := m.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	staked := make(map[types.TokenID]types.IncentiveKey, len(m.staked))
	for k, v := range m.staked {
		staked[k] = v
	}
	incentives := make(map[types.IncentiveKey]bool, len(m.incentives))
	for k, v := range m.incentives {
		incentives[k] = v
	}
	var revert func()
	if m.env != nil {
		revert = m.env.Checkpoint()
	}
	m.events.Hold()
	if err := fn(); err != nil {
		m.events.Drop()
		m.staked, m.incentives = staked, incentives
		if revert != nil {
			revert()
		}
		m.logger.Warn().Err(err).Str("op", op).Msg("Operation rolled back")
		return err
	}
	m.events.Flush(ctx)
	return nil
}

// CreateIncentive funds a reward program for pool over [startTime, endTime). Unclaimed reward is refunded to the holder.
func (m *Manager) CreateIncentive(ctx context.Context, caller, rewardToken, pool common.Address, startTime, endTime int64, reward sdkmath.Int) (types.IncentiveKey, error) {
	if err := auth.Require(m.authz, auth.AdminOrGovernance, caller, "createIncentive"); err != nil {
		return types.IncentiveKey{}, err
	}
	if startTime >= endTime {
		return types.IncentiveKey{}, errors.Wrapf(types.ErrInvalidWindow, "createIncentive: start %d is not before end %d", startTime, endTime)
	}
	if reward.IsNil() || !reward.IsPositive() {
		return types.IncentiveKey{}, errors.Wrap(types.ErrInvalidAmount, "createIncentive: reward must be positive")
	}
	key := types.IncentiveKey{
		RewardToken: rewardToken,
		Pool:        pool,
		StartTime:   startTime,
		EndTime:     endTime,
		Refundee:    m.holder,
	}
	err := m.run(ctx, "createIncentive", func() error {
		if err := m.staker.CreateIncentive(ctx, m.holder, key, reward); err != nil {
			return errors.Wrap(err, "createIncentive")
		}
		m.incentives[key] = true
		m.logger.Info().Str("incentive", key.String()).Str("reward", reward.String()).Msg("Incentive created")
		return nil
	})
	return key, err
}

// StakerNFT hands custody of a position token to the staking contract.
func (m *Manager) StakerNFT(ctx context.Context, caller common.Address, tokenID types.TokenID) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "stakerNFT"); err != nil {
		return err
	}
	return m.run(ctx, "stakerNFT", func() error {
		if _, ok := m.positions.PositionByToken(tokenID); !ok {
			return errors.Wrapf(types.ErrPositionNotFound, "stakerNFT: token %d", tokenID)
		}
		deposited, err := m.checkStakers(ctx, tokenID)
		if err != nil {
			return err
		}
		if deposited {
			return errors.Wrapf(types.ErrAlreadyStaked, "stakerNFT: token %d is held by the staker", tokenID)
		}
		if err := m.custody.SafeTransferFrom(ctx, m.holder, m.holder, m.staker.Address(), tokenID, nil); err != nil {
			return errors.Wrap(err, "stakerNFT")
		}
		m.events.Emit(ctx, types.Staker{TokenID: tokenID})
		m.logger.Info().Uint64("tokenId", uint64(tokenID)).Msg("Position token deposited with staker")
		return nil
	})
}

// StakeToken stakes a deposited token against an active incentive.
func (m *Manager) StakeToken(ctx context.Context, caller common.Address, key types.IncentiveKey, tokenID types.TokenID) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "stakeToken"); err != nil {
		return err
	}
	return m.run(ctx, "stakeToken", func() error {
		if current, ok := m.staked[tokenID]; ok {
			return errors.Wrapf(types.ErrAlreadyStaked, "stakeToken: token %d is staked in %s", tokenID, current)
		}
		if now := m.clock(); !key.ActiveAt(now) {
			return errors.Wrapf(types.ErrIncentiveInactive, "stakeToken: %s at %d", key, now)
		}
		deposited, err := m.checkStakers(ctx, tokenID)
		if err != nil {
			return err
		}
		if !deposited {
			return errors.Wrapf(types.ErrNotStaked, "stakeToken: token %d has not been deposited with the staker", tokenID)
		}
		if err := m.staker.StakeToken(ctx, m.holder, key, tokenID); err != nil {
			return errors.Wrap(err, "stakeToken")
		}
		m.staked[tokenID] = key
		m.logger.Info().Uint64("tokenId", uint64(tokenID)).Str("incentive", key.String()).Msg("Position staked")
		return nil
	})
}

// UnStakeToken ends the stake against key. The token stays with the staker until WithdrawToken.
func (m *Manager) UnStakeToken(ctx context.Context, caller common.Address, key types.IncentiveKey, tokenID types.TokenID) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "unStakeToken"); err != nil {
		return err
	}
	return m.run(ctx, "unStakeToken", func() error {
		return m.unstake(ctx, "unStakeToken", key, tokenID)
	})
}

func (m *Manager) unstake(ctx context.Context, op string, key types.IncentiveKey, tokenID types.TokenID) error {
	current, ok := m.staked[tokenID]
	if !ok || current != key {
		return errors.Wrapf(types.ErrNotStaked, "%s: token %d is not staked in %s", op, tokenID, key)
	}
	if err := m.staker.UnstakeToken(ctx, m.holder, key, tokenID); err != nil {
		return errors.Wrap(err, op)
	}
	delete(m.staked, tokenID)
	m.logger.Info().Uint64("tokenId", uint64(tokenID)).Str("incentive", key.String()).Msg("Position unstaked")
	return nil
}

// ClaimReward moves everything owed in rewardToken to the holder. Nothing owed yields zero.
func (m *Manager) ClaimReward(ctx context.Context, caller, rewardToken common.Address) (sdkmath.Int, error) {
	if err := auth.Require(m.authz, auth.Authorized, caller, "claimReward"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	claimed := sdkmath.ZeroInt()
	err := m.run(ctx, "claimReward", func() error {
		amount, err := m.staker.ClaimReward(ctx, m.holder, rewardToken, m.holder, sdkmath.ZeroInt())
		if err != nil {
			return errors.Wrap(err, "claimReward")
		}
		claimed = amount
		if amount.IsPositive() {
			m.logger.Info().Str("rewardToken", rewardToken.Hex()).Str("amount", amount.String()).Msg("Reward claimed")
		}
		return nil
	})
	return claimed, err
}

// WithdrawToken brings a deposited token back to the holder. It must not be staked in any incentive.
func (m *Manager) WithdrawToken(ctx context.Context, caller common.Address, tokenID types.TokenID, data []byte) error {
	if err := auth.Require(m.authz, auth.Authorized, caller, "withdrawToken"); err != nil {
		return err
	}
	return m.run(ctx, "withdrawToken", func() error {
		if key, ok := m.staked[tokenID]; ok {
			return errors.Wrapf(types.ErrAlreadyStaked, "withdrawToken: token %d is still staked in %s", tokenID, key)
		}
		deposited, err := m.checkStakers(ctx, tokenID)
		if err != nil {
			return err
		}
		if !deposited {
			return errors.Wrapf(types.ErrNotStaked, "withdrawToken: token %d is not held by the staker", tokenID)
		}
		if err := m.staker.WithdrawToken(ctx, m.holder, tokenID, m.holder, data); err != nil {
			return errors.Wrap(err, "withdrawToken")
		}
		m.events.Emit(ctx, types.UnStaker{TokenID: tokenID})
		m.logger.Info().Uint64("tokenId", uint64(tokenID)).Msg("Position token withdrawn from staker")
		return nil
	})
}

// EndIncentive closes an incentive once its end time has passed. Tokens still staked in it are
// unstaked first; custody of those tokens does not change. Returns the refunded reward.
func (m *Manager) EndIncentive(ctx context.Context, caller common.Address, key types.IncentiveKey) (sdkmath.Int, error) {
	if err := auth.Require(m.authz, auth.AdminOrGovernance, caller, "endIncentive"); err != nil {
		return sdkmath.ZeroInt(), err
	}
	refund := sdkmath.ZeroInt()
	err := m.run(ctx, "endIncentive", func() error {
		if now := m.clock(); now < key.EndTime {
			return errors.Wrapf(types.ErrInvalidWindow, "endIncentive: %s ends at %d, now %d", key, key.EndTime, now)
		}
		for _, tokenID := range m.stakedIn(key) {
			if err := m.unstake(ctx, "endIncentive", key, tokenID); err != nil {
				return err
			}
		}
		amount, err := m.staker.EndIncentive(ctx, m.holder, key)
		if err != nil {
			return errors.Wrap(err, "endIncentive")
		}
		refund = amount
		delete(m.incentives, key)
		m.logger.Info().Str("incentive", key.String()).Str("refund", amount.String()).Msg("Incentive ended")
		return nil
	})
	return refund, err
}

func (m *Manager) stakedIn(key types.IncentiveKey) []types.TokenID {
	var ids []types.TokenID
	for id, k := range m.staked {
		if k == key {
			ids = append(ids, id)
		}
	}
	return ids
}

// CheckStakers reports whether the staking contract holds custody of the token.
func (m *Manager) CheckStakers(ctx context.Context, tokenID types.TokenID) (bool, error) {
	return m.checkStakers(ctx, tokenID)
}

func (m *Manager) checkStakers(ctx context.Context, tokenID types.TokenID) (bool, error) {
	owner, err := m.custody.OwnerOf(ctx, tokenID)
	if err != nil {
		return false, errors.Wrapf(err, "owner of token %d", tokenID)
	}
	return owner == m.staker.Address(), nil
}

// StakedIncentive returns the incentive the token is staked in.
func (m *Manager) StakedIncentive(tokenID types.TokenID) (types.IncentiveKey, bool) {
	key, ok := m.staked[tokenID]
	return key, ok
}

// Incentives lists the incentives created through this manager and not yet ended.
func (m *Manager) Incentives() []types.IncentiveKey {
	out := make([]types.IncentiveKey, 0, len(m.incentives))
	for k := range m.incentives {
		out = append(out, k)
	}
	return out
}

// Rewards reports the reward owed to the holder in rewardToken.
func (m *Manager) Rewards(ctx context.Context, rewardToken common.Address) (sdkmath.Int, error) {
	return m.staker.Rewards(ctx, rewardToken, m.holder)
}
