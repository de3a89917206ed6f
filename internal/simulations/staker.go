package simulations

import (
	"context"
	"fmt"

	"cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
)

// Staker returns the incentive staker facade.
func (c *Chain) Staker() *Staker {
	return &Staker{chain: c}
}

// Staker implements types.StakingContract. Each stake earns reward linearly over the
// incentive window; rewards are credited to the depositor when the stake ends.
type Staker struct {
	chain *Chain
}

var _ types.StakingContract = (*Staker)(nil)

func (s *Staker) Address() common.Address {
	return StakerAddress
}

func (s *Staker) CreateIncentive(_ context.Context, caller common.Address, key types.IncentiveKey, reward sdkmath.Int) error {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if !reward.IsPositive() {
		return errors.Wrap(types.ErrInvalidAmount, "reward must be positive")
	}
	if key.StartTime >= key.EndTime {
		return errors.Wrap(types.ErrInvalidWindow, "start time must be before end time")
	}
	if key.EndTime <= c.st.now {
		return errors.Wrap(types.ErrInvalidWindow, "end time has passed")
	}
	if _, ok := c.st.incentives[key]; ok {
		return ErrIncentiveExists
	}
	if err := c.spend(key.RewardToken, StakerAddress, caller, StakerAddress, reward); err != nil {
		return err
	}
	c.st.incentives[key] = incentiveState{reward: reward, unclaimed: reward}
	stakerLogger.Debug().Str("incentive", key.String()).Str("reward", reward.String()).Msg("Paper incentive created")
	return nil
}

func (s *Staker) StakeToken(_ context.Context, caller common.Address, key types.IncentiveKey, tokenID types.TokenID) error {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	dep, ok := c.st.deposits[tokenID]
	if !ok || dep.owner != caller {
		return fmt.Errorf("%w: %d", ErrNotDeposited, tokenID)
	}
	inc, ok := c.st.incentives[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIncentive, key)
	}
	if !key.ActiveAt(c.st.now) {
		return errors.Wrapf(types.ErrIncentiveInactive, "%s at %d", key, c.st.now)
	}
	pos := c.st.positions[tokenID]
	if pool, err := c.poolState(pos.key); err != nil || pool.Address != key.Pool {
		return fmt.Errorf("%w: token %d is not in pool %s", ErrUnknownPool, tokenID, key.Pool.Hex())
	}
	sk := stakeKey{key: key, tokenID: tokenID}
	if _, staked := c.st.stakes[sk]; staked {
		return errors.Wrapf(types.ErrAlreadyStaked, "token %d", tokenID)
	}
	c.st.stakes[sk] = c.st.now
	dep.numberOfStakes++
	c.st.deposits[tokenID] = dep
	inc.numberOfStakes++
	c.st.incentives[key] = inc
	return nil
}

func (s *Staker) UnstakeToken(_ context.Context, caller common.Address, key types.IncentiveKey, tokenID types.TokenID) error {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	dep, ok := c.st.deposits[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotDeposited, tokenID)
	}
	if dep.owner != caller && c.st.now < key.EndTime {
		return fmt.Errorf("%w: only the depositor may unstake before the end time", ErrNotOwner)
	}
	sk := stakeKey{key: key, tokenID: tokenID}
	since, ok := c.st.stakes[sk]
	if !ok {
		return errors.Wrapf(types.ErrNotStaked, "token %d", tokenID)
	}
	inc := c.st.incentives[key]
	end := c.st.now
	if end > key.EndTime {
		end = key.EndTime
	}
	earned := inc.reward.MulRaw(end - since).QuoRaw(key.EndTime - key.StartTime)
	if earned.GT(inc.unclaimed) {
		earned = inc.unclaimed
	}
	inc.unclaimed = inc.unclaimed.Sub(earned)
	inc.numberOfStakes--
	c.st.incentives[key] = inc
	dep.numberOfStakes--
	c.st.deposits[tokenID] = dep
	delete(c.st.stakes, sk)

	owners, ok := c.st.rewards[key.RewardToken]
	if !ok {
		owners = make(map[common.Address]sdkmath.Int)
		c.st.rewards[key.RewardToken] = owners
	}
	prev, ok := owners[dep.owner]
	if !ok {
		prev = sdkmath.ZeroInt()
	}
	owners[dep.owner] = prev.Add(earned)
	return nil
}

func (s *Staker) ClaimReward(_ context.Context, caller, rewardToken, to common.Address, amountRequested sdkmath.Int) (sdkmath.Int, error) {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	owed := sdkmath.ZeroInt()
	if owners, ok := c.st.rewards[rewardToken]; ok {
		if v, ok := owners[caller]; ok {
			owed = v
		}
	}
	amount := owed
	if !amountRequested.IsNil() && amountRequested.IsPositive() && amountRequested.LT(owed) {
		amount = amountRequested
	}
	if amount.IsZero() {
		return amount, nil
	}
	c.st.rewards[rewardToken][caller] = owed.Sub(amount)
	if err := c.move(rewardToken, StakerAddress, to, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

func (s *Staker) WithdrawToken(_ context.Context, caller common.Address, tokenID types.TokenID, to common.Address, _ []byte) error {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	dep, ok := c.st.deposits[tokenID]
	if !ok || dep.owner != caller {
		return fmt.Errorf("%w: %d", ErrNotDeposited, tokenID)
	}
	if dep.numberOfStakes > 0 {
		return fmt.Errorf("%w: %d", ErrTokenStaked, tokenID)
	}
	pos := c.st.positions[tokenID]
	pos.owner = to
	c.st.positions[tokenID] = pos
	delete(c.st.deposits, tokenID)
	return nil
}

func (s *Staker) EndIncentive(_ context.Context, _ common.Address, key types.IncentiveKey) (sdkmath.Int, error) {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	inc, ok := c.st.incentives[key]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownIncentive, key)
	}
	if c.st.now < key.EndTime {
		return sdkmath.ZeroInt(), errors.Wrapf(types.ErrInvalidWindow, "incentive ends at %d", key.EndTime)
	}
	if inc.numberOfStakes > 0 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d stakes remain", ErrTokenStaked, inc.numberOfStakes)
	}
	refund := inc.unclaimed
	delete(c.st.incentives, key)
	if err := c.move(key.RewardToken, StakerAddress, key.Refundee, refund); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return refund, nil
}

func (s *Staker) Rewards(_ context.Context, rewardToken, owner common.Address) (sdkmath.Int, error) {
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if owners, ok := c.st.rewards[rewardToken]; ok {
		if v, ok := owners[owner]; ok {
			return v, nil
		}
	}
	return sdkmath.ZeroInt(), nil
}
