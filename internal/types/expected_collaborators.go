package types

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger moves fungible tokens. Implementations enforce balances and allowances.
type TokenLedger interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (sdkmath.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount sdkmath.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount sdkmath.Int) error
	Approve(ctx context.Context, token, owner, spender common.Address, amount sdkmath.Int) error
	Allowance(ctx context.Context, token, owner, spender common.Address) (sdkmath.Int, error)
}

// Exchange executes swaps along encoded paths. Caller is the account paying tokenIn.
type Exchange interface {
	Address() common.Address
	ExactInput(ctx context.Context, caller common.Address, params ExactInputParams) (sdkmath.Int, error)
	ExactOutput(ctx context.Context, caller common.Address, params ExactOutputParams) (sdkmath.Int, error)
	// QuoteExactInput prices a tokenIn -> tokenOut path without executing it.
	QuoteExactInput(ctx context.Context, path []byte, amountIn sdkmath.Int) (sdkmath.Int, error)
	// QuoteExactOutput prices a tokenOut -> tokenIn path without executing it.
	QuoteExactOutput(ctx context.Context, path []byte, amountOut sdkmath.Int) (sdkmath.Int, error)
}

// PositionCustody is the external non-fungible position manager.
type PositionCustody interface {
	Address() common.Address
	Pool(ctx context.Context, key PoolKey) (PoolState, error)
	Mint(ctx context.Context, caller common.Address, params MintParams) (MintResult, error)
	IncreaseLiquidity(ctx context.Context, caller common.Address, params IncreaseLiquidityParams) (LiquidityResult, error)
	DecreaseLiquidity(ctx context.Context, caller common.Address, params DecreaseLiquidityParams) (LiquidityResult, error)
	Collect(ctx context.Context, caller common.Address, params CollectParams) (amount0, amount1 sdkmath.Int, err error)
	Positions(ctx context.Context, tokenID TokenID) (PositionData, error)
	OwnerOf(ctx context.Context, tokenID TokenID) (common.Address, error)
	SafeTransferFrom(ctx context.Context, caller, from, to common.Address, tokenID TokenID, data []byte) error
}

// StakingContract is the external incentive staker.
type StakingContract interface {
	Address() common.Address
	CreateIncentive(ctx context.Context, caller common.Address, key IncentiveKey, reward sdkmath.Int) error
	StakeToken(ctx context.Context, caller common.Address, key IncentiveKey, tokenID TokenID) error
	UnstakeToken(ctx context.Context, caller common.Address, key IncentiveKey, tokenID TokenID) error
	ClaimReward(ctx context.Context, caller, rewardToken, to common.Address, amountRequested sdkmath.Int) (sdkmath.Int, error)
	WithdrawToken(ctx context.Context, caller common.Address, tokenID TokenID, to common.Address, data []byte) error
	EndIncentive(ctx context.Context, caller common.Address, key IncentiveKey) (sdkmath.Int, error)
	Rewards(ctx context.Context, rewardToken, owner common.Address) (sdkmath.Int, error)
}

// Authorizer answers capability checks for callers.
type Authorizer interface {
	IsGovernance(caller common.Address) bool
	IsAdminOrGovernance(caller common.Address) bool
	IsStrategistOrGovernance(caller common.Address) bool
	IsAuthorized(caller common.Address) bool
	// Rewards is the operator address credited with fee shares.
	Rewards() common.Address
}

// AssetManager deploys the vault's underlying token and reports its value.
type AssetManager interface {
	Address() common.Address
	// Token is the accounting token the manager values and pays out in.
	Token() common.Address
	Assets(ctx context.Context) (sdkmath.Int, error)
	// Withdraw pays amount to `to`, freeing scale/1e18 of deployed liquidity when idle funds fall short.
	Withdraw(ctx context.Context, caller, to common.Address, amount, scale sdkmath.Int) (sdkmath.Int, error)
}

// UnitParticipant is implemented by asset managers whose in-memory state and events join the
// caller's atomic unit, so a vault operation that fails after a withdraw undoes the manager too.
type UnitParticipant interface {
	Begin() (commit func(ctx context.Context), rollback func())
}

// Checkpointer is implemented by environments that can roll back external state.
type Checkpointer interface {
	Checkpoint() (revert func())
}

// Clock returns the current unix time in seconds.
type Clock func() int64
