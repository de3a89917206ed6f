package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// IncentiveKey identifies a time-boxed reward program on the staking contract.
type IncentiveKey struct {
	RewardToken common.Address `json:"reward_token"`
	Pool        common.Address `json:"pool"`
	StartTime   int64          `json:"start_time"`
	EndTime     int64          `json:"end_time"`
	Refundee    common.Address `json:"refundee"`
}

func (k IncentiveKey) String() string {
	return fmt.Sprintf("%s/%s/%d-%d", k.RewardToken.Hex(), k.Pool.Hex(), k.StartTime, k.EndTime)
}

// ActiveAt reports whether staking is allowed at unix time now.
func (k IncentiveKey) ActiveAt(now int64) bool {
	return now >= k.StartTime && now < k.EndTime
}
