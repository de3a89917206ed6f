/*

This file contains the pool types the position manager reads from the external AMM.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKey identifies a pool by its sorted token pair and fee tier.
type PoolKey struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Fee    uint32         `json:"fee"` // Fee tier in hundredths of a bip (3000 = 0.3%)
}

// Sorted returns the key with token0 < token1.
func (k PoolKey) Sorted() PoolKey {
	if k.Token1.Cmp(k.Token0) < 0 {
		k.Token0, k.Token1 = k.Token1, k.Token0
	}
	return k
}

// PoolState is the slot0-style view of a pool at query time.
type PoolState struct {
	Address      common.Address `json:"address"`
	Key          PoolKey        `json:"key"`
	TickSpacing  int            `json:"tick_spacing"`
	SqrtPriceX96 *big.Int       `json:"sqrt_price_x96"`
	Tick         int            `json:"tick"`
}
