package simulations

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
)

// Default paper tokens.
var (
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	UNI  = common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984")
)

// DefaultFeeTier and DefaultTickSpacing describe the WETH/USDT paper pool.
const (
	DefaultFeeTier     uint32 = 3000
	DefaultTickSpacing        = 60
)

// WholeUnits returns n whole tokens in base units.
func WholeUnits(n int64, decimals int) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, decimals)
}

// NewDefaultChain returns a chain with WETH at 2000, USDT at 1 and UNI at 5 and a WETH/USDT 0.3% pool.
func NewDefaultChain(now int64) *Chain {
	c := NewChain(now)
	c.AddToken(WETH, "WETH", 18, sdkmath.NewIntWithDecimal(2000, 18))
	c.AddToken(USDT, "USDT", 6, sdkmath.NewIntWithDecimal(1, 18))
	c.AddToken(UNI, "UNI", 18, sdkmath.NewIntWithDecimal(5, 18))
	c.CreatePool(types.PoolKey{Token0: WETH, Token1: USDT, Fee: DefaultFeeTier}, DefaultTickSpacing)
	return c
}
