package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// ExactInputParams mirrors the router's exact-input call. Path runs tokenIn -> tokenOut.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         int64
	AmountIn         sdkmath.Int
	AmountOutMinimum sdkmath.Int
}

// ExactOutputParams mirrors the router's exact-output call. Path runs tokenOut -> tokenIn.
type ExactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	Deadline        int64
	AmountOut       sdkmath.Int
	AmountInMaximum sdkmath.Int
}

// RouteEntry is one stored swap route.
type RouteEntry struct {
	TokenIn  common.Address `json:"token_in"`
	TokenOut common.Address `json:"token_out"`
	Path     string         `json:"path"` // 0x-prefixed hex
}
