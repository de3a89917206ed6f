/*

This is a custom type for tokens the vault and the position manager hold.

*/

package types

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TokenBalance is a held amount of one token, optionally valued in the accounting token.
type TokenBalance struct {
	Token  common.Address `json:"token"`
	Amount sdkmath.Int    `json:"amount"`
	Value  sdkmath.Int    `json:"value"` // Amount expressed in the accounting (io) token
}

// MaxUint256 is used for unlimited allowances.
var MaxUint256 = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
