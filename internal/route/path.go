/*

This file contains the swap path codec shared with the external router.

A path is the first token's 20-byte address followed by one 23-byte hop per pool:
a 3-byte big-endian fee tier and the next token's address.

*/

package route

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
)

const (
	addrSize = common.AddressLength
	feeSize  = 3
	hopSize  = feeSize + addrSize
	maxFee   = 1<<24 - 1
)

// Path is a decoded swap path. len(Tokens) == len(Fees)+1.
type Path struct {
	Tokens []common.Address
	Fees   []uint32
}

// TokenIn is the first token of the path.
func (p Path) TokenIn() common.Address {
	return p.Tokens[0]
}

// TokenOut is the last token of the path.
func (p Path) TokenOut() common.Address {
	return p.Tokens[len(p.Tokens)-1]
}

// Hops is the number of pools the path crosses.
func (p Path) Hops() int {
	return len(p.Fees)
}

// EncodePath serializes tokens and per-hop fee tiers.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, errors.Wrapf(types.ErrMalformedPath, "%d tokens with %d fees", len(tokens), len(fees))
	}
	out := make([]byte, 0, addrSize+len(fees)*hopSize)
	out = append(out, tokens[0].Bytes()...)
	for i, fee := range fees {
		if fee > maxFee {
			return nil, errors.Wrapf(types.ErrMalformedPath, "fee tier %d does not fit in 3 bytes", fee)
		}
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		out = append(out, tokens[i+1].Bytes()...)
	}
	return out, nil
}

// DecodePath validates the length is exactly 20 + n*23 with n >= 1 and splits the path.
func DecodePath(encoded []byte) (Path, error) {
	if len(encoded) < addrSize+hopSize || (len(encoded)-addrSize)%hopSize != 0 {
		return Path{}, errors.Wrapf(types.ErrMalformedPath, "length %d is not 20 + n*23", len(encoded))
	}
	hops := (len(encoded) - addrSize) / hopSize
	p := Path{
		Tokens: make([]common.Address, 0, hops+1),
		Fees:   make([]uint32, 0, hops),
	}
	p.Tokens = append(p.Tokens, common.BytesToAddress(encoded[:addrSize]))
	for i := 0; i < hops; i++ {
		off := addrSize + i*hopSize
		fee := uint32(encoded[off])<<16 | uint32(encoded[off+1])<<8 | uint32(encoded[off+2])
		p.Fees = append(p.Fees, fee)
		p.Tokens = append(p.Tokens, common.BytesToAddress(encoded[off+feeSize:off+hopSize]))
	}
	return p, nil
}

// ReversePath returns the path walked from the last token to the first, the layout the router expects for exact-output swaps.
func ReversePath(encoded []byte) ([]byte, error) {
	p, err := DecodePath(encoded)
	if err != nil {
		return nil, err
	}
	n := len(p.Tokens)
	tokens := make([]common.Address, n)
	fees := make([]uint32, len(p.Fees))
	for i, tok := range p.Tokens {
		tokens[n-1-i] = tok
	}
	for i, fee := range p.Fees {
		fees[len(p.Fees)-1-i] = fee
	}
	return EncodePath(tokens, fees)
}
