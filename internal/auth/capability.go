package auth

import (
	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/types"
)

// Capability names the role an operation requires.
type Capability uint8

const (
	Governance Capability = iota
	AdminOrGovernance
	StrategistOrGovernance
	Authorized
)

func (c Capability) String() string {
	switch c {
	case Governance:
		return "governance"
	case AdminOrGovernance:
		return "admin or governance"
	case StrategistOrGovernance:
		return "strategist or governance"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Allows reports whether caller holds capability c.
func Allows(a types.Authorizer, c Capability, caller common.Address) bool {
	switch c {
	case Governance:
		return a.IsGovernance(caller)
	case AdminOrGovernance:
		return a.IsAdminOrGovernance(caller)
	case StrategistOrGovernance:
		return a.IsStrategistOrGovernance(caller)
	case Authorized:
		return a.IsAuthorized(caller)
	default:
		return false
	}
}

// Require fails with ErrUnauthorized naming op when caller lacks capability c.
func Require(a types.Authorizer, c Capability, caller common.Address, op string) error {
	if a == nil || !Allows(a, c, caller) {
		return errors.Wrapf(types.ErrUnauthorized, "%s: %s is not %s", op, caller.Hex(), c)
	}
	return nil
}
