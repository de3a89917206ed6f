/*

This file contains the role registry consulted by every mutating vault operation.

*/

package auth

import (
	"sync"

	"cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

var authLogger = logger.GetForComponent("auth")

// Identity holds the governance, admin, strategist and rewards roles plus the authorized operator set.
type Identity struct {
	mu         sync.RWMutex
	governance common.Address
	admin      common.Address
	strategist common.Address
	rewards    common.Address
	authorized map[common.Address]bool
}

var _ types.Authorizer = (*Identity)(nil)

// Roles is the initial role assignment of an Identity.
type Roles struct {
	Governance common.Address
	Admin      common.Address
	Strategist common.Address
	Rewards    common.Address
}

// NewIdentity validates the roles and returns a registry with an empty authorized set.
func NewIdentity(roles Roles) (*Identity, error) {
	if roles.Governance == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidAddress, "governance address is required")
	}
	if roles.Rewards == (common.Address{}) {
		return nil, errors.Wrap(types.ErrInvalidAddress, "rewards address is required")
	}
	return &Identity{
		governance: roles.Governance,
		admin:      roles.Admin,
		strategist: roles.Strategist,
		rewards:    roles.Rewards,
		authorized: make(map[common.Address]bool),
	}, nil
}

func (id *Identity) IsGovernance(caller common.Address) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return caller == id.governance
}

func (id *Identity) IsAdminOrGovernance(caller common.Address) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return caller == id.governance || (id.admin != (common.Address{}) && caller == id.admin)
}

func (id *Identity) IsStrategistOrGovernance(caller common.Address) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return caller == id.governance || (id.strategist != (common.Address{}) && caller == id.strategist)
}

// IsAuthorized is true for governance and for members of the authorized operator set.
func (id *Identity) IsAuthorized(caller common.Address) bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return caller == id.governance || id.authorized[caller]
}

func (id *Identity) Rewards() common.Address {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.rewards
}

func (id *Identity) Governance() common.Address {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.governance
}

// SetGovernance hands governance to next.
func (id *Identity) SetGovernance(caller, next common.Address) error {
	return id.setRole(caller, "setGovernance", next, &id.governance)
}

func (id *Identity) SetAdmin(caller, next common.Address) error {
	return id.setRole(caller, "setAdmin", next, &id.admin)
}

func (id *Identity) SetStrategist(caller, next common.Address) error {
	return id.setRole(caller, "setStrategist", next, &id.strategist)
}

func (id *Identity) SetRewards(caller, next common.Address) error {
	return id.setRole(caller, "setRewards", next, &id.rewards)
}

func (id *Identity) setRole(caller common.Address, op string, next common.Address, slot *common.Address) error {
	if err := Require(id, Governance, caller, op); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return errors.Wrapf(types.ErrInvalidAddress, "%s: zero address", op)
	}
	id.mu.Lock()
	*slot = next
	id.mu.Unlock()
	authLogger.Info().Str("op", op).Str("address", next.Hex()).Msg("Role updated")
	return nil
}

// AddAuthorized grants operator rights to each address.
func (id *Identity) AddAuthorized(caller common.Address, operators ...common.Address) error {
	if err := Require(id, Governance, caller, "addAuthorized"); err != nil {
		return err
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	for _, op := range operators {
		id.authorized[op] = true
	}
	return nil
}

// RemoveAuthorized revokes operator rights.
func (id *Identity) RemoveAuthorized(caller common.Address, operators ...common.Address) error {
	if err := Require(id, Governance, caller, "removeAuthorized"); err != nil {
		return err
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	for _, op := range operators {
		delete(id.authorized, op)
	}
	return nil
}
