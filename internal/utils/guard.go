package utils

import (
	"sync/atomic"

	"cosmossdk.io/errors"

	"github.com/elys-network/clvault/internal/types"
)

// ReentrancyGuard rejects a mutating call while another one is in flight on the same component.
// The zero value is ready to use.
type ReentrancyGuard struct {
	busy   atomic.Bool
	active atomic.Value // string, the entry point holding the guard
}

// Enter marks op as in flight. The returned release must be deferred by the caller.
func (g *ReentrancyGuard) Enter(op string) (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		holder, _ := g.active.Load().(string)
		return nil, errors.Wrapf(types.ErrReentrantCall, "%s called while %s is in progress", op, holder)
	}
	g.active.Store(op)
	return func() {
		g.active.Store("")
		g.busy.Store(false)
	}, nil
}

// Busy reports whether a guarded call is in flight.
func (g *ReentrancyGuard) Busy() bool {
	return g.busy.Load()
}
