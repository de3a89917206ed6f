/*

This file contains the events emitted by the vault components for observability and indexing.
Events never drive internal control flow.

*/

package types

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventPoolJoined        = "PoolJoined"
	EventPoolExited        = "PoolExited"
	EventCapChanged        = "CapChanged"
	EventFeeChanged        = "FeeChanged"
	EventSwap              = "Swap"
	EventMint              = "Mint"
	EventIncreaseLiquidity = "IncreaseLiquidity"
	EventDecreaseLiquidity = "DecreaseLiquidity"
	EventCollect           = "Collect"
	EventStaker            = "Staker"
	EventUnStaker          = "UnStaker"
)

// Event is implemented by every emitted event.
type Event interface {
	EventName() string
}

// EventSink receives committed events.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinks fans an event out to several sinks.
type EventSinks []EventSink

func (s EventSinks) Emit(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ctx, ev)
		}
	}
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// EventRecorder keeps the most recent events in memory.
type EventRecorder struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewEventRecorder keeps at most limit events; limit <= 0 keeps everything.
func NewEventRecorder(limit int) *EventRecorder {
	return &EventRecorder{limit: limit}
}

func (r *EventRecorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given name.
func (r *EventRecorder) Named(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Reset clears the recorder.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type PoolJoined struct {
	Investor common.Address `json:"investor"`
	Amount   sdkmath.Int    `json:"amount"`  // Shares credited after the entry fee
	Deposit  sdkmath.Int    `json:"deposit"` // Underlying transferred in
	EntryFee sdkmath.Int    `json:"entry_fee"`
}

func (PoolJoined) EventName() string { return EventPoolJoined }

type PoolExited struct {
	Investor       common.Address `json:"investor"`
	Amount         sdkmath.Int    `json:"amount"` // Underlying paid out
	Shares         sdkmath.Int    `json:"shares"` // Shares burned
	ExitFee        sdkmath.Int    `json:"exit_fee"`
	PerformanceFee sdkmath.Int    `json:"performance_fee"`
}

func (PoolExited) EventName() string { return EventPoolExited }

type CapChanged struct {
	Setter common.Address `json:"setter"`
	OldCap sdkmath.Int    `json:"old_cap"`
	NewCap sdkmath.Int    `json:"new_cap"`
}

func (CapChanged) EventName() string { return EventCapChanged }

type FeeChanged struct {
	Setter         common.Address `json:"setter"`
	Kind           FeeKind        `json:"kind"`
	OldRatio       sdkmath.Int    `json:"old_ratio"`
	OldDenominator sdkmath.Int    `json:"old_denominator"`
	NewRatio       sdkmath.Int    `json:"new_ratio"`
	NewDenominator sdkmath.Int    `json:"new_denominator"`
}

func (FeeChanged) EventName() string { return EventFeeChanged }

type Swap struct {
	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	AmountIn  sdkmath.Int    `json:"amount_in"`
	AmountOut sdkmath.Int    `json:"amount_out"`
}

func (Swap) EventName() string { return EventSwap }

type Mint struct {
	TokenID   TokenID        `json:"token_id"`
	Pool      common.Address `json:"pool"`
	TickLower int            `json:"tick_lower"`
	TickUpper int            `json:"tick_upper"`
	Liquidity sdkmath.Int    `json:"liquidity"`
	Amount0   sdkmath.Int    `json:"amount0"`
	Amount1   sdkmath.Int    `json:"amount1"`
}

func (Mint) EventName() string { return EventMint }

type IncreaseLiquidity struct {
	TokenID   TokenID     `json:"token_id"`
	Liquidity sdkmath.Int `json:"liquidity"`
	Amount0   sdkmath.Int `json:"amount0"`
	Amount1   sdkmath.Int `json:"amount1"`
}

func (IncreaseLiquidity) EventName() string { return EventIncreaseLiquidity }

type DecreaseLiquidity struct {
	TokenID   TokenID     `json:"token_id"`
	Liquidity sdkmath.Int `json:"liquidity"`
	Amount0   sdkmath.Int `json:"amount0"`
	Amount1   sdkmath.Int `json:"amount1"`
}

func (DecreaseLiquidity) EventName() string { return EventDecreaseLiquidity }

type Collect struct {
	TokenID TokenID     `json:"token_id"`
	Amount0 sdkmath.Int `json:"amount0"`
	Amount1 sdkmath.Int `json:"amount1"`
}

func (Collect) EventName() string { return EventCollect }

type Staker struct {
	TokenID TokenID `json:"token_id"`
}

func (Staker) EventName() string { return EventStaker }

type UnStaker struct {
	TokenID TokenID `json:"token_id"`
}

func (UnStaker) EventName() string { return EventUnStaker }
