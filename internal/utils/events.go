package utils

import (
	"context"

	"github.com/elys-network/clvault/internal/types"
)

// EventBuffer holds events emitted inside an atomic unit until it commits. Units nest: events reach
// the sink only when the outermost unit flushes, and dropping an inner unit discards only what it
// emitted. Outside Hold/Flush it passes events straight through.
type EventBuffer struct {
	out     types.EventSink
	pending []types.Event
	marks   []int
}

// NewEventBuffer forwards to out; a nil out drops events.
func NewEventBuffer(out types.EventSink) *EventBuffer {
	if out == nil {
		out = types.NopSink{}
	}
	return &EventBuffer{out: out}
}

func (b *EventBuffer) Emit(ctx context.Context, ev types.Event) {
	if len(b.marks) > 0 {
		b.pending = append(b.pending, ev)
		return
	}
	b.out.Emit(ctx, ev)
}

// Hold opens a unit.
func (b *EventBuffer) Hold() {
	b.marks = append(b.marks, len(b.pending))
}

// Drop discards the events of the innermost unit.
func (b *EventBuffer) Drop() {
	if len(b.marks) == 0 {
		return
	}
	last := len(b.marks) - 1
	b.pending = b.pending[:b.marks[last]]
	b.marks = b.marks[:last]
}

// Flush closes the innermost unit, forwarding the buffered events in order once no unit is open.
func (b *EventBuffer) Flush(ctx context.Context) {
	if len(b.marks) == 0 {
		return
	}
	b.marks = b.marks[:len(b.marks)-1]
	if len(b.marks) > 0 {
		return
	}
	pending := b.pending
	b.pending = nil
	for _, ev := range pending {
		b.out.Emit(ctx, ev)
	}
}
