package ber

import "github.com/norasector/berscope/pkg/stream"

type BurstState int

const (
	BurstIdle BurstState = iota
	BurstActive
)

func (s BurstState) String() string {
	switch s {
	case BurstActive:
		return "active"
	default:
		return "idle"
	}
}

type GateEventKind int

const (
	GateBurstBegin GateEventKind = iota
	GateBurstEnd
)

// GateEvent is emitted for every burst marker the gate sees.
type GateEvent struct {
	Kind   GateEventKind
	Offset int
	// From is the state before the marker was applied.
	From BurstState
	// Bits is the per-burst bit count reported by an end marker.
	Bits int
}

// BurstGate tracks whether the stream is inside a burst.
type BurstGate struct {
	state BurstState
	bits  int
}

func (g *BurstGate) State() BurstState {
	return g.state
}

func (g *BurstGate) Active() bool {
	return g.state == BurstActive
}

// Bits returns the number of bits counted in the current burst.
func (g *BurstGate) Bits() int {
	return g.bits
}

// Accumulate adds n bits to the current burst.
func (g *BurstGate) Accumulate(n int) {
	g.bits += n
}

// Observe applies the burst markers in tags, which must be in stream order.
// A begin marker while already active leaves the bit count alone. An end
// marker always reports and clears the count, even without a prior begin.
func (g *BurstGate) Observe(tags []stream.Tag) []GateEvent {
	var events []GateEvent
	for _, tag := range tags {
		switch tag.Key {
		case stream.TagBeginBurst:
			events = append(events, GateEvent{Kind: GateBurstBegin, Offset: tag.Offset, From: g.state})
			g.state = BurstActive
		case stream.TagEndBurst:
			events = append(events, GateEvent{Kind: GateBurstEnd, Offset: tag.Offset, From: g.state, Bits: g.bits})
			g.state = BurstIdle
			g.bits = 0
		}
	}
	return events
}
