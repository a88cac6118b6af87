// Package input turns raw front-panel signals into clean, single-shot
// events. Everything here is a synchronous state machine advanced by an
// explicit tick: the quadrature decoder and debouncer run in the fast
// sampling domain, and EventLine carries their pulses into the slow
// protocol domain (stretch, then edge-detect) so a one-tick pulse can
// never fall between two slow samples.
package input

// Step is the output of one quadrature tick: -1, 0 or +1 detents.
type Step int8

// Quadrature decodes a two-phase encoder signal. A full clockwise cycle
// (00→10→11→01→00) yields exactly one +1 step at the detent; the mirrored
// cycle yields exactly one -1. Invalid transitions discard the partial
// cycle.
type Quadrature struct {
	prev uint8
	sum  int8
}

// NewQuadrature returns a decoder whose idle position is the 00 detent.
func NewQuadrature() *Quadrature {
	return &Quadrature{}
}

// quarter maps (prev<<2 | cur) to a quarter-step direction.
// +2 marks an illegal two-bit jump.
var quarter = [16]int8{
	0b0000: 0,
	0b0010: +1, // 00 -> 10
	0b1011: +1, // 10 -> 11
	0b1101: +1, // 11 -> 01
	0b0100: +1, // 01 -> 00
	0b0001: -1, // 00 -> 01
	0b0111: -1, // 01 -> 11
	0b1110: -1, // 11 -> 10
	0b1000: -1, // 10 -> 00
	0b0101: 0,
	0b1010: 0,
	0b1111: 0,
	0b0011: +2, // 00 -> 11
	0b1100: +2, // 11 -> 00
	0b0110: +2, // 01 -> 10
	0b1001: +2, // 10 -> 01
}

// Tick samples the two phases and returns the detent step, if any.
func (q *Quadrature) Tick(a, b bool) Step {
	cur := uint8(0)
	if a {
		cur |= 0b10
	}
	if b {
		cur |= 0b01
	}
	d := quarter[q.prev<<2|cur]
	q.prev = cur

	switch d {
	case 0:
		return 0
	case +2:
		// Skipped a phase: not trustworthy, drop the partial cycle.
		q.sum = 0
		return 0
	default:
		q.sum += d
	}

	if cur != 0 {
		return 0
	}
	// Back at the detent: a complete cycle is four quarters.
	sum := q.sum
	q.sum = 0
	switch sum {
	case +4:
		return +1
	case -4:
		return -1
	}
	return 0
}

// Debouncer filters a mechanical push button. The logical level must hold
// for the configured number of fast ticks before it is accepted; shorter
// glitches produce no event.
type Debouncer struct {
	window uint16
	stable bool
	cand   bool
	count  uint16
}

// NewDebouncer returns a debouncer with the given window in fast ticks.
// A zero window accepts every change after one tick.
func NewDebouncer(windowTicks uint16) *Debouncer {
	return &Debouncer{window: windowTicks}
}

// Tick samples the logical (active-high) button level and reports whether a
// debounced press event fires on this tick. Releases are debounced the same
// way but emit nothing.
func (d *Debouncer) Tick(level bool) bool {
	if level == d.stable {
		d.cand = level
		d.count = 0
		return false
	}
	if level != d.cand {
		d.cand = level
		d.count = 1
	} else {
		d.count++
	}
	if d.count <= d.window {
		return false
	}
	d.stable = level
	d.count = 0
	return level // press fires on the accepted rising change only
}

// Stable returns the current debounced level.
func (d *Debouncer) Stable() bool { return d.stable }

// EventLine carries one single-shot event across the fast→slow tick
// boundary. FastTick stretches each input pulse to holdTicks fast ticks;
// SlowTick edge-detects the stretched level. holdTicks must exceed one
// slow tick period expressed in fast ticks, or a pulse can be lost.
type EventLine struct {
	hold uint32
	n    uint32
	last bool
}

func NewEventLine(holdTicks uint32) *EventLine {
	if holdTicks == 0 {
		holdTicks = 1
	}
	return &EventLine{hold: holdTicks}
}

// FastTick feeds the fast-domain pulse and returns the stretched level.
func (l *EventLine) FastTick(pulse bool) bool {
	if pulse {
		l.n = l.hold
	} else if l.n > 0 {
		l.n--
	}
	return l.n > 0
}

// SlowTick samples the stretched level in the slow domain and reports a
// rising edge: exactly one true per stretched pulse.
func (l *EventLine) SlowTick() bool {
	level := l.n > 0
	edge := level && !l.last
	l.last = level
	return edge
}
