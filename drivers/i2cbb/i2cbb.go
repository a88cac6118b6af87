// Package i2cbb is a bit-banged I2C write master, modelled as a synchronous
// state machine advanced by an explicit Tick. One Start() executes exactly
// one single-byte write transaction:
//
//	START, 7 address bits + W, ack slot, 8 data bits, ack slot, STOP
//
// Bits go out MSB first. Every bit slot takes TicksPerBit ticks: the clock
// is held low while the data line is set, then driven high for the sampling
// half, so the transaction duration is a constant independent of payload.
// Ack slots release SDA and sample it; a NACK completes the transaction
// with errcode.AckFailure rather than aborting it.
package i2cbb

import (
	"amppanel-go/errcode"
)

// Timing, in protocol ticks.
const (
	TicksPerBit = 11
	sclRiseTick = 5 // first tick of the high (sampling) half
	sampleTick  = 8 // SDA sample point inside the high half

	// START + 9 address slots + 9 data slots + STOP.
	TicksPerTransaction = TicksPerBit * 20
)

// Pins is the physical bus. The lines are open-drain: driving high means
// released, and SDARead reports the wired-AND level of the line.
type Pins interface {
	SetSCL(high bool)
	SetSDA(high bool)
	SDARead() bool
}

// State identifies the master's major phase.
type State uint8

const (
	StateIdle State = iota
	StateStart
	StateAddr
	StateData
	StateStop
	StateDone
)

// Master executes one transaction at a time. All mutation happens in Tick.
type Master struct {
	pins Pins

	state State
	slot  uint8 // bit slot within a byte; 8 is the ack slot
	tick  uint8 // tick within the current slot
	cur   byte  // byte being shifted out

	addr    byte
	payload byte
	nack    bool

	drops uint32 // Start() calls rejected while busy
}

// New returns an idle master. The bus lines are released.
func New(pins Pins) *Master {
	pins.SetSCL(true)
	pins.SetSDA(true)
	return &Master{pins: pins}
}

// Start arms a single-byte write to the 7-bit address. It is accepted only
// when the master is idle; while busy it returns errcode.Busy and the
// request is dropped, never queued.
func (m *Master) Start(addr uint8, payload byte) error {
	if addr > 0x7F {
		return errcode.InvalidParams
	}
	if m.state != StateIdle {
		m.drops++
		return errcode.Busy
	}
	m.addr = addr
	m.payload = payload
	m.cur = addr<<1 | 0 // write bit
	m.nack = false
	m.slot = 0
	m.tick = 0
	m.state = StateStart
	return nil
}

// Busy reports whether a transaction is in flight (Done tick included).
func (m *Master) Busy() bool { return m.state != StateIdle }

// Done reports the one-tick completion pulse. The error is nil on a fully
// acknowledged transaction and errcode.AckFailure when either ack slot
// sampled high.
func (m *Master) Done() (bool, error) {
	if m.state != StateDone {
		return false, nil
	}
	if m.nack {
		return true, errcode.AckFailure
	}
	return true, nil
}

// Drops returns the count of Start() calls rejected while busy. A non-zero
// value indicates a handshake bug in the caller.
func (m *Master) Drops() uint32 { return m.drops }

// Tick advances the protocol engine by one tick.
func (m *Master) Tick() {
	switch m.state {
	case StateIdle:
		return

	case StateDone:
		m.state = StateIdle
		return

	case StateStart:
		// SDA falls while SCL is high, then the clock drops.
		switch m.tick {
		case 0:
			m.pins.SetSDA(true)
			m.pins.SetSCL(true)
		case sclRiseTick:
			m.pins.SetSDA(false)
		case TicksPerBit - 1:
			m.pins.SetSCL(false)
		}
		m.advance(StateAddr)

	case StateAddr, StateData:
		m.bitSlot()

	case StateStop:
		// SDA rises while SCL is high.
		switch m.tick {
		case 0:
			m.pins.SetSCL(false)
			m.pins.SetSDA(false)
		case sclRiseTick:
			m.pins.SetSCL(true)
		case TicksPerBit - 1:
			m.pins.SetSDA(true)
		}
		m.advance(StateDone)
	}
}

// bitSlot clocks out one data or ack slot of the current byte.
func (m *Master) bitSlot() {
	switch m.tick {
	case 0:
		m.pins.SetSCL(false)
		if m.slot == 8 {
			m.pins.SetSDA(true) // release for the ack slot
		} else {
			m.pins.SetSDA(m.cur&0x80 != 0)
		}
	case sclRiseTick:
		m.pins.SetSCL(true)
	case sampleTick:
		if m.slot == 8 && m.pins.SDARead() {
			m.nack = true // best effort: finish the transaction regardless
		}
	}

	if m.tick < TicksPerBit-1 {
		m.tick++
		return
	}
	m.tick = 0
	if m.slot < 8 {
		m.cur <<= 1
		m.slot++
		return
	}
	// Ack slot finished: next byte or stop.
	m.slot = 0
	if m.state == StateAddr {
		m.cur = m.payload
		m.state = StateData
	} else {
		m.state = StateStop
	}
}

// advance steps tick within a non-byte phase and moves to next when done.
func (m *Master) advance(next State) {
	if m.tick < TicksPerBit-1 {
		m.tick++
		return
	}
	m.tick = 0
	m.state = next
}
