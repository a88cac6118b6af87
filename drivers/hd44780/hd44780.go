// Package hd44780 drives a 2x16 character display behind a PCF8574-style
// I2C backpack, as a synchronous state machine advanced by an explicit
// Tick in the slow protocol domain.
//
// On power-up the device runs its bring-up sequence autonomously: a settle
// period, 4-bit mode select, function set (4-bit/2-line/5x8), display on
// with cursor off, auto-increment entry mode, and a clear with an extended
// settle. Ready() is false until the whole sequence has completed.
//
// Submit accepts one abstract command at a time and expands it into four
// single-byte bus writes (two per nibble: enable asserted, then
// deasserted). A Clear is followed by the long settle period, every other
// command by the short one.
package hd44780

import (
	"amppanel-go/errcode"
)

// Default 7-bit backpack address.
const Address = 0x27

// Port byte layout per bus write: b7..4 data nibble, b3 backlight (always
// on), b2 enable strobe, b1 R/W (write-only, always 0), b0 register select.
const (
	portBacklight = 1 << 3
	portEnable    = 1 << 2
	portRS        = 1 << 0
)

// Raw command bytes used by the bring-up sequence.
const (
	cmdClear       = 0x01
	cmdEntryInc    = 0x06
	cmdDisplayOn   = 0x0C // display on, cursor off, blink off
	cmdFunctionSet = 0x28 // 4-bit, 2 lines, 5x8 font
	modeSelectNib  = 0x02 // single-nibble 4-bit interface select
)

// Row base DDRAM addresses.
const (
	Row0Addr = 0x00
	Row1Addr = 0x40
)

// Kind tags an abstract display command.
type Kind uint8

const (
	KindInit Kind = iota
	KindClear
	KindRaw
	KindChar
	KindCursor
)

// Command is one abstract display command.
type Command struct {
	Kind Kind
	Arg  byte
}

func Init() Command            { return Command{Kind: KindInit} }
func Clear() Command           { return Command{Kind: KindClear} }
func Raw(b byte) Command       { return Command{Kind: KindRaw, Arg: b} }
func Char(b byte) Command      { return Command{Kind: KindChar, Arg: b} }
func Cursor(addr byte) Command { return Command{Kind: KindCursor, Arg: addr} }

// Wire is the downstream single-byte transaction master.
type Wire interface {
	Start(addr uint8, payload byte) error
	Busy() bool
	Done() (bool, error)
}

// Config controls addressing and timing. Delays are counted in slow ticks;
// the defaults assume a 100 microsecond slow tick.
type Config struct {
	// Addr defaults to 0x27 if zero.
	Addr uint8
	// PowerUpTicks is the initial settle before bring-up (~15 ms). Default 150.
	PowerUpTicks uint32
	// ClearSettleTicks follows a clear command (~2 ms). Default 20.
	ClearSettleTicks uint32
	// ShortSettleTicks follows every other command (~50 us). Default 1.
	ShortSettleTicks uint32
	// MaxAckRetry bounds per-write retries after an ack failure before the
	// link latches a device-unreachable fault. Default 3.
	MaxAckRetry uint8
}

type linkState uint8

const (
	statePowerWait linkState = iota
	stateWrite               // stepping through the writes of a sequence
	stateSettle              // post-sequence settle countdown
	stateReady
	stateFault
)

// Device is the display link. All mutation happens in Tick and Submit.
type Device struct {
	wire Wire
	cfg  Config
	addr uint8

	state  linkState
	settle uint32

	seq    [4]byte
	seqLen uint8
	seqPos uint8
	issued bool
	post   uint32 // settle ticks owed after the current sequence

	initStep uint8
	initDone bool

	retries  uint8
	faultErr error
	drops    uint32
}

// New creates the link over the given wire. The device starts its bring-up
// sequence on the first Tick.
func New(wire Wire) *Device {
	d := &Device{wire: wire, addr: Address}
	d.Configure(Config{})
	return d
}

// Configure applies cfg (zero fields keep defaults) and restarts bring-up.
func (d *Device) Configure(cfg Config) {
	if cfg.Addr == 0 {
		cfg.Addr = Address
	}
	if cfg.PowerUpTicks == 0 {
		cfg.PowerUpTicks = 150
	}
	if cfg.ClearSettleTicks == 0 {
		cfg.ClearSettleTicks = 20
	}
	if cfg.ShortSettleTicks == 0 {
		cfg.ShortSettleTicks = 1
	}
	if cfg.MaxAckRetry == 0 {
		cfg.MaxAckRetry = 3
	}
	d.cfg = cfg
	d.addr = cfg.Addr
	d.restart()
}

func (d *Device) restart() {
	d.state = statePowerWait
	d.settle = d.cfg.PowerUpTicks
	d.initStep = 0
	d.initDone = false
	d.issued = false
	d.retries = 0
	d.faultErr = nil
}

// Ready reports whether a new command would be accepted this tick.
func (d *Device) Ready() bool {
	return d.state == stateReady
}

// InitDone latches true once the whole bring-up sequence has completed.
func (d *Device) InitDone() bool { return d.initDone }

// Fault returns the latched link fault, or nil.
func (d *Device) Fault() error { return d.faultErr }

// Drops counts Submit calls rejected while not ready. A non-zero value
// indicates a handshake bug in the caller.
func (d *Device) Drops() uint32 { return d.drops }

// Submit accepts one command when the link is ready and the wire is idle.
// Otherwise it returns errcode.Busy and the command is dropped, never
// queued. A latched fault is reported as errcode.DeviceUnreachable.
func (d *Device) Submit(cmd Command) error {
	if d.state == stateFault {
		return errcode.DeviceUnreachable
	}
	if d.state != stateReady || d.wire.Busy() {
		d.drops++
		return errcode.Busy
	}
	if cmd.Kind == KindInit {
		d.restart()
		return nil
	}
	val, rs := encode(cmd)
	d.loadByteSeq(val, rs)
	d.post = d.cfg.ShortSettleTicks
	if cmd.Kind == KindClear {
		d.post = d.cfg.ClearSettleTicks
	}
	d.state = stateWrite
	return nil
}

func encode(cmd Command) (val byte, rs bool) {
	switch cmd.Kind {
	case KindClear:
		return cmdClear, false
	case KindCursor:
		return 0x80 | cmd.Arg, false
	case KindChar:
		return cmd.Arg, true
	default: // KindRaw
		return cmd.Arg, false
	}
}

// loadByteSeq expands a full byte into its four nibble writes.
func (d *Device) loadByteSeq(val byte, rs bool) {
	base := byte(portBacklight)
	if rs {
		base |= portRS
	}
	hi := val & 0xF0
	lo := val << 4
	d.seq = [4]byte{
		hi | base | portEnable,
		hi | base,
		lo | base | portEnable,
		lo | base,
	}
	d.seqLen = 4
	d.seqPos = 0
	d.issued = false
	d.retries = 0
}

// loadNibSeq expands a bare nibble (bring-up mode select) into two writes.
func (d *Device) loadNibSeq(nib byte) {
	base := byte(portBacklight)
	v := nib << 4
	d.seq[0] = v | base | portEnable
	d.seq[1] = v | base
	d.seqLen = 2
	d.seqPos = 0
	d.issued = false
	d.retries = 0
}

// Tick advances the link by one slow tick.
func (d *Device) Tick() {
	switch d.state {
	case stateFault, stateReady:
		return

	case statePowerWait:
		if d.settle > 0 {
			d.settle--
			return
		}
		d.nextInitStep()

	case stateWrite:
		d.stepWrite()

	case stateSettle:
		if d.settle > 0 {
			d.settle--
			return
		}
		if d.initDone {
			d.state = stateReady
			return
		}
		d.nextInitStep()
	}
}

// Bring-up sequence: 4-bit select, function set, display on, entry mode,
// clear (with the long settle).
func (d *Device) nextInitStep() {
	step := d.initStep
	d.initStep++
	switch step {
	case 0:
		d.loadNibSeq(modeSelectNib)
		d.post = d.cfg.ShortSettleTicks
	case 1:
		d.loadByteSeq(cmdFunctionSet, false)
		d.post = d.cfg.ShortSettleTicks
	case 2:
		d.loadByteSeq(cmdDisplayOn, false)
		d.post = d.cfg.ShortSettleTicks
	case 3:
		d.loadByteSeq(cmdEntryInc, false)
		d.post = d.cfg.ShortSettleTicks
	case 4:
		d.loadByteSeq(cmdClear, false)
		d.post = d.cfg.ClearSettleTicks
	default:
		d.initDone = true
		d.state = stateReady
		return
	}
	d.state = stateWrite
}

// stepWrite pushes the current sequence through the wire one byte at a
// time, retrying ack failures up to the configured bound.
func (d *Device) stepWrite() {
	if d.issued {
		done, err := d.wire.Done()
		if !done {
			return
		}
		d.issued = false
		if err != nil {
			d.retries++
			if d.retries > d.cfg.MaxAckRetry {
				d.faultErr = errcode.DeviceUnreachable
				d.state = stateFault
			}
			return // re-issue the same byte next tick
		}
		d.retries = 0
		d.seqPos++
		if d.seqPos == d.seqLen {
			d.settle = d.post
			d.state = stateSettle
		}
		return
	}
	if d.wire.Busy() {
		return
	}
	if err := d.wire.Start(d.addr, d.seq[d.seqPos]); err == nil {
		d.issued = true
	}
}
