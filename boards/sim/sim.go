// Package sim is a behavioural model of the display path: a PCF8574 I2C
// backpack wired to an HD44780 character LCD in 4-bit mode. It decodes the
// bit-banged bus waveform edge by edge, so it doubles as the protocol
// oracle for the driver tests and as the host-build board backend.
package sim

// Port bit layout of the backpack (matches the common PCF8574 module):
// b7..4 data nibble, b3 backlight, b2 enable, b1 R/W, b0 register select.
const (
	portBacklight = 1 << 3
	portEnable    = 1 << 2
	portRW        = 1 << 1
	portRS        = 1 << 0
)

// Backpack listens on the two bus lines. It acknowledges its own address
// and latches every port write into the attached LCD model.
type Backpack struct {
	Addr uint8

	// NackAll makes the device refuse to acknowledge, for fault testing.
	NackAll bool

	scl, sda bool // levels driven by the master
	slaveSDA bool // our own open-drain drive (false = pulling low)

	started   bool
	bitCnt    uint8
	shift     uint8
	inAck     bool
	addressed bool
	byteIdx   int

	writes []byte // port bytes received since power-up
	lcd    LCD
}

// NewBackpack returns a powered-up backpack at the given 7-bit address.
func NewBackpack(addr uint8) *Backpack {
	b := &Backpack{Addr: addr, scl: true, sda: true, slaveSDA: true}
	b.lcd.powerUp()
	return b
}

// LCD exposes the attached display model.
func (b *Backpack) LCD() *LCD { return &b.lcd }

// Writes returns all port bytes latched so far.
func (b *Backpack) Writes() []byte { return b.writes }

// ResetWrites clears the port write log (the LCD state is untouched).
func (b *Backpack) ResetWrites() { b.writes = b.writes[:0] }

// ---- i2cbb.Pins ----

func (b *Backpack) SetSCL(high bool) {
	prev := b.scl
	b.scl = high
	if !prev && high {
		b.sclRise()
	} else if prev && !high {
		b.sclFall()
	}
}

func (b *Backpack) SetSDA(high bool) {
	prev := b.sda
	b.sda = high
	if !b.scl {
		return
	}
	// Line changes while the clock is high frame the transaction.
	if prev && !high {
		b.started = true
		b.bitCnt = 0
		b.shift = 0
		b.inAck = false
		b.addressed = false
		b.byteIdx = 0
	} else if !prev && high {
		b.started = false
		b.slaveSDA = true
	}
}

func (b *Backpack) SDARead() bool {
	return b.sda && b.slaveSDA
}

func (b *Backpack) sclRise() {
	if !b.started || b.inAck {
		return
	}
	if b.bitCnt < 8 {
		b.shift <<= 1
		if b.SDARead() {
			b.shift |= 1
		}
		b.bitCnt++
	}
}

func (b *Backpack) sclFall() {
	if !b.started {
		return
	}
	if b.inAck {
		// Ack slot over: release the line for the next byte.
		b.slaveSDA = true
		b.inAck = false
		b.bitCnt = 0
		b.shift = 0
		return
	}
	if b.bitCnt < 8 {
		return
	}
	// Full byte shifted in: ack (pull low) before the ack-slot clock rises.
	if b.byteIdx == 0 {
		b.addressed = b.shift>>1 == b.Addr && b.shift&1 == 0
	} else if b.addressed {
		b.latchPort(b.shift)
	}
	if b.addressed && !b.NackAll {
		b.slaveSDA = false
	}
	b.byteIdx++
	b.inAck = true
}

func (b *Backpack) latchPort(port byte) {
	b.writes = append(b.writes, port)
	b.lcd.port(port)
}

// ---- HD44780 model ----

// LCD models the controller's externally visible behaviour: 4-bit nibble
// latching on the enable falling edge, DDRAM with the 0x00/0x40 row bases,
// and the small command set the panel uses.
type LCD struct {
	ddram [128]byte
	ac    uint8

	on       bool
	entryInc bool
	fourBit  bool
	twoLine  bool

	lastEN  bool
	haveHi  bool
	hiNib   uint8
	cleared int // number of clear commands seen
}

func (l *LCD) powerUp() {
	for i := range l.ddram {
		l.ddram[i] = ' '
	}
	l.ac = 0
	l.fourBit = false
	l.haveHi = false
}

// port applies one backpack port byte.
func (l *LCD) port(p byte) {
	en := p&portEnable != 0
	fall := l.lastEN && !en
	l.lastEN = en
	if !fall || p&portRW != 0 {
		return
	}
	nib := p >> 4
	rs := p&portRS != 0

	if !l.fourBit {
		// Single-nibble interface commands before 4-bit mode is set.
		if nib == 0x2 {
			l.fourBit = true
		}
		return
	}
	if !l.haveHi {
		l.hiNib = nib
		l.haveHi = true
		return
	}
	l.haveHi = false
	l.exec(l.hiNib<<4|nib, rs)
}

func (l *LCD) exec(b byte, data bool) {
	if data {
		l.ddram[l.ac&0x7F] = b
		if l.entryInc {
			l.ac++
		} else {
			l.ac--
		}
		return
	}
	switch {
	case b == 0x01: // clear
		for i := range l.ddram {
			l.ddram[i] = ' '
		}
		l.ac = 0
		l.cleared++
	case b&0xFE == 0x02: // return home
		l.ac = 0
	case b&0xFC == 0x04: // entry mode
		l.entryInc = b&0x02 != 0
	case b&0xF8 == 0x08: // display control
		l.on = b&0x04 != 0
	case b&0xE0 == 0x20: // function set
		l.twoLine = b&0x08 != 0
	case b&0x80 != 0: // set DDRAM address
		l.ac = b & 0x7F
	}
}

// On reports whether the display was switched on.
func (l *LCD) On() bool { return l.on }

// Clears returns how many clear commands have executed.
func (l *LCD) Clears() int { return l.cleared }

// Line renders one display row (0 or 1) as a 16-byte string.
func (l *LCD) Line(row int) string {
	base := 0x00
	if row == 1 {
		base = 0x40
	}
	return string(l.ddram[base : base+16])
}
