//go:build rp2040

// boards/rp2040/board.go
package rp2040

import (
	"machine"

	"amppanel-go/drivers/i2cbb"
)

// Default front-panel pin assignment for the pico build.
const (
	PinSCL    = machine.GP5
	PinSDA    = machine.GP4
	PinEncA   = machine.GP10
	PinEncB   = machine.GP11
	PinButton = machine.GP12
)

// Board drives the panel over real pins. The two bus lines are emulated
// open-drain: high releases the line to the external pull-up, low drives
// it. Encoder and button contacts are active-low against internal pull-ups.
type Board struct {
	scl, sda        machine.Pin
	encA, encB, btn machine.Pin
}

func NewBoard() *Board {
	b := &Board{scl: PinSCL, sda: PinSDA, encA: PinEncA, encB: PinEncB, btn: PinButton}
	release(b.scl)
	release(b.sda)
	b.encA.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	b.encB.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	b.btn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return b
}

func release(p machine.Pin) {
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func drive(p machine.Pin, high bool) {
	if high {
		release(p)
		return
	}
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
}

// ---- panel board surface ----

func (b *Board) BusPins() i2cbb.Pins { return b }

func (b *Board) SetSCL(high bool) { drive(b.scl, high) }
func (b *Board) SetSDA(high bool) { drive(b.sda, high) }
func (b *Board) SDARead() bool    { return b.sda.Get() }

func (b *Board) Encoder() (a, bb bool) { return !b.encA.Get(), !b.encB.Get() }
func (b *Board) Button() bool          { return !b.btn.Get() }
