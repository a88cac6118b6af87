// boards/sim/board.go
package sim

import (
	"sync"

	"amppanel-go/drivers/i2cbb"
)

// Quadrature phase sequence for one clockwise detent-to-detent cycle.
var phases = [4][2]bool{
	{false, false},
	{true, false},
	{true, true},
	{false, true},
}

// Board is the host-build panel board: the modelled display path plus
// injectable front-panel inputs. Input setters are safe to call from a
// different goroutine than the sampling loop.
type Board struct {
	backpack *Backpack

	mu    sync.Mutex
	phase int
	a, b  bool
	btn   bool
}

// NewBoard returns a board with the display backpack at the given address
// and all inputs released.
func NewBoard(addr uint8) *Board {
	return &Board{backpack: NewBackpack(addr)}
}

// Backpack exposes the modelled display path.
func (bd *Board) Backpack() *Backpack { return bd.backpack }

// Screen renders the modelled display contents.
func (bd *Board) Screen() (line1, line2 string) {
	return bd.backpack.LCD().Line(0), bd.backpack.LCD().Line(1)
}

// ---- panel board surface ----

func (bd *Board) BusPins() i2cbb.Pins { return bd.backpack }

func (bd *Board) Encoder() (a, b bool) {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.a, bd.b
}

func (bd *Board) Button() bool {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.btn
}

// ---- input injection ----

// SetButton drives the raw button level.
func (bd *Board) SetButton(pressed bool) {
	bd.mu.Lock()
	bd.btn = pressed
	bd.mu.Unlock()
}

// SetEncoder drives the raw phase levels directly.
func (bd *Board) SetEncoder(a, b bool) {
	bd.mu.Lock()
	bd.a, bd.b = a, b
	bd.mu.Unlock()
}

// Step advances the encoder one quarter cycle; four clockwise steps make
// one increment. The sampling domain must observe each phase, so callers
// pace successive steps slower than the fast tick.
func (bd *Board) Step(cw bool) {
	bd.mu.Lock()
	if cw {
		bd.phase = (bd.phase + 1) % 4
	} else {
		bd.phase = (bd.phase + 3) % 4
	}
	bd.a, bd.b = phases[bd.phase][0], phases[bd.phase][1]
	bd.mu.Unlock()
}
