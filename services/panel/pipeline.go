// services/panel/pipeline.go
package panel

import (
	"amppanel-go/drivers/hd44780"
	"amppanel-go/drivers/i2cbb"
	"amppanel-go/input"
	"amppanel-go/types"
	"amppanel-go/x/mathx"
)

// Board is the hardware surface the panel pipeline runs against.
type Board interface {
	// BusPins exposes the two display bus lines.
	BusPins() i2cbb.Pins
	// Encoder samples the quadrature phase levels.
	Encoder() (a, b bool)
	// Button samples the raw button level, true while pressed.
	Button() bool
}

// pipeline chains the three protocol stages and the input conditioning
// around them. fastTick runs in the sampling domain, slowTick in the
// protocol domain; the event lines bridge the two.
type pipeline struct {
	board  Board
	master *i2cbb.Master
	link   *hd44780.Device
	ctrl   *Controller

	quad                        *input.Quadrature
	btn                         *input.Debouncer
	incLine, decLine, pressLine *input.EventLine
}

func newPipeline(board Board, cfg types.PanelConfig) *pipeline {
	m := i2cbb.New(board.BusPins())
	l := hd44780.New(m)
	l.Configure(hd44780.Config{Addr: cfg.Addr, MaxAckRetry: cfg.MaxAckRetry})
	c := NewController(l)
	c.SetTimeout(timeoutTicks(cfg))

	p := &pipeline{
		board:  board,
		master: m,
		link:   l,
		ctrl:   c,
		quad:   input.NewQuadrature(),
	}
	p.setInputTiming(cfg)
	return p
}

// timeoutTicks converts the configured timeout into slow ticks.
func timeoutTicks(cfg types.PanelConfig) uint32 {
	slowUS := uint32(cfg.FastTickUS) * uint32(cfg.TickRatio)
	if slowUS == 0 {
		return 0
	}
	return cfg.TimeoutMS * 1000 / slowUS
}

func (p *pipeline) setInputTiming(cfg types.PanelConfig) {
	fastUS := cfg.FastTickUS
	if fastUS == 0 {
		fastUS = 1
	}
	window := uint32(cfg.DebounceMS) * 1000 / fastUS
	p.btn = input.NewDebouncer(uint16(mathx.Clamp(window, 1, 65535)))

	// Stretch events to one and a half slow periods so no pulse can fall
	// between two slow samples.
	hold := uint32(cfg.TickRatio) + uint32(cfg.TickRatio)/2
	p.incLine = input.NewEventLine(hold)
	p.decLine = input.NewEventLine(hold)
	p.pressLine = input.NewEventLine(hold)
}

// configureLink restarts the display bring-up with new addressing/retry
// settings. Bring-up wipes the screen, so the current lines are repainted
// once the link is back up.
func (p *pipeline) configureLink(cfg types.PanelConfig) {
	p.link.Configure(hd44780.Config{Addr: cfg.Addr, MaxAckRetry: cfg.MaxAckRetry})
	p.ctrl.Repaint()
}

// fastTick samples the raw inputs once.
func (p *pipeline) fastTick() {
	a, b := p.board.Encoder()
	step := p.quad.Tick(a, b)
	p.incLine.FastTick(step > 0)
	p.decLine.FastTick(step < 0)
	p.pressLine.FastTick(p.btn.Tick(p.board.Button()))
}

// slowTick advances the protocol domain by one tick: collect the
// synchronized input edges, then run the three stages downstream-first so
// completions propagate before new submissions.
func (p *pipeline) slowTick(inject Events) Events {
	ev := Events{
		Press:     p.pressLine.SlowTick() || inject.Press,
		Increment: p.incLine.SlowTick() || inject.Increment,
		Decrement: p.decLine.SlowTick() || inject.Decrement,
	}
	p.master.Tick()
	p.link.Tick()
	p.ctrl.Tick(ev)
	return ev
}
