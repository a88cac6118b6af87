// services/panel/controller.go
package panel

import (
	"amppanel-go/drivers/hd44780"
	"amppanel-go/errcode"
	"amppanel-go/types"
	"amppanel-go/x/mathx"
)

// Events carries the slow-domain input pulses for one tick. Each field is a
// single-shot: true for exactly the tick the event fires on.
type Events struct {
	Press     bool
	Increment bool
	Decrement bool
}

// Link is the downstream display handshake surface.
type Link interface {
	Submit(hd44780.Command) error
	Ready() bool
	InitDone() bool
	Fault() error
}

// Refresh command stream: clear, home, line1, reposition, line2. The
// full sequence is one clear, two cursor sets and twice 16 characters,
// 35 commands in all.
const (
	stepClear   = 0
	stepHome    = 1
	stepLine1   = 2 // 16 steps
	stepCursor2 = 18
	stepLine2   = 19 // 16 steps
	stepCount   = 35
)

// Parameter bounds.
const (
	VolumeMin, VolumeMax = 0, 100
	ToneMin, ToneMax     = -10, 10
)

// DefaultTimeoutTicks is the inactivity timeout in slow ticks, 5 s at the
// 100 microsecond reference tick.
const DefaultTimeoutTicks = 50_000

// Controller owns the menu state machine, the parameter set and the display
// refresh sequencer. It is a pure tick machine: all mutation happens inside
// Tick, and the only side effects are Submit calls on the link.
type Controller struct {
	link         Link
	timeoutTicks uint32

	menu    types.Menu
	params  types.Params
	idle    uint32 // ticks since last qualifying input
	timeout bool

	refreshing bool
	pending    bool
	step       uint8
	line1      [16]byte
	line2      [16]byte

	// Two-edge handshake tracking for the in-flight command: issued is set
	// when Submit is accepted, started once the link has been observed busy.
	// Only a ready edge after started counts as completion.
	issued  bool
	started bool

	refreshes uint32
}

// NewController builds a controller over the given link with defaults:
// volume 50, tone controls centered, idle screen pending.
func NewController(link Link) *Controller {
	c := &Controller{
		link:         link,
		timeoutTicks: DefaultTimeoutTicks,
		params:       types.Params{Volume: 50},
	}
	c.pending = true // paint the idle screen once the link comes up
	return c
}

// SetTimeout sets the inactivity timeout in slow ticks. Zero keeps the
// default.
func (c *Controller) SetTimeout(ticks uint32) {
	if ticks > 0 {
		c.timeoutTicks = ticks
	}
}

func (c *Controller) Menu() types.Menu     { return c.menu }
func (c *Controller) Params() types.Params { return c.params }
func (c *Controller) TimedOut() bool       { return c.timeout }
func (c *Controller) Refreshing() bool     { return c.refreshing || c.pending }

// Refreshes counts refresh sequences started since power-up.
func (c *Controller) Refreshes() uint32 { return c.refreshes }

// Repaint schedules a full screen redraw, coalescing with any refresh
// already in flight. A link fault drops the in-flight sequence and the
// pending flag, so a re-initialized display needs an explicit repaint.
func (c *Controller) Repaint() { c.requestRefresh() }

// Tick advances the controller by one slow tick.
func (c *Controller) Tick(ev Events) {
	c.handleInput(ev)
	c.runTimeout(ev)
	c.stepRefresh()
}

func (c *Controller) handleInput(ev Events) {
	if ev.Press {
		c.menu = nextMenu(c.menu)
		c.timeout = false
		c.idle = 0
		c.requestRefresh()
		return
	}
	if !ev.Increment && !ev.Decrement {
		return
	}
	// Rotation is ignored outright on the idle screen: no mutation, no
	// refresh, no timer reset.
	if c.menu == types.MenuIdle {
		return
	}
	delta := 1
	if ev.Decrement {
		delta = -1
	}
	c.adjust(delta)
	c.idle = 0
	c.requestRefresh()
}

func nextMenu(m types.Menu) types.Menu {
	switch m {
	case types.MenuVolume:
		return types.MenuBass
	case types.MenuBass:
		return types.MenuTreble
	default: // idle or treble
		return types.MenuVolume
	}
}

// adjust mutates the parameter bound to the current menu, saturating.
func (c *Controller) adjust(delta int) {
	switch c.menu {
	case types.MenuVolume:
		c.params.Volume = int8(mathx.Clamp(int(c.params.Volume)+delta, VolumeMin, VolumeMax))
	case types.MenuBass:
		c.params.Bass = int8(mathx.Clamp(int(c.params.Bass)+delta, ToneMin, ToneMax))
	case types.MenuTreble:
		c.params.Treble = int8(mathx.Clamp(int(c.params.Treble)+delta, ToneMin, ToneMax))
	}
}

func (c *Controller) runTimeout(ev Events) {
	if c.menu == types.MenuIdle {
		c.idle = 0
		return
	}
	if ev.Press || ev.Increment || ev.Decrement {
		return // counter was reset by handleInput this tick
	}
	c.idle++
	if c.idle < c.timeoutTicks {
		return
	}
	c.menu = types.MenuIdle
	c.timeout = true
	c.idle = 0
	c.requestRefresh()
}

// requestRefresh starts a refresh, or coalesces into the pending flag when
// one is already in flight. Pending requests are never counted individually:
// however many arrive, exactly one follow-up refresh runs, rendered from
// whatever the parameters are by then.
func (c *Controller) requestRefresh() {
	if c.refreshing {
		c.pending = true
		return
	}
	c.startRefresh()
}

func (c *Controller) startRefresh() {
	c.line1, c.line2 = renderLines(c.menu, c.params)
	c.refreshing = true
	c.pending = false
	c.step = 0
	c.issued = false
	c.started = false
	c.refreshes++
}

func (c *Controller) stepRefresh() {
	if c.link.Fault() != nil {
		// The link is unreachable; drop the in-flight sequence rather than
		// spin on a submit that can never be accepted.
		c.refreshing = false
		c.pending = false
		c.issued = false
		c.started = false
		return
	}
	if !c.refreshing {
		if c.pending && c.link.InitDone() {
			c.startRefresh()
		}
		return
	}
	if !c.link.InitDone() {
		return
	}

	if c.issued {
		ready := c.link.Ready()
		if !c.started {
			if !ready {
				c.started = true
			}
			return
		}
		if !ready {
			return
		}
		// Second edge: the command completed.
		c.issued = false
		c.started = false
		c.step++
		if c.step == stepCount {
			c.refreshing = false
			if c.pending {
				c.startRefresh()
			}
		}
		return
	}

	if !c.link.Ready() {
		return
	}
	if err := c.link.Submit(c.commandAt(c.step)); err != nil {
		if errcode.Of(err) == errcode.DeviceUnreachable {
			c.refreshing = false
			c.pending = false
		}
		return // busy this tick, try again next
	}
	c.issued = true
}

func (c *Controller) commandAt(step uint8) hd44780.Command {
	switch {
	case step == stepClear:
		return hd44780.Clear()
	case step == stepHome:
		return hd44780.Cursor(hd44780.Row0Addr)
	case step < stepCursor2:
		return hd44780.Char(c.line1[step-stepLine1])
	case step == stepCursor2:
		return hd44780.Cursor(hd44780.Row1Addr)
	default:
		return hd44780.Char(c.line2[step-stepLine2])
	}
}
