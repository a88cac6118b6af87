package panel

import (
	"testing"

	"amppanel-go/drivers/hd44780"
	"amppanel-go/errcode"
	"amppanel-go/types"
)

// Scripted link fake. A submitted command keeps ready true for lag ticks
// (command not yet latched), then busy for busy ticks, then ready again.
type fakeLink struct {
	initDone bool
	fault    error
	lag      int
	busy     int

	ready    bool
	inFlight bool
	lagLeft  int
	busyLeft int

	cmds  []hd44780.Command
	drops int
}

func newFakeLink() *fakeLink {
	return &fakeLink{initDone: true, ready: true, busy: 2}
}

func (l *fakeLink) Submit(c hd44780.Command) error {
	if l.fault != nil {
		return l.fault
	}
	if !l.ready || l.inFlight {
		l.drops++
		return errcode.Busy
	}
	l.cmds = append(l.cmds, c)
	l.inFlight = true
	l.lagLeft = l.lag
	if l.lagLeft == 0 {
		l.ready = false
		l.busyLeft = l.busy
	}
	return nil
}

func (l *fakeLink) Ready() bool    { return l.ready }
func (l *fakeLink) InitDone() bool { return l.initDone }
func (l *fakeLink) Fault() error   { return l.fault }

func (l *fakeLink) Tick() {
	if !l.inFlight {
		return
	}
	if l.lagLeft > 0 {
		l.lagLeft--
		if l.lagLeft == 0 {
			l.ready = false
			l.busyLeft = l.busy
		}
		return
	}
	l.busyLeft--
	if l.busyLeft <= 0 {
		l.ready = true
		l.inFlight = false
	}
}

func step(l *fakeLink, c *Controller, ev Events) {
	l.Tick()
	c.Tick(ev)
}

// drain ticks with no input until no refresh is active.
func drain(t *testing.T, l *fakeLink, c *Controller) int {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		step(l, c, Events{})
		if !c.Refreshing() {
			return i + 1
		}
	}
	t.Fatal("refresh never completed")
	return 0
}

func newIdleController(t *testing.T) (*fakeLink, *Controller) {
	t.Helper()
	l := newFakeLink()
	c := NewController(l)
	c.SetTimeout(100_000)
	drain(t, l, c) // initial idle screen paint
	if l.drops > 0 {
		t.Fatalf("handshake violated during bring-up paint: %d drops", l.drops)
	}
	l.cmds = nil
	return l, c
}

func press(l *fakeLink, c *Controller) { step(l, c, Events{Press: true}) }
func inc(l *fakeLink, c *Controller)   { step(l, c, Events{Increment: true}) }
func dec(l *fakeLink, c *Controller)   { step(l, c, Events{Decrement: true}) }

// lastRefresh slices the trailing full command sequence out of the log.
func lastRefresh(t *testing.T, l *fakeLink) []hd44780.Command {
	t.Helper()
	if len(l.cmds)%stepCount != 0 {
		t.Fatalf("command log length %d is not a whole number of refreshes", len(l.cmds))
	}
	return l.cmds[len(l.cmds)-stepCount:]
}

func checkRefresh(t *testing.T, seq []hd44780.Command, line1, line2 string) {
	t.Helper()
	if len(seq) != stepCount {
		t.Fatalf("refresh emitted %d commands, want %d", len(seq), stepCount)
	}
	if seq[0].Kind != hd44780.KindClear {
		t.Fatalf("step 0 = %v, want clear", seq[0])
	}
	if seq[1].Kind != hd44780.KindCursor || seq[1].Arg != hd44780.Row0Addr {
		t.Fatalf("step 1 = %v, want cursor row 0", seq[1])
	}
	if seq[18].Kind != hd44780.KindCursor || seq[18].Arg != hd44780.Row1Addr {
		t.Fatalf("step 18 = %v, want cursor row 1", seq[18])
	}
	got1, got2 := make([]byte, 16), make([]byte, 16)
	for i := 0; i < 16; i++ {
		if seq[2+i].Kind != hd44780.KindChar || seq[19+i].Kind != hd44780.KindChar {
			t.Fatalf("non-character command inside a line write: %v / %v", seq[2+i], seq[19+i])
		}
		got1[i] = seq[2+i].Arg
		got2[i] = seq[19+i].Arg
	}
	if string(got1) != line1 {
		t.Fatalf("line1 = %q, want %q", got1, line1)
	}
	if string(got2) != line2 {
		t.Fatalf("line2 = %q, want %q", got2, line2)
	}
}

func TestInitialIdlePaint(t *testing.T) {
	l := newFakeLink()
	c := NewController(l)
	drain(t, l, c)
	checkRefresh(t, lastRefresh(t, l), idleLine1, idleLine2)
	if c.Menu() != types.MenuIdle {
		t.Fatalf("menu = %v, want idle", c.Menu())
	}
}

func TestPressCyclesMenus(t *testing.T) {
	l, c := newIdleController(t)
	want := []types.Menu{
		types.MenuVolume, types.MenuBass, types.MenuTreble, types.MenuVolume,
	}
	for i, m := range want {
		press(l, c)
		if c.Menu() != m {
			t.Fatalf("press %d: menu = %v, want %v", i+1, c.Menu(), m)
		}
		drain(t, l, c)
	}
}

func TestVolumeScreenGolden(t *testing.T) {
	l, c := newIdleController(t)
	press(l, c) // idle -> volume, volume still at the default 50
	drain(t, l, c)

	bar := make([]byte, 16)
	for i := range bar {
		if i < 8 {
			bar[i] = cellFilled
		} else {
			bar[i] = ' '
		}
	}
	checkRefresh(t, lastRefresh(t, l), "VOLUME: 050     ", string(bar))
}

func TestToneScreenGolden(t *testing.T) {
	l, c := newIdleController(t)
	press(l, c)
	press(l, c) // volume -> bass
	drain(t, l, c)

	center := []byte("-------" + string(cellCenter) + "--------")
	center[7] = cellFilled // marker sits on the center cell at zero
	checkRefresh(t, lastRefresh(t, l), "BASS: +00       ", string(center))

	for i := 0; i < 5; i++ {
		inc(l, c)
	}
	drain(t, l, c)
	scale := []byte("----------------")
	scale[7] = cellCenter
	scale[12] = cellFilled
	checkRefresh(t, lastRefresh(t, l), "BASS: +05       ", string(scale))
}

func TestParameterSaturation(t *testing.T) {
	l, c := newIdleController(t)
	press(l, c) // volume
	for i := 0; i < 120; i++ {
		inc(l, c)
	}
	if v := c.Params().Volume; v != 100 {
		t.Fatalf("volume = %d, want saturation at 100", v)
	}
	press(l, c) // bass
	for i := 0; i < 40; i++ {
		dec(l, c)
	}
	if b := c.Params().Bass; b != -10 {
		t.Fatalf("bass = %d, want saturation at -10", b)
	}
	drain(t, l, c)
	if l.drops > 0 {
		t.Fatalf("handshake violated: %d drops", l.drops)
	}
}

func TestRotationIgnoredInIdle(t *testing.T) {
	l, c := newIdleController(t)
	before := c.Refreshes()
	for i := 0; i < 10; i++ {
		inc(l, c)
		dec(l, c)
	}
	if c.Params() != (types.Params{Volume: 50}) {
		t.Fatalf("idle rotation mutated params: %+v", c.Params())
	}
	if c.Refreshes() != before {
		t.Fatal("idle rotation triggered a refresh")
	}
}

func TestRefreshCoalescing(t *testing.T) {
	l, c := newIdleController(t)
	press(l, c) // starts refresh #2 (after the initial paint)
	base := c.Refreshes()

	// Twelve increments land while the press refresh is still in flight.
	for i := 0; i < 12; i++ {
		inc(l, c)
	}
	drain(t, l, c)

	if got := c.Refreshes() - base; got != 1 {
		t.Fatalf("coalesced refreshes = %d, want exactly 1 follow-up", got)
	}
	// The follow-up shows only the final value: 62% rounds to 10 cells.
	bar := make([]byte, 16)
	for i := range bar {
		if i < 10 {
			bar[i] = cellFilled
		} else {
			bar[i] = ' '
		}
	}
	checkRefresh(t, lastRefresh(t, l), "VOLUME: 062     ", string(bar))
}

func TestTimeoutReturnsToIdle(t *testing.T) {
	l, c := newIdleController(t)
	c.SetTimeout(500)
	press(l, c)
	quiet := drain(t, l, c)
	l.cmds = nil
	base := c.Refreshes()

	for c.Menu() != types.MenuIdle {
		step(l, c, Events{})
		quiet++
		if quiet > 1_000 {
			t.Fatal("timeout never fired")
		}
	}
	if quiet != 500 {
		t.Fatalf("timeout fired after %d quiet ticks, want exactly 500 since input", quiet)
	}
	if !c.TimedOut() {
		t.Fatal("timeout flag not set")
	}
	drain(t, l, c)
	if got := c.Refreshes() - base; got != 1 {
		t.Fatalf("timeout triggered %d refreshes, want exactly 1", got)
	}
	checkRefresh(t, lastRefresh(t, l), idleLine1, idleLine2)

	// Idle never arms the timer again.
	for i := 0; i < 2_000; i++ {
		step(l, c, Events{})
	}
	if c.Refreshes()-base != 1 {
		t.Fatal("idle state re-armed the timeout")
	}
}

func TestTimeoutExactDuration(t *testing.T) {
	l := newFakeLink()
	c := NewController(l)
	c.SetTimeout(500)
	drain(t, l, c)
	press(l, c)
	drain(t, l, c)

	// Rotation resets the quiet counter.
	inc(l, c)
	quiet := 0
	for c.Menu() != types.MenuIdle {
		step(l, c, Events{})
		quiet++
		if quiet > 1_000 {
			t.Fatal("timeout never fired")
		}
	}
	if quiet != 500 {
		t.Fatalf("timeout after %d quiet ticks, want exactly 500", quiet)
	}
}

func TestRotationResetsTimeout(t *testing.T) {
	l, c := newIdleController(t)
	c.SetTimeout(1_000)
	press(l, c)
	drain(t, l, c)

	for round := 0; round < 3; round++ {
		inc(l, c)
		for i := 0; i < 999; i++ {
			step(l, c, Events{})
		}
		if c.Menu() != types.MenuVolume {
			t.Fatalf("round %d: timed out one tick early", round)
		}
	}
	step(l, c, Events{})
	if c.Menu() != types.MenuIdle {
		t.Fatal("timeout did not fire on the final tick")
	}
}

// A command that is accepted but not yet latched keeps ready true for a
// while. The sequencer must wait for the busy edge, not re-submit.
func TestHandshakeWaitsForBusyEdge(t *testing.T) {
	l := newFakeLink()
	l.lag = 3
	c := NewController(l)
	drain(t, l, c)

	if l.drops > 0 {
		t.Fatalf("sequencer re-submitted during accept lag: %d drops", l.drops)
	}
	checkRefresh(t, lastRefresh(t, l), idleLine1, idleLine2)
}

func TestLinkFaultAbortsRefresh(t *testing.T) {
	l, c := newIdleController(t)
	press(l, c)
	for i := 0; i < 10; i++ {
		step(l, c, Events{})
	}
	l.fault = errcode.DeviceUnreachable
	step(l, c, Events{})
	if c.Refreshing() {
		t.Fatal("refresh still in flight on a faulted link")
	}
	n := len(l.cmds)
	for i := 0; i < 100; i++ {
		step(l, c, Events{})
	}
	if len(l.cmds) != n {
		t.Fatal("faulted link still receives commands")
	}
	// Inputs keep mutating parameters even with the display gone.
	inc(l, c)
	if c.Params().Volume != 51 {
		t.Fatalf("volume = %d, want 51", c.Params().Volume)
	}
}
