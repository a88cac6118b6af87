package types

// ---- Common service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "fault", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Link is the health reported for the display link.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type LinkStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"`
}

// ---- Panel state & parameters ----

// Menu is the controller's menu position.
type Menu uint8

const (
	MenuIdle Menu = iota
	MenuVolume
	MenuBass
	MenuTreble
)

func (m Menu) String() string {
	switch m {
	case MenuIdle:
		return "idle"
	case MenuVolume:
		return "volume"
	case MenuBass:
		return "bass"
	case MenuTreble:
		return "treble"
	default:
		return "?"
	}
}

// Params is the adjustable parameter set. Volume 0..100, bass/treble -10..10.
type Params struct {
	Volume int8 `json:"volume"`
	Bass   int8 `json:"bass"`
	Treble int8 `json:"treble"`
}

// PanelState is published retained at {"panel","state"}.
type PanelState struct {
	Menu       string `json:"menu"`
	Params     Params `json:"params"`
	TimeoutHit bool   `json:"timeout_hit"`
	TS         int64  `json:"ts_ms"`
}

// ---- Input events ----

// InputKind tags a post-debounce, single-shot input event.
type InputKind string

const (
	InputPress     InputKind = "press"
	InputIncrement InputKind = "increment"
	InputDecrement InputKind = "decrement"
)

// InputEvent is published (non-retained) at {"panel","input"}.
type InputEvent struct {
	Kind InputKind `json:"kind"`
	TS   int64     `json:"ts_ms"`
}

// ---- Panel configuration ----

// PanelConfig arrives JSON-encoded on {"config","panel"}. Zero fields keep
// their build-time defaults.
type PanelConfig struct {
	TimeoutMS   uint32 `json:"timeout_ms,omitempty"`    // inactivity timeout
	Addr        uint8  `json:"addr,omitempty"`          // 7-bit backpack address
	DebounceMS  uint16 `json:"debounce_ms,omitempty"`   // button debounce window
	TickRatio   uint16 `json:"tick_ratio,omitempty"`    // fast ticks per slow tick
	FastTickUS  uint32 `json:"fast_tick_us,omitempty"`  // fast tick period
	MaxAckRetry uint8  `json:"max_ack_retry,omitempty"` // bus write retries before fault
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
