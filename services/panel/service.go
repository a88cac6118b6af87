// services/panel/service.go
package panel

import (
	"context"
	"encoding/json"
	"time"

	"amppanel-go/bus"
	"amppanel-go/types"
)

var (
	topicConfig  = bus.Topic{"config", "panel"}
	topicControl = bus.Topic{"panel", "control", "+"}
	topicState   = bus.Topic{"panel", "state"}
	topicLink    = bus.Topic{"panel", "link"}
	topicInput   = bus.Topic{"panel", "input"}
	topicService = bus.Topic{"panel", "service"}
)

// Build-time timing defaults. The slow (protocol) tick is
// FastTickUS x TickRatio, 100 us with these values.
const (
	DefaultTimeoutMS  = 5_000
	DefaultDebounceMS = 10
	DefaultTickRatio  = 100
	DefaultFastTickUS = 1
)

// wakePeriod is how often the loop advances the tick domains; each wake
// executes the simulated time that elapsed at the configured tick rates.
const wakePeriod = time.Millisecond

type service struct {
	conn *bus.Connection
	pipe *pipeline
	cfg  types.PanelConfig

	inject Events

	pubMenu    types.Menu
	pubParams  types.Params
	pubTimeout bool
	statePub   bool
	pubLink    types.Link
}

// Run drives the front panel against the given board until ctx is
// cancelled. It owns the whole pipeline: input conditioning, the menu
// controller, the display link and the bus master.
func Run(ctx context.Context, conn *bus.Connection, board Board) {
	s := &service{
		conn: conn,
		cfg: types.PanelConfig{
			TimeoutMS:  DefaultTimeoutMS,
			DebounceMS: DefaultDebounceMS,
			TickRatio:  DefaultTickRatio,
			FastTickUS: DefaultFastTickUS,
		},
	}
	s.pipe = newPipeline(board, s.cfg)
	s.loop(ctx)
}

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	ctrlSub := s.conn.Subscribe(topicControl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "starting", nil)

	tick := time.NewTicker(wakePeriod)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.PanelConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.applyConfig(cfg)
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-tick.C:
			s.advance()
		}
	}
}

// advance executes one wake period's worth of simulated ticks.
func (s *service) advance() {
	slowPerWake := int(uint32(wakePeriod/time.Microsecond) / s.slowTickUS())
	if slowPerWake < 1 {
		slowPerWake = 1
	}
	ratio := int(s.cfg.TickRatio)
	for i := 0; i < slowPerWake; i++ {
		for j := 0; j < ratio; j++ {
			s.pipe.fastTick()
		}
		ev := s.pipe.slowTick(s.inject)
		s.inject = Events{}
		s.publishInput(ev)
	}
	s.syncPanelState()
	s.syncLinkState()
}

func (s *service) slowTickUS() uint32 {
	us := s.cfg.FastTickUS * uint32(s.cfg.TickRatio)
	if us == 0 {
		us = DefaultFastTickUS * DefaultTickRatio
	}
	return us
}

// applyConfig merges non-zero fields over the current configuration.
// Address or retry changes restart the display bring-up.
func (s *service) applyConfig(cfg types.PanelConfig) {
	relink := false
	if cfg.TimeoutMS > 0 {
		s.cfg.TimeoutMS = cfg.TimeoutMS
	}
	if cfg.DebounceMS > 0 {
		s.cfg.DebounceMS = cfg.DebounceMS
	}
	if cfg.TickRatio > 0 {
		s.cfg.TickRatio = cfg.TickRatio
	}
	if cfg.FastTickUS > 0 {
		s.cfg.FastTickUS = cfg.FastTickUS
	}
	if cfg.Addr != 0 && cfg.Addr != s.cfg.Addr {
		s.cfg.Addr = cfg.Addr
		relink = true
	}
	if cfg.MaxAckRetry != 0 && cfg.MaxAckRetry != s.cfg.MaxAckRetry {
		s.cfg.MaxAckRetry = cfg.MaxAckRetry
		relink = true
	}
	s.pipe.ctrl.SetTimeout(timeoutTicks(s.cfg))
	s.pipe.setInputTiming(s.cfg)
	if relink {
		s.pipe.configureLink(s.cfg)
	}
}

func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) != 3 {
		return
	}
	verb, _ := msg.Topic[2].(string)
	switch verb {
	case "press":
		s.inject.Press = true
		s.replyOK(msg)
	case "increment":
		s.inject.Increment = true
		s.replyOK(msg)
	case "decrement":
		s.inject.Decrement = true
		s.replyOK(msg)
	case "read":
		s.conn.Reply(msg, s.panelState(), false)
	case "reinit":
		// Recover from a latched device-unreachable fault by restarting
		// the whole bring-up sequence.
		s.pipe.configureLink(s.cfg)
		s.replyOK(msg)
	default:
		s.replyErr(msg, "unsupported control verb")
	}
}

// ---- publications ----

func (s *service) panelState() types.PanelState {
	return types.PanelState{
		Menu:       s.pipe.ctrl.Menu().String(),
		Params:     s.pipe.ctrl.Params(),
		TimeoutHit: s.pipe.ctrl.TimedOut(),
		TS:         time.Now().UnixMilli(),
	}
}

func (s *service) syncPanelState() {
	menu := s.pipe.ctrl.Menu()
	params := s.pipe.ctrl.Params()
	timedOut := s.pipe.ctrl.TimedOut()
	if s.statePub && menu == s.pubMenu && params == s.pubParams && timedOut == s.pubTimeout {
		return
	}
	s.pubMenu, s.pubParams, s.pubTimeout = menu, params, timedOut
	s.statePub = true
	s.conn.Publish(s.conn.NewMessage(topicState, s.panelState(), true))
}

func (s *service) syncLinkState() {
	status := types.LinkDown
	var errStr string
	switch {
	case s.pipe.link.Fault() != nil:
		status = types.LinkDegraded
		errStr = s.pipe.link.Fault().Error()
	case s.pipe.link.InitDone():
		status = types.LinkUp
	}
	if status == s.pubLink {
		return
	}
	s.pubLink = status
	s.conn.Publish(s.conn.NewMessage(topicLink, types.LinkStatus{
		Link:  status,
		TS:    time.Now().UnixMilli(),
		Error: errStr,
	}, true))
	switch status {
	case types.LinkUp:
		s.publishState("ready", "display_up", nil)
	case types.LinkDegraded:
		s.publishState("fault", "display_unreachable", s.pipe.link.Fault())
	}
}

func (s *service) publishInput(ev Events) {
	ts := time.Now().UnixMilli()
	if ev.Press {
		s.pubInput(types.InputPress, ts)
	}
	if ev.Increment {
		s.pubInput(types.InputIncrement, ts)
	}
	if ev.Decrement {
		s.pubInput(types.InputDecrement, ts)
	}
}

func (s *service) pubInput(kind types.InputKind, ts int64) {
	s.conn.Publish(s.conn.NewMessage(topicInput, types.InputEvent{Kind: kind, TS: ts}, false))
}

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Status = st.Status + ": " + err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicService, st, true))
}

func (s *service) replyOK(req *bus.Message) {
	s.conn.Reply(req, types.OKReply{OK: true}, false)
}

func (s *service) replyErr(req *bus.Message, e string) {
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: e}, false)
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
