// bridge/bridge.go
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"amppanel-go/bus"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge service. It blocks until ctx is cancelled. It
// listens for JSON config on topic {"config","bridge"} and (re)configures
// the link. An active link mirrors panel and heartbeat state outward as
// newline-framed JSON and accepts panel control and config messages inward.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig carries enough information for an injected TinyGo dialler to
// open the UART. Pin mapping and UART instance selection happen in UARTDial.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// Topics mirrored outward over the link.
var outTopics = []bus.Topic{
	{"panel", "state"},
	{"panel", "link"},
	{"panel", "input"},
	{"heartbeat", "state"},
}

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		if err := s.handleLink(ctx, rwc); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		_ = rwc.Close()
		// Clean close: restart only on new config.
		return
	}
}

// wireMsg is one newline-framed JSON message on the link.
type wireMsg struct {
	Topic    []any `json:"topic"`
	Payload  any   `json:"payload,omitempty"`
	Retained bool  `json:"retained,omitempty"`
}

// handleLink owns the active link lifetime: mirror the outbound topics to
// the peer and publish well-formed inbound messages onto the local bus.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser) error {
	subs := make([]*bus.Subscription, 0, len(outTopics))
	for _, t := range outTopics {
		sub := s.conn.Subscribe(t)
		subs = append(subs, sub)
		defer s.conn.Unsubscribe(sub)
	}

	// Reader: decode inbound frames onto the bus.
	errCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(rwc)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var wm wireMsg
			if err := json.Unmarshal(line, &wm); err != nil {
				continue // a bad frame never takes the link down
			}
			topic := normalizeTopic(wm.Topic)
			if !inboundAllowed(topic) {
				continue
			}
			s.conn.Publish(&bus.Message{Topic: topic, Payload: wm.Payload, Retained: wm.Retained})
		}
		if err := sc.Err(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	w := bufio.NewWriter(rwc)
	write := func(msg *bus.Message) error {
		b, err := json.Marshal(wireMsg{Topic: msg.Topic, Payload: msg.Payload, Retained: msg.Retained})
		if err != nil {
			return nil // unmarshalable payloads are skipped, not fatal
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		return w.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			return errors.New("bridge: link closed by peer")
		case msg := <-subs[0].Channel():
			if err := write(msg); err != nil {
				return err
			}
		case msg := <-subs[1].Channel():
			if err := write(msg); err != nil {
				return err
			}
		case msg := <-subs[2].Channel():
			if err := write(msg); err != nil {
				return err
			}
		case msg := <-subs[3].Channel():
			if err := write(msg); err != nil {
				return err
			}
		}
	}
}

// normalizeTopic converts decoded JSON tokens into bus tokens (JSON numbers
// arrive as float64, integral ones become int).
func normalizeTopic(raw []any) bus.Topic {
	t := make(bus.Topic, 0, len(raw))
	for _, tok := range raw {
		if f, ok := tok.(float64); ok && f == float64(int(f)) {
			t = append(t, int(f))
			continue
		}
		t = append(t, tok)
	}
	return t
}

// inboundAllowed restricts what a peer may publish locally: panel control
// verbs and config sections only.
func inboundAllowed(t bus.Topic) bool {
	if len(t) < 2 {
		return false
	}
	if t[0] == "panel" && t[1] == "control" {
		return len(t) == 3
	}
	return t[0] == "config"
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is injected by platform code (eg. in a pico main). It must open
// and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func decodeConfig(payload any) (Config, error) {
	var cfg Config
	switch v := payload.(type) {
	case []byte:
		return cfg, json.Unmarshal(v, &cfg)
	case string:
		return cfg, json.Unmarshal([]byte(v), &cfg)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		return cfg, json.Unmarshal(b, &cfg)
	}
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": time.Now().UnixMilli()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(lo, hi time.Duration) func() time.Duration {
	cur := lo
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > hi {
			cur = hi
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
