package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"amppanel-go/bus"
)

type pipeRWC struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *pipeRWC) Close() error {
	for _, c := range p.closers {
		_ = c.Close()
	}
	return nil
}

type pipeTransport struct{ end io.ReadWriteCloser }

func (p pipeTransport) Open(context.Context) (io.ReadWriteCloser, error) { return p.end, nil }
func (p pipeTransport) String() string                                   { return "pipe" }

func TestBridgeMirrorsOutAndAcceptsControl(t *testing.T) {
	hostR, brW := io.Pipe() // bridge writes, host reads
	brR, hostW := io.Pipe() // host writes, bridge reads
	end := &pipeRWC{Reader: brR, Writer: brW, closers: []io.Closer{brR, brW}}
	RegisterTransport("pipe-test", func(TransportConfig) (Transport, error) {
		return pipeTransport{end: end}, nil
	})

	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, b.NewConnection("bridge"))

	cli := b.NewConnection("cli")
	defer cli.Disconnect()
	ctrlSub := cli.Subscribe(bus.Topic{"panel", "control", "+"})

	// Retained, so ordering against the bridge's subscriptions is moot.
	cli.Publish(cli.NewMessage(bus.Topic{"panel", "state"},
		map[string]any{"menu": "idle"}, true))
	cli.Publish(cli.NewMessage(bus.Topic{"config", "bridge"},
		map[string]any{"transport": map[string]any{"type": "pipe-test"}}, true))

	lines := make(chan wireMsg, 4)
	go func() {
		sc := bufio.NewScanner(hostR)
		for sc.Scan() {
			var wm wireMsg
			if err := json.Unmarshal(sc.Bytes(), &wm); err == nil {
				lines <- wm
			}
		}
	}()

	// Outbound: the retained panel state crosses the link.
	select {
	case wm := <-lines:
		if len(wm.Topic) != 2 || wm.Topic[0] != "panel" || wm.Topic[1] != "state" {
			t.Fatalf("outbound topic = %v", wm.Topic)
		}
		m, ok := wm.Payload.(map[string]any)
		if !ok || m["menu"] != "idle" {
			t.Fatalf("outbound payload = %#v", wm.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound frame")
	}

	// Inbound: a control verb from the peer lands on the local bus.
	if _, err := hostW.Write([]byte(`{"topic":["panel","control","press"]}` + "\n")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	select {
	case msg := <-ctrlSub.Channel():
		if verb, _ := msg.Topic[2].(string); verb != "press" {
			t.Fatalf("inbound control topic = %v", msg.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound control never published")
	}
}

func TestInboundFilter(t *testing.T) {
	cases := []struct {
		topic bus.Topic
		want  bool
	}{
		{bus.Topic{"panel", "control", "press"}, true},
		{bus.Topic{"config", "panel"}, true},
		{bus.Topic{"panel", "control"}, false},
		{bus.Topic{"panel", "state"}, false},
		{bus.Topic{"$reply", "x", "1"}, false},
		{bus.Topic{}, false},
	}
	for _, c := range cases {
		if got := inboundAllowed(c.topic); got != c.want {
			t.Errorf("inboundAllowed(%v) = %v, want %v", c.topic, got, c.want)
		}
	}
}

func TestNormalizeTopicNumbers(t *testing.T) {
	got := normalizeTopic([]any{"hal", float64(3), "state", 1.5})
	if got[1] != 3 {
		t.Fatalf("integral number not converted: %#v", got[1])
	}
	if got[3] != 1.5 {
		t.Fatalf("fractional number mangled: %#v", got[3])
	}
}

func TestUnknownTransportRejected(t *testing.T) {
	if _, err := newTransport(TransportConfig{Type: "bogus"}); err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
	if _, err := newTransport(TransportConfig{Type: "uart"}); err == nil {
		t.Fatal("uart transport without uart config must fail")
	}
}
