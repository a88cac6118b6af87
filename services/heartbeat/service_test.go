package heartbeat

import (
	"context"
	"testing"
	"time"

	"amppanel-go/bus"
)

func TestHeartbeatPublishesRetainedState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")

	// Shrink the interval before the loop starts: retained config is
	// delivered on subscribe.
	conn.Publish(conn.NewMessage(bus.Topic{"config", "heartbeat"},
		map[string]any{"interval": 0.02}, true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := &Service{}
	if err := svc.Start(ctx, conn); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cli := b.NewConnection("cli")
	defer cli.Disconnect()
	sub := cli.Subscribe(bus.Topic{"heartbeat", "state"})

	select {
	case msg := <-sub.Channel():
		m, ok := msg.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload %T", msg.Payload)
		}
		if _, ok := m["beats"]; !ok {
			t.Fatalf("state payload missing beats: %v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat state published")
	}
}
