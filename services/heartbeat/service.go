package heartbeat

import (
	"context"
	"time"

	"amppanel-go/bus"
)

var (
	topicConfig = bus.Topic{"config", "heartbeat"}
	topicState  = bus.Topic{"heartbeat", "state"}
)

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	defer conn.Unsubscribe(cfgSub)

	started := time.Now()
	beats := 0

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case t := <-tick.C:
			beats++
			conn.Publish(conn.NewMessage(topicState, map[string]any{
				"beats":    beats,
				"uptime_s": int(t.Sub(started) / time.Second),
				"ts_ms":    t.UnixMilli(),
			}, true))
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if iv, ok := m["interval"].(float64); ok && iv > 0 {
					tick.Reset(time.Duration(iv * float64(time.Second)))
					println("Info:", "Heartbeat interval set to", iv, "seconds")
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
