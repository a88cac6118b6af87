package main

import (
	"context"
	"time"

	"amppanel-go/boards/sim"
	"amppanel-go/bus"
	"amppanel-go/drivers/hd44780"
	"amppanel-go/services/config"
	"amppanel-go/services/heartbeat"
	"amppanel-go/services/panel"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "sim")
	b := bus.NewBus(16)
	board := sim.NewBoard(hd44780.Address)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	go panel.Run(ctx, b.NewConnection("panel"), board)

	// Periodic screen dump.
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()
	for range tick.C {
		l1, l2 := board.Screen()
		println("screen: [" + l1 + "] [" + l2 + "]")
	}
}
