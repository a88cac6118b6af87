// cmd/panel-sim/main.go
//
// Interactive host build: the whole pipeline runs against the modelled
// display path, with the front panel driven from stdin.
package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"amppanel-go/boards/sim"
	"amppanel-go/bus"
	"amppanel-go/drivers/hd44780"
	"amppanel-go/services/config"
	"amppanel-go/services/heartbeat"
	"amppanel-go/services/panel"
	"amppanel-go/types"
)

func main() {
	println("panel-sim  p=press  +=clockwise  -=counter-clockwise  s=screen  q=quit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = context.WithValue(ctx, config.CtxDeviceKey, "sim")

	b := bus.NewBus(16)
	board := sim.NewBoard(hd44780.Address)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	go panel.Run(ctx, b.NewConnection("panel"), board)

	cli := b.NewConnection("cli")
	defer cli.Disconnect()

	stSub := cli.Subscribe(bus.Topic{"panel", "state"})
	go func() {
		for msg := range stSub.Channel() {
			if st, ok := msg.Payload.(types.PanelState); ok {
				println("state:", st.Menu,
					"volume", st.Params.Volume,
					"bass", st.Params.Bass,
					"treble", st.Params.Treble)
			}
		}
	}()

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		switch in.Text() {
		case "p":
			cli.Publish(cli.NewMessage(bus.Topic{"panel", "control", "press"}, nil, false))
		case "+":
			turn(board, true)
		case "-":
			turn(board, false)
		case "s":
			printScreen(board)
		case "q":
			return
		}
	}
}

// turn walks the encoder through one full detent cycle, pacing each quarter
// phase so the sampling domain sees it.
func turn(board *sim.Board, cw bool) {
	for i := 0; i < 4; i++ {
		board.Step(cw)
		time.Sleep(2 * time.Millisecond)
	}
}

func printScreen(board *sim.Board) {
	l1, l2 := board.Screen()
	println("+----------------+")
	println("|" + l1 + "|")
	println("|" + l2 + "|")
	println("+----------------+")
}
