//go:build rp2040

package main

import (
	"context"
	"io"
	"time"

	"amppanel-go/boards/rp2040"
	"amppanel-go/bus"
	"amppanel-go/services/bridge"
	"amppanel-go/services/config"
	"amppanel-go/services/heartbeat"
	"amppanel-go/services/panel"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// uartLink adapts uartx to the bridge's stream contract.
type uartLink struct {
	ctx context.Context
	u   *uartx.UART
}

func (l *uartLink) Read(p []byte) (int, error)  { return l.u.RecvSomeContext(l.ctx, p) }
func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }
func (l *uartLink) Close() error                { return nil }

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot: pico-panel")

	bridge.UARTDial = func(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
		hw := uartx.UART0
		if err := hw.Configure(uartx.UARTConfig{
			BaudRate: uint32(u.Baud),
			TX:       machine.Pin(u.TxPin),
			RX:       machine.Pin(u.RxPin),
		}); err != nil {
			return nil, err
		}
		return &uartLink{ctx: ctx, u: hw}, nil
	}

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")
	b := bus.NewBus(16)

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))
	go bridge.Start(ctx, b.NewConnection("bridge"))

	// The panel pipeline owns the foreground.
	panel.Run(ctx, b.NewConnection("panel"), rp2040.NewBoard())
}
