package i2cbb

import (
	"amppanel-go/errcode"
)

// Bridge adapts the tick-driven master to the blocking
// tinygo.org/x/drivers.I2C contract (write-only: this master has no read
// path). Each call spins the master to completion, invoking step once per
// protocol tick so a cooperating device model can advance in lockstep.
type Bridge struct {
	m    *Master
	step func()
}

// NewBridge wraps m. step may be nil on real hardware where the wire is the
// only listener.
func NewBridge(m *Master, step func()) *Bridge {
	return &Bridge{m: m, step: step}
}

// Tx writes w to addr one byte per transaction. Read requests are not
// supported and return errcode.Unsupported.
func (b *Bridge) Tx(addr uint16, w, r []byte) error {
	if len(r) > 0 {
		return errcode.Unsupported
	}
	for _, by := range w {
		if err := b.m.Start(uint8(addr), by); err != nil {
			return err
		}
		for {
			b.m.Tick()
			if b.step != nil {
				b.step()
			}
			done, err := b.m.Done()
			if !done {
				continue
			}
			b.m.Tick() // consume the one-tick done pulse
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}
