// services/panel/render.go
package panel

import (
	"amppanel-go/types"
	"amppanel-go/x/conv"
	"amppanel-go/x/mathx"
)

// Display cell glyphs. 0xFF is the HD44780 full-block character.
const (
	cellFilled = 0xFF
	cellCenter = '|'
	cellDash   = '-'
)

const (
	idleLine1 = "HELLO JETKING   "
	idleLine2 = "DIGITAL AMPLIFIE"
)

// renderLines derives both display lines from the menu position and the
// parameter set. It is a pure function: same inputs, same cells.
func renderLines(menu types.Menu, p types.Params) (line1, line2 [16]byte) {
	switch menu {
	case types.MenuVolume:
		renderLabel(&line1, "VOLUME", int(p.Volume), false)
		renderBargraph(&line2, int(p.Volume))
	case types.MenuBass:
		renderLabel(&line1, "BASS", int(p.Bass), true)
		renderIndicator(&line2, int(p.Bass))
	case types.MenuTreble:
		renderLabel(&line1, "TREBLE", int(p.Treble), true)
		renderIndicator(&line2, int(p.Treble))
	default:
		copy(line1[:], idleLine1)
		copy(line2[:], idleLine2)
	}
	return line1, line2
}

// renderLabel writes `LABEL: <value>` padded with spaces to 16 cells.
// Signed values render as a sign plus two zero-padded digits, unsigned as
// three zero-padded digits.
func renderLabel(dst *[16]byte, label string, v int, signed bool) {
	for i := range dst {
		dst[i] = ' '
	}
	n := copy(dst[:], label)
	dst[n] = ':'
	n += 2 // ": "
	if signed {
		sign := byte('+')
		if v < 0 {
			sign = '-'
		}
		dst[n] = sign
		conv.PadUint(dst[n+1:n+3], uint(mathx.Abs(v)))
		return
	}
	conv.PadUint(dst[n:n+3], uint(v))
}

// renderBargraph fills round(v/100*16) cells from the left.
func renderBargraph(dst *[16]byte, v int) {
	filled := (v*16 + 50) / 100
	filled = mathx.Clamp(filled, 0, 16)
	for i := range dst {
		if i < filled {
			dst[i] = cellFilled
		} else {
			dst[i] = ' '
		}
	}
}

// renderIndicator places the value marker at clamp(7+v, 0, 15) over a
// dashed scale. Index 7 keeps its center mark unless the marker sits on it.
func renderIndicator(dst *[16]byte, v int) {
	for i := range dst {
		dst[i] = cellDash
	}
	dst[7] = cellCenter
	dst[mathx.Clamp(7+v, 0, 15)] = cellFilled
}
