package ber

import (
	"fmt"
	"math/rand"
)

// subsetMargin keeps a random window away from both ends of the preamble.
const subsetMargin = 20

// PreambleWindow is the [Start, Stop) slice of the preamble used as the
// correlation template.
type PreambleWindow struct {
	Start int
	Stop  int
}

func (w PreambleWindow) Length() int {
	return w.Stop - w.Start
}

func (w PreambleWindow) valid(preambleLength int) bool {
	return w.Start >= 0 && w.Start < w.Stop && w.Stop <= preambleLength
}

// Template returns the preamble bits covered by the window.
func (w PreambleWindow) Template(f *ReferenceFrame) []float32 {
	return f.Preamble[w.Start:w.Stop]
}

// SelectWindow picks the correlation template for a frame. In full mode the
// whole preamble is used; otherwise a window of length bits starts at a
// uniformly random position in [20, P-length-20), the upper bound being
// clamped so the range never collapses.
func SelectWindow(f *ReferenceFrame, fullMode bool, length int, rng *rand.Rand) (PreambleWindow, error) {
	p := len(f.Preamble)

	var w PreambleWindow
	if fullMode {
		w = PreambleWindow{Start: 0, Stop: p}
	} else {
		lower := subsetMargin
		upper := p - length - subsetMargin
		if upper <= lower {
			upper = lower + 1
		}
		start := lower + rng.Intn(upper-lower)
		w = PreambleWindow{Start: start, Stop: start + length}
	}

	if !w.valid(p) {
		return PreambleWindow{}, fmt.Errorf("%w: [%d:%d] for preamble of %d bits", ErrInvalidWindow, w.Start, w.Stop, p)
	}
	return w, nil
}
