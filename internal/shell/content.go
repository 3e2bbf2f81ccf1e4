package shell

import (
	"math"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// Box is fixed content with a preferred and a minimum size. It takes its
// preferred size when allowed and never shrinks below its minimum unless
// the constraints force it to.
type Box struct {
	Width, Height       float64
	MinWidth, MinHeight float64
}

func (b Box) Layout(c protocol.Constraints) Size {
	return Size{
		Width:  clampTo(math.Max(b.Width, b.MinWidth), c.MinWidth, c.MaxWidth),
		Height: clampTo(math.Max(b.Height, b.MinHeight), c.MinHeight, c.MaxHeight),
	}
}

func (b Box) MinIntrinsicWidth(float64) float64  { return b.MinWidth }
func (b Box) MinIntrinsicHeight(float64) float64 { return b.MinHeight }

func clampTo(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
