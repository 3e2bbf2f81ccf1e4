package platform

import (
	"math"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// AnchorGeometry places a layer surface of the given size on screen.
// Along each axis, anchoring both opposite edges stretches the surface
// across the screen, anchoring one edge pins it there and anchoring none
// centers it. A zero size on a stretched axis takes the full extent.
func AnchorGeometry(screen Rect, anchor protocol.Anchor, width, height uint32) Rect {
	x, w := placeAxis(screen.X, screen.Width, int(width), anchor.Has(protocol.AnchorLeft), anchor.Has(protocol.AnchorRight))
	y, h := placeAxis(screen.Y, screen.Height, int(height), anchor.Has(protocol.AnchorTop), anchor.Has(protocol.AnchorBottom))
	return Rect{X: x, Y: y, Width: w, Height: h}
}

func placeAxis(origin, extent, size int, start, end bool) (int, int) {
	switch {
	case start && end:
		return origin, extent
	case start:
		return origin, size
	case end:
		return origin + extent - size, size
	default:
		return origin + (extent-size)/2, size
	}
}

// ToplevelGeometry centers a window of the preferred size within the
// usable area, clamped to c.
func ToplevelGeometry(usable Rect, preferredW, preferredH int, c protocol.Constraints) Rect {
	w := clampDim(preferredW, c.MinWidth, c.MaxWidth)
	h := clampDim(preferredH, c.MinHeight, c.MaxHeight)
	return Rect{
		X:      usable.X + (usable.Width-w)/2,
		Y:      usable.Y + (usable.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

func clampDim(v int, lo, hi float64) int {
	f := math.Max(lo, math.Min(float64(v), hi))
	if f < 1 {
		return 1
	}
	return int(math.Ceil(f))
}
