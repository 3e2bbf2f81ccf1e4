package shell

import (
	"math"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// Size is a laid-out extent in logical pixels.
type Size struct {
	Width  float64
	Height float64
}

// Layouter is the geometry the UI layer exposes for a toplevel's content.
type Layouter interface {
	// Layout sizes the content within c.
	Layout(c protocol.Constraints) Size
	// MinIntrinsicWidth is the narrowest width that fits the content at
	// the given height. An infinite height means no height limit.
	MinIntrinsicWidth(height float64) float64
	// MinIntrinsicHeight is the shortest height that fits the content at
	// the given width.
	MinIntrinsicHeight(width float64) float64
}

// Layout runs one layout cycle of the content under c and returns the
// resulting size.
//
// Once the window is bound and carries no explicit constraints, each
// cycle also negotiates its size bounds with the host. The minimum is
// derived from the content's intrinsic extents and sent whenever it
// changes. The maximum is the content's natural size under no
// constraints; it is measured and sent on the first negotiated cycle only
// and stays fixed for the life of the window. A set the host rejected is
// sent again on the next cycle.
func (s *ToplevelSurface) Layout(c protocol.Constraints) Size {
	if s.child == nil {
		return Size{}
	}
	s.size = s.child.Layout(c)
	if _, bound := s.ID(); !bound || s.Desired().Constraints != nil {
		return s.size
	}

	inf := math.Inf(1)
	w0 := s.child.MinIntrinsicWidth(inf)
	h0 := s.child.MinIntrinsicHeight(inf)
	// A locked maximum bounds the minimum, never the other way round.
	minW := math.Min(s.child.MinIntrinsicWidth(h0), s.negotiated.MaxWidth)
	minH := math.Min(s.child.MinIntrinsicHeight(w0), s.negotiated.MaxHeight)

	if minW != s.negotiated.MinWidth || minH != s.negotiated.MinHeight || s.stale {
		s.negotiated.MinWidth, s.negotiated.MinHeight = minW, minH
		s.sendNegotiated()
	}

	if !s.maxLocked {
		s.maxLocked = true
		natural := s.child.Layout(protocol.Unconstrained())
		s.negotiated.MaxWidth = math.Max(natural.Width, s.negotiated.MinWidth)
		s.negotiated.MaxHeight = math.Max(natural.Height, s.negotiated.MinHeight)
		s.sendNegotiated()
		s.size = s.child.Layout(c)
	}
	return s.size
}

// Size returns the size recorded by the last layout cycle.
func (s *ToplevelSurface) Size() Size { return s.size }

// MaxLocked reports whether the maximum size has been negotiated.
func (s *ToplevelSurface) MaxLocked() bool { return s.maxLocked }
