// Package protocol defines the channels and message layouts exchanged
// between a surface client and the host process.
//
// Every message is a fixed field sequence encoded with internal/binary.
// Writer and reader call sequences for a message must match exactly in
// count, order, width and signedness; the per-message comments below are
// the wire contract.
package protocol

import (
	"fmt"
	"math"
	"strings"
)

// SurfaceID is the host-assigned surface identifier.
type SurfaceID int64

// Layer is the stacking layer of a layer surface.
type Layer uint8

const (
	LayerBackground Layer = 0
	LayerBottom     Layer = 1
	LayerTop        Layer = 2
	LayerOverlay    Layer = 3
)

func (l Layer) Valid() bool {
	return l <= LayerOverlay
}

func (l Layer) String() string {
	switch l {
	case LayerBackground:
		return "background"
	case LayerBottom:
		return "bottom"
	case LayerTop:
		return "top"
	case LayerOverlay:
		return "overlay"
	default:
		return fmt.Sprintf("layer(%d)", uint8(l))
	}
}

// ParseLayer converts a layer name into a Layer.
func ParseLayer(s string) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "background":
		return LayerBackground, nil
	case "bottom":
		return LayerBottom, nil
	case "top":
		return LayerTop, nil
	case "overlay":
		return LayerOverlay, nil
	default:
		return 0, fmt.Errorf("unknown layer %q", s)
	}
}

// Anchor is the edge bitmask of a layer surface.
type Anchor uint8

const (
	AnchorTop    Anchor = 1 << 0
	AnchorBottom Anchor = 1 << 1
	AnchorLeft   Anchor = 1 << 2
	AnchorRight  Anchor = 1 << 3

	anchorAll = AnchorTop | AnchorBottom | AnchorLeft | AnchorRight
)

func (a Anchor) Valid() bool {
	return a&^anchorAll == 0
}

func (a Anchor) Has(edge Anchor) bool {
	return a&edge == edge
}

func (a Anchor) String() string {
	if a == 0 {
		return "none"
	}
	var parts []string
	for _, e := range []struct {
		bit  Anchor
		name string
	}{
		{AnchorTop, "top"},
		{AnchorBottom, "bottom"},
		{AnchorLeft, "left"},
		{AnchorRight, "right"},
	} {
		if a.Has(e.bit) {
			parts = append(parts, e.name)
		}
	}
	if extra := a &^ anchorAll; extra != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(extra)))
	}
	return strings.Join(parts, "|")
}

// ParseAnchor converts edge names into an Anchor.
func ParseAnchor(edges []string) (Anchor, error) {
	var a Anchor
	for _, e := range edges {
		switch strings.ToLower(strings.TrimSpace(e)) {
		case "top":
			a |= AnchorTop
		case "bottom":
			a |= AnchorBottom
		case "left":
			a |= AnchorLeft
		case "right":
			a |= AnchorRight
		default:
			return 0, fmt.Errorf("unknown anchor edge %q", e)
		}
	}
	return a, nil
}

// Constraints bounds the size of a toplevel surface.
type Constraints struct {
	MinWidth  float64
	MinHeight float64
	MaxWidth  float64
	MaxHeight float64
}

// Unconstrained is the host's assumed constraint set for a fresh toplevel.
func Unconstrained() Constraints {
	return Constraints{MaxWidth: math.Inf(1), MaxHeight: math.Inf(1)}
}

// Validate rejects negative, NaN or inverted bounds.
func (c Constraints) Validate() error {
	for _, v := range []float64{c.MinWidth, c.MinHeight, c.MaxWidth, c.MaxHeight} {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("invalid constraints %+v", c)
		}
	}
	if c.MinWidth > c.MaxWidth || c.MinHeight > c.MaxHeight {
		return fmt.Errorf("min exceeds max in constraints %+v", c)
	}
	return nil
}

// Kind identifies a surface kind in status replies.
type Kind uint8

const (
	KindLayer    Kind = 0
	KindToplevel Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindLayer:
		return "layer"
	case KindToplevel:
		return "toplevel"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
