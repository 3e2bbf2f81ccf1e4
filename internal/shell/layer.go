package shell

import (
	"fmt"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

// LayerDesc describes a layer surface. Namespace is fixed at creation.
type LayerDesc struct {
	Layer     protocol.Layer
	Anchor    protocol.Anchor
	Namespace string
	Width     uint32
	Height    uint32
}

func (d LayerDesc) validate() error {
	if !d.Layer.Valid() {
		return fmt.Errorf("invalid layer %d", d.Layer)
	}
	if !d.Anchor.Valid() {
		return fmt.Errorf("invalid anchor %#x", uint8(d.Anchor))
	}
	return nil
}

// LayerSurface is a layer-shell surface such as a panel or overlay.
type LayerSurface struct {
	*surface.Lifecycle[LayerDesc]
}

// Attach validates desc and issues the create call.
func (s *LayerSurface) Attach(desc LayerDesc) error {
	if err := desc.validate(); err != nil {
		return err
	}
	s.Lifecycle.Attach(desc)
	return nil
}

type layerRemote struct {
	c *Client
}

func (r *layerRemote) Kind() string { return protocol.KindLayer.String() }

func (r *layerRemote) CreateRemote(d LayerDesc, done func(protocol.SurfaceID, error)) {
	msg := protocol.LayerCreate{Layer: d.Layer, Anchor: d.Anchor, Namespace: d.Namespace}
	r.c.goCreate(r.c.channels.LayerCreate, msg.Encode, done)
}

func (r *layerRemote) UpdateRemote(id protocol.SurfaceID, _, next LayerDesc, done func(error)) {
	msg := protocol.LayerUpdate{ID: id, Width: next.Width, Height: next.Height, Layer: next.Layer, Anchor: next.Anchor}
	r.c.goEmpty(r.c.channels.LayerUpdate, msg.Encode, done)
}

func (r *layerRemote) RemoveRemote(id protocol.SurfaceID, done func(error)) {
	r.c.goEmpty(r.c.channels.LayerRemove, protocol.SurfaceRef{ID: id}.Encode, done)
}

func (r *layerRemote) Diff(prev, next LayerDesc) (bool, error) {
	if prev.Namespace != next.Namespace {
		return false, &surface.ReconfigureError{Kind: r.Kind(), Field: "namespace", From: prev.Namespace, To: next.Namespace}
	}
	if err := next.validate(); err != nil {
		return false, err
	}
	return prev != next, nil
}

// Baseline is the created surface before any size has been set.
func (r *layerRemote) Baseline(d LayerDesc) LayerDesc {
	d.Width, d.Height = 0, 0
	return d
}
