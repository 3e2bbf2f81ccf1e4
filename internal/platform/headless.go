package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// HeadlessSurface is the in-memory record of one surface.
type HeadlessSurface struct {
	ID          protocol.SurfaceID
	Kind        protocol.Kind
	Title       string
	AppID       string
	Constraints protocol.Constraints
	Layer       protocol.Layer
	Anchor      protocol.Anchor
	Namespace   string
	Width       uint32
	Height      uint32
	Bounds      Rect
}

// HeadlessBackend keeps surfaces in memory. It backs tests and hosts
// without a display server.
type HeadlessBackend struct {
	screen      Display
	defaultSize [2]int

	mu       sync.Mutex
	surfaces map[protocol.SurfaceID]*HeadlessSurface
	onClose  func(protocol.SurfaceID)
}

var _ Backend = (*HeadlessBackend)(nil)

// NewHeadlessBackend creates a backend with a virtual screen of the given
// size. New toplevels get the default size.
func NewHeadlessBackend(screen Rect, defaultWidth, defaultHeight int) *HeadlessBackend {
	return &HeadlessBackend{
		screen:      Display{Name: "headless", Bounds: screen, Usable: screen},
		defaultSize: [2]int{defaultWidth, defaultHeight},
		surfaces:    make(map[protocol.SurfaceID]*HeadlessSurface),
	}
}

func (b *HeadlessBackend) Name() string { return "headless" }

func (b *HeadlessBackend) CreateToplevel(id protocol.SurfaceID, m protocol.ToplevelCreate) error {
	s := &HeadlessSurface{
		ID:          id,
		Kind:        protocol.KindToplevel,
		Title:       m.Title,
		AppID:       m.AppID,
		Constraints: protocol.Unconstrained(),
	}
	s.Bounds = ToplevelGeometry(b.screen.Usable, b.defaultSize[0], b.defaultSize[1], s.Constraints)
	return b.add(s)
}

func (b *HeadlessBackend) UpdateToplevel(m protocol.ToplevelUpdate) error {
	return b.with(m.ID, protocol.KindToplevel, func(s *HeadlessSurface) {
		s.Title, s.AppID = m.Title, m.AppID
	})
}

func (b *HeadlessBackend) SetConstraints(m protocol.ToplevelUpdateConstraints) error {
	return b.with(m.ID, protocol.KindToplevel, func(s *HeadlessSurface) {
		s.Constraints = m.Constraints
		s.Bounds = ToplevelGeometry(b.screen.Usable, s.Bounds.Width, s.Bounds.Height, m.Constraints)
	})
}

func (b *HeadlessBackend) CreateLayer(id protocol.SurfaceID, m protocol.LayerCreate) error {
	s := &HeadlessSurface{
		ID:        id,
		Kind:      protocol.KindLayer,
		Layer:     m.Layer,
		Anchor:    m.Anchor,
		Namespace: m.Namespace,
	}
	s.Bounds = AnchorGeometry(b.screen.Bounds, m.Anchor, 0, 0)
	return b.add(s)
}

func (b *HeadlessBackend) UpdateLayer(m protocol.LayerUpdate) error {
	return b.with(m.ID, protocol.KindLayer, func(s *HeadlessSurface) {
		s.Layer, s.Anchor = m.Layer, m.Anchor
		s.Width, s.Height = m.Width, m.Height
		s.Bounds = AnchorGeometry(b.screen.Bounds, m.Anchor, m.Width, m.Height)
	})
}

func (b *HeadlessBackend) Destroy(id protocol.SurfaceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.surfaces[id]; !ok {
		return fmt.Errorf("headless: no surface %d", id)
	}
	delete(b.surfaces, id)
	return nil
}

func (b *HeadlessBackend) Live() ([]protocol.SurfaceID, error) {
	b.mu.Lock()
	ids := make([]protocol.SurfaceID, 0, len(b.surfaces))
	for id := range b.surfaces {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (b *HeadlessBackend) OnClose(fn func(protocol.SurfaceID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = fn
}

// Run blocks until ctx is done; there are no events to pump.
func (b *HeadlessBackend) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *HeadlessBackend) Close() error { return nil }

// Surface returns a copy of the record for id.
func (b *HeadlessBackend) Surface(id protocol.SurfaceID) (HeadlessSurface, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.surfaces[id]
	if !ok {
		return HeadlessSurface{}, false
	}
	return *s, true
}

// RequestClose simulates the user asking to close id.
func (b *HeadlessBackend) RequestClose(id protocol.SurfaceID) bool {
	b.mu.Lock()
	_, ok := b.surfaces[id]
	fn := b.onClose
	b.mu.Unlock()
	if !ok || fn == nil {
		return false
	}
	fn(id)
	return true
}

// Vanish drops id without notifying anyone, as when a window is killed
// behind the host's back.
func (b *HeadlessBackend) Vanish(id protocol.SurfaceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.surfaces, id)
}

func (b *HeadlessBackend) add(s *HeadlessSurface) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.surfaces[s.ID]; dup {
		return fmt.Errorf("headless: surface %d already exists", s.ID)
	}
	b.surfaces[s.ID] = s
	return nil
}

func (b *HeadlessBackend) with(id protocol.SurfaceID, kind protocol.Kind, fn func(*HeadlessSurface)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.surfaces[id]
	if !ok {
		return fmt.Errorf("headless: no surface %d", id)
	}
	if s.Kind != kind {
		return fmt.Errorf("headless: surface %d is a %s, not a %s", id, s.Kind, kind)
	}
	fn(s)
	return nil
}
