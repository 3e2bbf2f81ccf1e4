//go:build linux

package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/x11"
)

type linuxSurface struct {
	win         *xwindow.Window
	kind        protocol.Kind
	layer       protocol.Layer
	constraints protocol.Constraints
	bounds      Rect
}

// LinuxBackend realizes surfaces as X11 windows.
type LinuxBackend struct {
	conn        *x11.Connection
	defaultSize [2]int

	mu       sync.Mutex
	surfaces map[protocol.SurfaceID]*linuxSurface
	onClose  func(protocol.SurfaceID)
}

var _ Backend = (*LinuxBackend)(nil)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection, defaultWidth, defaultHeight int) *LinuxBackend {
	return &LinuxBackend{
		conn:        conn,
		defaultSize: [2]int{defaultWidth, defaultHeight},
		surfaces:    make(map[protocol.SurfaceID]*linuxSurface),
	}
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay(defaultWidth, defaultHeight int) (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return NewLinuxBackend(conn, defaultWidth, defaultHeight), nil
}

func (b *LinuxBackend) Name() string { return "x11" }

// Displays returns all active displays.
func (b *LinuxBackend) Displays() ([]Display, error) {
	monitors, err := b.conn.GetMonitors()
	if err != nil {
		return nil, err
	}
	displays := make([]Display, 0, len(monitors))
	for _, m := range monitors {
		displays = append(displays, Display{
			ID:     m.ID,
			Name:   m.Name,
			Bounds: rectFromMonitor(m),
			Usable: rectFromMonitor(b.conn.WorkArea(m)),
		})
	}
	sort.Slice(displays, func(i, j int) bool {
		return displays[i].ID < displays[j].ID
	})
	return displays, nil
}

func (b *LinuxBackend) primary() (Display, error) {
	m, err := b.conn.PrimaryMonitor()
	if err != nil {
		return Display{}, err
	}
	return Display{
		ID:     m.ID,
		Name:   m.Name,
		Bounds: rectFromMonitor(m),
		Usable: rectFromMonitor(b.conn.WorkArea(m)),
	}, nil
}

func (b *LinuxBackend) CreateToplevel(id protocol.SurfaceID, m protocol.ToplevelCreate) error {
	display, err := b.primary()
	if err != nil {
		return err
	}
	c := protocol.Unconstrained()
	r := ToplevelGeometry(display.Usable, b.defaultSize[0], b.defaultSize[1], c)

	win, err := b.conn.CreateWindow(r.X, r.Y, r.Width, r.Height)
	if err != nil {
		return err
	}
	setup := func() error {
		if err := b.conn.SetTitle(win.Id, m.Title); err != nil {
			return err
		}
		if err := b.conn.SetClass(win.Id, m.AppID); err != nil {
			return err
		}
		if err := b.conn.SetWindowType(win.Id, x11.TypeNormal); err != nil {
			return err
		}
		return b.conn.OnDeleteRequest(win.Id, func() { b.closeRequested(id) })
	}
	if err := setup(); err != nil {
		b.conn.DestroyWindow(win)
		return fmt.Errorf("failed to set up toplevel %d: %w", id, err)
	}
	b.conn.OnDestroyed(win.Id, func() { b.forget(id) })

	if err := b.add(id, &linuxSurface{win: win, kind: protocol.KindToplevel, constraints: c, bounds: r}); err != nil {
		b.conn.DestroyWindow(win)
		return err
	}
	win.Map()
	return nil
}

func (b *LinuxBackend) UpdateToplevel(m protocol.ToplevelUpdate) error {
	s, err := b.lookup(m.ID, protocol.KindToplevel)
	if err != nil {
		return err
	}
	if err := b.conn.SetTitle(s.win.Id, m.Title); err != nil {
		return err
	}
	return b.conn.SetClass(s.win.Id, m.AppID)
}

func (b *LinuxBackend) SetConstraints(m protocol.ToplevelUpdateConstraints) error {
	s, err := b.lookup(m.ID, protocol.KindToplevel)
	if err != nil {
		return err
	}
	c := m.Constraints
	if err := b.conn.SetSizeHints(s.win.Id, c.MinWidth, c.MinHeight, c.MaxWidth, c.MaxHeight); err != nil {
		return fmt.Errorf("failed to set size hints on %d: %w", m.ID, err)
	}

	b.mu.Lock()
	s.constraints = c
	r := s.bounds
	fitted := ToplevelGeometry(r, r.Width, r.Height, c)
	fitted.X, fitted.Y = r.X, r.Y
	s.bounds = fitted
	b.mu.Unlock()

	if fitted != r {
		b.conn.MoveResizeWindow(s.win, fitted.X, fitted.Y, fitted.Width, fitted.Height)
	}
	return nil
}

func (b *LinuxBackend) CreateLayer(id protocol.SurfaceID, m protocol.LayerCreate) error {
	display, err := b.primary()
	if err != nil {
		return err
	}
	r := AnchorGeometry(display.Bounds, m.Anchor, 0, 0)

	win, err := b.conn.CreateWindow(r.X, r.Y, r.Width, r.Height)
	if err != nil {
		return err
	}
	setup := func() error {
		if err := b.conn.SetTitle(win.Id, m.Namespace); err != nil {
			return err
		}
		if err := b.conn.SetClass(win.Id, m.Namespace); err != nil {
			return err
		}
		if err := b.conn.SetWindowType(win.Id, layerWindowType(m.Layer)); err != nil {
			return err
		}
		if err := b.conn.SetStates(win.Id, layerState(m.Layer)); err != nil {
			return err
		}
		return b.conn.SetSticky(win.Id)
	}
	if err := setup(); err != nil {
		b.conn.DestroyWindow(win)
		return fmt.Errorf("failed to set up layer %d: %w", id, err)
	}
	b.conn.OnDestroyed(win.Id, func() { b.forget(id) })

	if err := b.add(id, &linuxSurface{win: win, kind: protocol.KindLayer, layer: m.Layer, bounds: r}); err != nil {
		b.conn.DestroyWindow(win)
		return err
	}
	win.Map()
	return nil
}

func (b *LinuxBackend) UpdateLayer(m protocol.LayerUpdate) error {
	s, err := b.lookup(m.ID, protocol.KindLayer)
	if err != nil {
		return err
	}
	display, err := b.primary()
	if err != nil {
		return err
	}

	b.mu.Lock()
	prevLayer := s.layer
	s.layer = m.Layer
	s.bounds = AnchorGeometry(display.Bounds, m.Anchor, m.Width, m.Height)
	r := s.bounds
	b.mu.Unlock()

	if prevLayer != m.Layer {
		if err := b.conn.SetWindowType(s.win.Id, layerWindowType(m.Layer)); err != nil {
			return err
		}
		if err := b.conn.RequestState(s.win.Id, false, layerState(prevLayer)); err != nil {
			return err
		}
		if err := b.conn.RequestState(s.win.Id, true, layerState(m.Layer)); err != nil {
			return err
		}
	}
	b.conn.MoveResizeWindow(s.win, r.X, r.Y, r.Width, r.Height)
	return nil
}

func (b *LinuxBackend) Destroy(id protocol.SurfaceID) error {
	b.mu.Lock()
	s, ok := b.surfaces[id]
	delete(b.surfaces, id)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("x11: no surface %d", id)
	}
	b.conn.DestroyWindow(s.win)
	return nil
}

// Live asks the server which surface windows still exist.
func (b *LinuxBackend) Live() ([]protocol.SurfaceID, error) {
	b.mu.Lock()
	candidates := make(map[protocol.SurfaceID]*xwindow.Window, len(b.surfaces))
	for id, s := range b.surfaces {
		candidates[id] = s.win
	}
	b.mu.Unlock()

	ids := make([]protocol.SurfaceID, 0, len(candidates))
	for id, win := range candidates {
		if b.conn.Exists(win.Id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (b *LinuxBackend) OnClose(fn func(protocol.SurfaceID)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = fn
}

// Run pumps X events until ctx is done.
func (b *LinuxBackend) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, b.conn.Quit)
	defer stop()
	b.conn.EventLoop()
	return nil
}

// Close destroys every window and disconnects.
func (b *LinuxBackend) Close() error {
	b.mu.Lock()
	surfaces := b.surfaces
	b.surfaces = make(map[protocol.SurfaceID]*linuxSurface)
	b.mu.Unlock()
	for _, s := range surfaces {
		b.conn.DestroyWindow(s.win)
	}
	b.conn.Close()
	return nil
}

func (b *LinuxBackend) closeRequested(id protocol.SurfaceID) {
	b.mu.Lock()
	fn := b.onClose
	b.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

func (b *LinuxBackend) forget(id protocol.SurfaceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.surfaces, id)
}

func (b *LinuxBackend) add(id protocol.SurfaceID, s *linuxSurface) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.surfaces[id]; dup {
		return fmt.Errorf("x11: surface %d already exists", id)
	}
	b.surfaces[id] = s
	return nil
}

func (b *LinuxBackend) lookup(id protocol.SurfaceID, kind protocol.Kind) (*linuxSurface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.surfaces[id]
	if !ok {
		return nil, fmt.Errorf("x11: no surface %d", id)
	}
	if s.kind != kind {
		return nil, fmt.Errorf("x11: surface %d is a %s, not a %s", id, s.kind, kind)
	}
	return s, nil
}

func layerWindowType(l protocol.Layer) string {
	if l == protocol.LayerBackground {
		return x11.TypeDesktop
	}
	return x11.TypeDock
}

func layerState(l protocol.Layer) string {
	switch l {
	case protocol.LayerBackground, protocol.LayerBottom:
		return x11.StateBelow
	default:
		return x11.StateAbove
	}
}

func rectFromMonitor(m x11.Monitor) Rect {
	return Rect{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}
}

// NewX11Backend opens $DISPLAY and returns it as a Backend.
func NewX11Backend(defaultWidth, defaultHeight int) (Backend, error) {
	return NewLinuxBackendFromDisplay(defaultWidth, defaultHeight)
}
