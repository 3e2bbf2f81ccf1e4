// Package platform defines what the host needs from a window system and
// provides the headless and X11 implementations.
package platform

import (
	"context"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Display describes a physical display and its usable work area.
type Display struct {
	ID     int
	Name   string
	Bounds Rect
	Usable Rect
}

// Backend realizes host surfaces as windows. Ids are assigned by the host
// and passed in; a backend never invents them.
type Backend interface {
	Name() string

	CreateToplevel(id protocol.SurfaceID, m protocol.ToplevelCreate) error
	UpdateToplevel(m protocol.ToplevelUpdate) error
	SetConstraints(m protocol.ToplevelUpdateConstraints) error

	CreateLayer(id protocol.SurfaceID, m protocol.LayerCreate) error
	UpdateLayer(m protocol.LayerUpdate) error

	Destroy(id protocol.SurfaceID) error

	// Live returns the ids whose windows still exist.
	Live() ([]protocol.SurfaceID, error)

	// OnClose sets the callback for user close requests, such as the
	// window manager's close button. It may run on any goroutine.
	OnClose(fn func(protocol.SurfaceID))

	// Run processes window-system events until ctx is done.
	Run(ctx context.Context) error
	Close() error
}
