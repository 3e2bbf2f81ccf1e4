// Package surface reconciles a declarative surface description with the
// id-keyed surface that lives in the host process.
//
// A Lifecycle moves through Uninitialized, Pending, Bound and Disposed.
// It is driven from a single goroutine (the client loop); the Remote it
// wraps must complete its callbacks on that same goroutine.
package surface

import (
	"errors"
	"fmt"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// State is the lifecycle state of one logical surface.
type State int

const (
	Uninitialized State = iota
	Pending
	Bound
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Pending:
		return "pending"
	case Bound:
		return "bound"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrIllegalReconfiguration marks a change to a property the protocol
	// fixes at creation.
	ErrIllegalReconfiguration = errors.New("illegal surface reconfiguration")
	// ErrDisposed is returned for updates to a disposed surface.
	ErrDisposed = errors.New("surface disposed")
)

// ReconfigureError names the immutable field a caller tried to change.
type ReconfigureError struct {
	Kind  string
	Field string
	From  string
	To    string
}

func (e *ReconfigureError) Error() string {
	return fmt.Sprintf("%s surface: %s cannot change after creation (%q -> %q)", e.Kind, e.Field, e.From, e.To)
}

func (e *ReconfigureError) Unwrap() error {
	return ErrIllegalReconfiguration
}

// Remote is the capability a surface kind supplies: its wire calls and
// how its descriptors compare. Callbacks must run on the lifecycle's
// goroutine and exactly once.
type Remote[D any] interface {
	// Kind names the surface kind in logs and errors.
	Kind() string
	CreateRemote(desc D, done func(protocol.SurfaceID, error))
	// UpdateRemote sends whatever part of next differs from prev.
	UpdateRemote(id protocol.SurfaceID, prev, next D, done func(error))
	RemoveRemote(id protocol.SurfaceID, done func(error))
	// Diff reports whether next differs from prev in any field the host
	// holds. It returns a *ReconfigureError if next changes an immutable
	// field.
	Diff(prev, next D) (bool, error)
	// Baseline is the state the host holds right after creating desc.
	Baseline(desc D) D
}

// Metrics describes the output a surface is shown on.
type Metrics struct {
	Scale   float64
	OriginX int32
	OriginY int32
}

// View is the locally cached handle used to render into a bound surface.
type View struct {
	ID      protocol.SurfaceID
	Metrics Metrics
}
