// Package registry routes host notifications to the surface that owns the
// addressed id.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// Handler receives notifications for one bound surface.
type Handler interface {
	// HandleClose is called when the host asks the surface to close.
	HandleClose()
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func()

func (f HandlerFunc) HandleClose() { f() }

// Registry maps live surface ids to their handlers. Each id has exactly
// one owner for as long as it is bound.
type Registry struct {
	mu       sync.Mutex
	handlers map[protocol.SurfaceID]Handler
	logger   *zap.Logger
}

// New returns an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[protocol.SurfaceID]Handler),
		logger:   logger,
	}
}

// Bind associates id with h. Binding an id that is already bound panics.
func (r *Registry) Bind(id protocol.SurfaceID, h Handler) {
	if h == nil {
		panic("registry: nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[id]; dup {
		panic(fmt.Sprintf("registry: surface %d bound twice", id))
	}
	r.handlers[id] = h
}

// Unbind removes id. It reports whether id was bound.
func (r *Registry) Unbind(id protocol.SurfaceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[id]; !ok {
		return false
	}
	delete(r.handlers, id)
	return true
}

// Lookup returns the handler bound to id.
func (r *Registry) Lookup(id protocol.SurfaceID) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[id]
	return h, ok
}

// DispatchClose forwards a close request to the owner of id. A close for an
// id with no owner is dropped: the surface may have been disposed locally
// before the host's notification arrived.
func (r *Registry) DispatchClose(id protocol.SurfaceID) bool {
	h, ok := r.Lookup(id)
	if !ok {
		r.logger.Debug("dropping close for unbound surface", zap.Int64("surface_id", int64(id)))
		return false
	}
	h.HandleClose()
	return true
}

// Len returns the number of bound surfaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// IDs returns the bound ids in ascending order.
func (r *Registry) IDs() []protocol.SurfaceID {
	r.mu.Lock()
	ids := make([]protocol.SurfaceID, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
