// Package host is the reference host process. It assigns surface ids,
// realizes surfaces on a platform backend and reports close requests back
// to the client that owns each surface.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/binary"
	"github.com/1broseidon/surfacebridge/internal/daemon"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/platform"
	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// Options configures a Host.
type Options struct {
	Namespace string
	Logger    *zap.Logger
	// ReconcileInterval enables a periodic check for windows that vanished
	// without a close request. Zero disables it.
	ReconcileInterval time.Duration
}

type view struct {
	id    protocol.SurfaceID
	kind  protocol.Kind
	label string
	owner *ipc.Peer
	// gone is set once the backing window disappeared on its own.
	gone bool
}

// Host serves the surface protocol on a unix socket.
type Host struct {
	backend  platform.Backend
	server   *ipc.Server
	channels protocol.Channels
	logger   *zap.Logger

	reconcileInterval time.Duration

	mu     sync.Mutex
	nextID protocol.SurfaceID
	views  map[protocol.SurfaceID]*view

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a host that will listen on socketPath.
func New(socketPath string, backend platform.Backend, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = protocol.DefaultNamespace
	}

	h := &Host{
		backend:  backend,
		server:   ipc.NewServer(socketPath, logger),
		channels: protocol.NewChannels(ns),
		logger:   logger.With(zap.String("backend", backend.Name())),
		views:    make(map[protocol.SurfaceID]*view),
		stop:     make(chan struct{}),

		reconcileInterval: opts.ReconcileInterval,
	}

	ch := h.channels
	h.server.HandleFunc(ch.LayerCreate, h.layerCreate)
	h.server.HandleFunc(ch.LayerUpdate, h.layerUpdate)
	h.server.HandleFunc(ch.LayerRemove, h.remove(protocol.KindLayer))
	h.server.HandleFunc(ch.ToplevelCreate, h.toplevelCreate)
	h.server.HandleFunc(ch.ToplevelUpdate, h.toplevelUpdate)
	h.server.HandleFunc(ch.ToplevelUpdateConstraints, h.toplevelConstraints)
	h.server.HandleFunc(ch.ToplevelRemove, h.remove(protocol.KindToplevel))
	h.server.HandleFunc(ch.Shutdown, h.shutdown)
	h.server.HandleFunc(ch.HostStatus, h.status)
	h.server.OnDisconnect(h.dropPeer)
	backend.OnClose(h.closeRequested)
	return h
}

// SocketPath returns the socket the host listens on.
func (h *Host) SocketPath() string { return h.server.SocketPath() }

// Serve listens for clients and runs the backend until ctx is done or a
// client requests a graceful shutdown. Every remaining surface is
// destroyed before it returns.
func (h *Host) Serve(ctx context.Context) error {
	if err := h.server.Start(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	backendDone := make(chan error, 1)
	go func() { backendDone <- h.backend.Run(ctx) }()

	if h.reconcileInterval > 0 {
		r := daemon.NewReconciler(daemon.ReconcilerConfig{
			Interval: h.reconcileInterval,
			Logger:   h.logger,
		}, h, h.backend.Live)
		go r.Run(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		h.logger.Info("host stopping", zap.Error(ctx.Err()))
	case <-h.stop:
		h.logger.Info("graceful shutdown requested")
	case err := <-backendDone:
		if err != nil {
			runErr = fmt.Errorf("backend stopped: %w", err)
		}
	}

	h.server.Stop()
	cancel()
	h.destroyAll()
	return runErr
}

// Shutdown asks a running Serve to return.
func (h *Host) Shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Status lists the surfaces whose windows still exist, by id.
func (h *Host) Status() protocol.HostStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := protocol.HostStatus{Surfaces: make([]protocol.SurfaceStatus, 0, len(h.views))}
	for _, v := range h.views {
		if v.gone {
			continue
		}
		st.Surfaces = append(st.Surfaces, protocol.SurfaceStatus{ID: v.id, Kind: v.kind, Label: v.label})
	}
	sort.Slice(st.Surfaces, func(i, j int) bool { return st.Surfaces[i].ID < st.Surfaces[j].ID })
	return st
}

// Tracked returns the ids of surfaces expected to have a live window.
func (h *Host) Tracked() []protocol.SurfaceID {
	st := h.Status()
	ids := make([]protocol.SurfaceID, len(st.Surfaces))
	for i, s := range st.Surfaces {
		ids[i] = s.ID
	}
	return ids
}

// SurfaceGone records that the window behind id disappeared without a
// remove request. The owner is asked to close; its later remove call is
// accepted without touching the backend.
func (h *Host) SurfaceGone(id protocol.SurfaceID) {
	h.mu.Lock()
	v, ok := h.views[id]
	if ok {
		v.gone = true
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.logger.Info("surface window vanished", zap.Int64("surface_id", int64(id)), zap.Stringer("kind", v.kind))
	h.notifyClose(v)
}

func (h *Host) closeRequested(id protocol.SurfaceID) {
	h.mu.Lock()
	v, ok := h.views[id]
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("close request for unknown surface", zap.Int64("surface_id", int64(id)))
		return
	}
	h.notifyClose(v)
}

// notifyClose tells the owner of a toplevel that it should close. Layer
// surfaces have no close channel.
func (h *Host) notifyClose(v *view) {
	if v.kind != protocol.KindToplevel {
		return
	}
	err := v.owner.Notify(h.channels.ToplevelClose, protocol.SurfaceRef{ID: v.id}.Encode)
	if err != nil {
		h.logger.Warn("failed to send close notification", zap.Int64("surface_id", int64(v.id)), zap.Error(err))
	}
}

func (h *Host) allocate(kind protocol.Kind, label string, owner *ipc.Peer) *view {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return &view{id: h.nextID, kind: kind, label: label, owner: owner}
}

func (h *Host) track(v *view) {
	h.mu.Lock()
	h.views[v.id] = v
	h.mu.Unlock()
	h.logger.Debug("surface created", zap.Int64("surface_id", int64(v.id)), zap.Stringer("kind", v.kind), zap.Uint64("peer", v.owner.ID()))
}

// lookup returns the view for id if it is of kind and owned by peer,
// along with whether its window is already gone.
func (h *Host) lookup(id protocol.SurfaceID, kind protocol.Kind, peer *ipc.Peer) (*view, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.views[id]
	switch {
	case !ok:
		return nil, false, fmt.Errorf("unknown surface %d", id)
	case v.kind != kind:
		return nil, false, fmt.Errorf("surface %d is a %s, not a %s", id, v.kind, kind)
	case v.owner != peer:
		return nil, false, fmt.Errorf("surface %d belongs to another client", id)
	}
	return v, v.gone, nil
}

func (h *Host) dropPeer(p *ipc.Peer) {
	h.mu.Lock()
	var owned []*view
	for id, v := range h.views {
		if v.owner == p {
			owned = append(owned, v)
			delete(h.views, id)
		}
	}
	h.mu.Unlock()

	if len(owned) > 0 {
		h.logger.Info("client disconnected, removing its surfaces", zap.Uint64("peer", p.ID()), zap.Int("surfaces", len(owned)))
	}
	for _, v := range owned {
		h.destroy(v)
	}
}

func (h *Host) destroyAll() {
	h.mu.Lock()
	views := h.views
	h.views = make(map[protocol.SurfaceID]*view)
	h.mu.Unlock()
	for _, v := range views {
		h.destroy(v)
	}
}

func (h *Host) destroy(v *view) {
	if v.gone {
		return
	}
	if err := h.backend.Destroy(v.id); err != nil {
		h.logger.Warn("failed to destroy surface", zap.Int64("surface_id", int64(v.id)), zap.Error(err))
	}
}

func (h *Host) layerCreate(_ context.Context, peer *ipc.Peer, req *binary.Reader, resp *binary.Writer) error {
	m, err := protocol.DecodeLayerCreate(req)
	if err != nil {
		return fmt.Errorf("decode layer create: %w", err)
	}
	v := h.allocate(protocol.KindLayer, m.Namespace, peer)
	if err := h.backend.CreateLayer(v.id, m); err != nil {
		return fmt.Errorf("create layer surface: %w", err)
	}
	h.track(v)
	protocol.SurfaceRef{ID: v.id}.Encode(resp)
	return nil
}

func (h *Host) layerUpdate(_ context.Context, peer *ipc.Peer, req *binary.Reader, _ *binary.Writer) error {
	m, err := protocol.DecodeLayerUpdate(req)
	if err != nil {
		return fmt.Errorf("decode layer update: %w", err)
	}
	_, gone, err := h.lookup(m.ID, protocol.KindLayer, peer)
	if err != nil || gone {
		return err
	}
	return h.backend.UpdateLayer(m)
}

func (h *Host) toplevelCreate(_ context.Context, peer *ipc.Peer, req *binary.Reader, resp *binary.Writer) error {
	m, err := protocol.DecodeToplevelCreate(req)
	if err != nil {
		return fmt.Errorf("decode toplevel create: %w", err)
	}
	v := h.allocate(protocol.KindToplevel, m.Title, peer)
	if err := h.backend.CreateToplevel(v.id, m); err != nil {
		return fmt.Errorf("create toplevel surface: %w", err)
	}
	h.track(v)
	protocol.SurfaceRef{ID: v.id}.Encode(resp)
	return nil
}

func (h *Host) toplevelUpdate(_ context.Context, peer *ipc.Peer, req *binary.Reader, _ *binary.Writer) error {
	m, err := protocol.DecodeToplevelUpdate(req)
	if err != nil {
		return fmt.Errorf("decode toplevel update: %w", err)
	}
	v, gone, err := h.lookup(m.ID, protocol.KindToplevel, peer)
	if err != nil {
		return err
	}
	h.mu.Lock()
	v.label = m.Title
	h.mu.Unlock()
	if gone {
		return nil
	}
	return h.backend.UpdateToplevel(m)
}

func (h *Host) toplevelConstraints(_ context.Context, peer *ipc.Peer, req *binary.Reader, _ *binary.Writer) error {
	m, err := protocol.DecodeToplevelUpdateConstraints(req)
	if err != nil {
		return fmt.Errorf("decode toplevel constraints: %w", err)
	}
	_, gone, err := h.lookup(m.ID, protocol.KindToplevel, peer)
	if err != nil || gone {
		return err
	}
	return h.backend.SetConstraints(m)
}

func (h *Host) remove(kind protocol.Kind) ipc.HandlerFunc {
	return func(_ context.Context, peer *ipc.Peer, req *binary.Reader, _ *binary.Writer) error {
		ref, err := protocol.DecodeSurfaceRef(req)
		if err != nil {
			return fmt.Errorf("decode %s remove: %w", kind, err)
		}
		v, _, err := h.lookup(ref.ID, kind, peer)
		if err != nil {
			return err
		}
		h.mu.Lock()
		delete(h.views, v.id)
		h.mu.Unlock()
		h.logger.Debug("surface removed", zap.Int64("surface_id", int64(v.id)), zap.Stringer("kind", kind))
		h.destroy(v)
		return nil
	}
}

func (h *Host) shutdown(_ context.Context, peer *ipc.Peer, req *binary.Reader, _ *binary.Writer) error {
	if err := protocol.DecodeEmpty(req); err != nil {
		return fmt.Errorf("decode shutdown: %w", err)
	}
	peer.AfterReply(h.Shutdown)
	return nil
}

func (h *Host) status(_ context.Context, _ *ipc.Peer, req *binary.Reader, resp *binary.Writer) error {
	if err := protocol.DecodeEmpty(req); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	h.Status().Encode(resp)
	return nil
}
