package surface

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/registry"
)

// Options configures a Lifecycle. Every callback is optional.
type Options struct {
	Logger *zap.Logger
	// OnBound runs once the host has assigned an id.
	OnBound func(id protocol.SurfaceID)
	// OnClose runs when the host asks a bound surface to close. The
	// surface stays bound until Dispose is called.
	OnClose func()
	// OnError reports failed remote calls. A failed create leaves the
	// surface Disposed.
	OnError func(err error)
	// OnView runs whenever the view is resolved.
	OnView func(View)
	// Resolve builds the view for a bound surface. The default pairs the
	// id with the metrics.
	Resolve func(id protocol.SurfaceID, m Metrics) View
}

// Lifecycle owns one logical surface. It is not safe for concurrent use.
type Lifecycle[D any] struct {
	remote   Remote[D]
	registry *registry.Registry
	opts     Options
	logger   *zap.Logger

	state          State
	id             protocol.SurfaceID
	pendingDispose bool

	desired D
	sent    D

	updating bool
	dirty    bool

	metrics Metrics
	view    View
	hasView bool
}

// New creates an Uninitialized lifecycle. Bound ids are registered in reg.
func New[D any](remote Remote[D], reg *registry.Registry, opts Options) *Lifecycle[D] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Resolve == nil {
		opts.Resolve = func(id protocol.SurfaceID, m Metrics) View {
			return View{ID: id, Metrics: m}
		}
	}
	return &Lifecycle[D]{
		remote:   remote,
		registry: reg,
		opts:     opts,
		logger:   logger.With(zap.String("kind", remote.Kind())),
		metrics:  Metrics{Scale: 1},
	}
}

// State returns the current state. A surface disposed while its create
// call is outstanding reports Pending until the response arrives.
func (l *Lifecycle[D]) State() State { return l.state }

// ID returns the host-assigned id while the surface is Bound.
func (l *Lifecycle[D]) ID() (protocol.SurfaceID, bool) {
	return l.id, l.state == Bound
}

// Desired returns the most recent accepted description.
func (l *Lifecycle[D]) Desired() D { return l.desired }

// View returns the cached view while the surface is Bound.
func (l *Lifecycle[D]) View() (View, bool) { return l.view, l.hasView }

// Attach issues the create call for desc. It returns without waiting for
// the host. Attaching twice panics.
func (l *Lifecycle[D]) Attach(desc D) {
	if l.state != Uninitialized {
		panic(fmt.Sprintf("surface: attach in state %s", l.state))
	}
	l.state = Pending
	l.desired = desc
	l.sent = l.remote.Baseline(desc)
	l.logger.Debug("creating surface", zap.Stringer("state", l.state))
	l.remote.CreateRemote(desc, l.created)
}

func (l *Lifecycle[D]) created(id protocol.SurfaceID, err error) {
	if l.state != Pending {
		panic(fmt.Sprintf("surface: create completed in state %s", l.state))
	}
	if err != nil {
		l.state = Disposed
		l.logger.Error("create failed", zap.Error(err))
		l.report(fmt.Errorf("create %s surface: %w", l.remote.Kind(), err))
		return
	}

	logger := l.logger.With(zap.Int64("surface_id", int64(id)))
	if l.pendingDispose {
		l.state = Disposed
		logger.Debug("disposed before bind, removing")
		l.remote.RemoveRemote(id, l.removed(id))
		return
	}

	l.id = id
	l.state = Bound
	l.logger = logger
	l.registry.Bind(id, l)
	l.logger.Debug("surface bound", zap.Stringer("state", l.state))
	l.resolveView()
	if l.opts.OnBound != nil {
		l.opts.OnBound(id)
	}
	l.flush()
}

// Update records next as the desired description. While Pending only the
// latest description is kept and applied after binding. While Bound the
// remote is updated only if next differs from what the host holds.
// Changing an immutable field returns a *ReconfigureError and leaves the
// desired description unchanged.
func (l *Lifecycle[D]) Update(next D) error {
	switch {
	case l.state == Uninitialized:
		panic("surface: update before attach")
	case l.state == Disposed || l.pendingDispose:
		return ErrDisposed
	}

	if _, err := l.remote.Diff(l.sent, next); err != nil {
		l.logger.Error("rejected surface update", zap.Error(err))
		return err
	}
	l.desired = next
	if l.state == Bound {
		l.flush()
	}
	return nil
}

// flush sends the desired description if it differs from the host's.
// Updates are serialized: a change made while one is in flight is sent
// after it completes.
func (l *Lifecycle[D]) flush() {
	if l.state != Bound {
		return
	}
	if l.updating {
		l.dirty = true
		return
	}
	changed, err := l.remote.Diff(l.sent, l.desired)
	if err != nil {
		// Update validates before accepting a description.
		panic(fmt.Sprintf("surface: accepted invalid description: %v", err))
	}
	if !changed {
		return
	}

	target := l.desired
	l.updating = true
	l.remote.UpdateRemote(l.id, l.sent, target, func(err error) {
		l.updating = false
		if l.state != Bound {
			return
		}
		if err != nil {
			l.logger.Error("update failed", zap.Error(err))
			l.report(fmt.Errorf("update %s surface %d: %w", l.remote.Kind(), l.id, err))
		} else {
			l.sent = target
		}
		if l.dirty {
			l.dirty = false
			l.flush()
		}
	})
}

// Dispose releases the surface. A bound surface is unregistered and
// removed. A pending one is removed as soon as its id arrives.
func (l *Lifecycle[D]) Dispose() {
	switch l.state {
	case Uninitialized:
		l.state = Disposed
	case Pending:
		if !l.pendingDispose {
			l.logger.Debug("dispose requested while pending")
		}
		l.pendingDispose = true
	case Bound:
		l.state = Disposed
		l.hasView = false
		l.registry.Unbind(l.id)
		l.logger.Debug("removing surface", zap.Stringer("state", l.state))
		l.remote.RemoveRemote(l.id, l.removed(l.id))
	}
}

func (l *Lifecycle[D]) removed(id protocol.SurfaceID) func(error) {
	return func(err error) {
		if err != nil {
			l.logger.Error("remove failed", zap.Int64("surface_id", int64(id)), zap.Error(err))
			l.report(fmt.Errorf("remove %s surface %d: %w", l.remote.Kind(), id, err))
		}
	}
}

// SetMetrics records new output metrics and, while Bound, re-resolves
// the view.
func (l *Lifecycle[D]) SetMetrics(m Metrics) {
	l.metrics = m
	if l.state == Bound {
		l.resolveView()
	}
}

func (l *Lifecycle[D]) resolveView() {
	l.view = l.opts.Resolve(l.id, l.metrics)
	l.hasView = true
	if l.opts.OnView != nil {
		l.opts.OnView(l.view)
	}
}

// HandleClose implements registry.Handler.
func (l *Lifecycle[D]) HandleClose() {
	if l.state != Bound {
		return
	}
	l.logger.Debug("host requested close")
	if l.opts.OnClose != nil {
		l.opts.OnClose()
	}
}

func (l *Lifecycle[D]) report(err error) {
	if l.opts.OnError != nil {
		l.opts.OnError(err)
	}
}
