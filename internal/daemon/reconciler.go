// Package daemon holds the host's background maintenance.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

// SurfaceLister returns the ids whose windows currently exist.
type SurfaceLister func() ([]protocol.SurfaceID, error)

// Tracker is the host-side view of which surfaces should exist.
type Tracker interface {
	Tracked() []protocol.SurfaceID
	SurfaceGone(id protocol.SurfaceID)
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Reconciler periodically checks for windows that disappeared without a
// remove request and reports them to the tracker.
type Reconciler struct {
	interval time.Duration
	tracker  Tracker
	live     SurfaceLister
	logger   *zap.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, tracker Tracker, live SurfaceLister) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		interval: interval,
		tracker:  tracker,
		live:     live,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile performs a single reconciliation pass and returns the ids it
// reported as gone.
func (r *Reconciler) reconcile() (gone []protocol.SurfaceID) {
	// Recover from panics to prevent crashing the host
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", zap.Any("error", err))
		}
	}()

	expected := r.tracker.Tracked()
	if len(expected) == 0 {
		return nil
	}

	actual, err := r.live()
	if err != nil {
		r.logger.Error("reconciler: failed to list surfaces", zap.Error(err))
		return nil
	}

	alive := make(map[protocol.SurfaceID]bool, len(actual))
	for _, id := range actual {
		alive[id] = true
	}

	for _, id := range expected {
		if alive[id] {
			continue
		}
		r.logger.Info("reconciler: surface window missing", zap.Int64("surface_id", int64(id)))
		r.tracker.SurfaceGone(id)
		gone = append(gone, id)
	}
	return gone
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow() []protocol.SurfaceID {
	return r.reconcile()
}
