package daemon

import (
	"errors"
	"testing"

	"github.com/1broseidon/surfacebridge/internal/protocol"
)

type fakeTracker struct {
	tracked []protocol.SurfaceID
	gone    []protocol.SurfaceID
	panicOn protocol.SurfaceID
}

func (f *fakeTracker) Tracked() []protocol.SurfaceID { return f.tracked }

func (f *fakeTracker) SurfaceGone(id protocol.SurfaceID) {
	if id == f.panicOn {
		panic("boom")
	}
	f.gone = append(f.gone, id)
}

func TestReconcileReportsMissingSurfaces(t *testing.T) {
	tracker := &fakeTracker{tracked: []protocol.SurfaceID{1, 2, 3}}
	r := NewReconciler(ReconcilerConfig{}, tracker, func() ([]protocol.SurfaceID, error) {
		return []protocol.SurfaceID{2}, nil
	})

	gone := r.ReconcileNow()
	if len(gone) != 2 || gone[0] != 1 || gone[1] != 3 {
		t.Fatalf("ReconcileNow() = %v, want [1 3]", gone)
	}
	if len(tracker.gone) != 2 {
		t.Fatalf("tracker saw %v", tracker.gone)
	}
}

func TestReconcileSkipsWhenNothingTracked(t *testing.T) {
	called := false
	r := NewReconciler(ReconcilerConfig{}, &fakeTracker{}, func() ([]protocol.SurfaceID, error) {
		called = true
		return nil, nil
	})
	if gone := r.ReconcileNow(); gone != nil {
		t.Fatalf("ReconcileNow() = %v, want nil", gone)
	}
	if called {
		t.Fatal("backend listed with nothing tracked")
	}
}

func TestReconcileListErrorReportsNothing(t *testing.T) {
	tracker := &fakeTracker{tracked: []protocol.SurfaceID{1}}
	r := NewReconciler(ReconcilerConfig{}, tracker, func() ([]protocol.SurfaceID, error) {
		return nil, errors.New("display gone")
	})
	if gone := r.ReconcileNow(); len(gone) != 0 {
		t.Fatalf("ReconcileNow() = %v, want none", gone)
	}
	if len(tracker.gone) != 0 {
		t.Fatalf("tracker saw %v", tracker.gone)
	}
}

func TestReconcileRecoversPanics(t *testing.T) {
	tracker := &fakeTracker{tracked: []protocol.SurfaceID{4}, panicOn: 4}
	r := NewReconciler(ReconcilerConfig{}, tracker, func() ([]protocol.SurfaceID, error) {
		return nil, nil
	})
	r.ReconcileNow()
}

func TestNewReconcilerDefaultsInterval(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{}, &fakeTracker{}, nil)
	if r.interval <= 0 {
		t.Fatalf("interval = %v, want positive default", r.interval)
	}
}
