package surface

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/registry"
)

type desc struct {
	Name string
	Size int
}

type op struct {
	kind string
	id   protocol.SurfaceID
	prev desc
	next desc
}

// fakeRemote records calls and holds their completions until the test
// releases them.
type fakeRemote struct {
	ops     []op
	creates []func(protocol.SurfaceID, error)
	updates []func(error)
	removes []func(error)
}

func (f *fakeRemote) Kind() string { return "test" }

func (f *fakeRemote) CreateRemote(d desc, done func(protocol.SurfaceID, error)) {
	f.ops = append(f.ops, op{kind: "create", next: d})
	f.creates = append(f.creates, done)
}

func (f *fakeRemote) UpdateRemote(id protocol.SurfaceID, prev, next desc, done func(error)) {
	f.ops = append(f.ops, op{kind: "update", id: id, prev: prev, next: next})
	f.updates = append(f.updates, done)
}

func (f *fakeRemote) RemoveRemote(id protocol.SurfaceID, done func(error)) {
	f.ops = append(f.ops, op{kind: "remove", id: id})
	f.removes = append(f.removes, done)
}

func (f *fakeRemote) Diff(prev, next desc) (bool, error) {
	if prev.Name != next.Name {
		return false, &ReconfigureError{Kind: "test", Field: "name", From: prev.Name, To: next.Name}
	}
	return prev.Size != next.Size, nil
}

func (f *fakeRemote) Baseline(d desc) desc {
	d.Size = 0
	return d
}

func (f *fakeRemote) kinds() []string {
	out := make([]string, len(f.ops))
	for i, o := range f.ops {
		out[i] = o.kind
	}
	return out
}

func (f *fakeRemote) completeCreate(id protocol.SurfaceID, err error) {
	done := f.creates[0]
	f.creates = f.creates[1:]
	done(id, err)
}

func (f *fakeRemote) completeUpdate(err error) {
	done := f.updates[0]
	f.updates = f.updates[1:]
	done(err)
}

func newLifecycle(opts Options) (*Lifecycle[desc], *fakeRemote, *registry.Registry) {
	remote := &fakeRemote{}
	reg := registry.New(nil)
	return New[desc](remote, reg, opts), remote, reg
}

func TestAttachBindsAndRegisters(t *testing.T) {
	var bound []protocol.SurfaceID
	l, remote, reg := newLifecycle(Options{OnBound: func(id protocol.SurfaceID) { bound = append(bound, id) }})

	l.Attach(desc{Name: "bar"})
	require.Equal(t, Pending, l.State())
	_, ok := l.ID()
	require.False(t, ok)

	remote.completeCreate(9, nil)
	require.Equal(t, Bound, l.State())
	id, ok := l.ID()
	require.True(t, ok)
	require.Equal(t, protocol.SurfaceID(9), id)
	require.Equal(t, []protocol.SurfaceID{9}, bound)

	h, ok := reg.Lookup(9)
	require.True(t, ok)
	require.Same(t, l, h)
	require.Equal(t, []string{"create"}, remote.kinds())
}

func TestDisposeBeforeCreateResponse(t *testing.T) {
	l, remote, reg := newLifecycle(Options{})

	l.Attach(desc{Name: "bar"})
	l.Dispose()
	l.Dispose()
	require.Equal(t, Pending, l.State())
	require.ErrorIs(t, l.Update(desc{Name: "bar", Size: 3}), ErrDisposed)

	remote.completeCreate(4, nil)
	require.Equal(t, Disposed, l.State())
	require.Equal(t, []string{"create", "remove"}, remote.kinds())
	require.Equal(t, protocol.SurfaceID(4), remote.ops[1].id)
	require.Zero(t, reg.Len())
	_, ok := reg.Lookup(4)
	require.False(t, ok)
}

func TestPendingUpdatesAreLastWriterWins(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})

	l.Attach(desc{Name: "bar", Size: 1})
	require.NoError(t, l.Update(desc{Name: "bar", Size: 2}))
	require.NoError(t, l.Update(desc{Name: "bar", Size: 3}))
	require.Equal(t, []string{"create"}, remote.kinds())

	remote.completeCreate(1, nil)
	require.Equal(t, []string{"create", "update"}, remote.kinds())
	require.Equal(t, desc{Name: "bar", Size: 0}, remote.ops[1].prev)
	require.Equal(t, desc{Name: "bar", Size: 3}, remote.ops[1].next)
}

func TestBaselineMatchingDesiredSendsNothing(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})
	l.Attach(desc{Name: "bar"})
	remote.completeCreate(1, nil)
	require.Equal(t, []string{"create"}, remote.kinds())
}

func TestIdenticalUpdatesAreSuppressed(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})
	l.Attach(desc{Name: "bar"})
	remote.completeCreate(1, nil)

	require.NoError(t, l.Update(desc{Name: "bar", Size: 5}))
	remote.completeUpdate(nil)
	require.NoError(t, l.Update(desc{Name: "bar", Size: 5}))
	require.NoError(t, l.Update(desc{Name: "bar", Size: 5}))

	require.Equal(t, []string{"create", "update"}, remote.kinds())
}

func TestUpdatesAreSerialized(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})
	l.Attach(desc{Name: "bar"})
	remote.completeCreate(1, nil)

	require.NoError(t, l.Update(desc{Name: "bar", Size: 1}))
	require.NoError(t, l.Update(desc{Name: "bar", Size: 2}))
	require.NoError(t, l.Update(desc{Name: "bar", Size: 3}))
	require.Equal(t, []string{"create", "update"}, remote.kinds())

	remote.completeUpdate(nil)
	require.Equal(t, []string{"create", "update", "update"}, remote.kinds())
	require.Equal(t, desc{Name: "bar", Size: 1}, remote.ops[2].prev)
	require.Equal(t, desc{Name: "bar", Size: 3}, remote.ops[2].next)

	remote.completeUpdate(nil)
	require.Len(t, remote.ops, 3)
}

func TestIllegalReconfiguration(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})
	l.Attach(desc{Name: "bar"})

	err := l.Update(desc{Name: "baz"})
	require.ErrorIs(t, err, ErrIllegalReconfiguration)
	var re *ReconfigureError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "name", re.Field)

	remote.completeCreate(1, nil)
	require.ErrorIs(t, l.Update(desc{Name: "baz", Size: 1}), ErrIllegalReconfiguration)
	require.Equal(t, desc{Name: "bar"}, l.Desired())
	require.Equal(t, []string{"create"}, remote.kinds())
}

func TestDisposeBoundRemovesAndUnbinds(t *testing.T) {
	l, remote, reg := newLifecycle(Options{})
	l.Attach(desc{Name: "bar"})
	remote.completeCreate(2, nil)

	l.Dispose()
	require.Equal(t, Disposed, l.State())
	require.Zero(t, reg.Len())
	require.Equal(t, []string{"create", "remove"}, remote.kinds())

	l.Dispose()
	require.ErrorIs(t, l.Update(desc{Name: "bar", Size: 1}), ErrDisposed)
	require.Len(t, remote.ops, 2)
}

func TestUpdateCompletingAfterDisposeIsIgnored(t *testing.T) {
	var errs []error
	l, remote, _ := newLifecycle(Options{OnError: func(err error) { errs = append(errs, err) }})
	l.Attach(desc{Name: "bar"})
	remote.completeCreate(2, nil)
	require.NoError(t, l.Update(desc{Name: "bar", Size: 1}))
	require.NoError(t, l.Update(desc{Name: "bar", Size: 2}))

	l.Dispose()
	remote.completeUpdate(errors.New("gone"))
	require.Empty(t, errs)
	require.Equal(t, []string{"create", "update", "remove"}, remote.kinds())
}

func TestCreateFailureDisposes(t *testing.T) {
	var errs []error
	l, remote, reg := newLifecycle(Options{OnError: func(err error) { errs = append(errs, err) }})
	l.Attach(desc{Name: "bar"})

	boom := errors.New("timed out")
	remote.completeCreate(0, boom)
	require.Equal(t, Disposed, l.State())
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], boom)
	require.Zero(t, reg.Len())

	l.Dispose()
	require.Equal(t, []string{"create"}, remote.kinds())
}

func TestCloseReachesOwnerOnlyWhileBound(t *testing.T) {
	closes := 0
	l, remote, reg := newLifecycle(Options{OnClose: func() { closes++ }})
	l.Attach(desc{Name: "bar"})
	require.False(t, reg.DispatchClose(1))

	remote.completeCreate(1, nil)
	require.True(t, reg.DispatchClose(1))
	require.Equal(t, 1, closes)
	require.Equal(t, Bound, l.State())

	l.Dispose()
	require.False(t, reg.DispatchClose(1))
	require.Equal(t, 1, closes)
}

func TestMetricsReResolveViewWhileBound(t *testing.T) {
	var views []View
	l, remote, _ := newLifecycle(Options{OnView: func(v View) { views = append(views, v) }})

	l.SetMetrics(Metrics{Scale: 2})
	l.Attach(desc{Name: "bar"})
	_, ok := l.View()
	require.False(t, ok)

	remote.completeCreate(6, nil)
	require.Equal(t, []View{{ID: 6, Metrics: Metrics{Scale: 2}}}, views)

	l.SetMetrics(Metrics{Scale: 1, OriginX: 1920})
	v, ok := l.View()
	require.True(t, ok)
	require.Equal(t, View{ID: 6, Metrics: Metrics{Scale: 1, OriginX: 1920}}, v)
	require.Len(t, views, 2)

	l.Dispose()
	l.SetMetrics(Metrics{Scale: 3})
	_, ok = l.View()
	require.False(t, ok)
	require.Len(t, views, 2)
}

func TestProgrammerErrorsPanic(t *testing.T) {
	l, _, _ := newLifecycle(Options{})
	require.Panics(t, func() { _ = l.Update(desc{}) })

	l.Attach(desc{Name: "bar"})
	require.Panics(t, func() { l.Attach(desc{Name: "bar"}) })
}

func TestDisposeUninitializedSendsNothing(t *testing.T) {
	l, remote, _ := newLifecycle(Options{})
	l.Dispose()
	require.Equal(t, Disposed, l.State())
	require.Empty(t, remote.ops)
}
