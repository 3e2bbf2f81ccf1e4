package host

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1broseidon/surfacebridge/internal/binary"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/loop"
	"github.com/1broseidon/surfacebridge/internal/platform"
	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/shell"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

type harness struct {
	host    *Host
	backend *platform.HeadlessBackend
	served  chan error
}

func startHost(t *testing.T) *harness {
	t.Helper()
	return startHostWith(t, Options{Namespace: "test"})
}

func startHostWith(t *testing.T, opts Options) *harness {
	t.Helper()
	backend := platform.NewHeadlessBackend(platform.Rect{Width: 1920, Height: 1080}, 640, 480)
	h := New(filepath.Join(t.TempDir(), "host.sock"), backend, opts)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- h.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	require.Eventually(t, func() bool {
		c, err := ipc.Dial(context.Background(), h.SocketPath(), nil)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return &harness{host: h, backend: backend, served: served}
}

type client struct {
	conn   *ipc.Conn
	loop   *loop.Loop
	shell  *shell.Client
	cancel context.CancelFunc
}

func connect(t *testing.T, h *harness) *client {
	t.Helper()
	conn, err := ipc.Dial(context.Background(), h.host.SocketPath(), nil)
	require.NoError(t, err)

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	c := &client{
		conn:   conn,
		loop:   l,
		shell:  shell.NewClient(conn, l, shell.Options{Namespace: "test", Timeout: 2 * time.Second}),
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return c
}

// do runs fn on the client loop and waits for it.
func (c *client) do(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, c.loop.Do(context.Background(), fn))
}

func (c *client) boundID(t *testing.T, s interface {
	ID() (protocol.SurfaceID, bool)
}) protocol.SurfaceID {
	t.Helper()
	var id protocol.SurfaceID
	require.Eventually(t, func() bool {
		var ok bool
		c.do(t, func() { id, ok = s.ID() })
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestLayerSurfaceEndToEnd(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	layer := c.shell.NewLayer(surface.Options{})
	desc := shell.LayerDesc{
		Layer:     protocol.LayerTop,
		Anchor:    protocol.AnchorTop | protocol.AnchorLeft | protocol.AnchorRight,
		Namespace: "bar",
		Height:    30,
	}
	c.do(t, func() { require.NoError(t, layer.Attach(desc)) })
	id := c.boundID(t, layer)
	require.Equal(t, protocol.SurfaceID(1), id)

	require.Eventually(t, func() bool {
		s, ok := h.backend.Surface(id)
		return ok && s.Bounds == platform.Rect{X: 0, Y: 0, Width: 1920, Height: 30}
	}, 2*time.Second, 5*time.Millisecond)

	st := h.host.Status()
	require.Equal(t, []protocol.SurfaceStatus{{ID: 1, Kind: protocol.KindLayer, Label: "bar"}}, st.Surfaces)

	c.do(t, layer.Dispose)
	require.Eventually(t, func() bool {
		_, ok := h.backend.Surface(id)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, h.host.Status().Surfaces)
}

func TestIdsAreNeverReused(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	var ids []protocol.SurfaceID
	for i := 0; i < 3; i++ {
		w := c.shell.NewToplevel(nil, surface.Options{})
		c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "w"})) })
		ids = append(ids, c.boundID(t, w))
		c.do(t, w.Dispose)
	}
	require.Equal(t, []protocol.SurfaceID{1, 2, 3}, ids)
}

func TestBackendCloseNotifiesOwner(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	closed := make(chan struct{}, 1)
	w := c.shell.NewToplevel(nil, surface.Options{OnClose: func() { closed <- struct{}{} }})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "editor", AppID: "ed"})) })
	id := c.boundID(t, w)

	require.True(t, h.backend.RequestClose(id))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close notification not delivered")
	}

	// The surface stays until its owner removes it.
	_, ok := h.backend.Surface(id)
	require.True(t, ok)
}

func TestVanishedSurfaceCanStillBeRemoved(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	var errs []error
	closed := make(chan struct{}, 1)
	w := c.shell.NewToplevel(nil, surface.Options{
		OnClose: func() { closed <- struct{}{} },
		OnError: func(err error) { errs = append(errs, err) },
	})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "t"})) })
	id := c.boundID(t, w)

	h.backend.Vanish(id)
	h.host.SurfaceGone(id)
	<-closed
	require.Empty(t, h.host.Tracked())

	c.do(t, w.Dispose)
	_, err := c.shell.Status(context.Background())
	require.NoError(t, err)
	c.do(t, func() { require.Empty(t, errs) })
}

func TestDisconnectRemovesSurfaces(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	w := c.shell.NewToplevel(nil, surface.Options{})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "t"})) })
	id := c.boundID(t, w)

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool {
		_, ok := h.backend.Surface(id)
		return !ok && len(h.host.Status().Surfaces) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRequestsForUnknownOrForeignSurfacesFail(t *testing.T) {
	h := startHost(t)
	owner := connect(t, h)
	other := connect(t, h)

	w := owner.shell.NewToplevel(nil, surface.Options{})
	owner.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "mine"})) })
	id := owner.boundID(t, w)

	m := ipc.NewMessenger(other.conn, loop.Inline{}, ipc.MessengerOptions{Timeout: 2 * time.Second})
	ch := protocol.NewChannels("test")

	_, err := m.Call(context.Background(), ch.ToplevelRemove, protocol.SurfaceRef{ID: id}.Encode)
	require.ErrorIs(t, err, ipc.ErrCommunication)
	require.Contains(t, err.Error(), "another client")

	_, err = m.Call(context.Background(), ch.LayerUpdate, protocol.LayerUpdate{ID: 77}.Encode)
	require.ErrorIs(t, err, ipc.ErrCommunication)

	_, err = m.Call(context.Background(), ch.LayerCreate, func(w *binary.Writer) { w.U8(9) })
	require.ErrorIs(t, err, ipc.ErrCommunication)

	_, ok := h.backend.Surface(id)
	require.True(t, ok)
}

func TestNegotiatedConstraintsReachBackend(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	content := &fixedContent{min: shell.Size{Width: 200, Height: 100}, natural: shell.Size{Width: 800, Height: 600}}
	w := c.shell.NewToplevel(content, surface.Options{})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "t"})) })
	id := c.boundID(t, w)

	c.do(t, func() { w.Layout(protocol.Constraints{MaxWidth: 1024, MaxHeight: 768}) })
	want := protocol.Constraints{MinWidth: 200, MinHeight: 100, MaxWidth: 800, MaxHeight: 600}
	require.Eventually(t, func() bool {
		s, ok := h.backend.Surface(id)
		return ok && s.Constraints == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGracefulShutdown(t *testing.T) {
	h := startHost(t)
	c := connect(t, h)

	w := c.shell.NewToplevel(nil, surface.Options{})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "t"})) })
	c.boundID(t, w)

	st, err := c.shell.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Surfaces, 1)

	require.NoError(t, c.shell.Shutdown(context.Background()))
	select {
	case err := <-h.served:
		require.NoError(t, err)
		h.served <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("host did not stop")
	}
	live, _ := h.backend.Live()
	require.Empty(t, live)
}

type fixedContent struct {
	min, natural shell.Size
}

func (f *fixedContent) Layout(c protocol.Constraints) shell.Size {
	return shell.Size{
		Width:  min(max(f.natural.Width, c.MinWidth), c.MaxWidth),
		Height: min(max(f.natural.Height, c.MinHeight), c.MaxHeight),
	}
}

func (f *fixedContent) MinIntrinsicWidth(float64) float64  { return f.min.Width }
func (f *fixedContent) MinIntrinsicHeight(float64) float64 { return f.min.Height }

func TestReconcilerReportsVanishedWindows(t *testing.T) {
	h := startHostWith(t, Options{Namespace: "test", ReconcileInterval: 10 * time.Millisecond})
	c := connect(t, h)

	closed := make(chan struct{}, 1)
	w := c.shell.NewToplevel(nil, surface.Options{OnClose: func() { closed <- struct{}{} }})
	c.do(t, func() { require.NoError(t, w.Attach(shell.ToplevelDesc{Title: "t"})) })
	id := c.boundID(t, w)

	h.backend.Vanish(id)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("owner was not asked to close the vanished window")
	}
	require.Empty(t, h.host.Tracked())

	// The gone view is kept until its owner removes it.
	h.host.mu.Lock()
	_, kept := h.host.views[id]
	h.host.mu.Unlock()
	require.True(t, kept)

	c.do(t, w.Dispose)
	require.Eventually(t, func() bool {
		h.host.mu.Lock()
		defer h.host.mu.Unlock()
		_, ok := h.host.views[id]
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}
