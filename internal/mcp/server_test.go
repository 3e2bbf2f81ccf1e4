package mcp

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/surfacebridge/internal/host"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/loop"
	"github.com/1broseidon/surfacebridge/internal/platform"
	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/shell"
)

type fixture struct {
	server  *Server
	backend *platform.HeadlessBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := platform.NewHeadlessBackend(platform.Rect{Width: 1920, Height: 1080}, 640, 480)
	h := host.New(filepath.Join(t.TempDir(), "host.sock"), backend, host.Options{Namespace: "mcp"})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- h.Serve(ctx) }()

	var conn *ipc.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = ipc.Dial(context.Background(), h.SocketPath(), nil)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	l := loop.New()
	go l.Run(ctx)
	client := shell.NewClient(conn, l, shell.Options{Namespace: "mcp", Timeout: 2 * time.Second})
	s := NewServer(client, l, Options{BindTimeout: 2 * time.Second})

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-served
	})
	return &fixture{server: s, backend: backend}
}

func (f *fixture) list(t *testing.T) []SurfaceInfo {
	t.Helper()
	_, out, err := f.server.handleListSurfaces(context.Background(), nil, ListSurfacesInput{})
	require.NoError(t, err)
	return out.Surfaces
}

func TestOpenToplevelNegotiatesContentBounds(t *testing.T) {
	f := newFixture(t)
	_, out, err := f.server.handleOpenToplevel(context.Background(), nil, OpenToplevelInput{
		Title: "notes", AppID: "org.example.notes",
		Width: 400, Height: 300, MinWidth: 100, MinHeight: 50,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Handle)
	require.Equal(t, "toplevel", out.Kind)
	id := protocol.SurfaceID(out.SurfaceID)

	require.Eventually(t, func() bool {
		s, ok := f.backend.Surface(id)
		return ok && s.Constraints == protocol.Constraints{MinWidth: 100, MinHeight: 50, MaxWidth: 400, MaxHeight: 300}
	}, 2*time.Second, 5*time.Millisecond)

	s, _ := f.backend.Surface(id)
	require.Equal(t, "notes", s.Title)
	require.Equal(t, "org.example.notes", s.AppID)

	_, listed, err := f.server.handleListSurfaces(context.Background(), nil, ListSurfacesInput{})
	require.NoError(t, err)
	require.Len(t, listed.Surfaces, 1)
	require.Equal(t, SurfaceInfo{Handle: out.Handle, Kind: "toplevel", SurfaceID: out.SurfaceID, State: "bound", Label: "notes"}, listed.Surfaces[0])
	require.Equal(t, []int64{out.SurfaceID}, listed.BoundIDs)
}

func TestUpdateToplevelExplicitConstraintsAndBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, out, err := f.server.handleOpenToplevel(ctx, nil, OpenToplevelInput{Title: "a", Width: 400, Height: 300, MinWidth: 100, MinHeight: 50})
	require.NoError(t, err)
	id := protocol.SurfaceID(out.SurfaceID)
	negotiated := protocol.Constraints{MinWidth: 100, MinHeight: 50, MaxWidth: 400, MaxHeight: 300}
	require.Eventually(t, func() bool {
		s, _ := f.backend.Surface(id)
		return s.Constraints == negotiated
	}, 2*time.Second, 5*time.Millisecond)

	title := "b"
	maxW := 900.0
	_, upd, err := f.server.handleUpdateSurface(ctx, nil, UpdateSurfaceInput{
		Handle:      out.Handle,
		Title:       &title,
		Constraints: &ConstraintsInput{MinWidth: 10, MinHeight: 20, MaxWidth: &maxW},
	})
	require.NoError(t, err)
	require.Equal(t, "bound", upd.State)

	explicit := protocol.Constraints{MinWidth: 10, MinHeight: 20, MaxWidth: 900, MaxHeight: math.Inf(1)}
	require.Eventually(t, func() bool {
		s, _ := f.backend.Surface(id)
		return s.Title == "b" && s.Constraints == explicit
	}, 2*time.Second, 5*time.Millisecond)

	_, _, err = f.server.handleUpdateSurface(ctx, nil, UpdateSurfaceInput{Handle: out.Handle, Negotiate: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, _ := f.backend.Surface(id)
		return s.Constraints == negotiated
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOpenLayerAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, out, err := f.server.handleOpenLayer(ctx, nil, OpenLayerInput{
		Namespace: "panel",
		Anchor:    []string{"top", "left", "right"},
		Height:    32,
	})
	require.NoError(t, err)
	require.Equal(t, "layer", out.Kind)
	id := protocol.SurfaceID(out.SurfaceID)

	require.Eventually(t, func() bool {
		s, ok := f.backend.Surface(id)
		return ok && s.Bounds == platform.Rect{Width: 1920, Height: 32}
	}, 2*time.Second, 5*time.Millisecond)

	overlay := "overlay"
	h := uint32(48)
	_, _, err = f.server.handleUpdateSurface(ctx, nil, UpdateSurfaceInput{Handle: out.Handle, Layer: &overlay, Height: &h})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, _ := f.backend.Surface(id)
		return s.Layer == protocol.LayerOverlay && s.Height == 48
	}, 2*time.Second, 5*time.Millisecond)

	title := "nope"
	_, _, err = f.server.handleUpdateSurface(ctx, nil, UpdateSurfaceInput{Handle: out.Handle, Title: &title})
	require.Error(t, err)
}

func TestOpenLayerRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.server.handleOpenLayer(ctx, nil, OpenLayerInput{})
	require.Error(t, err)
	_, _, err = f.server.handleOpenLayer(ctx, nil, OpenLayerInput{Namespace: "x", Layer: "sideways"})
	require.Error(t, err)
	_, _, err = f.server.handleOpenLayer(ctx, nil, OpenLayerInput{Namespace: "x", Anchor: []string{"middle"}})
	require.Error(t, err)
	require.Empty(t, f.list(t))
}

func TestCloseSurfaceRemovesFromHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, out, err := f.server.handleOpenLayer(ctx, nil, OpenLayerInput{Namespace: "bg", Layer: "background"})
	require.NoError(t, err)

	_, closed, err := f.server.handleCloseSurface(ctx, nil, CloseSurfaceInput{Handle: out.Handle})
	require.NoError(t, err)
	require.Equal(t, "disposed", closed.State)
	require.Eventually(t, func() bool {
		_, ok := f.backend.Surface(protocol.SurfaceID(out.SurfaceID))
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, f.list(t))

	_, _, err = f.server.handleCloseSurface(ctx, nil, CloseSurfaceInput{Handle: out.Handle})
	require.True(t, errors.Is(err, ErrUnknownHandle))
	_, _, err = f.server.handleUpdateSurface(ctx, nil, UpdateSurfaceInput{Handle: "missing"})
	require.True(t, errors.Is(err, ErrUnknownHandle))
}

func TestHostCloseIsReportedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, out, err := f.server.handleOpenToplevel(ctx, nil, OpenToplevelInput{Title: "w"})
	require.NoError(t, err)
	id := protocol.SurfaceID(out.SurfaceID)

	require.True(t, f.backend.RequestClose(id))
	require.Eventually(t, func() bool {
		_, ok := f.backend.Surface(id)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	surfaces := f.list(t)
	require.Len(t, surfaces, 1)
	require.True(t, surfaces[0].CloseRequested)
	require.Equal(t, "disposed", surfaces[0].State)
	require.Empty(t, f.list(t))
}

func TestToolsOverInMemoryTransport(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := f.server.mcpServer.Connect(ctx, st, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"close_surface", "list_surfaces", "open_layer", "open_toplevel", "update_surface"}, names)

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "open_layer",
		Arguments: map[string]any{"namespace": "dock", "anchor": []string{"bottom"}, "height": 40},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "close_surface", Arguments: map[string]any{"handle": "missing"}})
	require.NoError(t, err)
	require.True(t, res.IsError)

	require.Len(t, f.list(t), 1)
	require.NoError(t, f.server.Close(ctx))
	require.Empty(t, f.list(t))
}
