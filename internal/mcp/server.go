// Package mcp exposes surface management as MCP tools, so an agent can open
// and drive windows and layer surfaces through a running host.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/shell"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

const (
	ServerName    = "surfacebridge"
	ServerVersion = "0.1.0"

	defaultBindTimeout = 5 * time.Second
)

var ErrUnknownHandle = errors.New("unknown surface handle")

// Runner executes tasks on the goroutine that owns the client's surfaces.
// *loop.Loop satisfies it.
type Runner interface {
	Do(ctx context.Context, task func()) error
}

type Options struct {
	Logger *zap.Logger
	// BindTimeout bounds how long an open tool waits for the host to
	// assign an id.
	BindTimeout time.Duration
	// DefaultWidth and DefaultHeight size toplevel content when the caller
	// gives no preferred size.
	DefaultWidth  float64
	DefaultHeight float64
}

// tracked is one surface opened through the server. All fields except
// ready and createErr belong to the runner goroutine.
type tracked struct {
	handle   string
	kind     protocol.Kind
	label    string
	layer    *shell.LayerSurface
	toplevel *shell.ToplevelSurface

	ready     chan struct{}
	signaled  bool
	createErr error

	closeRequested bool
	lastErr        error
}

func (t *tracked) signal(err error) {
	if t.signaled {
		return
	}
	t.signaled = true
	t.createErr = err
	close(t.ready)
}

func (t *tracked) state() surface.State {
	if t.layer != nil {
		return t.layer.State()
	}
	return t.toplevel.State()
}

func (t *tracked) id() (protocol.SurfaceID, bool) {
	if t.layer != nil {
		return t.layer.ID()
	}
	return t.toplevel.ID()
}

func (t *tracked) dispose() {
	if t.layer != nil {
		t.layer.Dispose()
		return
	}
	t.toplevel.Dispose()
}

// Server is the MCP server for surface management.
type Server struct {
	mcpServer *mcpsdk.Server
	client    *shell.Client
	runner    Runner
	logger    *zap.Logger

	bindTimeout   time.Duration
	defaultWidth  float64
	defaultHeight float64

	surfaces map[string]*tracked
	order    []string
}

// NewServer creates a server that drives surfaces through client. Every
// surface call is made on runner.
func NewServer(client *shell.Client, runner Runner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		client:        client,
		runner:        runner,
		logger:        logger,
		bindTimeout:   opts.BindTimeout,
		defaultWidth:  opts.DefaultWidth,
		defaultHeight: opts.DefaultHeight,
		surfaces:      make(map[string]*tracked),
	}
	if s.bindTimeout <= 0 {
		s.bindTimeout = defaultBindTimeout
	}
	if s.defaultWidth <= 0 {
		s.defaultWidth = 640
	}
	if s.defaultHeight <= 0 {
		s.defaultHeight = 480
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP on t until the session ends. A nil t means stdio.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	if t == nil {
		t = &mcpsdk.StdioTransport{}
	}
	return s.mcpServer.Run(ctx, t)
}

// Close disposes every surface still open.
func (s *Server) Close(ctx context.Context) error {
	return s.runner.Do(ctx, func() {
		for _, h := range s.order {
			s.surfaces[h].dispose()
		}
		s.surfaces = make(map[string]*tracked)
		s.order = nil
	})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "open_toplevel",
		Description: "Open an application window on the host. The window's size bounds are negotiated from the content size unless explicit constraints are set later with update_surface. Returns a handle for the other tools.",
	}, s.handleOpenToplevel)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "open_layer",
		Description: "Open a layer surface (panel, dock, wallpaper or overlay) anchored to screen edges. The namespace cannot be changed afterwards. Returns a handle for the other tools.",
	}, s.handleOpenLayer)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "update_surface",
		Description: "Change a surface opened by this server. Only fields given are changed and only changes are sent to the host.",
	}, s.handleUpdateSurface)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "close_surface",
		Description: "Dispose a surface and remove it from the host.",
	}, s.handleCloseSurface)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_surfaces",
		Description: "List surfaces opened by this server with their lifecycle state. Surfaces the host closed are reported once and then forgotten.",
	}, s.handleListSurfaces)
}

// do runs fn on the runner and returns its error.
func (s *Server) do(ctx context.Context, fn func() error) error {
	var err error
	if rerr := s.runner.Do(ctx, func() { err = fn() }); rerr != nil {
		return rerr
	}
	return err
}

func (s *Server) lookup(handle string) (*tracked, error) {
	t, ok := s.surfaces[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	return t, nil
}

func (s *Server) add(t *tracked) {
	s.surfaces[t.handle] = t
	s.order = append(s.order, t.handle)
}

func (s *Server) forget(handle string) {
	delete(s.surfaces, handle)
	for i, h := range s.order {
		if h == handle {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// options builds lifecycle callbacks that feed t. They run on the runner.
func (s *Server) options(t *tracked) surface.Options {
	logger := s.logger.With(zap.String("handle", t.handle))
	return surface.Options{
		Logger: logger,
		OnBound: func(id protocol.SurfaceID) {
			if t.toplevel != nil {
				t.toplevel.Layout(protocol.Unconstrained())
			}
			t.signal(nil)
		},
		OnClose: func() {
			logger.Info("host closed surface")
			t.closeRequested = true
			t.dispose()
		},
		OnError: func(err error) {
			if !t.signaled {
				t.signal(err)
				return
			}
			logger.Warn("surface call failed", zap.Error(err))
			t.lastErr = err
		},
	}
}

// awaitBound waits for the open of t to resolve. On failure or timeout
// the surface is disposed and forgotten.
func (s *Server) awaitBound(ctx context.Context, t *tracked) (protocol.SurfaceID, error) {
	timer := time.NewTimer(s.bindTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-t.ready:
		err = t.createErr
	case <-timer.C:
		err = fmt.Errorf("host did not bind %s surface within %s", t.kind, s.bindTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	var id protocol.SurfaceID
	derr := s.do(context.WithoutCancel(ctx), func() error {
		if err != nil {
			t.dispose()
			s.forget(t.handle)
			return nil
		}
		id, _ = t.id()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, derr
}
