// Package shell implements the layer and toplevel surface kinds on top of
// the surface lifecycle, and the client end of the host protocol.
package shell

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/binary"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/loop"
	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/registry"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

// Options configures a Client.
type Options struct {
	Namespace string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Client speaks the surface protocol over a transport. Surface
// controllers it creates must be driven from the scheduler's goroutine.
type Client struct {
	messenger *ipc.Messenger
	registry  *registry.Registry
	channels  protocol.Channels
	logger    *zap.Logger
}

// NewClient wires a client to t. Completions and close notifications run
// on sched.
func NewClient(t ipc.Transport, sched loop.Scheduler, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = protocol.DefaultNamespace
	}
	c := &Client{
		messenger: ipc.NewMessenger(t, sched, ipc.MessengerOptions{Timeout: opts.Timeout, Logger: logger}),
		registry:  registry.New(logger),
		channels:  protocol.NewChannels(ns),
		logger:    logger,
	}
	c.messenger.RegisterHandler(c.channels.ToplevelClose, c.handleClose)
	return c
}

func (c *Client) handleClose(r *binary.Reader) {
	ref, err := protocol.DecodeSurfaceRef(r)
	if err != nil {
		c.logger.Error("malformed close notification", zap.String("channel", c.channels.ToplevelClose), zap.Error(err))
		return
	}
	if !c.registry.DispatchClose(ref.ID) {
		c.logger.Warn("close for unknown surface", zap.Int64("surface_id", int64(ref.ID)))
	}
}

// Registry returns the id-to-surface mapping shared by this client's
// surfaces.
func (c *Client) Registry() *registry.Registry { return c.registry }

// Channels returns the channel names in use.
func (c *Client) Channels() protocol.Channels { return c.channels }

// NewLayer returns an unattached layer surface.
func (c *Client) NewLayer(opts surface.Options) *LayerSurface {
	s := &LayerSurface{}
	s.Lifecycle = surface.New[LayerDesc](&layerRemote{c: c}, c.registry, c.withLogger(opts))
	return s
}

// NewToplevel returns an unattached toplevel surface. child is consulted
// for layout negotiation and may be nil.
func (c *Client) NewToplevel(child Layouter, opts surface.Options) *ToplevelSurface {
	s := &ToplevelSurface{
		client: c,
		child:  child,
		sent:   protocol.Unconstrained(),
		onErr:  opts.OnError,
		logger: c.logger,
	}
	s.negotiated = s.sent
	s.Lifecycle = surface.New[ToplevelDesc](&toplevelRemote{s: s}, c.registry, c.withLogger(opts))
	return s
}

func (c *Client) withLogger(opts surface.Options) surface.Options {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return opts
}

// Shutdown asks the host to exit gracefully. It blocks, so it must not be
// called from the scheduler's goroutine.
func (c *Client) Shutdown(ctx context.Context) error {
	r, err := c.messenger.Call(ctx, c.channels.Shutdown, nil)
	if err != nil {
		return err
	}
	if err := protocol.DecodeEmpty(r); err != nil {
		return fmt.Errorf("decode shutdown response: %w", err)
	}
	return nil
}

// Status lists the surfaces the host currently holds. Like Shutdown it
// blocks.
func (c *Client) Status(ctx context.Context) (protocol.HostStatus, error) {
	r, err := c.messenger.Call(ctx, c.channels.HostStatus, nil)
	if err != nil {
		return protocol.HostStatus{}, err
	}
	st, err := protocol.DecodeHostStatus(r)
	if err != nil {
		return protocol.HostStatus{}, fmt.Errorf("decode status response: %w", err)
	}
	return st, nil
}

// goEmpty issues a call whose response carries no fields.
func (c *Client) goEmpty(channel string, encode func(*binary.Writer), done func(error)) {
	c.messenger.Go(channel, encode, func(r *binary.Reader, err error) {
		if err == nil {
			err = protocol.DecodeEmpty(r)
		}
		done(err)
	})
}

// goCreate issues a create call and decodes the assigned id.
func (c *Client) goCreate(channel string, encode func(*binary.Writer), done func(protocol.SurfaceID, error)) {
	c.messenger.Go(channel, encode, func(r *binary.Reader, err error) {
		if err != nil {
			done(0, err)
			return
		}
		ref, err := protocol.DecodeSurfaceRef(r)
		done(ref.ID, err)
	})
}
