package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/shell"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

func (s *Server) handleOpenToplevel(ctx context.Context, _ *mcpsdk.CallToolRequest, args OpenToplevelInput) (*mcpsdk.CallToolResult, OpenSurfaceOutput, error) {
	content := shell.Box{
		Width:     args.Width,
		Height:    args.Height,
		MinWidth:  args.MinWidth,
		MinHeight: args.MinHeight,
	}
	if content.Width <= 0 {
		content.Width = s.defaultWidth
	}
	if content.Height <= 0 {
		content.Height = s.defaultHeight
	}
	if content.MinWidth < 0 || content.MinHeight < 0 {
		return nil, OpenSurfaceOutput{}, fmt.Errorf("minimum size must not be negative")
	}

	t := &tracked{
		handle: uuid.NewString(),
		kind:   protocol.KindToplevel,
		label:  args.Title,
		ready:  make(chan struct{}),
	}
	err := s.do(ctx, func() error {
		t.toplevel = s.client.NewToplevel(content, s.options(t))
		if err := t.toplevel.Attach(shell.ToplevelDesc{Title: args.Title, AppID: args.AppID}); err != nil {
			return err
		}
		s.add(t)
		return nil
	})
	if err != nil {
		return nil, OpenSurfaceOutput{}, err
	}

	id, err := s.awaitBound(ctx, t)
	if err != nil {
		return nil, OpenSurfaceOutput{}, err
	}
	s.logger.Info("opened toplevel", zap.String("handle", t.handle), zap.Int64("surface_id", int64(id)))
	return nil, OpenSurfaceOutput{Handle: t.handle, SurfaceID: int64(id), Kind: t.kind.String()}, nil
}

func (s *Server) handleOpenLayer(ctx context.Context, _ *mcpsdk.CallToolRequest, args OpenLayerInput) (*mcpsdk.CallToolResult, OpenSurfaceOutput, error) {
	if strings.TrimSpace(args.Namespace) == "" {
		return nil, OpenSurfaceOutput{}, fmt.Errorf("namespace is required")
	}
	layer := protocol.LayerTop
	if args.Layer != "" {
		var err error
		if layer, err = protocol.ParseLayer(args.Layer); err != nil {
			return nil, OpenSurfaceOutput{}, err
		}
	}
	anchor, err := protocol.ParseAnchor(args.Anchor)
	if err != nil {
		return nil, OpenSurfaceOutput{}, err
	}
	desc := shell.LayerDesc{
		Layer:     layer,
		Anchor:    anchor,
		Namespace: args.Namespace,
		Width:     args.Width,
		Height:    args.Height,
	}

	t := &tracked{
		handle: uuid.NewString(),
		kind:   protocol.KindLayer,
		label:  args.Namespace,
		ready:  make(chan struct{}),
	}
	err = s.do(ctx, func() error {
		t.layer = s.client.NewLayer(s.options(t))
		if err := t.layer.Attach(desc); err != nil {
			return err
		}
		s.add(t)
		return nil
	})
	if err != nil {
		return nil, OpenSurfaceOutput{}, err
	}

	id, err := s.awaitBound(ctx, t)
	if err != nil {
		return nil, OpenSurfaceOutput{}, err
	}
	s.logger.Info("opened layer", zap.String("handle", t.handle), zap.Int64("surface_id", int64(id)))
	return nil, OpenSurfaceOutput{Handle: t.handle, SurfaceID: int64(id), Kind: t.kind.String()}, nil
}

func (s *Server) handleUpdateSurface(ctx context.Context, _ *mcpsdk.CallToolRequest, args UpdateSurfaceInput) (*mcpsdk.CallToolResult, UpdateSurfaceOutput, error) {
	var state surface.State
	err := s.do(ctx, func() error {
		t, err := s.lookup(args.Handle)
		if err != nil {
			return err
		}
		if t.layer != nil {
			err = s.updateLayer(t, args)
		} else {
			err = s.updateToplevel(t, args)
		}
		state = t.state()
		return err
	})
	if err != nil {
		return nil, UpdateSurfaceOutput{}, err
	}
	return nil, UpdateSurfaceOutput{Handle: args.Handle, State: state.String()}, nil
}

func (s *Server) updateLayer(t *tracked, args UpdateSurfaceInput) error {
	if args.Title != nil || args.AppID != nil || args.Constraints != nil || args.Negotiate {
		return fmt.Errorf("title, app_id, constraints and negotiate apply to toplevels only")
	}
	desc := t.layer.Desired()
	if args.Layer != nil {
		layer, err := protocol.ParseLayer(*args.Layer)
		if err != nil {
			return err
		}
		desc.Layer = layer
	}
	if args.Anchor != nil {
		anchor, err := protocol.ParseAnchor(args.Anchor)
		if err != nil {
			return err
		}
		desc.Anchor = anchor
	}
	if args.Width != nil {
		desc.Width = *args.Width
	}
	if args.Height != nil {
		desc.Height = *args.Height
	}
	return t.layer.Update(desc)
}

func (s *Server) updateToplevel(t *tracked, args UpdateSurfaceInput) error {
	if args.Layer != nil || args.Anchor != nil || args.Width != nil || args.Height != nil {
		return fmt.Errorf("layer, anchor, width and height apply to layer surfaces only")
	}
	if args.Negotiate && args.Constraints != nil {
		return fmt.Errorf("constraints and negotiate are mutually exclusive")
	}
	desc := t.toplevel.Desired()
	if args.Title != nil {
		desc.Title = *args.Title
	}
	if args.AppID != nil {
		desc.AppID = *args.AppID
	}
	if args.Negotiate {
		desc.Constraints = nil
	}
	if c := args.Constraints; c != nil {
		explicit := protocol.Constraints{
			MinWidth:  c.MinWidth,
			MinHeight: c.MinHeight,
			MaxWidth:  math.Inf(1),
			MaxHeight: math.Inf(1),
		}
		if c.MaxWidth != nil {
			explicit.MaxWidth = *c.MaxWidth
		}
		if c.MaxHeight != nil {
			explicit.MaxHeight = *c.MaxHeight
		}
		desc.Constraints = &explicit
	}
	if err := t.toplevel.Update(desc); err != nil {
		return err
	}
	t.label = desc.Title
	return nil
}

func (s *Server) handleCloseSurface(ctx context.Context, _ *mcpsdk.CallToolRequest, args CloseSurfaceInput) (*mcpsdk.CallToolResult, CloseSurfaceOutput, error) {
	var state surface.State
	err := s.do(ctx, func() error {
		t, err := s.lookup(args.Handle)
		if err != nil {
			return err
		}
		t.dispose()
		state = t.state()
		s.forget(t.handle)
		return nil
	})
	if err != nil {
		return nil, CloseSurfaceOutput{}, err
	}
	return nil, CloseSurfaceOutput{Handle: args.Handle, State: state.String()}, nil
}

func (s *Server) handleListSurfaces(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListSurfacesInput) (*mcpsdk.CallToolResult, ListSurfacesOutput, error) {
	out := ListSurfacesOutput{Surfaces: []SurfaceInfo{}}
	err := s.do(ctx, func() error {
		var collected []string
		for _, h := range s.order {
			t := s.surfaces[h]
			info := SurfaceInfo{
				Handle:         t.handle,
				Kind:           t.kind.String(),
				State:          t.state().String(),
				Label:          t.label,
				CloseRequested: t.closeRequested,
			}
			if id, ok := t.id(); ok {
				info.SurfaceID = int64(id)
			}
			if t.lastErr != nil {
				info.Error = t.lastErr.Error()
			}
			out.Surfaces = append(out.Surfaces, info)
			if t.state() == surface.Disposed {
				collected = append(collected, h)
			}
		}
		for _, h := range collected {
			s.forget(h)
		}
		out.BoundIDs = []int64{}
		for _, id := range s.client.Registry().IDs() {
			out.BoundIDs = append(out.BoundIDs, int64(id))
		}
		return nil
	})
	if err != nil {
		return nil, ListSurfacesOutput{}, err
	}
	return nil, out, nil
}
