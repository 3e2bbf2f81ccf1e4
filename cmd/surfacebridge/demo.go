package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/protocol"
	"github.com/1broseidon/surfacebridge/internal/shell"
	"github.com/1broseidon/surfacebridge/internal/surface"
)

// runDemo opens a top panel and a window, keeps them until the window is
// closed or the process is interrupted, then removes both.
func runDemo(args []string) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
	title := fs.String("title", "surfacebridge demo", "Window title")
	panelHeight := fs.Uint("panel-height", 32, "Panel height in pixels")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfacebridge demo [--title TITLE] [--panel-height N] [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := dialHost(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to host", zap.Error(err))
		return 1
	}
	defer s.Close()

	failed := make(chan error, 1)
	report := func(err error) {
		select {
		case failed <- err:
		default:
		}
	}

	var panel *shell.LayerSurface
	var window *shell.ToplevelSurface
	content := shell.Box{
		Width:     float64(cfg.Host.DefaultWidth),
		Height:    float64(cfg.Host.DefaultHeight),
		MinWidth:  float64(cfg.Host.DefaultWidth) / 2,
		MinHeight: float64(cfg.Host.DefaultHeight) / 2,
	}

	err = s.loop.Do(ctx, func() {
		panel = s.client.NewLayer(surface.Options{
			OnBound: func(id protocol.SurfaceID) { fmt.Printf("panel: %d\n", id) },
			OnError: report,
		})
		window = s.client.NewToplevel(content, surface.Options{
			OnBound: func(id protocol.SurfaceID) {
				fmt.Printf("window: %d\n", id)
				window.Layout(protocol.Unconstrained())
			},
			OnClose: cancel,
			OnError: report,
		})

		if err := panel.Attach(shell.LayerDesc{
			Layer:     protocol.LayerTop,
			Anchor:    protocol.AnchorTop | protocol.AnchorLeft | protocol.AnchorRight,
			Namespace: "demo-panel",
			Height:    uint32(*panelHeight),
		}); err != nil {
			report(err)
			return
		}
		if err := window.Attach(shell.ToplevelDesc{Title: *title, AppID: "surfacebridge.demo"}); err != nil {
			report(err)
		}
	})
	if err != nil {
		logger.Error("failed to open surfaces", zap.Error(err))
		return 1
	}

	code := 0
	select {
	case <-ctx.Done():
	case <-s.conn.Done():
		logger.Warn("host connection closed")
		code = 1
	case err := <-failed:
		logger.Error("demo surface failed", zap.Error(err))
		code = 1
	}

	// Removes are asynchronous. The host answers requests in order, so a
	// status reply means they were handled.
	_ = s.loop.Do(context.Background(), func() {
		panel.Dispose()
		window.Dispose()
	})
	confirmCtx, confirmCancel := context.WithTimeout(context.Background(), callBudget(cfg))
	defer confirmCancel()
	if _, err := s.client.Status(confirmCtx); err != nil && code == 0 {
		logger.Warn("host did not confirm removal", zap.Error(err))
	}
	return code
}
