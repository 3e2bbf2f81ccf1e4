package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/mcp"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: surfacebridge mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'surfacebridge mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(os.Stderr)
		return 2
	}
}

func runMCPServe(args []string) int {
	fs := flag.NewFlagSet("mcp serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfacebridge mcp serve [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Start the MCP server on stdio, connected to the running host.")
		fmt.Fprintln(os.Stderr, "Logs go to stderr; stdout carries the MCP stream.")
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

	server := mcp.NewServer(s.client, s.loop, mcp.Options{
		Logger:        logger,
		BindTimeout:   cfg.CallTimeout,
		DefaultWidth:  float64(cfg.Host.DefaultWidth),
		DefaultHeight: float64(cfg.Host.DefaultHeight),
	})
	defer server.Close(context.Background())

	go func() {
		select {
		case <-s.conn.Done():
			logger.Warn("host connection closed")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := server.Run(ctx, nil); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", zap.Error(err))
		return 1
	}
	return 0
}
