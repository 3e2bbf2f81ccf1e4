package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/surfacebridge/internal/config"
	"github.com/1broseidon/surfacebridge/internal/host"
	"github.com/1broseidon/surfacebridge/internal/ipc"
	"github.com/1broseidon/surfacebridge/internal/logging"
	"github.com/1broseidon/surfacebridge/internal/loop"
	"github.com/1broseidon/surfacebridge/internal/platform"
	"github.com/1broseidon/surfacebridge/internal/runtimepath"
	"github.com/1broseidon/surfacebridge/internal/shell"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "host":
		os.Exit(runHost(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "shutdown":
		os.Exit(runShutdown(os.Args[2:]))
	case "demo":
		os.Exit(runDemo(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: surfacebridge <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  host                Run the surface host (foreground)")
	fmt.Fprintln(w, "  status              List surfaces held by the host")
	fmt.Fprintln(w, "  shutdown            Ask the host to exit gracefully")
	fmt.Fprintln(w, "  demo                Open a panel and a window until interrupted")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'surfacebridge <command> --help' for command-specific options.")
}

// loadConfig loads path, or the default location when path is empty.
func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

// setup loads the config and builds the logger every command shares.
func setup(path string) (*config.Config, *zap.Logger, error) {
	res, err := loadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(res.Config.Logging, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return res.Config, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// session is a client connection with its own event loop.
type session struct {
	conn   *ipc.Conn
	loop   *loop.Loop
	client *shell.Client
	cancel context.CancelFunc
}

func dialHost(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session, error) {
	socket, err := runtimepath.ResolveSocket(cfg.Socket)
	if err != nil {
		return nil, err
	}
	conn, err := ipc.Dial(ctx, socket, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to host at %s: %w", socket, err)
	}

	l := loop.New()
	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := l.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("client loop stopped", zap.Error(err))
		}
	}()

	return &session{
		conn: conn,
		loop: l,
		client: shell.NewClient(conn, l, shell.Options{
			Namespace: cfg.Namespace,
			Timeout:   cfg.CallTimeout,
			Logger:    logger,
		}),
		cancel: cancel,
	}, nil
}

func (s *session) Close() {
	s.cancel()
	s.conn.Close()
}

func runHost(args []string) int {
	fs := flag.NewFlagSet("host", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
	backendName := fs.String("backend", "", "Backend to realize surfaces on: headless or x11 (default: host.backend)")
	socketPath := fs.String("socket", "", "Socket path (default: socket from config or $XDG_RUNTIME_DIR/surfacebridge.sock)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfacebridge host [--backend headless|x11] [--socket PATH] [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "host takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	if *backendName != "" {
		cfg.Host.Backend = *backendName
	}
	if *socketPath != "" {
		cfg.Socket = *socketPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	backend, err := newBackend(cfg.Host)
	if err != nil {
		logger.Error("failed to start backend", zap.String("backend", cfg.Host.Backend), zap.Error(err))
		return 1
	}
	defer backend.Close()

	socket, err := runtimepath.ResolveSocket(cfg.Socket)
	if err != nil {
		logger.Error("failed to resolve socket path", zap.Error(err))
		return 1
	}

	h := host.New(socket, backend, host.Options{
		Namespace:         cfg.Namespace,
		Logger:            logger,
		ReconcileInterval: cfg.Host.ReconcileInterval,
	})

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("host started", zap.String("socket", socket), zap.String("backend", backend.Name()), zap.String("namespace", cfg.Namespace))
	if err := h.Serve(ctx); err != nil {
		logger.Error("host stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("host stopped")
	return 0
}

func newBackend(cfg config.HostConfig) (platform.Backend, error) {
	switch cfg.Backend {
	case config.BackendX11:
		return platform.NewX11Backend(cfg.DefaultWidth, cfg.DefaultHeight)
	default:
		screen := platform.Rect{Width: 1920, Height: 1080}
		return platform.NewHeadlessBackend(screen, cfg.DefaultWidth, cfg.DefaultHeight), nil
	}
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfacebridge status [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the surfaces the running host holds.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), callBudget(cfg))
	defer cancel()
	s, err := dialHost(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer s.Close()

	st, err := s.client.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("surface_count: %d\n", len(st.Surfaces))
	for _, sf := range st.Surfaces {
		fmt.Printf("%d\t%s\t%s\n", sf.ID, sf.Kind, sf.Label)
	}
	return 0
}

func runShutdown(args []string) int {
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: surfacebridge shutdown [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Ask the running host to remove every surface and exit.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "shutdown takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), callBudget(cfg))
	defer cancel()
	s, err := dialHost(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer s.Close()

	if err := s.client.Shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("host: shutting down")
	return 0
}

// callBudget bounds one-shot commands. A disabled call timeout still gets
// a ceiling so the CLI cannot hang on a dead host.
func callBudget(cfg *config.Config) time.Duration {
	if cfg.CallTimeout > 0 {
		return cfg.CallTimeout
	}
	return 30 * time.Second
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  surfacebridge config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  surfacebridge config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  surfacebridge config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			for _, f := range res.Files {
				fmt.Printf("# loaded: %s\n", f)
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/surfacebridge/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		return "default"
	default:
		return string(src.Kind)
	}
}
