// Package logging builds the zap logger used by the surfacebridge commands.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/1broseidon/surfacebridge/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// New returns a logger writing to w. An empty level means info. Format auto
// picks console output when w is a terminal and JSON otherwise.
func New(cfg config.LoggingConfig, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
		level = parsed
	}

	format := cfg.Format
	switch format {
	case "", "auto":
		format = "json"
		if isTerminal(w) {
			format = "console"
		}
	case "console", "json":
	default:
		return nil, fmt.Errorf("logging format %q: must be auto, console or json", cfg.Format)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(w)))), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
