package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/1broseidon/surfacebridge/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_AutoUsesJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "auto"}, &buf)
	require.NoError(t, err)

	logger.Info("bound", zap.Uint64("surface_id", 3))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "bound", entry["msg"])
	require.Equal(t, float64(3), entry["surface_id"])
}

func TestNew_ConsoleAndDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Debug("transition", zap.String("state", "pending"))
	require.Contains(t, buf.String(), "transition")
	require.Contains(t, buf.String(), "pending")
	require.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{}, &buf)
	require.NoError(t, err)
	logger.Debug("dropped")
	require.Empty(t, buf.String())
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty"}, &bytes.Buffer{})
	require.Error(t, err)

	_, err = New(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
}
