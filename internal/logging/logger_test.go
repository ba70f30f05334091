package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/coldbell/dex/liquidator/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "liquidator.log")

	logger, closeLogger, err := New("liquidator", config.LogConfig{
		Level:     "debug",
		Format:    "json",
		Output:    "file",
		FilePath:  path,
		MaxSizeMB: 1,
	})
	require.NoError(t, err)

	logger.Debug("round finished", "slot", 42)
	require.NoError(t, closeLogger())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), `"msg":"round finished"`)
	require.Contains(t, string(body), `"service":"liquidator"`)
	require.Contains(t, string(body), `"slot":42`)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, _, err := New("liquidator", config.LogConfig{Format: "xml"})
	require.Error(t, err)

	_, _, err = New("liquidator", config.LogConfig{Output: "syslog"})
	require.Error(t, err)
}
