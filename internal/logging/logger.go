package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coldbell/dex/liquidator/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. The returned func flushes and closes the
// rotating file writer when file output is enabled.
func New(serviceName string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	writer, closeWriter, err := openWriter(serviceName, cfg)
	if err != nil {
		return nil, nil, err
	}

	handler, err := newHandler(writer, cfg.Format, &slog.HandlerOptions{Level: level})
	if err != nil {
		_ = closeWriter()
		return nil, nil, err
	}

	return slog.New(handler).With("service", serviceName), closeWriter, nil
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text|json)", format)
	}
}

func openWriter(serviceName string, cfg config.LogConfig) (io.Writer, func() error, error) {
	output := strings.ToLower(strings.TrimSpace(cfg.Output))

	switch output {
	case "", "console":
		return os.Stdout, func() error { return nil }, nil
	case "file", "both":
		rotating, err := newRotatingFile(serviceName, cfg)
		if err != nil {
			return nil, nil, err
		}
		if output == "file" {
			return rotating, rotating.Close, nil
		}
		return io.MultiWriter(os.Stdout, rotating), rotating.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid log output %q (expected console|file|both)", cfg.Output)
	}
}

func newRotatingFile(serviceName string, cfg config.LogConfig) (*lumberjack.Logger, error) {
	logPath := strings.TrimSpace(cfg.FilePath)
	if logPath == "" {
		logPath = filepath.Join(".docker", serviceName, serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", logPath, err)
	}

	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
}
