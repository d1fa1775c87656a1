// Package logging builds the process-wide slog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/apigate/apigate/internal/config"
)

// New constructs a slog.Logger according to cfg: JSON or text output, a
// minimum level, and an optional log file opened in append mode. When a file
// is configured entries go to both stdout and the file. The returned closer
// is a no-op unless a file was opened.
func New(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level := parseLevel(cfg.Level)

	out := io.Writer(os.Stdout)
	closer := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	logger.Info("logging configured",
		slog.String("log_level", level.String()),
		slog.String("log_format", cfg.Format),
		slog.String("log_file", cfg.File),
	)
	return logger, closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
