// Package logging builds the process logger: JSON records on stdout, and
// optionally on a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/WessleyAI/routes-aggregator/pkg/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a level name to a slog.Level; unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a logger writing to stdout and, when cfg.File is set, to a
// rotated log file. The returned closer releases the file.
func New(cfg config.LogConfig, service string) (*slog.Logger, io.Closer) {
	return newLogger(cfg, service, os.Stdout)
}

func newLogger(cfg config.LogConfig, service string, stdout io.Writer) (*slog.Logger, io.Closer) {
	out := stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotator)
		closer = rotator
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}))
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
