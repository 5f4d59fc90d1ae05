// Package logging builds the process slog logger, optionally writing to a
// rotating file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/robfisher/mailshare/internal/config"
)

// Options controls Setup beyond the [log] config section.
type Options struct {
	// Verbose forces debug level.
	Verbose bool
	// Stderr is the console writer; nil means os.Stderr.
	Stderr io.Writer
}

// Setup builds a text logger from cfg and installs it as the slog default.
// The returned cleanup closes the log file, if any.
func Setup(cfg config.LogConfig, opts Options) (*slog.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	writer := opts.Stderr
	if writer == nil {
		writer = os.Stderr
	}
	cleanup := func() error { return nil }

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		writer = lj
		cleanup = lj.Close
	}

	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// ParseLevel maps debug, warn, warning and error to their slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
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
