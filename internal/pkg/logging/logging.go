package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the process-wide logger.
type Options struct {
	// Service is attached to every record as "service".
	Service string
	// Level is "debug", "info", "warn" or "error", optionally with an
	// offset such as "warn+2". Unknown values mean info.
	Level string
	// Format is "json" (default) or "text".
	Format string
	// Output defaults to stdout. The CLI logs to stderr so that its
	// results on stdout stay machine-readable.
	Output io.Writer
}

// Setup builds the logger described by opts and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
		lvl = slog.LevelInfo
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, hopts)
	} else {
		handler = slog.NewJSONHandler(out, hopts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	slog.SetDefault(logger)
	return logger
}
