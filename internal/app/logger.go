package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide structured logger.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: true}

	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
