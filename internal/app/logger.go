package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production always emits JSON;
// elsewhere LOG_FORMAT selects pretty text or JSON output.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
