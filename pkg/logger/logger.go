package logger

import (
	"io"
	"log/slog"
	"os"
)

var Log *slog.Logger

// Setup initializes the global logger for env.
// "production" logs JSON, anything else logs human readable text.
func Setup(env string) {
	SetupWriter(env, os.Stdout)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(env string, w io.Writer) {
	Log = New(env, w)
	slog.SetDefault(Log)
}

// New builds a logger without installing it as the default.
func New(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
