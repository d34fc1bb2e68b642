package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stdout. Level is debug when
// OPSPORTAL_DEBUG is set so local runs can see best-effort failures.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("OPSPORTAL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
