package runtime

import (
	"log/slog"
	"os"
)

func NewLogger(service string) *slog.Logger {
	level := slog.LevelInfo
	if Getenv("LOG_LEVEL", "info") == "debug" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With("service", service)
}

