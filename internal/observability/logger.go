package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog logger: JSON output, debug level in
// dev, and trace/span ids attached whenever a span is in the context.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}
