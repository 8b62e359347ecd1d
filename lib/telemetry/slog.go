package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the process-wide logger. Pretty output is for
// humans at a terminal, otherwise logs are emitted as json lines.
func InitSlog(pretty bool) {
	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	slog.SetDefault(slog.New(handler))
}
