// Package logging builds the process-wide structured logger: JSON records to
// stdout, optionally teed into a size-rotated log file.
package logging

import (
	"io"
	"log/slog"
	"os"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level maps a config string to a slog level. Unknown values fall back to
// info.
func Level(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a JSON logger at the given level. When file is non-empty the
// output is also appended there with rotation at 100 MB and seven days of
// retention.
func New(level string, file string) *slog.Logger {
	var out io.Writer = os.Stdout
	if file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: file,
			MaxSize:  100,
			MaxAge:   7,
			Compress: true,
		})
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: Level(level),
	}))
}
