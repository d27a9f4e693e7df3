package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"log/slog"
	"strings"
)

// Options configures the logger built by New.
type Options struct {
	// Level is one of debug, info, warn or error. Unknown values fall back to info.
	Level string
	// File enables an additional rotating log file when non-empty.
	File string
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int
}

// New builds the application logger writing text records to w and, when configured, to a rotating file.
// The returned closer flushes and closes the log file.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	var (
		sink   = w
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{ //nolint:exhaustruct // defaults are fine for the rest
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: 3, //nolint:mnd // keep a few generations around
			Compress:   true,
		}
		sink = io.MultiWriter(w, rotating)
		closer = rotating
	}

	handler := NewContextHandler(slog.NewTextHandler(sink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: nil,
	}))
	return slog.New(handler), closer
}

// ParseLevel maps a level name to a [slog.Level].
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
