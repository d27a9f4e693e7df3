package testhelpers

import (
	"github.com/myrjola/deepresearch/internal/logging"
	"io"
	"log/slog"
	"testing"
)

// NewLogger creates a new logger with the given log sink such as io.Discard.
func NewLogger(logSink io.Writer) *slog.Logger {
	handler := logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	return slog.New(handler)
}

// TestWriter forwards log output to t.Log so that it only shows up for failing tests.
type TestWriter struct {
	T testing.TB
}

func (w TestWriter) Write(p []byte) (int, error) {
	w.T.Helper()
	w.T.Log(string(p))
	return len(p), nil
}

// NewTestLogger creates a debug logger writing through t.Log.
func NewTestLogger(t testing.TB) *slog.Logger {
	return NewLogger(TestWriter{T: t})
}
