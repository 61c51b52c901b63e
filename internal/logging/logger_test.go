package logging

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCaptureLogger(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New()
	l.SetLevel(level)
	l.SetOutput(log.New(&buf, "", 0))
	return l, &buf
}

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	t.Run("suppresses below minimum level", func(t *testing.T) {
		t.Parallel()

		l, buf := newCaptureLogger(LevelWarn)
		l.Debug("debug message")
		l.Info("info message")
		assert.Empty(t, buf.String())

		l.Warn("warn message")
		assert.Contains(t, buf.String(), "WARN: warn message")
	})

	t.Run("debug level logs everything", func(t *testing.T) {
		t.Parallel()

		l, buf := newCaptureLogger(LevelDebug)
		l.Debug("frame received")
		l.Error("stream failed")

		out := buf.String()
		assert.Contains(t, out, "DEBUG: frame received")
		assert.Contains(t, out, "ERROR: stream failed")
	})
}

func TestLoggerFields(t *testing.T) {
	t.Parallel()

	t.Run("inline key-value pairs", func(t *testing.T) {
		t.Parallel()

		l, buf := newCaptureLogger(LevelInfo)
		l.Info("reconnect scheduled", "attempt", 3, "job", "job-1")

		out := buf.String()
		assert.Contains(t, out, "attempt=3")
		assert.Contains(t, out, "job=job-1")
	})

	t.Run("With carries context to derived logger", func(t *testing.T) {
		t.Parallel()

		l, buf := newCaptureLogger(LevelInfo)
		jl := l.With("job", "job-42")
		jl.Info("connected")

		assert.Contains(t, buf.String(), "job=job-42")
	})

	t.Run("quotes values containing whitespace", func(t *testing.T) {
		t.Parallel()

		l, buf := newCaptureLogger(LevelInfo)
		l.Info("event dropped", "reason", "unknown event name")

		assert.Contains(t, buf.String(), `reason="unknown event name"`)
	})
}
