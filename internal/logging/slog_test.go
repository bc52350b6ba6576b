package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSlogLoggerLevels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func(l *SlogLogger)
		level string
	}{
		{"debug", func(l *SlogLogger) { l.Debug(ctx, "msg") }, "DEBUG"},
		{"info", func(l *SlogLogger) { l.Info(ctx, "msg") }, "INFO"},
		{"warn", func(l *SlogLogger) { l.Warn(ctx, "msg") }, "WARN"},
		{"error", func(l *SlogLogger) { l.Error(ctx, "msg") }, "ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, buf := newTestLogger()
			tc.log(l)
			m := lastLine(t, buf)
			assert.Equal(t, tc.level, m["level"])
			assert.Equal(t, "msg", m["msg"])
		})
	}
}

func TestNewJSONLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf)

	l.Info(context.Background(), "msg", "service", "data")

	m := lastLine(t, &buf)
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "data", m["service"])
}

func TestSlogLoggerWith(t *testing.T) {
	l, buf := newTestLogger()

	child := l.With("service", "data")
	child.Info(context.Background(), "request")

	m := lastLine(t, buf)
	assert.Equal(t, "data", m["service"])
}
