package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogErrorAndOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelDebug)

	LogError(logger, "fetch failed", errors.New("boom"), slog.String("backend", "db"))
	LogOperation(logger, "cache_expired", slog.Int("removed", 3))

	out := buf.String()
	assert.Contains(t, out, "fetch failed")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "backend=db")
	assert.Contains(t, out, "operation=cache_expired")
	assert.Contains(t, out, "removed=3")
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelDebug)
	c := &failingCloser{}

	SafeCloseWithLogging(c, logger, "http_response_body")

	assert.True(t, c.closed)
	assert.Contains(t, buf.String(), "resource=http_response_body")
	assert.NotPanics(t, func() { SafeCloseWithLogging(nil, logger, "nothing") })
}
