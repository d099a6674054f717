package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("writes JSON records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo)

		logger.Info("upload committed", slog.Int("routes", 3))

		output := buf.String()
		assert.Contains(t, output, `"level":"INFO"`)
		assert.Contains(t, output, `"msg":"upload committed"`)
		assert.Contains(t, output, `"routes":3`)
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelWarn)

		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	LogError(logger, "estimation failed", assert.AnError, slog.String("route_id", "7"))
	assert.Contains(t, buf.String(), `"error":"assert.AnError general error for testing"`)
	assert.Contains(t, buf.String(), `"route_id":"7"`)

	buf.Reset()
	LogOperation(logger, "routes_replaced", slog.Duration("duration", 0), slog.Int("count", 2))
	assert.NotContains(t, buf.String(), "duration")
	assert.Contains(t, buf.String(), `"count":2`)

	buf.Reset()
	LogOperation(logger, "routes_replaced", slog.Duration("duration", time.Second))
	assert.Contains(t, buf.String(), "duration")

	buf.Reset()
	LogHTTPRequest(logger, "GET", "/api/routes", 200, 1.5)
	assert.Contains(t, buf.String(), `"msg":"http_request"`)
	assert.Contains(t, buf.String(), `"status":200`)

	// nil loggers are ignored
	LogError(nil, "x", assert.AnError)
	LogOperation(nil, "x")
	LogHTTPRequest(nil, "GET", "/", 200, 0)
}

func TestContext(t *testing.T) {
	logger := Discard()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
	assert.NotNil(t, OrDiscard(nil))
	assert.Same(t, logger, OrDiscard(logger))
}
