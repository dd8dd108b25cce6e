package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/attitudes-vip/event-gateway/internal/observability"
)

func TestRedactingHandler(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		shouldRedact bool
	}{
		{"signing_secret is redacted", "signing_secret", "hmac-material", true},
		{"reconnect_token is redacted", "reconnect_token", "eyJhbGciOi", true},
		{"credential is redacted", "credential", "bearer-jwt", true},
		{"authorization is redacted", "authorization", "Bearer xyz", true},
		{"redis_password is redacted", "redis_password", "hunter2", true},
		{"api_key is redacted", "api_key", "secret123", true},
		{"aws_secret_access_key is redacted", "aws_secret_access_key", "AKIA...", true},
		{"private_key is redacted", "private_key", "-----BEGIN", true},
		{"user_id not redacted", "user_id", "user_123", false},
		{"wedding_id not redacted", "wedding_id", "wed_456", false},
		{"connection_id not redacted", "connection_id", "conn_789", false},
		{"error not redacted", "error", "something failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := observability.NewRedactingHandler(&buf, nil)
			logger := slog.New(handler)

			logger.Info("test", tt.key, tt.value)
			output := buf.String()

			if tt.shouldRedact {
				assert.Contains(t, output, "[REDACTED]", "expected %s to be redacted", tt.key)
				assert.NotContains(t, output, tt.value, "expected actual value to not appear for %s", tt.key)
			} else {
				assert.Contains(t, output, tt.value, "expected %s value to appear", tt.key)
				assert.NotContains(t, output, "[REDACTED]", "expected %s to not be redacted", tt.key)
			}
		})
	}
}

func TestRedactingHandlerComposesReplaceAttr(t *testing.T) {
	var buf bytes.Buffer
	handler := observability.NewRedactingHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "renamed" {
				a.Key = "was_renamed"
			}
			return a
		},
	})
	logger := slog.New(handler)

	logger.Info("test", "renamed", "value", "signing_secret", "material")

	output := buf.String()
	assert.Contains(t, output, "was_renamed")
	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "material")
}

func TestInitLogger(t *testing.T) {
	t.Run("creates logger with service context", func(t *testing.T) {
		logger := observability.InitLogger(observability.LogConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "test-service",
			Environment: "test",
		})
		assert.NotNil(t, logger)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		logger := observability.InitLogger(observability.LogConfig{
			Level:  "loud",
			Format: "text",
		})
		assert.NotNil(t, logger)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	})

	t.Run("error level suppresses info", func(t *testing.T) {
		logger := observability.InitLogger(observability.LogConfig{
			Level:  "error",
			Format: "json",
		})
		assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	})
}

func TestWithTraceID(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("no active trace returns the logger unchanged", func(t *testing.T) {
		got := observability.WithTraceID(context.Background(), base)
		assert.Same(t, base, got)
	})

	t.Run("active trace annotates the logger", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
		defer span.End()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		observability.WithTraceID(ctx, logger).Info("hello")

		assert.Contains(t, buf.String(), "trace_id=")
	})
}
