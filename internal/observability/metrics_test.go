package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attitudes-vip/event-gateway/internal/observability"
)

func TestInitMetricsWithoutEndpoint(t *testing.T) {
	mp, err := observability.InitMetrics(context.Background(), observability.MetricsConfig{
		ServiceName:    "test-service",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	})
	require.NoError(t, err)
	require.NotNil(t, mp)

	// The global meter now comes from this provider; instruments are
	// creatable without an exporter.
	gauge, err := observability.Meter("test").Int64Gauge("test.connections.active")
	require.NoError(t, err)
	gauge.Record(context.Background(), 1)

	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProviderShutdownZeroValue(t *testing.T) {
	mp := &observability.MetricsProvider{}
	assert.NoError(t, mp.Shutdown(context.Background()))
}
