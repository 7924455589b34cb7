package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			out[md.Name] = md.Data
		}
	}
	return out
}

func TestRecordExecution(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordExecution(ctx, "buy", "ok", 20*time.Millisecond)
	m.RecordExecution(ctx, "buy", "ok", 30*time.Millisecond)
	m.RecordExecution(ctx, "sell", "invalid_nonce", time.Millisecond)
	m.RecordLaunch(ctx)

	data := collect(t, reader)

	sum, ok := data["launchpad_executions_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)

	hist, ok := data["launchpad_execution_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	launches, ok := data["launchpad_launches_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, launches.DataPoints, 1)
	assert.Equal(t, int64(1), launches.DataPoints[0].Value)
}

func TestConnections(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.IncrementConnections(ctx)
	m.IncrementConnections(ctx)
	m.DecrementConnections(ctx)

	gauge, ok := collect(t, reader)["launchpad_websocket_connections"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
}
