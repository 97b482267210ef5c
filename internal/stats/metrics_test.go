package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetricsRegistersAllInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPacketsMixed(ctx, "living-room", 5)
	m.RecordSendError(ctx, "living-room")
	m.RecordIngress(ctx, "192.168.1.10", true, false, false, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names = append(names, metric.Name)
		}
	}
	assert.Contains(t, names, "screamrouter.sink.packets_mixed")
	assert.Contains(t, names, "screamrouter.sink.send_errors")
	assert.Contains(t, names, "screamrouter.packets.received")
}
