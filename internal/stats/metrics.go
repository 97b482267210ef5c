// Package stats provides the OpenTelemetry metric instruments and a
// Prometheus exporter bridge for the audio engine's control and data
// planes (histograms and counters are exported for scraping; the engine's
// synchronous GetStats call reads the mixers' and source paths' own
// counters instead, so it never blocks on the metrics pipeline).
package stats

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/screamrouter/screamrouter"

// Metrics holds every OpenTelemetry instrument the audio engine records
// through. All fields are safe for concurrent use — the underlying OTel
// instruments handle their own synchronization.
type Metrics struct {
	PacketsReceived  metric.Int64Counter
	PacketsDropped   metric.Int64Counter
	PacketsMalformed metric.Int64Counter
	UnknownSourceTag metric.Int64Counter

	PacketsMixed  metric.Int64Counter
	SendErrors    metric.Int64Counter
	BufferUnderrun metric.Int64Counter

	ActiveSourcePaths metric.Int64UpDownCounter
	ActiveSinks       metric.Int64UpDownCounter

	TimeshiftJitterMS metric.Float64Histogram
	MixCycleDuration  metric.Float64Histogram

	ConfigApplyDuration metric.Float64Histogram
	ConfigApplyErrors   metric.Int64Counter
}

var mixCycleBuckets = []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}
var configApplyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// NewMetrics creates every instrument against mp. Returns an error if any
// instrument registration fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.PacketsReceived, err = m.Int64Counter("screamrouter.packets.received",
		metric.WithDescription("Total ingress packets accepted into a timeshift buffer.")); err != nil {
		return nil, err
	}
	if met.PacketsDropped, err = m.Int64Counter("screamrouter.packets.dropped",
		metric.WithDescription("Total ingress packets dropped (sequence reorder window exceeded).")); err != nil {
		return nil, err
	}
	if met.PacketsMalformed, err = m.Int64Counter("screamrouter.packets.malformed",
		metric.WithDescription("Total ingress packets rejected for a malformed header or size.")); err != nil {
		return nil, err
	}
	if met.UnknownSourceTag, err = m.Int64Counter("screamrouter.packets.unknown_tag",
		metric.WithDescription("Total ingress packets dropped because no source-path subscribes to the tag.")); err != nil {
		return nil, err
	}
	if met.PacketsMixed, err = m.Int64Counter("screamrouter.sink.packets_mixed",
		metric.WithDescription("Total egress packets sent by sink mixers.")); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("screamrouter.sink.send_errors",
		metric.WithDescription("Total egress send failures.")); err != nil {
		return nil, err
	}
	if met.BufferUnderrun, err = m.Int64Counter("screamrouter.sourcepath.buffer_underrun",
		metric.WithDescription("Total timeshift reads that found no packet and substituted silence.")); err != nil {
		return nil, err
	}
	if met.ActiveSourcePaths, err = m.Int64UpDownCounter("screamrouter.active_source_paths",
		metric.WithDescription("Number of currently configured source paths.")); err != nil {
		return nil, err
	}
	if met.ActiveSinks, err = m.Int64UpDownCounter("screamrouter.active_sinks",
		metric.WithDescription("Number of currently configured sinks.")); err != nil {
		return nil, err
	}
	if met.TimeshiftJitterMS, err = m.Float64Histogram("screamrouter.timeshift.jitter_ms",
		metric.WithDescription("EWMA inter-arrival jitter per source tag."),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if met.MixCycleDuration, err = m.Float64Histogram("screamrouter.sink.mix_cycle.duration",
		metric.WithDescription("Wall time to compute and send one sink mix cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(mixCycleBuckets...)); err != nil {
		return nil, err
	}
	if met.ConfigApplyDuration, err = m.Float64Histogram("screamrouter.config.apply.duration",
		metric.WithDescription("Wall time to apply a solved configuration plan."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(configApplyBuckets...)); err != nil {
		return nil, err
	}
	if met.ConfigApplyErrors, err = m.Int64Counter("screamrouter.config.apply.errors",
		metric.WithDescription("Total configuration apply failures.")); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the package-level Metrics instance built against the
// global OTel meter provider, creating it on first call.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("stats: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// SinkAttr builds the standard sink-name attribute used across the sink
// instruments.
func SinkAttr(sinkName string) attribute.KeyValue {
	return attribute.String("sink", sinkName)
}

// TagAttr builds the standard source-tag attribute.
func TagAttr(tag string) attribute.KeyValue {
	return attribute.String("tag", tag)
}

// RecordPacketsMixed is a convenience wrapper for the sink mixer's per-cycle
// egress counter.
func (m *Metrics) RecordPacketsMixed(ctx context.Context, sinkName string, n int64) {
	m.PacketsMixed.Add(ctx, n, metric.WithAttributes(SinkAttr(sinkName)))
}

// RecordSendError is a convenience wrapper for egress failures.
func (m *Metrics) RecordSendError(ctx context.Context, sinkName string) {
	m.SendErrors.Add(ctx, 1, metric.WithAttributes(SinkAttr(sinkName)))
}

// RecordIngress is a convenience wrapper for the four ingress-path
// counters; each flag that is true adds one to its counter.
func (m *Metrics) RecordIngress(ctx context.Context, tag string, accepted, dropped, malformed, unknownTag bool) {
	attrs := metric.WithAttributes(TagAttr(tag))
	if accepted {
		m.PacketsReceived.Add(ctx, 1, attrs)
	}
	if dropped {
		m.PacketsDropped.Add(ctx, 1, attrs)
	}
	if malformed {
		m.PacketsMalformed.Add(ctx, 1, attrs)
	}
	if unknownTag {
		m.UnknownSourceTag.Add(ctx, 1, attrs)
	}
}
