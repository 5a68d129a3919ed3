// Package observe provides application-wide observability primitives for
// the teddy bear backend: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all teddy bear metrics.
const meterName = "github.com/IhateCreatingUserNames2/TEddyBear"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RelayDuration tracks end-to-end relay exchange latency: from upstream
	// dial to the final concatenated audio response.
	RelayDuration metric.Float64Histogram

	// UpstreamConnectDuration tracks websocket dial latency to the realtime API.
	UpstreamConnectDuration metric.Float64Histogram

	// --- Counters ---

	// RelayExchanges counts completed relay exchanges. Use with attribute:
	//   attribute.String("outcome", ...) — "ok", "timeout", "upstream_error", "connect_error"
	RelayExchanges metric.Int64Counter

	// UpstreamEvents counts server events received from the realtime API.
	// Use with attribute: attribute.String("type", ...)
	UpstreamEvents metric.Int64Counter

	// Utterances counts utterances accepted by the talk endpoint.
	Utterances metric.Int64Counter

	// --- Error counters ---

	// RelayErrors counts failed relay exchanges by failure class. Use with
	// attribute: attribute.String("class", ...)
	RelayErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveRelays tracks the number of relay exchanges currently in flight.
	ActiveRelays metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for realtime voice round trips, which routinely take several seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RelayDuration, err = m.Float64Histogram("teddybear.relay.duration",
		metric.WithDescription("End-to-end latency of a relay exchange."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamConnectDuration, err = m.Float64Histogram("teddybear.upstream.connect.duration",
		metric.WithDescription("Websocket dial latency to the realtime API."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RelayExchanges, err = m.Int64Counter("teddybear.relay.exchanges",
		metric.WithDescription("Total relay exchanges by outcome."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamEvents, err = m.Int64Counter("teddybear.upstream.events",
		metric.WithDescription("Total realtime server events received by type."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("teddybear.utterances",
		metric.WithDescription("Total utterances accepted by the talk endpoint."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RelayErrors, err = m.Int64Counter("teddybear.relay.errors",
		metric.WithDescription("Total failed relay exchanges by failure class."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRelays, err = m.Int64UpDownCounter("teddybear.active_relays",
		metric.WithDescription("Number of relay exchanges currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("teddybear.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordExchange is a convenience method that records a completed relay
// exchange with its outcome.
func (m *Metrics) RecordExchange(ctx context.Context, outcome string) {
	m.RelayExchanges.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordUpstreamEvent is a convenience method that records a received
// realtime server event by type.
func (m *Metrics) RecordUpstreamEvent(ctx context.Context, eventType string) {
	m.UpstreamEvents.Add(ctx, 1, metric.WithAttributes(Attr("type", eventType)))
}

// RecordRelayError is a convenience method that records a failed relay
// exchange with its failure class.
func (m *Metrics) RecordRelayError(ctx context.Context, class string) {
	m.RelayErrors.Add(ctx, 1, metric.WithAttributes(Attr("class", class)))
}
