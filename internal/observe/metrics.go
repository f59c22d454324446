// Package observe provides application-wide observability primitives for
// parley: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus registry served on /metrics; tests use
// [NewMetrics] with their own [metric.MeterProvider].
//
// All Record methods are nil-safe so components can take an optional
// *Metrics without guarding every call site.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/MrWong99/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TickDuration tracks how long one session tick takes (drain inbound,
	// advance players, pump the client).
	TickDuration metric.Float64Histogram

	// SendDuration tracks the latency of writing a packet to the transport.
	SendDuration metric.Float64Histogram

	// --- Counters ---

	// PacketsReceived counts decoded inbound packets. Use with attribute:
	//   attribute.String("kind", ...)
	PacketsReceived metric.Int64Counter

	// PacketsSent counts packets written to the transport. Use with attribute:
	//   attribute.String("kind", ...)
	PacketsSent metric.Int64Counter

	// PacketErrors counts packets that failed to decode, encode or write.
	// Use with attribute:
	//   attribute.String("stage", ...)
	PacketErrors metric.Int64Counter

	// Utterances counts utterances presented to the player. Use with attribute:
	//   attribute.String("character", ...)
	Utterances metric.Int64Counter

	// Cancels counts cancelled responses. Use with attributes:
	//   attribute.String("character", ...), attribute.String("mode", ...)
	Cancels metric.Int64Counter

	// StatusChanges counts client status transitions. Use with attribute:
	//   attribute.String("status", ...)
	StatusChanges metric.Int64Counter

	// Reconnects counts connection attempts by the reconnect monitor. Use
	// with attribute:
	//   attribute.String("result", ...)
	Reconnects metric.Int64Counter

	// BreakerTransitions counts endpoint circuit breaker state changes. Use
	// with attributes:
	//   attribute.String("endpoint", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveInteractions reports the interactions queued or playing across
	// all characters.
	ActiveInteractions metric.Int64Gauge

	// RegisteredCharacters reports the number of registered characters.
	RegisteredCharacters metric.Int64Gauge

	// QueuedPackets reports the outbound packets waiting to be sent.
	QueuedPackets metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// tick and transport latencies.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TickDuration, err = m.Float64Histogram("parley.tick.duration",
		metric.WithDescription("Duration of one session tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SendDuration, err = m.Float64Histogram("parley.client.send.duration",
		metric.WithDescription("Latency of writing a packet to the transport."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PacketsReceived, err = m.Int64Counter("parley.packets.received",
		metric.WithDescription("Total inbound packets by payload kind."),
	); err != nil {
		return nil, err
	}
	if met.PacketsSent, err = m.Int64Counter("parley.packets.sent",
		metric.WithDescription("Total outbound packets by payload kind."),
	); err != nil {
		return nil, err
	}
	if met.PacketErrors, err = m.Int64Counter("parley.packets.errors",
		metric.WithDescription("Total packet failures by stage."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("parley.utterances",
		metric.WithDescription("Total utterances presented by character."),
	); err != nil {
		return nil, err
	}
	if met.Cancels, err = m.Int64Counter("parley.cancels",
		metric.WithDescription("Total cancelled responses by character and mode."),
	); err != nil {
		return nil, err
	}
	if met.StatusChanges, err = m.Int64Counter("parley.client.status_changes",
		metric.WithDescription("Total client status transitions by new status."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("parley.client.reconnects",
		metric.WithDescription("Total connection attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("parley.endpoint.breaker_transitions",
		metric.WithDescription("Total endpoint circuit breaker transitions by new state."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveInteractions, err = m.Int64Gauge("parley.active_interactions",
		metric.WithDescription("Interactions queued or playing across all characters."),
	); err != nil {
		return nil, err
	}
	if met.RegisteredCharacters, err = m.Int64Gauge("parley.registered_characters",
		metric.WithDescription("Number of registered characters."),
	); err != nil {
		return nil, err
	}
	if met.QueuedPackets, err = m.Int64Gauge("parley.client.queued_packets",
		metric.WithDescription("Outbound packets waiting to be sent."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordPacketReceived records an inbound packet of the given payload kind.
func (m *Metrics) RecordPacketReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.PacketsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPacketSent records an outbound packet of the given payload kind and
// the time it took to write.
func (m *Metrics) RecordPacketSent(ctx context.Context, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.PacketsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	m.SendDuration.Record(ctx, seconds)
}

// RecordPacketError records a packet failure at stage ("decode", "encode",
// "route" or "write").
func (m *Metrics) RecordPacketError(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.PacketErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordUtterance records an utterance presented by character.
func (m *Metrics) RecordUtterance(ctx context.Context, character string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("character", character)))
}

// RecordCancel records a cancelled response.
func (m *Metrics) RecordCancel(ctx context.Context, character string, hard bool) {
	if m == nil {
		return
	}
	mode := "soft"
	if hard {
		mode = "hard"
	}
	m.Cancels.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("character", character),
			attribute.String("mode", mode),
		),
	)
}

// RecordStatusChange records a client status transition.
func (m *Metrics) RecordStatusChange(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.StatusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordReconnect records a connection attempt; result is "success" or
// "failure".
func (m *Metrics) RecordReconnect(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBreakerTransition records an endpoint circuit breaker moving to
// state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, endpoint, state string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("state", state),
	))
}

// RecordSessionGauges sets the per-tick gauges in one call.
func (m *Metrics) RecordSessionGauges(ctx context.Context, interactions, characters, queued int) {
	if m == nil {
		return
	}
	m.ActiveInteractions.Record(ctx, int64(interactions))
	m.RegisteredCharacters.Record(ctx, int64(characters))
	m.QueuedPackets.Record(ctx, int64(queued))
}

// RecordTick records the duration of one session tick.
func (m *Metrics) RecordTick(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.TickDuration.Record(ctx, seconds)
}
