package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	// InstrumentationName names the meter and tracer of this module
	InstrumentationName = "github.com/wolfeidau/assetpipe"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal           metric.Int64Counter
	BuildErrorsTotal      metric.Int64Counter
	BuildDuration         metric.Float64Histogram
	TransformErrorsTotal  metric.Int64Counter
	ArtifactsWrittenTotal metric.Int64Counter

	// Dev server metrics
	RebuildsCoalescedTotal metric.Int64Counter
	LiveReloadClients      metric.Int64UpDownCounter
	ReloadEventsTotal      metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments. The instruments
// come from the global meter provider, a no-op until InitTelemetry runs.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(InstrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds and rebuilds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.errors.total",
		metric.WithDescription("Total number of builds that failed"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.build.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	m.TransformErrorsTotal, _ = meter.Int64Counter(
		"assetpipe.transform.errors.total",
		metric.WithDescription("Transform errors tolerated in development builds"),
		metric.WithUnit("{error}"),
	)

	m.ArtifactsWrittenTotal, _ = meter.Int64Counter(
		"assetpipe.artifacts.written.total",
		metric.WithDescription("Total number of artifacts written to the output root"),
		metric.WithUnit("{artifact}"),
	)

	m.RebuildsCoalescedTotal, _ = meter.Int64Counter(
		"assetpipe.rebuilds.coalesced.total",
		metric.WithDescription("Rebuild requests folded into a pending rebuild"),
		metric.WithUnit("{request}"),
	)

	m.LiveReloadClients, _ = meter.Int64UpDownCounter(
		"assetpipe.livereload.clients",
		metric.WithDescription("Number of connected live-reload clients"),
		metric.WithUnit("{client}"),
	)

	m.ReloadEventsTotal, _ = meter.Int64Counter(
		"assetpipe.livereload.events.total",
		metric.WithDescription("Total number of live-reload events published"),
		metric.WithUnit("{event}"),
	)

	return m
}
