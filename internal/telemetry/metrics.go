package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/assetpipe"
)

// Metrics holds the OpenTelemetry instruments recorded by builds
type Metrics struct {
	BuildsTotal      metric.Int64Counter
	BuildDuration    metric.Float64Histogram
	StageDuration    metric.Float64Histogram
	ArtifactsTotal   metric.Int64Counter
	ArtifactBytes    metric.Int64Counter
	LintIssuesTotal  metric.Int64Counter
	HookFailureTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Without Init the global no-op provider is used.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of variant builds by outcome"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.build.duration",
		metric.WithDescription("Duration of a variant build"),
		metric.WithUnit("ms"),
	)

	m.StageDuration, _ = meter.Float64Histogram(
		"assetpipe.stage.duration",
		metric.WithDescription("Duration of a single pipeline stage"),
		metric.WithUnit("ms"),
	)

	m.ArtifactsTotal, _ = meter.Int64Counter(
		"assetpipe.artifacts.total",
		metric.WithDescription("Total number of artifacts written"),
		metric.WithUnit("{file}"),
	)

	m.ArtifactBytes, _ = meter.Int64Counter(
		"assetpipe.artifacts.bytes",
		metric.WithDescription("Total bytes of artifacts written"),
		metric.WithUnit("By"),
	)

	m.LintIssuesTotal, _ = meter.Int64Counter(
		"assetpipe.lint.issues.total",
		metric.WithDescription("Total number of lint findings by severity"),
		metric.WithUnit("{issue}"),
	)

	m.HookFailureTotal, _ = meter.Int64Counter(
		"assetpipe.hooks.failures.total",
		metric.WithDescription("Total number of failed post-build hooks"),
		metric.WithUnit("{error}"),
	)

	return m
}
