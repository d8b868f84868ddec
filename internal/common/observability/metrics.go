package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability exposes OTel instruments through the Prometheus registry.
type Observability struct {
	meterProvider   *metric.MeterProvider
	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
	valuationValue  otelmetric.Float64Histogram
	valuationCounts otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	valuationCounts, _ := meter.Int64Counter(
		"valuations.calculated",
		otelmetric.WithDescription("Valuation results by method and status"),
	)

	valuationValue, _ := meter.Float64Histogram(
		"valuations.value",
		otelmetric.WithDescription("Estimated property values"),
		otelmetric.WithUnit("USD"),
	)

	return &Observability{
		meterProvider:   provider,
		jobCounter:      jobCounter,
		jobDuration:     jobDuration,
		valuationValue:  valuationValue,
		valuationCounts: valuationCounts,
	}
}

// NewNoop returns an instance whose record calls do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

// RecordValuation counts one method result. value is only recorded for successful results.
func (o *Observability) RecordValuation(ctx context.Context, method, status string, value float64) {
	if o == nil || o.valuationCounts == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	)
	o.valuationCounts.Add(ctx, 1, attrs)
	if status == "ok" && o.valuationValue != nil {
		o.valuationValue.Record(ctx, value, otelmetric.WithAttributes(attribute.String("method", method)))
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		log.Printf("Failed to shut down meter provider: %v", err)
	}
}
