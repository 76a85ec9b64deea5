package telemetry

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/yairfalse/kerava/types"
)

// Metrics holds the collection metric instruments.
type Metrics struct {
	RunsTotal      metric.Int64Counter
	TasksTotal     metric.Int64Counter
	TasksFailed    metric.Int64Counter
	RecordsWritten metric.Int64Counter
	RunDuration    metric.Float64Histogram
	StoreRecords   metric.Int64Gauge
}

// Provider bundles the meter provider with its Prometheus registry.
type Provider struct {
	Metrics  *Metrics
	Registry *promclient.Registry

	provider *sdkmetric.MeterProvider
}

// NewProvider sets up OTEL metrics with a Prometheus pull exporter and
// installs the meter provider globally.
func NewProvider(serviceName, serviceVersion string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	metrics, err := initMetrics(provider.Meter("github.com/yairfalse/kerava"))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return &Provider{
		Metrics:  metrics,
		Registry: registry,
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func initMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter("kerava.runs.total",
		metric.WithDescription("Total number of collection runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	m.TasksTotal, err = meter.Int64Counter("kerava.tasks.total",
		metric.WithDescription("Total number of collection tasks executed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks counter: %w", err)
	}

	m.TasksFailed, err = meter.Int64Counter("kerava.tasks.failed.total",
		metric.WithDescription("Total number of failed collection tasks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed tasks counter: %w", err)
	}

	m.RecordsWritten, err = meter.Int64Counter("kerava.records.written.total",
		metric.WithDescription("Total number of resource records written"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create records counter: %w", err)
	}

	m.RunDuration, err = meter.Float64Histogram("kerava.run.duration.seconds",
		metric.WithDescription("Duration of collection runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	m.StoreRecords, err = meter.Int64Gauge("kerava.store.records.current",
		metric.WithDescription("Current number of records in the store"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store records gauge: %w", err)
	}

	return m, nil
}

// RecordRun updates run metrics from a finished report.
func (m *Metrics) RecordRun(ctx context.Context, report *types.RunReport) {
	if m == nil {
		return
	}

	status := "ok"
	if report.TasksFailed > 0 {
		status = "partial"
	}

	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.TasksTotal.Add(ctx, int64(report.TasksTotal))
	m.TasksFailed.Add(ctx, int64(report.TasksFailed))
	m.RecordsWritten.Add(ctx, int64(report.RecordsWritten))
	m.RunDuration.Record(ctx, report.Duration().Seconds())
}
