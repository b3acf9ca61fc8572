package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationName = "github.com/markdave123-py/Procura"

// Init installs a meter provider with a stdout exporter and returns its
// shutdown function.
func Init(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

// Metrics holds the pipeline's instruments.
type Metrics struct {
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	TasksInFlight  metric.Int64UpDownCounter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	completed, err := meter.Int64Counter("procura.tasks.completed",
		metric.WithDescription("Documents that reached completed status"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("procura.tasks.failed",
		metric.WithDescription("Documents that reached failed status"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("procura.tasks.in_flight",
		metric.WithDescription("Documents currently processing"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		TasksCompleted: completed,
		TasksFailed:    failed,
		TasksInFlight:  inFlight,
	}, nil
}
