package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "shepherd"

// Metrics holds all shepherd metric instruments.
type Metrics struct {
	Decisions      metric.Int64Counter
	Escalations    metric.Int64Counter
	Actions        metric.Int64Counter
	ActionDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Decisions, err = meter.Int64Counter("shepherd.decisions",
		metric.WithDescription("Decisions made per event type and verdict"))
	if err != nil {
		return nil, err
	}

	m.Escalations, err = meter.Int64Counter("shepherd.escalations",
		metric.WithDescription("Escalations created per event type and priority"))
	if err != nil {
		return nil, err
	}

	m.Actions, err = meter.Int64Counter("shepherd.actions",
		metric.WithDescription("Autonomous actions executed per type and outcome"))
	if err != nil {
		return nil, err
	}

	m.ActionDuration, err = meter.Float64Histogram("shepherd.action.duration_seconds",
		metric.WithDescription("Autonomous action execution time in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
