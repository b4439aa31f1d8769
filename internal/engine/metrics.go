package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/correlate/internal/ir"
)

const meterName = "github.com/roach88/correlate/engine"

// engineMetrics holds the engine's counters.
type engineMetrics struct {
	events             metric.Int64Counter
	matches            metric.Int64Counter
	contextsCreated    metric.Int64Counter
	exclusiveConflicts metric.Int64Counter
	persistConflicts   metric.Int64Counter
	fired              metric.Int64Counter
	errors             metric.Int64Counter
}

func newEngineMetrics(mp metric.MeterProvider) (*engineMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion(ir.EngineVersion))

	var (
		m   engineMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.events, "correlate.events.processed", "Events dequeued and processed", "{event}"},
		{&m.matches, "correlate.matches", "Trigger conditions matched by events", "{match}"},
		{&m.contextsCreated, "correlate.contexts.created", "Correlation contexts opened", "{context}"},
		{&m.exclusiveConflicts, "correlate.exclusive.conflicts", "Events skipped by exclusive triggers", "{event}"},
		{&m.persistConflicts, "correlate.persist.conflicts", "Optimistic concurrency conflicts on trigger update", "{conflict}"},
		{&m.fired, "correlate.outcomes.fired", "Outcomes fired", "{outcome}"},
		{&m.errors, "correlate.errors", "Per-trigger correlation failures", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}

func triggerAttr(t ir.Trigger) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("trigger.namespace", t.Namespace),
		attribute.String("trigger.name", t.Name),
	)
}

func (m *engineMetrics) recordError(ctx context.Context, t ir.Trigger, code RuntimeErrorCode) {
	if code == "" {
		code = "INTERNAL"
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger.namespace", t.Namespace),
		attribute.String("trigger.name", t.Name),
		attribute.String("error.code", string(code)),
	))
}
