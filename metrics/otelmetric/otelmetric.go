// Package otelmetric implements query.Metrics on top of an OpenTelemetry
// meter, for hosts that export metrics over OTLP instead of Prometheus.
package otelmetric

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.trai.ch/zerr"

	"github.com/IvanBrykalov/querycache/query"
)

// Adapter records registry events as OpenTelemetry instruments.
// Instrument names are prefixed with "querycache/".
type Adapter struct {
	started  metric.Int64Counter
	settled  metric.Int64Counter
	duration metric.Float64Histogram
	dedups   metric.Int64Counter
	evicts   metric.Int64Counter
	entries  metric.Int64Gauge
	idle     metric.Int64Gauge
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Adapter, error) {
	var (
		a   Adapter
		err error
	)
	if a.started, err = meter.Int64Counter("querycache/runs_started",
		metric.WithDescription("Capability runs started, by trigger")); err != nil {
		return nil, zerr.Wrap(err, "failed to create runs_started metric")
	}
	if a.settled, err = meter.Int64Counter("querycache/runs_settled",
		metric.WithDescription("Capability runs settled, by trigger and outcome")); err != nil {
		return nil, zerr.Wrap(err, "failed to create runs_settled metric")
	}
	if a.duration, err = meter.Float64Histogram("querycache/run_duration_seconds",
		metric.WithDescription("Capability run latency"),
		metric.WithUnit("s")); err != nil {
		return nil, zerr.Wrap(err, "failed to create run_duration metric")
	}
	if a.dedups, err = meter.Int64Counter("querycache/dedup",
		metric.WithDescription("Run requests that joined an in-flight run")); err != nil {
		return nil, zerr.Wrap(err, "failed to create dedup metric")
	}
	if a.evicts, err = meter.Int64Counter("querycache/evictions",
		metric.WithDescription("Entry removals by reason")); err != nil {
		return nil, zerr.Wrap(err, "failed to create evictions metric")
	}
	if a.entries, err = meter.Int64Gauge("querycache/entries",
		metric.WithDescription("Number of resident entries")); err != nil {
		return nil, zerr.Wrap(err, "failed to create entries metric")
	}
	if a.idle, err = meter.Int64Gauge("querycache/idle_entries",
		metric.WithDescription("Number of entries without subscribers")); err != nil {
		return nil, zerr.Wrap(err, "failed to create idle_entries metric")
	}
	return &a, nil
}

// Metrics hooks carry no context; measurements are recorded without one.
var bg = context.Background()

func (a *Adapter) RunStarted(kind query.RunKind) {
	a.started.Add(bg, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (a *Adapter) RunSettled(kind query.RunKind, d time.Duration, err error) {
	a.settled.Add(bg, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.Bool("ok", err == nil),
	))
	a.duration.Record(bg, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (a *Adapter) Deduplicated() { a.dedups.Add(bg, 1) }

func (a *Adapter) Evict(r query.EvictReason) {
	a.evicts.Add(bg, 1, metric.WithAttributes(attribute.String("reason", r.String())))
}

func (a *Adapter) Size(registry string, entries, idle int) {
	attrs := metric.WithAttributes(attribute.String("registry", registry))
	a.entries.Record(bg, int64(entries), attrs)
	a.idle.Record(bg, int64(idle), attrs)
}

var _ query.Metrics = (*Adapter)(nil)
