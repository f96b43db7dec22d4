package observability

import (
	"context"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedSweepStore wraps a storage.SweepStore implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedSweepStore struct {
	inner    storage.SweepStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedSweepStore creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
func NewInstrumentedSweepStore(inner storage.SweepStore, opts ...Option) (*InstrumentedSweepStore, error) {
	o := resolveOptions(opts)
	tracer := o.tracerProvider.Tracer("gatekeeper/storage")
	meter := o.meterProvider.Meter("gatekeeper/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedSweepStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedSweepStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedSweepStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedSweepStore) RecordSweep(ctx context.Context, record *models.SweepRecord) error {
	ctx, span := s.startSpan(ctx, "RecordSweep",
		attribute.String("sweep.id", record.ID),
		attribute.String("sweep.trigger", record.Trigger),
	)
	start := time.Now()
	err := s.inner.RecordSweep(ctx, record)
	s.record(ctx, span, "RecordSweep", start, err)
	return err
}

func (s *InstrumentedSweepStore) GetSweep(ctx context.Context, id string) (*models.SweepRecord, error) {
	ctx, span := s.startSpan(ctx, "GetSweep", attribute.String("sweep.id", id))
	start := time.Now()
	result, err := s.inner.GetSweep(ctx, id)
	s.record(ctx, span, "GetSweep", start, err)
	return result, err
}

func (s *InstrumentedSweepStore) RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error) {
	ctx, span := s.startSpan(ctx, "RecentSweeps", attribute.Int("limit", limit))
	start := time.Now()
	result, err := s.inner.RecentSweeps(ctx, limit)
	s.record(ctx, span, "RecentSweeps", start, err)
	return result, err
}

func (s *InstrumentedSweepStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedSweepStore) Close() error {
	return s.inner.Close()
}
