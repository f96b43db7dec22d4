package observability

import (
	"context"
	"time"

	"gatekeeper/internal/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	outcomeAccepted = metric.WithAttributes(attribute.String("outcome", "accepted"))
	outcomeRejected = metric.WithAttributes(attribute.String("outcome", "rejected"))
)

// InstrumentedLimiter wraps a ratelimit.Limiter with decision counters, sweep
// metrics and observable gauges for the load factor and tracked clients.
// The admission path records counters only; spans are emitted for sweeps.
type InstrumentedLimiter struct {
	inner ratelimit.Limiter

	tracer        trace.Tracer
	decisions     metric.Int64Counter
	sweeps        metric.Int64Counter
	evicted       metric.Int64Counter
	sweepDuration metric.Float64Histogram
	registration  metric.Registration
}

var _ ratelimit.Limiter = (*InstrumentedLimiter)(nil)

// NewInstrumentedLimiter creates the wrapper and registers its instruments.
// Call Close to unregister the gauge callback.
func NewInstrumentedLimiter(inner ratelimit.Limiter, opts ...Option) (*InstrumentedLimiter, error) {
	o := resolveOptions(opts)
	meter := o.meterProvider.Meter("gatekeeper/ratelimit")

	decisions, err := meter.Int64Counter(
		"gatekeeper.decisions",
		metric.WithDescription("Admission decisions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	sweeps, err := meter.Int64Counter(
		"gatekeeper.sweeps",
		metric.WithDescription("Janitor sweeps run"),
	)
	if err != nil {
		return nil, err
	}

	evicted, err := meter.Int64Counter(
		"gatekeeper.buckets.evicted",
		metric.WithDescription("Buckets evicted by the janitor"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"gatekeeper.sweep.duration",
		metric.WithDescription("Duration of janitor sweeps in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	loadFactor, err := meter.Float64ObservableGauge(
		"gatekeeper.load_factor",
		metric.WithDescription("Current load factor in [0,1]"),
	)
	if err != nil {
		return nil, err
	}

	buckets, err := meter.Int64ObservableGauge(
		"gatekeeper.buckets",
		metric.WithDescription("Clients currently tracked"),
	)
	if err != nil {
		return nil, err
	}

	il := &InstrumentedLimiter{
		inner:         inner,
		tracer:        o.tracerProvider.Tracer("gatekeeper/ratelimit"),
		decisions:     decisions,
		sweeps:        sweeps,
		evicted:       evicted,
		sweepDuration: sweepDuration,
	}

	il.registration, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveFloat64(loadFactor, inner.LoadFactor())
		obs.ObserveInt64(buckets, int64(inner.Len()))
		return nil
	}, loadFactor, buckets)
	if err != nil {
		return nil, err
	}

	return il, nil
}

// Close unregisters the gauge callback.
func (l *InstrumentedLimiter) Close() error {
	return l.registration.Unregister()
}

func (l *InstrumentedLimiter) HandleRequest(clientID string) ratelimit.Decision {
	d := l.inner.HandleRequest(clientID)
	if d.Accepted {
		l.decisions.Add(context.Background(), 1, outcomeAccepted)
	} else {
		l.decisions.Add(context.Background(), 1, outcomeRejected)
	}
	return d
}

func (l *InstrumentedLimiter) Sweep() ratelimit.SweepResult {
	ctx, span := l.tracer.Start(context.Background(), "limiter.Sweep")
	start := time.Now()
	res := l.inner.Sweep()

	l.sweeps.Add(ctx, 1)
	l.evicted.Add(ctx, int64(res.Evicted))
	l.sweepDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("sweep.evicted", res.Evicted),
		attribute.Int("sweep.reset", res.Reset),
		attribute.Int("sweep.remaining", res.Remaining),
	)
	span.End()
	return res
}

func (l *InstrumentedLimiter) InitializeBucket(clientID string) bool {
	return l.inner.InitializeBucket(clientID)
}

func (l *InstrumentedLimiter) Refill(clientID string) {
	l.inner.Refill(clientID)
}

func (l *InstrumentedLimiter) UpdateLoad(activeRequests int64) {
	l.inner.UpdateLoad(activeRequests)
}

func (l *InstrumentedLimiter) SetLoadFactor(factor float64) {
	l.inner.SetLoadFactor(factor)
}

func (l *InstrumentedLimiter) LoadFactor() float64 {
	return l.inner.LoadFactor()
}

func (l *InstrumentedLimiter) Bucket(clientID string) (ratelimit.BucketState, bool) {
	return l.inner.Bucket(clientID)
}

func (l *InstrumentedLimiter) Len() int {
	return l.inner.Len()
}

func (l *InstrumentedLimiter) Capacity() int {
	return l.inner.Capacity()
}
