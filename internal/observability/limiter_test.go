package observability

import (
	"testing"
	"time"

	"gatekeeper/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newInstrumentedTestLimiter(t *testing.T, capacity int) (*InstrumentedLimiter, *ratelimit.ManualClock, func(string) float64) {
	t.Helper()
	mp, reg := newTestMeter(t)
	clock := ratelimit.NewManualClock(testEpoch)
	inner := ratelimit.NewMemoryLimiter(ratelimit.Config{Capacity: capacity, Clock: clock})

	il, err := NewInstrumentedLimiter(inner, WithMeterProvider(mp), WithTracerProvider(noop.NewTracerProvider()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = il.Close() })

	gauge := func(prefix string) float64 {
		f := family(t, reg, prefix)
		require.NotEmpty(t, f.GetMetric())
		return f.GetMetric()[0].GetGauge().GetValue()
	}
	return il, clock, gauge
}

func TestInstrumentedLimiter_CountsDecisions(t *testing.T) {
	mp, reg := newTestMeter(t)
	inner := ratelimit.NewMemoryLimiter(ratelimit.Config{Capacity: 2, Clock: ratelimit.NewManualClock(testEpoch)})
	il, err := NewInstrumentedLimiter(inner, WithMeterProvider(mp))
	require.NoError(t, err)
	defer il.Close()

	for i := 0; i < 5; i++ {
		il.HandleRequest("client-a")
	}

	f := family(t, reg, "gatekeeper_decisions")
	assert.Equal(t, float64(2), counterByLabel(f, "outcome", "accepted"))
	assert.Equal(t, float64(3), counterByLabel(f, "outcome", "rejected"))
}

func TestInstrumentedLimiter_Gauges(t *testing.T) {
	il, _, gauge := newInstrumentedTestLimiter(t, 10)

	il.HandleRequest("a")
	il.HandleRequest("b")
	il.SetLoadFactor(0.25)

	assert.Equal(t, 0.25, gauge("gatekeeper_load_factor"))
	assert.Equal(t, float64(2), gauge("gatekeeper_buckets"))
}

func TestInstrumentedLimiter_SweepMetrics(t *testing.T) {
	mp, reg := newTestMeter(t)
	clock := ratelimit.NewManualClock(testEpoch)
	inner := ratelimit.NewMemoryLimiter(ratelimit.Config{Clock: clock, RetentionWindow: time.Hour})
	il, err := NewInstrumentedLimiter(inner, WithMeterProvider(mp))
	require.NoError(t, err)
	defer il.Close()

	il.HandleRequest("idle")
	clock.Advance(2 * time.Hour)
	il.HandleRequest("active")

	res := il.Sweep()
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 1, res.Reset)

	sweeps := family(t, reg, "gatekeeper_sweeps")
	assert.Equal(t, float64(1), sweeps.GetMetric()[0].GetCounter().GetValue())

	evicted := family(t, reg, "gatekeeper_buckets_evicted")
	assert.Equal(t, float64(1), evicted.GetMetric()[0].GetCounter().GetValue())

	duration := family(t, reg, "gatekeeper_sweep_duration")
	assert.Equal(t, uint64(1), duration.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestInstrumentedLimiter_Delegates(t *testing.T) {
	il, clock, _ := newInstrumentedTestLimiter(t, 3)

	assert.True(t, il.InitializeBucket("x"))
	assert.False(t, il.InitializeBucket("x"))
	assert.Equal(t, 3, il.Capacity())
	assert.Equal(t, 1, il.Len())

	il.HandleRequest("x")
	clock.Advance(10 * time.Millisecond)
	il.Refill("x")
	state, ok := il.Bucket("x")
	require.True(t, ok)
	assert.InDelta(t, 2.5, state.Tokens, 1e-9)

	il.UpdateLoad(500)
	assert.InDelta(t, 0.5, il.LoadFactor(), 1e-9)
}
