package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults applied by NewMemoryLimiter to zero-valued Config fields.
const (
	DefaultCapacity           = 10
	DefaultBaseRate           = 0.05 // tokens per millisecond
	DefaultMinRateFraction    = 0.1
	DefaultMaxAllowedRequests = 1000
	DefaultRetentionWindow    = 24 * time.Hour
)

// Config holds the construction-time parameters of a MemoryLimiter.
type Config struct {
	Capacity           int           // Tokens granted to a new bucket
	BaseRate           float64       // Refill rate in tokens/ms at zero load
	MinRateFraction    float64       // Fraction of BaseRate guaranteed at full load
	MaxAllowedRequests int64         // In-flight count that maps to load factor 1
	RetentionWindow    time.Duration // Idle time after which a bucket is evicted
	Clock              Clock
}

// DefaultConfig returns the stock limiter parameters.
func DefaultConfig() Config {
	return Config{
		Capacity:           DefaultCapacity,
		BaseRate:           DefaultBaseRate,
		MinRateFraction:    DefaultMinRateFraction,
		MaxAllowedRequests: DefaultMaxAllowedRequests,
		RetentionWindow:    DefaultRetentionWindow,
		Clock:              SystemClock{},
	}
}

// bucket is one client's token state. All fields are guarded by mu.
type bucket struct {
	mu            sync.Mutex
	capacity      int
	tokens        float64
	lastRefillAt  time.Time
	lastRequestAt time.Time
	evicted       bool // set by Sweep once the bucket left the map
}

// MemoryLimiter is an in-memory adaptive token bucket limiter. Each unique
// key gets its own bucket with its own lock, so different clients never
// contend on bucket state. The bucket map itself is guarded by an RWMutex that
// is never acquired while a bucket lock is held.
type MemoryLimiter struct {
	capacity           int
	baseRate           float64
	minRateFraction    float64
	maxAllowedRequests int64
	retentionWindow    time.Duration
	clock              Clock

	load atomic.Uint64 // math.Float64bits of the load factor

	mu      sync.RWMutex
	buckets map[string]*bucket
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter from cfg, filling zero fields from
// DefaultConfig.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if !(cfg.BaseRate > 0) || math.IsInf(cfg.BaseRate, 0) {
		cfg.BaseRate = def.BaseRate
	}
	if !(cfg.MinRateFraction > 0) || cfg.MinRateFraction > 1 {
		cfg.MinRateFraction = def.MinRateFraction
	}
	if cfg.MaxAllowedRequests <= 0 {
		cfg.MaxAllowedRequests = def.MaxAllowedRequests
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = def.RetentionWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	return &MemoryLimiter{
		capacity:           cfg.Capacity,
		baseRate:           cfg.BaseRate,
		minRateFraction:    cfg.MinRateFraction,
		maxAllowedRequests: cfg.MaxAllowedRequests,
		retentionWindow:    cfg.RetentionWindow,
		clock:              cfg.Clock,
		buckets:            make(map[string]*bucket),
	}
}

// HandleRequest checks whether a request from clientID should be admitted.
func (m *MemoryLimiter) HandleRequest(clientID string) Decision {
	for {
		b, _ := m.getOrCreate(clientID)

		b.mu.Lock()
		if b.evicted {
			// Lost a race with Sweep; the next lookup creates a fresh bucket.
			b.mu.Unlock()
			continue
		}

		now := m.clock.Now()
		m.refillLocked(b, now)
		b.lastRequestAt = now

		d := Decision{Limit: b.capacity}
		if b.tokens >= 1 {
			b.tokens -= 1
			d.Accepted = true
		} else {
			d.Reason = RejectReason
			d.RetryAfter = m.retryAfterLocked(b)
		}
		d.Remaining = int(math.Floor(b.tokens))
		b.mu.Unlock()

		return d
	}
}

// InitializeBucket creates a full bucket for clientID if none exists.
func (m *MemoryLimiter) InitializeBucket(clientID string) bool {
	_, created := m.getOrCreate(clientID)
	return created
}

// Refill adds the tokens accrued since the bucket's last refill.
func (m *MemoryLimiter) Refill(clientID string) {
	m.mu.RLock()
	b, ok := m.buckets[clientID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.evicted {
		return
	}
	m.refillLocked(b, m.clock.Now())
}

// UpdateLoad sets the load factor to activeRequests/MaxAllowedRequests.
func (m *MemoryLimiter) UpdateLoad(activeRequests int64) {
	m.SetLoadFactor(float64(activeRequests) / float64(m.maxAllowedRequests))
}

// SetLoadFactor stores factor clamped to [0,1]. NaN is treated as full load.
func (m *MemoryLimiter) SetLoadFactor(factor float64) {
	switch {
	case math.IsNaN(factor):
		factor = 1
	case factor < 0:
		factor = 0
	case factor > 1:
		factor = 1
	}
	m.load.Store(math.Float64bits(factor))
}

// LoadFactor returns the last value stored by UpdateLoad or SetLoadFactor.
func (m *MemoryLimiter) LoadFactor() float64 {
	return math.Float64frombits(m.load.Load())
}

// Sweep removes buckets whose last request is older than the retention
// window and resets every other bucket to full capacity.
func (m *MemoryLimiter) Sweep() SweepResult {
	now := m.clock.Now()
	result := SweepResult{At: now}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, b := range m.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRequestAt) > m.retentionWindow {
			b.evicted = true
			delete(m.buckets, key)
			result.Evicted++
		} else {
			b.tokens = float64(b.capacity)
			// Tokens accrued before now are already covered by the reset.
			if now.After(b.lastRefillAt) {
				b.lastRefillAt = now
			}
			result.Reset++
		}
		b.mu.Unlock()
	}
	result.Remaining = len(m.buckets)

	return result
}

// Bucket returns a snapshot of the client's bucket.
func (m *MemoryLimiter) Bucket(clientID string) (BucketState, bool) {
	m.mu.RLock()
	b, ok := m.buckets[clientID]
	m.mu.RUnlock()
	if !ok {
		return BucketState{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.evicted {
		return BucketState{}, false
	}
	return BucketState{
		Capacity:      b.capacity,
		Tokens:        b.tokens,
		LastRefillAt:  b.lastRefillAt,
		LastRequestAt: b.lastRequestAt,
	}, true
}

// Len returns the number of buckets currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

// Capacity returns the capacity assigned to new buckets.
func (m *MemoryLimiter) Capacity() int {
	return m.capacity
}

// RetentionWindow returns the idle time after which Sweep evicts a bucket.
func (m *MemoryLimiter) RetentionWindow() time.Duration {
	return m.retentionWindow
}

// getOrCreate returns the bucket for key, creating a full one if absent.
// Exactly one bucket is created when callers race on a new key.
func (m *MemoryLimiter) getOrCreate(key string) (*bucket, bool) {
	m.mu.RLock()
	b, ok := m.buckets[key]
	m.mu.RUnlock()
	if ok {
		return b, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[key]; ok {
		return b, false
	}
	now := m.clock.Now()
	b = &bucket{
		capacity:      m.capacity,
		tokens:        float64(m.capacity),
		lastRefillAt:  now,
		lastRequestAt: now,
	}
	m.buckets[key] = b
	return b, true
}

// refillRate returns tokens per millisecond at the current load, never less
// than the configured floor.
func (m *MemoryLimiter) refillRate() float64 {
	adjusted := m.baseRate * (1 - m.LoadFactor())
	floor := m.baseRate * m.minRateFraction
	return math.Max(adjusted, floor)
}

// refillLocked applies elapsed-time refill to b. Caller must hold b.mu.
func (m *MemoryLimiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefillAt)
	if elapsed <= 0 {
		return
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	b.tokens = math.Min(float64(b.capacity), b.tokens+m.refillRate()*elapsedMs)
	b.lastRefillAt = now
}

// retryAfterLocked estimates how long until b holds one whole token at the
// current rate. Caller must hold b.mu.
func (m *MemoryLimiter) retryAfterLocked(b *bucket) time.Duration {
	needed := 1 - b.tokens
	if needed <= 0 {
		return 0
	}
	ms := needed / m.refillRate()
	return time.Duration(math.Ceil(ms * float64(time.Millisecond)))
}
