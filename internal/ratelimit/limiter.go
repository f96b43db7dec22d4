// Package ratelimit provides adaptive per-client admission control using the
// token bucket algorithm. Refill slows down as the reported system load rises
// but never drops below a guaranteed floor, and a janitor periodically evicts
// idle clients and grants a full bucket to active ones. It also includes HTTP
// middleware that sets standard rate limit response headers.
package ratelimit

import "time"

// RejectReason is returned with every rejected admission check.
const RejectReason = "Rate limit exceeded. Try again later."

// Limiter defines the admission control contract. Implementations must be safe
// for concurrent use. None of the methods block on I/O.
type Limiter interface {
	// HandleRequest creates the client's bucket if needed, refills it and
	// consumes one token when at least one is available.
	HandleRequest(clientID string) Decision

	// InitializeBucket creates a full bucket for clientID unless one exists.
	// It reports whether a bucket was created.
	InitializeBucket(clientID string) bool

	// Refill tops up an existing bucket for the time elapsed since its last
	// refill. Unknown clients are ignored; no bucket is created.
	Refill(clientID string)

	// UpdateLoad converts an in-flight request count to a load factor.
	UpdateLoad(activeRequests int64)

	// SetLoadFactor sets the load factor directly, clamped to [0,1].
	SetLoadFactor(factor float64)

	// LoadFactor returns the current load factor.
	LoadFactor() float64

	// Sweep evicts idle buckets and resets active ones to full capacity.
	Sweep() SweepResult

	// Bucket returns a copy of the client's bucket state.
	Bucket(clientID string) (BucketState, bool)

	// Len returns the number of tracked clients.
	Len() int

	// Capacity returns the token capacity given to new buckets.
	Capacity() int
}

// Decision is the outcome of an admission check.
type Decision struct {
	Accepted   bool          // Whether the request was admitted
	Reason     string        // Set when rejected
	Limit      int           // Bucket capacity
	Remaining  int           // Whole tokens left after the decision
	RetryAfter time.Duration // Time until a token is available (rejections only)
}

// BucketState is a point-in-time copy of one client's bucket.
type BucketState struct {
	Capacity      int       `json:"capacity"`
	Tokens        float64   `json:"tokens"`
	LastRefillAt  time.Time `json:"last_refill_at"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// SweepResult summarizes one janitor pass.
type SweepResult struct {
	At        time.Time
	Evicted   int
	Reset     int
	Remaining int
}
