package stats

import (
	"context"
	"sync"
)

// MemoryRecorder keeps counters in process memory. It never expires anything
// and is meant for tests and single-node development.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

// MemoryOption configures a MemoryRecorder.
type MemoryOption func(*MemoryRecorder)

// WithTrackClients enables per-client counters.
func WithTrackClients(track bool) MemoryOption {
	return func(r *MemoryRecorder) { r.trackKeys = track }
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	r := &MemoryRecorder{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record counts ev.
func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	route := routeOf(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	bump(&r.total, ev.Accepted)
	if route != "" {
		c := r.byRoute[route]
		bump(&c, ev.Accepted)
		r.byRoute[route] = c
	}
	if r.trackKeys {
		c := r.byKey[ev.ClientID]
		bump(&c, ev.Accepted)
		r.byKey[ev.ClientID] = c
	}
	return nil
}

// Summary returns totals and per-route counters.
func (r *MemoryRecorder) Summary(_ context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Total: r.total}
	if len(r.byRoute) > 0 {
		s.Routes = make(map[string]Counters, len(r.byRoute))
		for k, v := range r.byRoute {
			s.Routes[k] = v
		}
	}
	return s, nil
}

// Client returns the counters for one client.
func (r *MemoryRecorder) Client(_ context.Context, clientID string) (Counters, error) {
	if !r.trackKeys {
		return Counters{}, ErrClientsNotTracked
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byKey[clientID], nil
}

func bump(c *Counters, accepted bool) {
	if accepted {
		c.Accepted++
	} else {
		c.Rejected++
	}
}
