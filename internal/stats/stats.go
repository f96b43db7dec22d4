// Package stats records admission decisions for reporting. Recording is best
// effort: callers log failures and never fail a request because of them.
//
// Keep cardinality in mind when tracking per-client counters; every distinct
// client ID becomes a map entry or a Redis key.
package stats

import (
	"context"
	"errors"
	"time"
)

// ErrClientsNotTracked is returned by Recorder.Client when the recorder was
// created without per-client counters.
var ErrClientsNotTracked = errors.New("per-client statistics are not tracked")

// Event is one admission decision.
type Event struct {
	ClientID string
	Accepted bool
	Method   string
	Path     string
	At       time.Time
}

// Counters holds accepted and rejected totals.
type Counters struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Summary is an aggregate view over recorded events.
type Summary struct {
	Total  Counters            `json:"total"`
	Routes map[string]Counters `json:"routes,omitempty"`
}

// Recorder stores admission decisions.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Summary(ctx context.Context) (Summary, error)
	Client(ctx context.Context, clientID string) (Counters, error)
}

// Nop discards every event.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Event) error { return nil }

// Summary returns an empty summary.
func (Nop) Summary(context.Context) (Summary, error) { return Summary{}, nil }

// Client reports that nothing is tracked.
func (Nop) Client(context.Context, string) (Counters, error) { return Counters{}, ErrClientsNotTracked }

func routeOf(ev Event) string {
	if ev.Method == "" && ev.Path == "" {
		return ""
	}
	if ev.Method == "" {
		return ev.Path
	}
	if ev.Path == "" {
		return ev.Method
	}
	return ev.Method + " " + ev.Path
}
