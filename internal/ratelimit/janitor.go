package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/internal/models"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the janitor once a day.
const DefaultSweepSchedule = "@every 24h"

// SweepRecorder persists janitor history.
type SweepRecorder interface {
	RecordSweep(ctx context.Context, record *models.SweepRecord) error
}

// Janitor runs Limiter.Sweep on a cron schedule. The limiter itself owns no
// timers; Janitor is the host scheduler for it.
//
// Schedules use the standard five-field cron syntax or a descriptor:
//   - "@every 24h"  - every 24 hours from start
//   - "@daily"      - at midnight
//   - "0 */6 * * *" - every 6 hours
type Janitor struct {
	limiter  Limiter
	recorder SweepRecorder
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	done    chan struct{}
	running bool
	last    *models.SweepRecord

	logger *slog.Logger
}

// NewJanitor creates a janitor for limiter. recorder may be nil.
func NewJanitor(limiter Limiter, recorder SweepRecorder, schedule string) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Janitor{
		limiter:  limiter,
		recorder: recorder,
		schedule: schedule,
		logger:   slog.Default().With("component", "ratelimit.janitor"),
	}
}

// Start registers the sweep with a fresh scheduler and starts it. The
// scheduler stops when ctx is cancelled or Stop is called, whichever comes
// first; a later Start is unaffected by an earlier ctx.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() {
		j.RunOnce(ctx, models.SweepTriggerSchedule)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	done := make(chan struct{})
	c.Start()
	j.cron = c
	j.done = done
	j.running = true

	j.logger.Info("janitor started", "schedule", j.schedule)

	go func() {
		select {
		case <-ctx.Done():
			j.stopRun(done)
		case <-done:
		}
	}()

	return nil
}

// Stop halts the scheduler and waits for a sweep in progress to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	j.stopRun(done)
}

// stopRun stops the run identified by done. It is a no-op when that run has
// already been stopped.
func (j *Janitor) stopRun(done chan struct{}) {
	j.mu.Lock()
	if !j.running || done == nil || j.done != done {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(done)
	c := j.cron
	j.mu.Unlock()

	// RunOnce takes j.mu, so wait without holding it.
	<-c.Stop().Done()
	j.logger.Info("janitor stopped")
}

// IsRunning reports whether the scheduler is active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (j *Janitor) NextRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running || j.cron == nil {
		return nil
	}
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// LastSweep returns the most recent sweep run by this janitor.
func (j *Janitor) LastSweep() *models.SweepRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// RunOnce sweeps the limiter immediately and records the outcome. Recording
// is best effort: a failure is logged and the record is still returned.
func (j *Janitor) RunOnce(ctx context.Context, trigger string) *models.SweepRecord {
	start := time.Now()
	result := j.limiter.Sweep()

	record := models.NewSweepRecord(trigger, result.At)
	record.Duration = time.Since(start)
	record.Evicted = result.Evicted
	record.Reset = result.Reset
	record.Remaining = result.Remaining

	j.logger.Info("sweep completed",
		"trigger", trigger,
		"evicted", record.Evicted,
		"reset", record.Reset,
		"remaining", record.Remaining,
		"duration", record.Duration,
	)

	if j.recorder != nil {
		if err := j.recorder.RecordSweep(ctx, record); err != nil {
			j.logger.Error("failed to record sweep", "sweep_id", record.ID, "error", err)
		}
	}

	j.mu.Lock()
	j.last = record
	j.mu.Unlock()

	return record
}
