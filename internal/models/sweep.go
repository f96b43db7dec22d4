package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sweep trigger values.
const (
	SweepTriggerSchedule = "schedule"
	SweepTriggerManual   = "manual"
)

// SweepRecord is the persisted summary of one janitor pass over the bucket
// store. It holds counts only, never bucket contents.
type SweepRecord struct {
	ID        string        `json:"id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Evicted   int           `json:"evicted"`
	Reset     int           `json:"reset"`
	Remaining int           `json:"remaining"`
}

// NewSweepRecord creates a record with a fresh ID.
func NewSweepRecord(trigger string, startedAt time.Time) *SweepRecord {
	return &SweepRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: startedAt.UTC(),
	}
}

// Validate checks that the record can be stored.
func (r *SweepRecord) Validate() error {
	if r.ID == "" {
		return errors.New("sweep ID cannot be empty")
	}
	if r.Trigger != SweepTriggerSchedule && r.Trigger != SweepTriggerManual {
		return fmt.Errorf("invalid sweep trigger: %s", r.Trigger)
	}
	if r.StartedAt.IsZero() {
		return errors.New("sweep start time cannot be zero")
	}
	if r.Evicted < 0 || r.Reset < 0 || r.Remaining < 0 {
		return errors.New("sweep counts cannot be negative")
	}
	return nil
}
