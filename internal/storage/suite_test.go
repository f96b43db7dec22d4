package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gatekeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suiteEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSweep(i int) *models.SweepRecord {
	return &models.SweepRecord{
		ID:        fmt.Sprintf("sweep-%03d", i),
		Trigger:   models.SweepTriggerSchedule,
		StartedAt: suiteEpoch.Add(time.Duration(i) * time.Hour),
		Duration:  time.Duration(i+1) * time.Millisecond,
		Evicted:   i,
		Reset:     i * 2,
		Remaining: i * 2,
	}
}

// runSweepStoreSuite exercises the behaviour every SweepStore backend shares.
// newStore must return an empty store with MaxRecords of 5.
func runSweepStoreSuite(t *testing.T, newStore func(t *testing.T) SweepStore) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		sweeps, err := s.RecentSweeps(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, sweeps)
		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("RecordAndGet", func(t *testing.T) {
		s := newStore(t)
		want := newSweep(1)
		require.NoError(t, s.RecordSweep(ctx, want))

		got, err := s.GetSweep(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Trigger, got.Trigger)
		assert.True(t, want.StartedAt.Equal(got.StartedAt))
		assert.Equal(t, want.Duration, got.Duration)
		assert.Equal(t, want.Evicted, got.Evicted)
		assert.Equal(t, want.Reset, got.Reset)
		assert.Equal(t, want.Remaining, got.Remaining)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSweep(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.RecordSweep(ctx, newSweep(1)))
		err := s.RecordSweep(ctx, newSweep(1))
		assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
	})

	t.Run("InvalidRecord", func(t *testing.T) {
		s := newStore(t)
		bad := newSweep(1)
		bad.Trigger = "cron"
		assert.Error(t, s.RecordSweep(ctx, bad))
	})

	t.Run("NewestFirst", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 3; i++ {
			require.NoError(t, s.RecordSweep(ctx, newSweep(i)))
		}

		sweeps, err := s.RecentSweeps(ctx, 10)
		require.NoError(t, err)
		require.Len(t, sweeps, 3)
		assert.Equal(t, "sweep-003", sweeps[0].ID)
		assert.Equal(t, "sweep-002", sweeps[1].ID)
		assert.Equal(t, "sweep-001", sweeps[2].ID)

		sweeps, err = s.RecentSweeps(ctx, 2)
		require.NoError(t, err)
		require.Len(t, sweeps, 2)
		assert.Equal(t, "sweep-003", sweeps[0].ID)
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		s := newStore(t)
		_, err := s.RecentSweeps(ctx, 0)
		assert.ErrorIs(t, err, ErrInvalidLimit)
		_, err = s.RecentSweeps(ctx, -1)
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})

	t.Run("RetentionDropsOldest", func(t *testing.T) {
		s := newStore(t)
		for i := 1; i <= 8; i++ {
			require.NoError(t, s.RecordSweep(ctx, newSweep(i)))
		}

		sweeps, err := s.RecentSweeps(ctx, 100)
		require.NoError(t, err)
		require.Len(t, sweeps, 5)
		assert.Equal(t, "sweep-008", sweeps[0].ID)
		assert.Equal(t, "sweep-004", sweeps[4].ID)

		_, err = s.GetSweep(ctx, "sweep-003")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		rec := newSweep(1)
		require.NoError(t, s.RecordSweep(ctx, rec))
		rec.Evicted = 999

		got, err := s.GetSweep(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Evicted)

		got.Evicted = 500
		again, err := s.GetSweep(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, again.Evicted)
	})
}
