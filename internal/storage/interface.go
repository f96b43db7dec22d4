package storage

import (
	"context"
	"time"

	"gatekeeper/internal/models"
)

// DefaultMaxRecords bounds sweep history when no limit is configured.
const DefaultMaxRecords = 1000

// SweepStore persists the history of janitor sweeps. It never holds bucket
// state; buckets live only in the limiter's memory.
type SweepStore interface {
	// RecordSweep appends a sweep record. Records beyond the retention limit
	// are dropped oldest first.
	RecordSweep(ctx context.Context, record *models.SweepRecord) error

	// GetSweep retrieves a record by ID, or ErrNotFound.
	GetSweep(ctx context.Context, id string) (*models.SweepRecord, error)

	// RecentSweeps returns up to limit records, newest first.
	RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, json, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxRecords caps retained history; zero means DefaultMaxRecords
	MaxRecords int `json:"max_records,omitempty" yaml:"max_records,omitempty"`

	// Connection pool settings for database backends
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}

func (c Config) maxRecords() int {
	if c.MaxRecords <= 0 {
		return DefaultMaxRecords
	}
	return c.MaxRecords
}

func validateLimit(limit int) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

func copyRecord(r *models.SweepRecord) *models.SweepRecord {
	c := *r
	return &c
}
