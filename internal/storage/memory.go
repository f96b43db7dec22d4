package storage

import (
	"context"
	"fmt"
	"sync"

	"gatekeeper/internal/models"
)

// MemoryStorage keeps sweep history in a bounded in-memory ring. This
// provider is the default; history is lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*models.SweepRecord // ring buffer, oldest at head
	head    int
	size    int
	byID    map[string]*models.SweepRecord
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		records: make([]*models.SweepRecord, config.maxRecords()),
		byID:    make(map[string]*models.SweepRecord),
	}, nil
}

// RecordSweep stores a copy of record, overwriting the oldest entry when full.
func (m *MemoryStorage) RecordSweep(ctx context.Context, record *models.SweepRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sweep record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[record.ID]; exists {
		return fmt.Errorf("sweep %s: %w", record.ID, ErrAlreadyExists)
	}

	rc := copyRecord(record)
	capacity := len(m.records)
	if m.size == capacity {
		oldest := m.records[m.head]
		delete(m.byID, oldest.ID)
		m.records[m.head] = rc
		m.head = (m.head + 1) % capacity
	} else {
		m.records[(m.head+m.size)%capacity] = rc
		m.size++
	}
	m.byID[rc.ID] = rc
	return nil
}

// GetSweep retrieves a record by ID
func (m *MemoryStorage) GetSweep(ctx context.Context, id string) (*models.SweepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.byID[id]
	if !exists {
		return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
	}
	return copyRecord(r), nil
}

// RecentSweeps returns up to limit records, newest first.
func (m *MemoryStorage) RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(limit, m.size)
	out := make([]*models.SweepRecord, 0, n)
	capacity := len(m.records)
	for i := 0; i < n; i++ {
		idx := (m.head + m.size - 1 - i) % capacity
		out = append(out, copyRecord(m.records[idx]))
	}
	return out, nil
}

// Len reports the number of retained records.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
