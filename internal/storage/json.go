package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gatekeeper/internal/models"
)

// JSONStorage persists sweep history to a single JSON file. The file is
// rewritten atomically on every record and re-read when it changes on disk.
type JSONStorage struct {
	filePath     string
	maxRecords   int
	mu           sync.RWMutex
	data         *JSONData
	lastModified time.Time
}

// JSONData represents the structure of data stored in JSON format.
// Sweeps are kept oldest first.
type JSONData struct {
	Sweeps      []*models.SweepRecord `json:"sweeps"`
	LastUpdated time.Time             `json:"last_updated"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{
		filePath:   config.Path,
		maxRecords: config.maxRecords(),
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	// Load initial data
	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

		return j.saveData(&JSONData{Sweeps: []*models.SweepRecord{}})
	}
	return nil
}

// loadData re-reads the file when its modification time has moved past the
// cached copy. It uses double-checked locking: a read-lock fast path and a
// write-lock slow path that re-validates before doing any I/O.
func (j *JSONStorage) loadData() error {
	info, err := os.Stat(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	j.mu.RLock()
	fresh := j.data != nil && !info.ModTime().After(j.lastModified)
	j.mu.RUnlock()
	if fresh {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.data != nil && !info.ModTime().After(j.lastModified) {
		return nil
	}

	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	sort.SliceStable(data.Sweeps, func(a, b int) bool {
		return data.Sweeps[a].StartedAt.Before(data.Sweeps[b].StartedAt)
	})

	j.data = &data
	j.lastModified = info.ModTime()
	return nil
}

// saveData writes data to a temporary file and renames it over the target.
// Callers hold the write lock (or own data exclusively).
func (j *JSONStorage) saveData(data *JSONData) error {
	data.LastUpdated = time.Now()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.filePath), ".sweeps-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, j.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	if info, err := os.Stat(j.filePath); err == nil {
		j.lastModified = info.ModTime()
	}
	return nil
}

// RecordSweep appends record and trims the oldest entries beyond the limit.
func (j *JSONStorage) RecordSweep(ctx context.Context, record *models.SweepRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sweep record: %w", err)
	}
	if err := j.loadData(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, existing := range j.data.Sweeps {
		if existing.ID == record.ID {
			return fmt.Errorf("sweep %s: %w", record.ID, ErrAlreadyExists)
		}
	}

	sweeps := append(j.data.Sweeps, copyRecord(record))
	if over := len(sweeps) - j.maxRecords; over > 0 {
		sweeps = sweeps[over:]
	}

	next := &JSONData{Sweeps: sweeps}
	if err := j.saveData(next); err != nil {
		return err
	}
	j.data = next
	return nil
}

// GetSweep retrieves a record by ID
func (j *JSONStorage) GetSweep(ctx context.Context, id string) (*models.SweepRecord, error) {
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, r := range j.data.Sweeps {
		if r.ID == id {
			return copyRecord(r), nil
		}
	}
	return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
}

// RecentSweeps returns up to limit records, newest first.
func (j *JSONStorage) RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}
	if err := j.loadData(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	n := min(limit, len(j.data.Sweeps))
	out := make([]*models.SweepRecord, 0, n)
	for i := len(j.data.Sweeps) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, copyRecord(j.data.Sweeps[i]))
	}
	return out, nil
}

// Ping checks that the backing file is still readable.
func (j *JSONStorage) Ping(ctx context.Context) error {
	if _, err := os.Stat(j.filePath); err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	return nil
}

// Close is a no-op; every write is flushed immediately.
func (j *JSONStorage) Close() error {
	return nil
}
