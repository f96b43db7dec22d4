package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gatekeeper/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sweeps (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	trigger_type TEXT   NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	evicted     INTEGER NOT NULL,
	reset       INTEGER NOT NULL,
	remaining   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sweeps_started_at_idx ON sweeps (started_at DESC, seq DESC);
`

// SQLiteStorage stores sweep history in a SQLite database using the pure-Go
// modernc driver. Timestamps are stored as Unix nanoseconds in UTC.
type SQLiteStorage struct {
	db         *sql.DB
	maxRecords int
}

// NewSQLiteStorage opens the database, applies the schema and returns the store.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{
		db:         db,
		maxRecords: config.maxRecords(),
	}, nil
}

// RecordSweep inserts record and prunes rows beyond the retention limit.
func (ss *SQLiteStorage) RecordSweep(ctx context.Context, record *models.SweepRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sweep record: %w", err)
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sweeps WHERE id = ?`, record.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing sweep: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("sweep %s: %w", record.ID, ErrAlreadyExists)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sweeps (id, trigger_type, started_at, duration_ns, evicted, reset, remaining)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Trigger, record.StartedAt.UTC().UnixNano(), int64(record.Duration),
		record.Evicted, record.Reset, record.Remaining,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sweep: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM sweeps WHERE seq NOT IN (
			SELECT seq FROM sweeps ORDER BY started_at DESC, seq DESC LIMIT ?
		)`, ss.maxRecords)
	if err != nil {
		return fmt.Errorf("failed to prune sweeps: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sweep: %w", err)
	}
	return nil
}

// GetSweep retrieves a record by ID
func (ss *SQLiteStorage) GetSweep(ctx context.Context, id string) (*models.SweepRecord, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT id, trigger_type, started_at, duration_ns, evicted, reset, remaining
		 FROM sweeps WHERE id = ?`, id)

	r, err := scanSQLiteSweep(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get sweep: %w", err)
	}
	return r, nil
}

// RecentSweeps returns up to limit records, newest first.
func (ss *SQLiteStorage) RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	rows, err := ss.db.QueryContext(ctx,
		`SELECT id, trigger_type, started_at, duration_ns, evicted, reset, remaining
		 FROM sweeps ORDER BY started_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SweepRecord, 0, limit)
	for rows.Next() {
		r, err := scanSQLiteSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sweeps: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSweep(row rowScanner) (*models.SweepRecord, error) {
	var (
		r          models.SweepRecord
		startedAt  int64
		durationNs int64
	)
	if err := row.Scan(&r.ID, &r.Trigger, &startedAt, &durationNs, &r.Evicted, &r.Reset, &r.Remaining); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.Duration = time.Duration(durationNs)
	return &r, nil
}

// Ping checks the database connection
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
