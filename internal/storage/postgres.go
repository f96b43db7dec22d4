package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatekeeper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sweeps (
	seq          BIGSERIAL   PRIMARY KEY,
	id           TEXT        NOT NULL UNIQUE,
	trigger_type TEXT        NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	duration_ns  BIGINT      NOT NULL,
	evicted      INTEGER     NOT NULL,
	reset        INTEGER     NOT NULL,
	remaining    INTEGER     NOT NULL
);
CREATE INDEX IF NOT EXISTS sweeps_started_at_idx ON sweeps (started_at DESC, seq DESC);
`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStorage stores sweep history in PostgreSQL through a pgx pool.
// started_at has microsecond precision.
type PostgresStorage struct {
	pool       *pgxpool.Pool
	maxRecords int
}

// NewPostgresStorage creates a new PostgreSQL storage instance and applies the schema.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStorage{
		pool:       pool,
		maxRecords: config.maxRecords(),
	}, nil
}

// RecordSweep inserts record and prunes rows beyond the retention limit in one transaction.
func (ps *PostgresStorage) RecordSweep(ctx context.Context, record *models.SweepRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sweep record: %w", err)
	}

	return pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sweeps (id, trigger_type, started_at, duration_ns, evicted, reset, remaining)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			record.ID, record.Trigger, record.StartedAt.UTC(), int64(record.Duration),
			record.Evicted, record.Reset, record.Remaining,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("sweep %s: %w", record.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert sweep: %w", err)
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM sweeps WHERE seq NOT IN (
				SELECT seq FROM sweeps ORDER BY started_at DESC, seq DESC LIMIT $1
			)`, ps.maxRecords)
		if err != nil {
			return fmt.Errorf("failed to prune sweeps: %w", err)
		}
		return nil
	})
}

// GetSweep retrieves a record by ID.
func (ps *PostgresStorage) GetSweep(ctx context.Context, id string) (*models.SweepRecord, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT id, trigger_type, started_at, duration_ns, evicted, reset, remaining
		 FROM sweeps WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep: %w", err)
	}

	r, err := pgx.CollectExactlyOneRow(rows, scanPostgresSweep)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sweep %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get sweep: %w", err)
	}
	return r, nil
}

// RecentSweeps returns up to limit records, newest first.
func (ps *PostgresStorage) RecentSweeps(ctx context.Context, limit int) ([]*models.SweepRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT id, trigger_type, started_at, duration_ns, evicted, reset, remaining
		 FROM sweeps ORDER BY started_at DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}

	out, err := pgx.CollectRows(rows, scanPostgresSweep)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sweeps: %w", err)
	}
	return out, nil
}

func scanPostgresSweep(row pgx.CollectableRow) (*models.SweepRecord, error) {
	var (
		r          models.SweepRecord
		durationNs int64
	)
	if err := row.Scan(&r.ID, &r.Trigger, &r.StartedAt, &durationNs, &r.Evicted, &r.Reset, &r.Remaining); err != nil {
		return nil, err
	}
	r.StartedAt = r.StartedAt.UTC()
	r.Duration = time.Duration(durationNs)
	return &r, nil
}

// Ping checks the pool can reach the server.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
