package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the detection_events table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS detection_events (
    id           UUID PRIMARY KEY,
    detected_at  TIMESTAMPTZ NOT NULL,
    mode         TEXT NOT NULL,
    similarity   DOUBLE PRECISION NOT NULL DEFAULT 0,
    targets      JSONB NOT NULL DEFAULT '[]',
    notified     BOOLEAN NOT NULL DEFAULT false,
    notify_error TEXT NOT NULL DEFAULT '',
    snapshot     BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_detection_events_detected_at ON detection_events(detected_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on an existing connection or
// pool. The caller owns db and must call [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

// Open connects a pool to dsn, pings it and runs [PostgresStore.Migrate].
// Close releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("eventlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventlog: ping: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("eventlog: migrate: %w", err)
	}
	return nil
}

// Record implements [Store]. Recording the same event ID twice updates the
// delivery columns.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	targets := e.Targets
	if targets == nil {
		targets = []float64{}
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("eventlog: marshal targets: %w", err)
	}

	const query = `
		INSERT INTO detection_events (
			id, detected_at, mode, similarity, targets, notified, notify_error, snapshot
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			notified = EXCLUDED.notified,
			notify_error = EXCLUDED.notify_error,
			snapshot = EXCLUDED.snapshot`

	_, err = s.db.Exec(ctx, query,
		e.ID.String(), e.At, e.Mode, e.Similarity, targetsJSON,
		e.Notified, e.NotifyError, e.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("eventlog: record: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	const query = `
		SELECT id::text, detected_at, mode, similarity, targets, notified, notify_error, snapshot
		FROM detection_events
		ORDER BY detected_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			id          string
			targetsJSON []byte
		)
		if err := rows.Scan(&id, &e.At, &e.Mode, &e.Similarity, &targetsJSON,
			&e.Notified, &e.NotifyError, &e.Snapshot); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("eventlog: parse id %q: %w", id, err)
		}
		if err := json.Unmarshal(targetsJSON, &e.Targets); err != nil {
			return nil, fmt.Errorf("eventlog: unmarshal targets: %w", err)
		}
		if len(e.Targets) == 0 {
			e.Targets = nil
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: recent rows: %w", err)
	}
	return out, nil
}

// Ping implements [Store] with a trivial round trip.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("eventlog: ping: %w", err)
	}
	return nil
}

// Close implements [Store]. It closes the pool created by [Open] and does
// nothing for stores built with [NewPostgresStore].
func (s *PostgresStore) Close() { s.close() }
