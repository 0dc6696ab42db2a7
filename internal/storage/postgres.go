package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pfrederiksen/shuttle-schedule/internal/logger"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS schedule_cache (
	generation TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps generations as rows of the schedule_cache table
type PostgresStore struct {
	conn *sql.DB
	log  *logger.Logger
}

// NewPostgresStore connects to dsn and creates the cache table if needed
func NewPostgresStore(ctx context.Context, dsn string, log *logger.Logger) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, createTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	log.Info("Database connection established", nil)

	return &PostgresStore{conn: conn, log: log}, nil
}

// Close releases the database connection
func (p *PostgresStore) Close() error {
	return p.conn.Close()
}

// Load reads a generation. A missing row yields nil without error.
func (p *PostgresStore) Load(ctx context.Context, gen schedule.Generation) (*schedule.Snapshot, error) {
	var payload []byte
	err := p.conn.QueryRowContext(ctx,
		`SELECT payload FROM schedule_cache WHERE generation = $1`, string(gen),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s snapshot: %w", gen, err)
	}
	return decodeSnapshot(payload)
}

// Save upserts a generation. A nil snapshot deletes it.
func (p *PostgresStore) Save(ctx context.Context, gen schedule.Generation, snap *schedule.Snapshot) error {
	if snap == nil {
		if _, err := p.conn.ExecContext(ctx,
			`DELETE FROM schedule_cache WHERE generation = $1`, string(gen)); err != nil {
			return fmt.Errorf("deleting %s snapshot: %w", gen, err)
		}
		return nil
	}

	cachedAt := time.Now().UTC()
	payload, err := encodeSnapshot(snap, cachedAt)
	if err != nil {
		return err
	}

	_, err = p.conn.ExecContext(ctx, `
		INSERT INTO schedule_cache (generation, payload, cached_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (generation) DO UPDATE
		SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at`,
		string(gen), string(payload), cachedAt)
	if err != nil {
		return fmt.Errorf("saving %s snapshot: %w", gen, err)
	}

	p.log.Debug("Saved snapshot", logger.Fields{
		"generation": string(gen),
		"records":    len(snap.Records),
	})
	return nil
}
