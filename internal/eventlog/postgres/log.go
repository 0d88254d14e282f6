package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"booking-saga/internal/eventlog"
)

type Config struct {
	DSN string `yaml:"dsn"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	return nil
}

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id UUID PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	event_type VARCHAR(255) NOT NULL,
	event_data JSONB NOT NULL,
	timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	version INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_aggregate_version ON events(aggregate_id, version);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// Log is the durable, append-only event store backed by postgres.
type Log struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*Log, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	l := &Log{pool: pool}
	if err := l.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func NewWithPool(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

func (l *Log) Close() {
	l.pool.Close()
}

func (l *Log) initSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init events schema: %w", err)
	}
	return nil
}

func (l *Log) Append(ctx context.Context, aggregateID, eventType string, eventData any, version int) (string, error) {
	data, err := json.Marshal(eventData)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}

	eventID := uuid.NewString()
	_, err = l.pool.Exec(ctx, `
		INSERT INTO events (event_id, aggregate_id, event_type, event_data, version)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, eventID, aggregateID, eventType, string(data), version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", eventlog.ErrVersionConflict
		}
		return "", fmt.Errorf("%w: %v", eventlog.ErrLogUnavailable, err)
	}
	return eventID, nil
}

func (l *Log) EventsByAggregate(ctx context.Context, aggregateID string) ([]eventlog.Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT event_id, aggregate_id, event_type, event_data::text, timestamp, version
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eventlog.ErrLogUnavailable, err)
	}
	defer rows.Close()

	var records []eventlog.Record
	for rows.Next() {
		var rec eventlog.Record
		var data string
		if err := rows.Scan(&rec.EventID, &rec.AggregateID, &rec.EventType, &data, &rec.Timestamp, &rec.Version); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec.EventData = json.RawMessage(data)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", eventlog.ErrLogUnavailable, err)
	}
	if len(records) == 0 {
		return nil, eventlog.ErrNotFound
	}
	return records, nil
}

func (l *Log) AggregateIDs(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT DISTINCT aggregate_id
		FROM events
		ORDER BY aggregate_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eventlog.ErrLogUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", eventlog.ErrLogUnavailable, err)
	}
	return ids, nil
}
