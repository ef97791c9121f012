package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EventStoreConfig controls the Postgres connection pool used for event rows.
type EventStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// EventStore upserts calendar events into Postgres. Event IDs are stable
// across reschedules of the same release, so ON CONFLICT keeps exactly one
// row per identity and a revision overwrites the stale row.
type EventStore struct {
	pool  execCloser
	table string
}

// NewEventStore creates a Postgres-backed EventStore using the provided config.
func NewEventStore(ctx context.Context, cfg EventStoreConfig) (*EventStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "calendar_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &EventStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewEventStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEventStoreWithPool(pool execCloser, table string) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "calendar_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreEvents upserts one run's events.
func (s *EventStore) StoreEvents(ctx context.Context, runID string, events []calendar.Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("event store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	source,
	agency,
	country,
	title,
	date_time_utc,
	event_local_tz,
	impact,
	url,
	extras,
	run_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	date_time_utc = EXCLUDED.date_time_utc,
	event_local_tz = EXCLUDED.event_local_tz,
	impact = EXCLUDED.impact,
	url = EXCLUDED.url,
	extras = EXCLUDED.extras,
	run_id = EXCLUDED.run_id`, s.table)

	for _, ev := range events {
		if ev.ID == "" {
			return fmt.Errorf("event id is required")
		}
		extrasJSON, err := json.Marshal(normalizeExtras(ev.Extras))
		if err != nil {
			return fmt.Errorf("marshal extras: %w", err)
		}
		args := []any{
			ev.ID,
			ev.Source,
			ev.Agency,
			ev.Country,
			ev.Title,
			ev.DateTimeUTC,
			ev.LocalTimezone,
			ev.Impact,
			ev.URL,
			extrasJSON,
			runID,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.ID, err)
		}
	}
	return nil
}

func normalizeExtras(extras map[string]string) map[string]string {
	if len(extras) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(extras))
	for k, v := range extras {
		out[k] = v
	}
	return out
}
