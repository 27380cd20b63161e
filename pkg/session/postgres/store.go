// Package postgres provides PostgreSQL storage for session lifecycle events.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/txn2/budget-data-gateway/pkg/session"
)

const (
	defaultRetentionDays = 30
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000

	eventsTable = "session_events"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// eventColumns lists columns returned by event SELECT queries, in scan order.
var eventColumns = []string{
	"id", "session_id", "kind", "driver", "endpoint",
	"catalog", "schema_name", "detail", "occurred_at",
}

// StoredEvent is a persisted lifecycle event.
type StoredEvent struct {
	ID string `json:"id"`
	session.Event
}

// Filter narrows Query results. Zero fields are ignored.
type Filter struct {
	SessionID string
	Kind      session.EventKind
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Store implements session.EventRecorder using PostgreSQL.
type Store struct {
	db            *sql.DB
	retentionDays int
	newID         func() string
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config configures the PostgreSQL event store.
type Config struct {
	RetentionDays int
}

// New creates a new PostgreSQL event store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
		newID:         uuid.NewString,
	}
}

// Record inserts a lifecycle event.
func (s *Store) Record(ctx context.Context, evt session.Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	query, args, err := psq.Insert(eventsTable).
		Columns(eventColumns...).
		Values(s.newID(), evt.SessionID, string(evt.Kind), evt.Driver, evt.Endpoint,
			evt.Catalog, evt.Schema, evt.Detail, evt.OccurredAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building event insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}
	return nil
}

func applyFilter(qb sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.SessionID != "" {
		qb = qb.Where(sq.Eq{"session_id": f.SessionID})
	}
	if f.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": string(f.Kind)})
	}
	if f.Since != nil {
		qb = qb.Where(sq.GtOrEq{"occurred_at": *f.Since})
	}
	if f.Until != nil {
		qb = qb.Where(sq.LtOrEq{"occurred_at": *f.Until})
	}
	return qb
}

// Query returns events matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]StoredEvent, error) {
	qb := applyFilter(psq.Select(eventColumns...).From(eventsTable), f).
		OrderBy("occurred_at DESC", "id")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building event query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocCap := defaultQueryCapacity
	if f.Limit > 0 && f.Limit <= maxQueryCapacity {
		allocCap = f.Limit
	}
	events := make([]StoredEvent, 0, allocCap)
	for rows.Next() {
		var e StoredEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Driver, &e.Endpoint,
			&e.Catalog, &e.Schema, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning session event row: %w", err)
		}
		e.Kind = session.EventKind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session event rows: %w", err)
	}
	return events, nil
}

// Cleanup removes events older than the retention period.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	query, args, err := psq.Delete(eventsTable).Where(sq.Lt{"occurred_at": cutoff}).ToSql()
	if err != nil {
		return fmt.Errorf("building event cleanup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cleaning up session events: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically deletes
// old events. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Cleanup(ctx); err != nil {
					slog.Warn("session event cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Verify interface compliance.
var _ session.EventRecorder = (*Store)(nil)
