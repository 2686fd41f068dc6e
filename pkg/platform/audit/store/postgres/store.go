package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	audit "herald/pkg/platform/audit"
	"herald/pkg/platform/tx"
)

var (
	psql    = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	columns = []string{"category", "timestamp", "subject", "action", "record_id", "reason", "request_id", "actor_id"}
)

// Store implements audit.Store on the audit_events table. Append joins the
// transaction in ctx, so an event commits or rolls back with the write it
// describes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	query, args, err := psql.Insert("audit_events").
		Columns(append([]string{"id"}, columns...)...).
		Values(uuid.New(), string(category), event.Timestamp, event.Subject, event.Action,
			event.RecordID, event.Reason, event.RequestID, event.ActorID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event: %w", err)
	}
	if _, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.list(ctx, psql.Select(columns...).From("audit_events").
		Where(sq.Eq{"subject": subject}).
		OrderBy("timestamp DESC"))
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.list(ctx, psql.Select(columns...).From("audit_events").
		OrderBy("timestamp DESC").
		Limit(uint64(limit)))
}

func (s *Store) list(ctx context.Context, q sq.SelectBuilder) ([]audit.Event, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events: %w", err)
	}
	rows, err := tx.RunnerFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e        audit.Event
			category string
		)
		if err := rows.Scan(&category, &e.Timestamp, &e.Subject, &e.Action,
			&e.RecordID, &e.Reason, &e.RequestID, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
