package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"herald/internal/platform/postgres"
	"herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
	"herald/pkg/platform/tx"
)

const table = "publications"

var (
	psql    = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	columns = []string{
		"id", "entity_type", "entity_id", "publish_at", "approved",
		"banner_enabled", "banner_image", "created_at", "updated_at",
	}
)

// PostgresStore persists publication records in PostgreSQL. Every method runs
// against the transaction carried in ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed publication store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("publication record is required")
	}
	query, args, err := insertQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert publication: %w", err)
	}
	if _, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("publication for %s: %w", rec.Entity, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert publication: %w", err)
	}
	return nil
}

// Upsert locks the entity's row (if any) for the duration of build. When two
// writers race to insert the first record, the loser falls through to the
// update path instead of failing.
func (s *PostgresStore) Upsert(ctx context.Context, ref models.EntityRef, build BuildFunc) (*models.Record, error) {
	var out *models.Record
	err := postgres.RunInTx(ctx, s.db, func(ctx context.Context) error {
		existing, err := s.findForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if existing == nil {
			rec, err := build(nil)
			if err != nil {
				return err
			}
			inserted, err := s.insertIfAbsent(ctx, rec)
			if err != nil {
				return err
			}
			if inserted {
				out = rec
				return nil
			}
			if existing, err = s.findForUpdate(ctx, ref); err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("publication for %s vanished during upsert", ref)
			}
		}
		rec, err := build(existing.Clone())
		if err != nil {
			return err
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		if err := s.update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

func (s *PostgresStore) findForUpdate(ctx context.Context, ref models.EntityRef) (*models.Record, error) {
	query, args, err := psql.Select(columns...).From(table).
		Where(sq.Eq{"entity_type": string(ref.Type), "entity_id": ref.ID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock publication: %w", err)
	}
	rec, err := scanRecord(tx.RunnerFor(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock publication: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) insertIfAbsent(ctx context.Context, rec *models.Record) (bool, error) {
	query, args, err := insertQuery(rec).Suffix("ON CONFLICT (entity_type, entity_id) DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert publication: %w", err)
	}
	res, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert publication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert publication: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) update(ctx context.Context, rec *models.Record) error {
	query, args, err := psql.Update(table).
		Set("publish_at", rec.PublishAt).
		Set("approved", rec.Approved).
		Set("banner_enabled", rec.BannerEnabled).
		Set("banner_image", rec.BannerImage).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"id": uuid.UUID(rec.ID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update publication: %w", err)
	}
	if _, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update publication: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEntity(ctx context.Context, ref models.EntityRef) (*models.Record, error) {
	return s.findOne(ctx, sq.Eq{"entity_type": string(ref.Type), "entity_id": ref.ID}, "publication for "+ref.String())
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.PublicationID) (*models.Record, error) {
	return s.findOne(ctx, sq.Eq{"id": uuid.UUID(id)}, "publication "+id.String())
}

func (s *PostgresStore) findOne(ctx context.Context, where sq.Sqlizer, what string) (*models.Record, error) {
	query, args, err := psql.Select(columns...).From(table).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find publication: %w", err)
	}
	rec, err := scanRecord(tx.RunnerFor(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find publication: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListPublished(ctx context.Context, now time.Time, filter models.Filter) ([]*models.Record, error) {
	q := psql.Select(columns...).From(table).
		Where(sq.Eq{"approved": true}).
		Where(sq.LtOrEq{"publish_at": now}).
		OrderBy("publish_at DESC", "id DESC")
	if filter.Type != "" {
		q = q.Where(sq.Eq{"entity_type": string(filter.Type)})
	}
	if filter.BannersOnly {
		q = q.Where(sq.Eq{"banner_enabled": true})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	return s.query(ctx, q, "list published")
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Record, error) {
	return s.query(ctx, psql.Select(columns...).From(table).OrderBy("publish_at DESC", "id DESC"), "list publications")
}

func (s *PostgresStore) Previous(ctx context.Context, rec *models.Record) (*models.Record, error) {
	q := psql.Select(columns...).From(table).
		Where(sq.Eq{"approved": true}).
		Where(sq.Or{
			sq.Lt{"publish_at": rec.PublishAt},
			sq.And{sq.Eq{"publish_at": rec.PublishAt}, sq.Lt{"id": uuid.UUID(rec.ID)}},
		}).
		OrderBy("publish_at DESC", "id DESC").
		Limit(1)
	return s.neighbor(ctx, q, "publication before "+rec.ID.String())
}

func (s *PostgresStore) Next(ctx context.Context, rec *models.Record) (*models.Record, error) {
	q := psql.Select(columns...).From(table).
		Where(sq.Eq{"approved": true}).
		Where(sq.Or{
			sq.Gt{"publish_at": rec.PublishAt},
			sq.And{sq.Eq{"publish_at": rec.PublishAt}, sq.Gt{"id": uuid.UUID(rec.ID)}},
		}).
		OrderBy("publish_at ASC", "id ASC").
		Limit(1)
	return s.neighbor(ctx, q, "publication after "+rec.ID.String())
}

func (s *PostgresStore) neighbor(ctx context.Context, q sq.SelectBuilder, what string) (*models.Record, error) {
	records, err := s.query(ctx, q, "find neighbor")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return records[0], nil
}

func (s *PostgresStore) Delete(ctx context.Context, id models.PublicationID) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id": uuid.UUID(id)}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete publication: %w", err)
	}
	res, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete publication: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete publication: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("publication %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, q sq.SelectBuilder, op string) ([]*models.Record, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}
	rows, err := tx.RunnerFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func insertQuery(rec *models.Record) sq.InsertBuilder {
	return psql.Insert(table).Columns(columns...).Values(
		uuid.UUID(rec.ID), string(rec.Entity.Type), rec.Entity.ID, rec.PublishAt, rec.Approved,
		rec.BannerEnabled, rec.BannerImage, rec.CreatedAt, rec.UpdatedAt,
	)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec        models.Record
		id         uuid.UUID
		entityType string
	)
	if err := row.Scan(&id, &entityType, &rec.Entity.ID, &rec.PublishAt, &rec.Approved,
		&rec.BannerEnabled, &rec.BannerImage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ID = models.PublicationID(id)
	rec.Entity.Type = models.EntityType(entityType)
	rec.PublishAt = rec.PublishAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
