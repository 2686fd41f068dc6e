package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"herald/internal/content/article/models"
	"herald/internal/platform/postgres"
	pubmodels "herald/internal/publication/models"
	"herald/pkg/platform/sentinel"
	"herald/pkg/platform/tx"
)

const table = "articles"

var (
	psql    = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	columns = []string{
		"id", "title", "slug", "summary", "body", "cover_image",
		"allow_banner", "status", "published_at", "created_at",
	}
)

// PostgresStore persists articles in PostgreSQL, joining the transaction in
// ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Article) error {
	query, args, err := psql.Insert(table).
		Columns(columns[1:]...).
		Values(a.Title, a.Slug, a.Summary, a.Body, a.CoverImage,
			a.AllowBanner, int(a.Status), nullTime(a), a.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert article: %w", err)
	}
	if err := tx.RunnerFor(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&a.ID); err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("article slug %q: %w", a.Slug, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.Article, error) {
	query, args, err := psql.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find article: %w", err)
	}
	var (
		a           models.Article
		status      int
		publishedAt sql.NullTime
	)
	err = tx.RunnerFor(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.Title, &a.Slug, &a.Summary, &a.Body, &a.CoverImage,
		&a.AllowBanner, &status, &publishedAt, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	a.Status = pubmodels.DraftStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		a.PublishedAt = &t
	}
	return &a, nil
}

// Save updates the mutable columns. The slug is immutable.
func (s *PostgresStore) Save(ctx context.Context, a *models.Article) error {
	query, args, err := psql.Update(table).
		Set("title", a.Title).
		Set("summary", a.Summary).
		Set("body", a.Body).
		Set("cover_image", a.CoverImage).
		Set("allow_banner", a.AllowBanner).
		Set("status", int(a.Status)).
		Set("published_at", nullTime(a)).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update article: %w", err)
	}
	res, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("article %d: %w", a.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete article: %w", err)
	}
	res, err := tx.RunnerFor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("article %d: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func nullTime(a *models.Article) sql.NullTime {
	if a.PublishedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *a.PublishedAt, Valid: true}
}
