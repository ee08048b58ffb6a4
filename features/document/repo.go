package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"paperlib/internal/lifecycle"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `id, title, authors, year, journal, doi, url, abstract, status, metadata_incomplete, crossref_verified, needs_processing, ai_summary, feed_blurb, chemistries, topics, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	d := &Document{}
	var status string
	err := row.Scan(&d.ID, &d.Title, pq.Array(&d.Authors), &d.Year, &d.Journal, &d.DOI, &d.URL, &d.Abstract,
		&status, &d.MetadataIncomplete, &d.CrossrefVerified, &d.NeedsProcessing,
		&d.AISummary, &d.FeedBlurb, pq.Array(&d.Chemistries), pq.Array(&d.Topics), &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = lifecycle.Status(status)
	return d, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Put upserts everything except the lifecycle columns, which keep their
// defaults on insert and are left alone on update.
func (r *PostgresRepo) Put(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO documents (id, title, authors, year, journal, doi, url, abstract, ai_summary, feed_blurb, chemistries, topics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, authors = EXCLUDED.authors, year = EXCLUDED.year, journal = EXCLUDED.journal, doi = EXCLUDED.doi, url = EXCLUDED.url, abstract = EXCLUDED.abstract, ai_summary = EXCLUDED.ai_summary, feed_blurb = EXCLUDED.feed_blurb, chemistries = EXCLUDED.chemistries, topics = EXCLUDED.topics, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Title, textArray(d.Authors), d.Year, d.Journal, d.DOI, d.URL, d.Abstract,
		d.AISummary, d.FeedBlurb, textArray(d.Chemistries), textArray(d.Topics))
	return err
}

// textArray binds v as a TEXT[]. A nil slice becomes '{}' since the array
// columns are NOT NULL.
func textArray(v []string) interface{} {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + selectColumns + ` FROM documents ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepo) UpdateLifecycle(ctx context.Context, id string, c lifecycle.Classification) error {
	query := `UPDATE documents SET status = $1, metadata_incomplete = $2, crossref_verified = $3, needs_processing = $4, updated_at = NOW() WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, string(c.Status), c.MetadataIncomplete, c.CrossrefVerified, c.NeedsProcessing, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[lifecycle.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[lifecycle.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[lifecycle.Status(status)] = n
	}
	return counts, rows.Err()
}
