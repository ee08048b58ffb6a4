package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT gemini_api_key, search_top_k, oversample_factor FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.GeminiAPIKey, &s.SearchTopK, &s.OversampleFactor)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET gemini_api_key = $1, search_top_k = $2, oversample_factor = $3, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.SearchTopK, s.OversampleFactor)
	return err
}
