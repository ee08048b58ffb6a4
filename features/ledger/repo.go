package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Stages(ctx context.Context) (*Ledger, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document_id, stage FROM processing_ledger`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := New()
	for rows.Next() {
		var id, stage string
		if err := rows.Scan(&id, &stage); err != nil {
			return nil, err
		}
		l.Add(id, Stage(stage))
	}
	return l, rows.Err()
}

func (r *PostgresRepo) MarkStage(ctx context.Context, id string, stage Stage) error {
	query := `INSERT INTO processing_ledger (document_id, stage) VALUES ($1, $2) ON CONFLICT (document_id, stage) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id, string(stage)); err != nil {
		return fmt.Errorf("mark stage: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Reset(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM processing_ledger WHERE document_id = $1`, id)
	return err
}

// MemoryRepo keeps the ledger in process memory.
type MemoryRepo struct {
	mu sync.RWMutex
	l  *Ledger
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{l: New()}
}

func (r *MemoryRepo) Stages(_ context.Context) (*Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := New()
	for _, stage := range Stages {
		for id := range r.l.set(stage) {
			out.Add(id, stage)
		}
	}
	return out, nil
}

func (r *MemoryRepo) MarkStage(_ context.Context, id string, stage Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l.Add(id, stage)
	return nil
}

func (r *MemoryRepo) Reset(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stage := range Stages {
		delete(r.l.set(stage), id)
	}
	return nil
}
