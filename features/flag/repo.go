package flag

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Raise(ctx context.Context, f *Flag) error {
	query := `
		INSERT INTO flags (kind, document_id, chunk_ids, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, document_id) DO UPDATE
		SET chunk_ids = EXCLUDED.chunk_ids, message = EXCLUDED.message, raised_at = NOW()
		RETURNING id, raised_at`
	return r.db.QueryRowContext(ctx, query, string(f.Kind), f.DocumentID, pq.Array(f.ChunkIDs), f.Message).Scan(&f.ID, &f.RaisedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Flag, error) {
	query := `SELECT id, kind, document_id, chunk_ids, message, raised_at FROM flags ORDER BY raised_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		var f Flag
		var kind string
		if err := rows.Scan(&f.ID, &kind, &f.DocumentID, pq.Array(&f.ChunkIDs), &f.Message, &f.RaisedAt); err != nil {
			return nil, err
		}
		f.Kind = Kind(kind)
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (r *PostgresRepo) Resolve(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM flags WHERE id = $1`, id)
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
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flags`).Scan(&count)
	return count, err
}

// MemoryRepo keeps flags in process memory.
type MemoryRepo struct {
	mu    sync.Mutex
	flags map[string]Flag
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{flags: make(map[string]Flag)}
}

func (r *MemoryRepo) Raise(_ context.Context, f *Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.flags {
		if existing.Kind == f.Kind && existing.DocumentID == f.DocumentID {
			f.ID = id
			break
		}
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.RaisedAt = time.Now()
	r.flags[f.ID] = *f
	return nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (r *MemoryRepo) Resolve(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.flags, id)
	return nil
}

func (r *MemoryRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags), nil
}
