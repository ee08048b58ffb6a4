package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "paperlib/internal/adapter/weaviate"
	"paperlib/internal/chunkindex"
	"paperlib/internal/config"
	"paperlib/internal/vector"
)

type Dependencies struct {
	DB    *sql.DB
	Index chunkindex.Index

	closers []io.Closer
}

func (d *Dependencies) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Bootstrap connects to Postgres, applies migrations and opens the chunk
// index selected by cfg.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{DB: db, closers: []io.Closer{db}}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		deps.Close()
		return nil, err
	}

	index, closer, err := OpenIndex(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Index = index
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}
	return deps, nil
}

func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)
}

// OpenDB opens Postgres and pings it until it answers or the retry budget
// runs out.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	err = Retry(ctx, cfg.BootstrapRetryAttempts, delay, "postgres", db.PingContext)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied", "path", path)
	return nil
}

// OpenIndex returns the configured chunk index and, for file-backed indexes,
// the closer that releases it.
func OpenIndex(ctx context.Context, cfg *config.Config) (chunkindex.Index, io.Closer, error) {
	switch cfg.ChunkIndexBackend {
	case "bolt":
		b, err := chunkindex.OpenBolt(cfg.ChunkIndexPath)
		if err != nil {
			return nil, nil, fmt.Errorf("bolt index error: %w", err)
		}
		slog.Info("chunk index opened", "backend", "bolt", "path", cfg.ChunkIndexPath)
		return b, b, nil
	default:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, nil, fmt.Errorf("weaviate client error: %w", err)
		}
		delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
		if err := EnsureSchemaWithRetry(ctx, vector.NewSchema(client), cfg.BootstrapRetryAttempts, delay); err != nil {
			return nil, nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		slog.Info("chunk index opened", "backend", "weaviate", "host", cfg.WeaviateHost)
		return wstore.NewStore(client), nil, nil
	}
}

func EnsureSchemaWithRetry(ctx context.Context, client vector.SchemaClient, attempts int, delay time.Duration) error {
	return Retry(ctx, attempts, delay, "weaviate schema", func(ctx context.Context) error {
		return vector.EnsureSchema(ctx, client)
	})
}

// Retry calls fn up to attempts times, sleeping delay between failures. It
// always makes at least one call.
func Retry(ctx context.Context, attempts int, delay time.Duration, what string, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.Warn("dependency not ready, retrying", "dependency", what, "attempt", i+1, "max_attempts", attempts, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
