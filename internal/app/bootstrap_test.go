package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"paperlib/internal/app"
	"paperlib/internal/chunkindex"
	"paperlib/internal/config"
	"paperlib/internal/vector"
)

type fakeSchema struct {
	failUntil int
	calls     int
	created   *models.Class
}

func (f *fakeSchema) ClassExists(ctx context.Context, className string) (bool, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return false, errors.New("connection refused")
	}
	return false, nil
}

func (f *fakeSchema) CreateClass(ctx context.Context, class *models.Class) error {
	f.created = class
	return nil
}

func (f *fakeSchema) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return f.created, nil
}

func (f *fakeSchema) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return nil
}

func TestEnsureSchemaWithRetry(t *testing.T) {
	t.Run("RetriesUntilReady", func(t *testing.T) {
		s := &fakeSchema{failUntil: 2}
		err := app.EnsureSchemaWithRetry(context.Background(), s, 5, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, s.calls)
		require.NotNil(t, s.created)
		assert.Equal(t, vector.ChunkClass, s.created.Class)
	})

	t.Run("GivesUp", func(t *testing.T) {
		s := &fakeSchema{failUntil: 10}
		err := app.EnsureSchemaWithRetry(context.Background(), s, 3, time.Millisecond)
		assert.Error(t, err)
		assert.Equal(t, 3, s.calls)
	})
}

func TestRetry(t *testing.T) {
	t.Run("AtLeastOnce", func(t *testing.T) {
		calls := 0
		err := app.Retry(context.Background(), 0, 0, "thing", func(context.Context) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := app.Retry(ctx, 5, time.Hour, "thing", func(context.Context) error {
			calls++
			cancel()
			return errors.New("not ready")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestOpenIndex_Bolt(t *testing.T) {
	cfg := &config.Config{ChunkIndexBackend: "bolt", ChunkIndexPath: filepath.Join(t.TempDir(), "chunks.db")}

	idx, closer, err := app.OpenIndex(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	_, ok := idx.(*chunkindex.Bolt)
	assert.True(t, ok)
}

func TestBootstrap_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                     "localhost",
		DBPort:                     54322,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSubscriptions(t *testing.T) {
	noop := nsq.HandlerFunc(func(*nsq.Message) error { return nil })
	subs := app.Subscriptions(noop, noop)

	assert.Len(t, subs, 2)
	assert.Contains(t, subs, config.TopicStage)
	assert.Contains(t, subs, config.TopicChunk)
}
