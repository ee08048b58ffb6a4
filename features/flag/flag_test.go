package flag_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperlib/features/flag"
)

func TestService_RaiseDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc := flag.NewService(flag.NewMemoryRepo())

	require.NoError(t, svc.Raise(ctx, flag.KindOrphanChunk, "gone", "2 chunks", []string{"c1", "c2"}))
	require.NoError(t, svc.Raise(ctx, flag.KindOrphanChunk, "gone", "3 chunks", []string{"c1", "c2", "c3"}))
	require.NoError(t, svc.Raise(ctx, flag.KindSyncFailed, "gone", "timeout", nil))

	flags, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, flag.KindOrphanChunk, flags[0].Kind)
	assert.Equal(t, "3 chunks", flags[0].Message)
	assert.Equal(t, []string{}, flags[1].ChunkIDs)

	require.NoError(t, svc.Resolve(ctx, flags[0].ID))
	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ErrorIs(t, svc.Resolve(ctx, "nope"), flag.ErrNotFound)
}

func TestPostgresRepo_Raise(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO flags (kind, document_id, chunk_ids, message)`)).
		WithArgs("orphan_chunk", "gone", pq.Array([]string{"c1"}), "1 chunk").
		WillReturnRows(sqlmock.NewRows([]string{"id", "raised_at"}).AddRow("f-1", now))

	f := &flag.Flag{Kind: flag.KindOrphanChunk, DocumentID: "gone", ChunkIDs: []string{"c1"}, Message: "1 chunk"}
	require.NoError(t, flag.NewPostgresRepo(db).Raise(context.Background(), f))
	assert.Equal(t, "f-1", f.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler(t *testing.T) {
	repo := flag.NewMemoryRepo()
	svc := flag.NewService(repo)
	require.NoError(t, svc.Raise(context.Background(), flag.KindClassifyFailed, "a", "db down", nil))
	h := flag.NewHandler(svc)

	t.Run("List", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.List(w, httptest.NewRequest(http.MethodGet, "/flags", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"kind":"classify_failed"`)
	})

	t.Run("ResolveUnknown", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/flags/nope", nil)
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()
		h.Resolve(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
