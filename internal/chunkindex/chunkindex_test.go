package chunkindex_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperlib/internal/chunkindex"
	"paperlib/internal/lifecycle"
)

func backends(t *testing.T) map[string]chunkindex.Index {
	t.Helper()
	b, err := chunkindex.OpenBolt(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return map[string]chunkindex.Index{
		"memory": chunkindex.NewMemory(),
		"bolt":   b,
	}
}

func chunk(id, doc string, vec ...float32) chunkindex.Chunk {
	return chunkindex.Chunk{ID: id, DocumentID: doc, Page: 1, Text: "text " + id, Vector: vec}
}

func TestIndex_Nearest(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Upsert(ctx, chunk("c1", "a", 1, 0)))
			require.NoError(t, idx.Upsert(ctx, chunk("c2", "a", 0, 1)))
			require.NoError(t, idx.Upsert(ctx, chunk("c3", "b", 1, 0)))
			require.NoError(t, idx.Upsert(ctx, chunk("c4", "b", 0.7, 0.7)))

			res, err := idx.Nearest(ctx, []float32{1, 0}, 3)
			require.NoError(t, err)
			require.Len(t, res, 3)
			// c1 and c3 tie; insertion order decides.
			assert.Equal(t, "c1", res[0].ID)
			assert.Equal(t, "c3", res[1].ID)
			assert.Equal(t, "c4", res[2].ID)
			assert.GreaterOrEqual(t, res[1].Score, res[2].Score)

			res, err = idx.Nearest(ctx, []float32{1, 0}, 10)
			require.NoError(t, err)
			assert.Len(t, res, 4)

			res, err = idx.Nearest(ctx, []float32{1, 0}, 0)
			require.NoError(t, err)
			assert.Empty(t, res)
		})
	}
}

func TestIndex_UpsertKeepsPosition(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Upsert(ctx, chunk("c1", "a", 1, 0)))
			require.NoError(t, idx.Upsert(ctx, chunk("c2", "a", 1, 0)))
			updated := chunk("c1", "a", 1, 0)
			updated.Text = "rewritten"
			require.NoError(t, idx.Upsert(ctx, updated))

			all, err := idx.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "c1", all[0].ID)
			assert.Equal(t, "rewritten", all[0].Text)
		})
	}
}

func TestIndex_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Upsert(ctx, chunk("c1", "a", 1)))
			require.NoError(t, idx.Upsert(ctx, chunk("c2", "a", 1)))

			f := chunkindex.FilterFields{
				Status:           lifecycle.StatusComplete,
				CrossrefVerified: true,
				Chemistries:      []string{"NMC", "LFP"},
				Topics:           []string{"thermal runaway"},
			}
			require.NoError(t, idx.UpdateMetadata(ctx, []string{"c1", "unknown"}, f))

			all, err := idx.GetAll(ctx)
			require.NoError(t, err)
			assert.True(t, f.Equal(all[0].Filter))
			assert.Equal(t, lifecycle.Status(""), all[1].Filter.Status)
		})
	}
}

func TestIndex_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	for name, idx := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Upsert(ctx, chunk("c1", "a", 1)))
			require.NoError(t, idx.Upsert(ctx, chunk("c2", "b", 1)))
			require.NoError(t, idx.Upsert(ctx, chunk("c3", "a", 1)))

			n, err := idx.DeleteByDocument(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			count, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			all, err := idx.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, "c2", all[0].ID)
		})
	}
}

func TestTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"Empty", nil, ""},
		{"SortsAndDedupes", []string{"NMC", " LFP", "NMC", ""}, "LFP,NMC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined := chunkindex.JoinTags(tt.in)
			assert.Equal(t, tt.want, joined)
			assert.Equal(t, chunkindex.JoinTags(chunkindex.SplitTags(joined)), joined)
		})
	}
	assert.Equal(t, []string{}, chunkindex.SplitTags(" "))
}

func TestFilterFields_EqualIgnoresTagOrder(t *testing.T) {
	a := chunkindex.FilterFields{Status: lifecycle.StatusComplete, Chemistries: []string{"NMC", "LFP"}}
	b := chunkindex.FilterFields{Status: lifecycle.StatusComplete, Chemistries: []string{"LFP", "NMC"}}
	assert.True(t, a.Equal(b))

	b.CrossrefVerified = true
	assert.False(t, a.Equal(b))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, chunkindex.Cosine([]float32{2, 0}, []float32{1, 0}), 1e-6)
	assert.InDelta(t, 0.0, chunkindex.Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), chunkindex.Cosine([]float32{0, 0}, []float32{1, 0}))
}
