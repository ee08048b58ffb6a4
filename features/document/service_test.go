package document_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperlib/features/document"
	"paperlib/internal/lifecycle"
)

type MockChunks struct {
	mock.Mock
}

func (m *MockChunks) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	args := m.Called(ctx, documentID)
	return args.Int(0), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Reset(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func TestService_Put(t *testing.T) {
	repo := document.NewMemoryRepo()
	svc := document.NewService(repo, &MockChunks{}, &MockLedger{})
	ctx := context.Background()

	t.Run("NormalizesTags", func(t *testing.T) {
		doc := &document.Document{
			ID:          " smith2020 ",
			Title:       "Cathode Aging",
			Chemistries: []string{"NMC", " nmc", "", "LFP"},
			Topics:      []string{"degradation", "Degradation "},
		}
		require.NoError(t, svc.Put(ctx, doc))

		got, err := svc.Get(ctx, "smith2020")
		require.NoError(t, err)
		assert.Equal(t, []string{"LFP", "NMC"}, got.Chemistries)
		assert.Equal(t, []string{"degradation"}, got.Topics)
	})

	t.Run("IgnoresLifecycleFields", func(t *testing.T) {
		doc := &document.Document{ID: "jones2021", Status: lifecycle.StatusComplete, NeedsProcessing: true}
		require.NoError(t, svc.Put(ctx, doc))

		got, err := svc.Get(ctx, "jones2021")
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusIncomplete, got.Status)
		assert.False(t, got.NeedsProcessing)
	})

	t.Run("SplitsCommaSeparatedTags", func(t *testing.T) {
		doc := &document.Document{ID: "kim2023", Chemistries: []string{"Li-S,Li-O2", " li-s "}, Topics: []string{"cycling, safety"}}
		require.NoError(t, svc.Put(ctx, doc))

		got, err := svc.Get(ctx, "kim2023")
		require.NoError(t, err)
		assert.Equal(t, []string{"Li-O2", "Li-S"}, got.Chemistries)
		assert.Equal(t, []string{"cycling", "safety"}, got.Topics)
	})

	t.Run("StoresIncompleteRecordWithoutAuthors", func(t *testing.T) {
		require.NoError(t, svc.Put(ctx, &document.Document{ID: "anon2019", Title: "T", Journal: "J", Year: "2019"}))

		got, err := svc.Get(ctx, "anon2019")
		require.NoError(t, err)
		assert.Empty(t, got.Authors)
		assert.Equal(t, lifecycle.StatusIncomplete, got.Status)
	})

	t.Run("RejectsBlankID", func(t *testing.T) {
		assert.Error(t, svc.Put(ctx, &document.Document{ID: "  "}))
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		id        string
		chunkErr  error
		wantErr   bool
		wantGone  bool
		ledgerHit bool
	}{
		{name: "RemovesChunksLedgerAndRecord", id: "smith2020", wantGone: true, ledgerHit: true},
		{name: "ChunkFailureKeepsRecord", id: "smith2020", chunkErr: errors.New("weaviate down"), wantErr: true},
		{name: "UnknownDocument", id: "missing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := document.NewMemoryRepo(document.Document{ID: "smith2020"})
			chunks := &MockChunks{}
			ledger := &MockLedger{}
			chunks.On("DeleteByDocument", ctx, tt.id).Return(3, tt.chunkErr).Maybe()
			ledger.On("Reset", ctx, tt.id).Return(nil).Maybe()

			svc := document.NewService(repo, chunks, ledger)
			err := svc.Delete(ctx, tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			_, getErr := repo.Get(ctx, "smith2020")
			assert.Equal(t, tt.wantGone, errors.Is(getErr, document.ErrNotFound))
			if tt.ledgerHit {
				ledger.AssertCalled(t, "Reset", ctx, tt.id)
			} else {
				ledger.AssertNotCalled(t, "Reset", ctx, tt.id)
			}
		})
	}
}

func TestService_ExportImport(t *testing.T) {
	ctx := context.Background()
	src := document.NewMemoryRepo(
		document.Document{ID: "a", Title: "Alpha", Authors: []string{"Ann"}, Year: "2019", Journal: "J", Chemistries: []string{"NMC"}},
		document.Document{ID: "b", Title: "Beta", Topics: []string{"thermal runaway"}},
	)
	exporter := document.NewService(src, &MockChunks{}, &MockLedger{})

	var buf bytes.Buffer
	n, err := exporter.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Contains(t, raw, "a")
	assert.Equal(t, "Beta", raw["b"]["title"])

	dst := document.NewMemoryRepo()
	importer := document.NewService(dst, &MockChunks{}, &MockLedger{})
	n, err = importer.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
	assert.Equal(t, []string{"Ann"}, got.Authors)
	assert.Equal(t, []string{"NMC"}, got.Chemistries)
}

func TestService_ImportRejectsMalformed(t *testing.T) {
	svc := document.NewService(document.NewMemoryRepo(), &MockChunks{}, &MockLedger{})
	_, err := svc.Import(context.Background(), bytes.NewBufferString("[1,2,3]"))
	assert.Error(t, err)
}
