package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperlib/features/document"
	"paperlib/features/ledger"
	"paperlib/internal/adapter/gemini"
	"paperlib/internal/chunkindex"
	"paperlib/internal/retrieval"
)

func TestRenderAnswer(t *testing.T) {
	answer := &retrieval.Answer{
		Text: "Fade is driven by SEI growth [smith2020 p.3].",
		Citations: []retrieval.Citation{
			{DocumentID: "smith2020", Page: 3, Section: "Results"},
			{DocumentID: "lee2022", Page: 7},
		},
	}

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderAnswer(&buf, answer, nil, false))
		out := buf.String()
		assert.Contains(t, out, answer.Text)
		assert.Contains(t, out, "  - smith2020 p.3 §Results\n")
		assert.Contains(t, out, "  - lee2022 p.7\n")
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderAnswer(&buf, answer, nil, true))
		var got retrieval.Answer
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, answer.Text, got.Text)
		assert.Equal(t, answer.Citations, got.Citations)
	})

	t.Run("NoPassages", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderAnswer(&buf, nil, retrieval.ErrNoRelevantPassages, false))
		assert.Equal(t, "No relevant passages found.\n", buf.String())
	})

	t.Run("NoPassagesJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderAnswer(&buf, nil, retrieval.ErrNoRelevantPassages, true))
		assert.Contains(t, buf.String(), `"citations": []`)
	})
}

func TestRenderAnswer_FailuresExitNonZero(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"MissingKey", fmt.Errorf("%w: embed: %w", retrieval.ErrBackendUnavailable, gemini.ErrMissingAPIKey), "GEMINI_API_KEY"},
		{"Timeout", fmt.Errorf("%w: generate: %w", retrieval.ErrTimeout, context.DeadlineExceeded), "did not answer in time"},
		{"Unavailable", fmt.Errorf("%w: search: refused", retrieval.ErrBackendUnavailable), "unreachable"},
		{"Other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := renderAnswer(&buf, nil, tt.err, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, buf.String())
		})
	}
}

func TestExportImportFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	src := document.NewService(document.NewMemoryRepo(
		document.Document{ID: "smith2020", Title: "Cathode Aging", Chemistries: []string{"LFP"}},
	), chunkindex.NewMemory(), ledger.NewService(ledger.NewMemoryRepo()))
	srcLedger := ledger.NewService(ledger.NewMemoryRepo())
	require.NoError(t, srcLedger.MarkStage(ctx, "smith2020", "parsed"))

	require.NoError(t, writeFile(filepath.Join(dir, documentsFile), func(w io.Writer) error {
		_, err := src.Export(ctx, w)
		return err
	}))
	require.NoError(t, writeFile(filepath.Join(dir, ledgerFile), func(w io.Writer) error {
		return srcLedger.Export(ctx, w)
	}))

	dstLedger := ledger.NewService(ledger.NewMemoryRepo())
	dst := document.NewService(document.NewMemoryRepo(), chunkindex.NewMemory(), dstLedger)

	n, err := readFile(filepath.Join(dir, documentsFile), func(r io.Reader) (int, error) { return dst.Import(ctx, r) })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = readFile(filepath.Join(dir, ledgerFile), func(r io.Reader) (int, error) { return dstLedger.Import(ctx, r) })
	require.NoError(t, err)

	doc, err := dst.Get(ctx, "smith2020")
	require.NoError(t, err)
	assert.Equal(t, "Cathode Aging", doc.Title)

	l, err := dstLedger.Stages(ctx)
	require.NoError(t, err)
	assert.Contains(t, l.Parsed, "smith2020")

	missing, err := readFile(filepath.Join(dir, "absent.json"), func(r io.Reader) (int, error) { return 99, nil })
	require.NoError(t, err)
	assert.Zero(t, missing)
}
