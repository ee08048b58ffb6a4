package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"paperlib/features/document"
	"paperlib/features/flag"
	"paperlib/internal/chunkindex"
)

type DocumentReader interface {
	Get(ctx context.Context, id string) (*document.Document, error)
}

type SyncReport struct {
	Documents int                 `json:"documents"`
	Chunks    int                 `json:"chunks"`
	Updated   int                 `json:"updated"`
	Skipped   int                 `json:"skipped"`
	Orphans   map[string][]string `json:"orphans"`
	Failed    map[string]string   `json:"failed"`

	mu sync.Mutex
}

func (r *SyncReport) orphan(id string, chunkIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Orphans[id] = chunkIDs
}

func (r *SyncReport) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[id] = err.Error()
}

func (r *SyncReport) add(updated, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated += updated
	r.Skipped += skipped
}

// FilterFor is the authoritative filter copy for a document.
func FilterFor(d *document.Document) chunkindex.FilterFields {
	return chunkindex.FilterFields{
		Status:             d.Status,
		MetadataIncomplete: d.MetadataIncomplete,
		CrossrefVerified:   d.CrossrefVerified,
		Chemistries:        append([]string{}, d.Chemistries...),
		Topics:             append([]string{}, d.Topics...),
	}
}

// Syncer copies document metadata onto their chunks. It is the only writer of
// chunk filter fields.
type Syncer struct {
	docs        DocumentReader
	index       chunkindex.Index
	flags       FlagRaiser
	batchSize   int
	concurrency int
}

func NewSyncer(docs DocumentReader, index chunkindex.Index, flags FlagRaiser, batchSize, concurrency int) *Syncer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Syncer{docs: docs, index: index, flags: flags, batchSize: batchSize, concurrency: concurrency}
}

// Run overwrites every chunk's filter copy from the current document record.
// Chunks whose document no longer exists are reported as orphans and left as
// they are.
func (s *Syncer) Run(ctx context.Context) (*SyncReport, error) {
	chunks, err := s.index.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chunk index: %w", err)
	}

	groups := make(map[string][]chunkindex.Chunk)
	for _, c := range chunks {
		groups[c.DocumentID] = append(groups[c.DocumentID], c)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &SyncReport{
		Documents: len(groups),
		Chunks:    len(chunks),
		Orphans:   make(map[string][]string),
		Failed:    make(map[string]string),
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			s.syncDocument(ctx, id, groups[id], report)
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "sync complete",
		"documents", report.Documents, "chunks", report.Chunks, "updated", report.Updated,
		"skipped", report.Skipped, "orphans", len(report.Orphans), "failed", len(report.Failed))
	return report, ctx.Err()
}

func (s *Syncer) syncDocument(ctx context.Context, id string, chunks []chunkindex.Chunk, report *SyncReport) {
	if err := ctx.Err(); err != nil {
		report.fail(id, err)
		return
	}

	doc, err := s.docs.Get(ctx, id)
	if errors.Is(err, document.ErrNotFound) {
		chunkIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID
		}
		report.orphan(id, chunkIDs)
		slog.WarnContext(ctx, "chunks reference a missing document", "document_id", id, "chunks", len(chunkIDs))
		s.raise(ctx, flag.KindOrphanChunk, id, fmt.Sprintf("%d chunks reference a missing document", len(chunkIDs)), chunkIDs)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read document for sync", "document_id", id, "error", err)
		report.fail(id, err)
		s.raise(ctx, flag.KindSyncFailed, id, err.Error(), nil)
		return
	}

	want := FilterFor(doc)
	var stale []string
	for _, c := range chunks {
		if !c.Filter.Equal(want) {
			stale = append(stale, c.ID)
		}
	}

	written := 0
	for start := 0; start < len(stale); start += s.batchSize {
		end := start + s.batchSize
		if end > len(stale) {
			end = len(stale)
		}
		if err := s.index.UpdateMetadata(ctx, stale[start:end], want); err != nil {
			slog.ErrorContext(ctx, "failed to update chunk metadata", "document_id", id, "error", err)
			report.add(written, len(chunks)-len(stale))
			report.fail(id, err)
			s.raise(ctx, flag.KindSyncFailed, id, err.Error(), stale[start:])
			return
		}
		written += end - start
	}
	report.add(written, len(chunks)-len(stale))
}

func (s *Syncer) raise(ctx context.Context, kind flag.Kind, id, msg string, chunkIDs []string) {
	if s.flags == nil {
		return
	}
	if err := s.flags.Raise(ctx, kind, id, msg, chunkIDs); err != nil {
		slog.WarnContext(ctx, "flag not recorded", "kind", kind, "document_id", id, "error", err)
	}
}
