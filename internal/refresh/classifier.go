package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"paperlib/features/document"
	"paperlib/features/flag"
	"paperlib/features/ledger"
	"paperlib/internal/content"
	"paperlib/internal/lifecycle"
)

type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]document.Document, error)
	UpdateLifecycle(ctx context.Context, id string, c lifecycle.Classification) error
}

type LedgerReader interface {
	Stages(ctx context.Context) (*ledger.Ledger, error)
}

type PresenceSource interface {
	Snapshot(ctx context.Context) (content.Set, error)
}

type FlagRaiser interface {
	Raise(ctx context.Context, kind flag.Kind, documentID, message string, chunkIDs []string) error
}

// ClassifyAll evaluates every document against one ledger and presence snapshot.
func ClassifyAll(docs []document.Document, l *ledger.Ledger, p content.Presence) map[string]lifecycle.Classification {
	out := make(map[string]lifecycle.Classification, len(docs))
	for i := range docs {
		d := &docs[i]
		out[d.ID] = lifecycle.Classify(d.Facts(p.Has(d.ID), l.IsFullyProcessed(d.ID)))
	}
	return out
}

type ClassifyReport struct {
	Documents int                      `json:"documents"`
	Updated   int                      `json:"updated"`
	Counts    map[lifecycle.Status]int `json:"counts"`
	Failed    map[string]string        `json:"failed"`
}

// Classifier writes derived lifecycle fields back to the metadata store.
type Classifier struct {
	docs     DocumentStore
	ledger   LedgerReader
	presence PresenceSource
	flags    FlagRaiser
}

func NewClassifier(docs DocumentStore, l LedgerReader, presence PresenceSource, flags FlagRaiser) *Classifier {
	return &Classifier{docs: docs, ledger: l, presence: presence, flags: flags}
}

// Run classifies the whole corpus and writes only records whose lifecycle
// fields changed. A failed write is reported for that document and the pass
// continues.
func (c *Classifier) Run(ctx context.Context) (*ClassifyReport, error) {
	docs, err := c.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	l, err := c.ledger.Stages(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	presence, err := c.presence.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read content presence: %w", err)
	}

	report := &ClassifyReport{
		Documents: len(docs),
		Counts:    make(map[lifecycle.Status]int),
		Failed:    make(map[string]string),
	}
	derived := ClassifyAll(docs, l, presence)

	for _, d := range docs {
		next := derived[d.ID]
		report.Counts[next.Status]++
		if d.Lifecycle() == next {
			continue
		}
		if err := c.docs.UpdateLifecycle(ctx, d.ID, next); err != nil {
			slog.ErrorContext(ctx, "failed to write lifecycle", "document_id", d.ID, "status", next.Status, "error", err)
			report.Failed[d.ID] = err.Error()
			c.raise(ctx, flag.KindClassifyFailed, d.ID, err.Error(), nil)
			continue
		}
		slog.DebugContext(ctx, "lifecycle changed", "document_id", d.ID, "from", d.Status, "to", next.Status)
		report.Updated++
	}

	slog.InfoContext(ctx, "classification complete",
		"documents", report.Documents, "updated", report.Updated, "failed", len(report.Failed))
	return report, nil
}

func (c *Classifier) raise(ctx context.Context, kind flag.Kind, id, msg string, chunkIDs []string) {
	if c.flags == nil {
		return
	}
	if err := c.flags.Raise(ctx, kind, id, msg, chunkIDs); err != nil {
		slog.WarnContext(ctx, "flag not recorded", "kind", kind, "document_id", id, "error", err)
	}
}
