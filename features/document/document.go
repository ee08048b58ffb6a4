package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"paperlib/internal/lifecycle"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     string   `json:"year"`
	Journal  string   `json:"journal"`
	DOI      string   `json:"doi,omitempty"`
	URL      string   `json:"url,omitempty"`
	Abstract string   `json:"abstract,omitempty"`

	// Derived; written only through UpdateLifecycle.
	Status             lifecycle.Status `json:"status"`
	MetadataIncomplete bool             `json:"metadata_incomplete"`
	CrossrefVerified   bool             `json:"crossref_verified"`
	NeedsProcessing    bool             `json:"needs_processing"`

	AISummary string `json:"ai_summary,omitempty"`
	FeedBlurb string `json:"feed_blurb,omitempty"`

	Chemistries []string `json:"chemistries"`
	Topics      []string `json:"topics"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Facts projects the record onto the classification inputs.
func (d *Document) Facts(hasContent, fullyProcessed bool) lifecycle.Facts {
	return lifecycle.Facts{
		Title:          d.Title,
		Journal:        d.Journal,
		Year:           d.Year,
		Authors:        d.Authors,
		AISummary:      d.AISummary,
		HasContent:     hasContent,
		FullyProcessed: fullyProcessed,
	}
}

// Lifecycle returns the lifecycle fields currently stored on the record.
func (d *Document) Lifecycle() lifecycle.Classification {
	return lifecycle.Classification{
		Status:             d.Status,
		MetadataIncomplete: d.MetadataIncomplete,
		CrossrefVerified:   d.CrossrefVerified,
		NeedsProcessing:    d.NeedsProcessing,
	}
}

type Repository interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc *Document) error
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, id string) error
	UpdateLifecycle(ctx context.Context, id string, c lifecycle.Classification) error
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[lifecycle.Status]int, error)
}

// ChunkRemover drops every indexed chunk of a document.
type ChunkRemover interface {
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// LedgerResetter forgets a document's pipeline history.
type LedgerResetter interface {
	Reset(ctx context.Context, documentID string) error
}

type Service struct {
	repo   Repository
	chunks ChunkRemover
	ledger LedgerResetter
}

func NewService(repo Repository, chunks ChunkRemover, ledger LedgerResetter) *Service {
	return &Service{repo: repo, chunks: chunks, ledger: ledger}
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Put stores the bibliographic, enrichment and tag fields of doc. Lifecycle
// fields on doc are ignored.
func (s *Service) Put(ctx context.Context, doc *Document) error {
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Authors == nil {
		doc.Authors = []string{}
	}
	doc.Chemistries = NormalizeTags(doc.Chemistries)
	doc.Topics = NormalizeTags(doc.Topics)
	return s.repo.Put(ctx, doc)
}

// PurgeContent removes a document's chunks and pipeline history but keeps the
// bibliographic record. The next refresh reclassifies it.
func (s *Service) PurgeContent(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	n, err := s.chunks.DeleteByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.ledger.Reset(ctx, id); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	slog.InfoContext(ctx, "document content purged", "document_id", id, "chunks_deleted", n)
	return nil
}

// Delete removes the document together with everything it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.PurgeContent(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Export writes the whole store as a JSON object keyed by document id.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(byID); err != nil {
		return 0, fmt.Errorf("encode documents: %w", err)
	}
	return len(byID), nil
}

// Import reads a mapping written by Export and stores every record. Failing
// records are logged and skipped.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var byID map[string]Document
	if err := json.NewDecoder(r).Decode(&byID); err != nil {
		return 0, fmt.Errorf("decode documents: %w", err)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stored := 0
	for _, id := range ids {
		doc := byID[id]
		if doc.ID == "" {
			doc.ID = id
		}
		if err := s.Put(ctx, &doc); err != nil {
			slog.ErrorContext(ctx, "failed to import document", "document_id", id, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}

// NormalizeTags splits on commas, trims, drops empties, de-duplicates
// case-insensitively and sorts. The first spelling seen wins. Commas separate
// tags in the chunk filter copy, so no stored tag may contain one.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
