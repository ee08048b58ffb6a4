package chunkindex

import (
	"context"
	"math"
	"sort"
	"strings"

	"paperlib/internal/lifecycle"
)

// FilterFields is the denormalized copy of document metadata carried by every
// chunk so that retrieval can filter without touching the metadata store.
type FilterFields struct {
	Status             lifecycle.Status `json:"status"`
	MetadataIncomplete bool             `json:"metadata_incomplete"`
	CrossrefVerified   bool             `json:"crossref_verified"`
	Chemistries        []string         `json:"chemistries"`
	Topics             []string         `json:"topics"`
}

// Equal compares tag lists as sets.
func (f FilterFields) Equal(o FilterFields) bool {
	return f.Status == o.Status &&
		f.MetadataIncomplete == o.MetadataIncomplete &&
		f.CrossrefVerified == o.CrossrefVerified &&
		JoinTags(f.Chemistries) == JoinTags(o.Chemistries) &&
		JoinTags(f.Topics) == JoinTags(o.Topics)
}

type Chunk struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Page       int          `json:"page"`
	Index      int          `json:"index"`
	Section    string       `json:"section"`
	Text       string       `json:"text"`
	Vector     []float32    `json:"vector,omitempty"`
	Filter     FilterFields `json:"filter"`
}

type Result struct {
	Chunk
	Score float32 `json:"score"`
}

// Index stores chunks with their vectors. Implementations never consult the
// metadata store.
type Index interface {
	Upsert(ctx context.Context, c Chunk) error
	GetAll(ctx context.Context) ([]Chunk, error)
	// UpdateMetadata overwrites the filter copy on the given chunks. Unknown
	// IDs are skipped.
	UpdateMetadata(ctx context.Context, ids []string, f FilterFields) error
	// Nearest returns at most n chunks ordered by descending similarity.
	Nearest(ctx context.Context, vec []float32, n int) ([]Result, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Count(ctx context.Context) (int, error)
}

// JoinTags renders a tag set in the comma-joined form stored on chunks.
func JoinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		clean = append(clean, t)
	}
	sort.Strings(clean)
	return strings.Join(clean, ",")
}

// SplitTags parses the comma-joined form back into a set.
func SplitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Cosine returns the cosine similarity of a and b over their common prefix.
// Zero vectors score 0.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rank scores chunks against vec and keeps the n best. chunks must be in
// insertion order; equal scores keep that order.
func rank(chunks []Chunk, vec []float32, n int) []Result {
	if n <= 0 {
		return []Result{}
	}
	results := make([]Result, len(chunks))
	for i, c := range chunks {
		results[i] = Result{Chunk: c, Score: Cosine(c.Vector, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > n {
		results = results[:n]
	}
	return results
}
