package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paperlib/internal/lifecycle"
)

// MemoryRepo is a Repository held in process memory.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepo(docs ...Document) *MemoryRepo {
	r := &MemoryRepo{docs: make(map[string]Document)}
	for _, d := range docs {
		r.docs[d.ID] = clone(d)
	}
	return r
}

func clone(d Document) Document {
	d.Authors = append([]string(nil), d.Authors...)
	d.Chemistries = append([]string(nil), d.Chemistries...)
	d.Topics = append([]string(nil), d.Topics...)
	return d
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := clone(d)
	return &c, nil
}

func (r *MemoryRepo) Put(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := clone(*doc)
	if prev, ok := r.docs[doc.ID]; ok {
		next.Status = prev.Status
		next.MetadataIncomplete = prev.MetadataIncomplete
		next.CrossrefVerified = prev.CrossrefVerified
		next.NeedsProcessing = prev.NeedsProcessing
	} else {
		next.Status = lifecycle.StatusIncomplete
		next.MetadataIncomplete = true
		next.CrossrefVerified = false
		next.NeedsProcessing = false
	}
	next.UpdatedAt = time.Now()
	r.docs[doc.ID] = next
	return nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.docs, id)
	return nil
}

func (r *MemoryRepo) UpdateLifecycle(_ context.Context, id string, c lifecycle.Classification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d.Status = c.Status
	d.MetadataIncomplete = c.MetadataIncomplete
	d.CrossrefVerified = c.CrossrefVerified
	d.NeedsProcessing = c.NeedsProcessing
	d.UpdatedAt = time.Now()
	r.docs[id] = d
	return nil
}

func (r *MemoryRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs), nil
}

func (r *MemoryRepo) CountByStatus(_ context.Context) (map[lifecycle.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[lifecycle.Status]int)
	for _, d := range r.docs {
		counts[d.Status]++
	}
	return counts, nil
}
