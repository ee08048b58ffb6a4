package chunkindex

import (
	"context"
	"sync"
)

// Memory is a brute-force cosine Index held in process memory.
type Memory struct {
	mu     sync.RWMutex
	chunks []Chunk
	pos    map[string]int
}

func NewMemory() *Memory {
	return &Memory{pos: make(map[string]int)}
}

func copyChunk(c Chunk) Chunk {
	c.Vector = append([]float32(nil), c.Vector...)
	c.Filter.Chemistries = append([]string(nil), c.Filter.Chemistries...)
	c.Filter.Topics = append([]string(nil), c.Filter.Topics...)
	return c
}

// Upsert replaces an existing chunk in place, keeping its insertion position.
func (m *Memory) Upsert(_ context.Context, c Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.pos[c.ID]; ok {
		m.chunks[i] = copyChunk(c)
		return nil
	}
	m.pos[c.ID] = len(m.chunks)
	m.chunks = append(m.chunks, copyChunk(c))
	return nil
}

func (m *Memory) GetAll(_ context.Context) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chunk, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = copyChunk(c)
	}
	return out, nil
}

func (m *Memory) UpdateMetadata(_ context.Context, ids []string, f FilterFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		i, ok := m.pos[id]
		if !ok {
			continue
		}
		m.chunks[i].Filter = FilterFields{
			Status:             f.Status,
			MetadataIncomplete: f.MetadataIncomplete,
			CrossrefVerified:   f.CrossrefVerified,
			Chemistries:        append([]string(nil), f.Chemistries...),
			Topics:             append([]string(nil), f.Topics...),
		}
	}
	return nil
}

func (m *Memory) Nearest(ctx context.Context, vec []float32, n int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, _ := m.GetAll(ctx)
	return rank(all, vec, n), nil
}

func (m *Memory) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	removed := 0
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	m.pos = make(map[string]int, len(kept))
	for i, c := range kept {
		m.pos[c.ID] = i
	}
	return removed, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}
