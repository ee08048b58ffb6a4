package worker

import (
	"context"

	"paperlib/internal/chunkindex"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ChunkWriter interface {
	Upsert(ctx context.Context, c chunkindex.Chunk) error
}

type StageMarker interface {
	MarkStage(ctx context.Context, id string, stage string) error
}
