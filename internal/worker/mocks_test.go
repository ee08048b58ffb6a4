package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"paperlib/internal/chunkindex"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChunkWriter struct{ mock.Mock }

func (m *MockChunkWriter) Upsert(ctx context.Context, c chunkindex.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockStageMarker struct{ mock.Mock }

func (m *MockStageMarker) MarkStage(ctx context.Context, id string, stage string) error {
	args := m.Called(ctx, id, stage)
	return args.Error(0)
}
