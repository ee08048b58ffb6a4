package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"
	"golang.org/x/time/rate"

	"paperlib/internal/chunkindex"
	"paperlib/internal/middleware"
)

const defaultEmbedTimeout = 60 * time.Second

// ChunkConsumer embeds parsed chunks and writes them to the chunk index. The
// filter copy stays empty until the next metadata sync.
type ChunkConsumer struct {
	embedder Embedder
	store    ChunkWriter
	timeout  time.Duration
	limiter  *rate.Limiter
}

func NewChunkConsumer(e Embedder, s ChunkWriter, timeout time.Duration) *ChunkConsumer {
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	return &ChunkConsumer{embedder: e, store: s, timeout: timeout}
}

// WithRateLimit caps embedding calls at rps per second. A non-positive rps
// leaves the consumer unlimited.
func (h *ChunkConsumer) WithRateLimit(rps float64, burst int) *ChunkConsumer {
	if rps <= 0 {
		h.limiter = nil
		return h
	}
	if burst < 1 {
		burst = 1
	}
	h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return h
}

func (h *ChunkConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload ChunkPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	if payload.ChunkID == "" || payload.DocumentID == "" || strings.TrimSpace(payload.Text) == "" {
		slog.ErrorContext(ctx, "missing required fields, dropping", "chunk_id", payload.ChunkID, "document_id", payload.DocumentID)
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if h.limiter != nil {
		if err := h.limiter.Wait(embedCtx); err != nil {
			slog.WarnContext(ctx, "rate limit wait aborted, requeueing", "error", err, "chunk_id", payload.ChunkID)
			return err
		}
	}

	vector, err := h.embedder.Embed(embedCtx, EmbeddingText(payload))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err, "document_id", payload.DocumentID, "chunk_id", payload.ChunkID)
		return err
	}

	chunk := chunkindex.Chunk{
		ID:         payload.ChunkID,
		DocumentID: payload.DocumentID,
		Page:       payload.Page,
		Index:      payload.Index,
		Section:    payload.Section,
		Text:       payload.Text,
		Vector:     vector,
	}
	if err := h.store.Upsert(embedCtx, chunk); err != nil {
		slog.ErrorContext(ctx, "store chunk failed", "error", err, "document_id", payload.DocumentID, "chunk_id", payload.ChunkID)
		return err
	}

	slog.InfoContext(ctx, "chunk stored", "document_id", payload.DocumentID, "chunk_id", payload.ChunkID)
	return nil
}

// EmbeddingText prefixes the chunk body with its location so the vector
// carries section context.
func EmbeddingText(p ChunkPayload) string {
	header := fmt.Sprintf("Document: %s\nPage: %d", p.DocumentID, p.Page)
	if p.Section != "" {
		header += "\nSection: " + p.Section
	}
	return header + "\n---\n" + p.Text
}
