package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const EmbeddingModel = "gemini-embedding-001"

// DynamicEmbedder embeds text with the API key currently stored in settings.
type DynamicEmbedder struct {
	*clientCache
}

func NewDynamicEmbedder(svc SettingsProvider, opts ...option.ClientOption) *DynamicEmbedder {
	return &DynamicEmbedder{clientCache: newClientCache(svc, opts)}
}

func (e *DynamicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := e.current(ctx)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "embedding content", "model", EmbeddingModel, "length", len(text))
	res, err := client.EmbeddingModel(EmbeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}
