package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator answers prompts with a Gemini text model.
type Generator struct {
	*clientCache
	model string
}

func NewGenerator(svc SettingsProvider, model string, opts ...option.ClientOption) *Generator {
	return &Generator{clientCache: newClientCache(svc, opts), model: model}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := g.current(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned by %s", g.model)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty answer returned by %s", g.model)
	}
	return sb.String(), nil
}
