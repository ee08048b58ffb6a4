package ask

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"paperlib/internal/middleware"
	"paperlib/internal/retrieval"
)

const (
	ServerName    = "paperlib"
	ServerVersion = "1.0.0"

	ToolAsk    = "paper_ask"
	ToolSearch = "paper_search"

	noPassages = "No relevant passages found."
)

type ToolInput struct {
	Question  string `json:"question" jsonschema:"natural-language question about the paper library"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"maximum passages to use (default from settings)"`
	Chemistry string `json:"chemistry,omitempty" jsonschema:"only use papers tagged with this chemistry"`
	Topic     string `json:"topic,omitempty" jsonschema:"only use papers whose topic tags contain this text"`
}

type AskOutput struct {
	Answer    string               `json:"answer"`
	Citations []retrieval.Citation `json:"citations"`
}

type Passage struct {
	Citation string  `json:"citation"`
	Score    float32 `json:"score"`
	Text     string  `json:"text"`
}

type SearchOutput struct {
	Passages []Passage `json:"passages"`
	Count    int       `json:"count"`
}

// NewMCPServer exposes ask and search as MCP tools.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAsk,
		Description: "Answer a question from the paper library. Every claim cites a document id and page.",
	}, h.handleAsk)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSearch,
		Description: "Return the passages most similar to a question without generating an answer.",
	}, h.handleSearch)
	return server
}

// MCPHandler serves the MCP server over streamable HTTP.
func (h *Handler) MCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func (h *Handler) toolOptions(in ToolInput) (retrieval.Options, error) {
	if strings.TrimSpace(in.Question) == "" {
		return retrieval.Options{}, retrieval.ErrEmptyQuestion
	}
	if in.TopK < 0 {
		return retrieval.Options{}, errors.New("top_k must not be negative")
	}
	return h.Options(in.TopK, in.Chemistry, in.Topic)
}

func (h *Handler) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, in ToolInput) (*mcp.CallToolResult, AskOutput, error) {
	ctx = middleware.WithOperation(ctx, ToolAsk)
	opts, err := h.toolOptions(in)
	if err != nil {
		return nil, AskOutput{}, err
	}

	answer, err := h.retriever.Ask(ctx, in.Question, opts)
	if errors.Is(err, retrieval.ErrNoRelevantPassages) {
		return nil, AskOutput{Answer: noPassages, Citations: []retrieval.Citation{}}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "tool call failed", "tool", ToolAsk, "error", err)
		return nil, AskOutput{}, err
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", ToolAsk, "citations", len(answer.Citations))
	return nil, AskOutput{Answer: answer.Text, Citations: answer.Citations}, nil
}

func (h *Handler) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in ToolInput) (*mcp.CallToolResult, SearchOutput, error) {
	ctx = middleware.WithOperation(ctx, ToolSearch)
	opts, err := h.toolOptions(in)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	results, err := h.retriever.Retrieve(ctx, in.Question, opts)
	if errors.Is(err, retrieval.ErrNoRelevantPassages) {
		return nil, SearchOutput{Passages: []Passage{}}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "tool call failed", "tool", ToolSearch, "error", err)
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Passages: make([]Passage, len(results)), Count: len(results)}
	for i, r := range results {
		c := retrieval.Citation{DocumentID: r.DocumentID, Page: r.Page, Section: r.Section}
		out.Passages[i] = Passage{Citation: c.String(), Score: r.Score, Text: strings.TrimSpace(r.Text)}
	}
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", out.Count)
	return nil, out, nil
}
