package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"paperlib/internal/middleware"
	"paperlib/internal/retrieval"
	"paperlib/internal/vocabulary"
)

type Retriever interface {
	Retrieve(ctx context.Context, question string, opts retrieval.Options) ([]retrieval.RetrievedChunk, error)
	Ask(ctx context.Context, question string, opts retrieval.Options) (*retrieval.Answer, error)
}

type Handler struct {
	retriever Retriever
	vocab     *vocabulary.Vocabulary
}

func NewHandler(r Retriever, vocab *vocabulary.Vocabulary) *Handler {
	if vocab == nil {
		vocab = vocabulary.New(nil, nil)
	}
	return &Handler{retriever: r, vocab: vocab}
}

type Request struct {
	Question  string `json:"question"`
	TopK      int    `json:"top_k"`
	Chemistry string `json:"chemistry"`
	Topic     string `json:"topic"`
}

type Response struct {
	Answer    string               `json:"answer"`
	Citations []retrieval.Citation `json:"citations"`
}

// Options canonicalises the request filters against the vocabulary.
func (h *Handler) Options(topK int, chemistry, topic string) (retrieval.Options, error) {
	chem, err := h.vocab.Chemistry(chemistry)
	if err != nil {
		return retrieval.Options{}, err
	}
	return retrieval.Options{TopK: topK, Chemistry: chem, Topic: h.vocab.Topic(topic)}, nil
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.WithOperation(r.Context(), "ask")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "top_k must not be negative", http.StatusBadRequest)
		return
	}
	opts, err := h.Options(req.TopK, req.Chemistry, req.Topic)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.retriever.Ask(ctx, req.Question, opts)
	if err != nil {
		code, status := classify(err)
		if status == http.StatusServiceUnavailable {
			slog.ErrorContext(ctx, "ask failed", "error", err)
		}
		h.writeError(ctx, w, code, err.Error(), status)
		return
	}

	slog.InfoContext(ctx, "question answered", "citations", len(answer.Citations))
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": Response{Answer: answer.Text, Citations: answer.Citations},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// classify maps retrieval errors onto an API error code and HTTP status.
// Timeouts match ErrBackendUnavailable.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuestion), errors.Is(err, vocabulary.ErrUnknownChemistry):
		return "VALIDATION_ERROR", http.StatusBadRequest
	case errors.Is(err, retrieval.ErrNoRelevantPassages):
		return "NO_RELEVANT_PASSAGES", http.StatusNotFound
	case errors.Is(err, retrieval.ErrBackendUnavailable):
		return "BACKEND_UNAVAILABLE", http.StatusServiceUnavailable
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
