package flag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"paperlib/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flags, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list flags", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if flags == nil {
		flags = []Flag{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": flags,
		"meta": map[string]int{"count": len(flags)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.service.Resolve(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(ctx, w, "NOT_FOUND", "Flag not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to resolve flag", "id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "flag resolved", "id", id)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "flag resolved"}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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
