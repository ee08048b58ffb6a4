package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"paperlib/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.WithOperation(r.Context(), "get_settings")
	s, err := h.svc.Get(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load settings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeView(w, s)
}

// UpdateSettings applies a partial update and echoes the effective settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.WithOperation(r.Context(), "update_settings")

	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	s, err := h.svc.Apply(ctx, p)
	if errors.Is(err, ErrInvalid) {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to update settings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "settings updated", "search_top_k", s.SearchTopK, "oversample_factor", s.OversampleFactor)
	h.writeView(w, s)
}

func (h *Handler) writeView(w http.ResponseWriter, s *Settings) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": s.View()}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{
		"error":         map[string]string{"code": code, "message": message},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
