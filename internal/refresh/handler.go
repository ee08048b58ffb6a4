package refresh

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"paperlib/internal/middleware"
)

type Handler struct {
	refresher *Refresher
}

func NewHandler(r *Refresher) *Handler {
	return &Handler{refresher: r}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := middleware.WithOperation(r.Context(), "refresh")

	report, err := h.refresher.Run(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "refresh failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": report}); err != nil {
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
