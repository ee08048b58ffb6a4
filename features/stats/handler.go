package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"paperlib/internal/lifecycle"
	"paperlib/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[lifecycle.Status]int, error)
}

type FlagRepo interface {
	Count(ctx context.Context) (int, error)
}

type ChunkIndex interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	docs   DocumentRepo
	flags  FlagRepo
	chunks ChunkIndex
}

func NewHandler(d DocumentRepo, f FlagRepo, c ChunkIndex) *Handler {
	return &Handler{docs: d, flags: f, chunks: c}
}

type StatsResponse struct {
	Documents int                      `json:"documents"`
	ByStatus  map[lifecycle.Status]int `json:"by_status"`
	Chunks    int                      `json:"chunks"`
	OpenFlags int                      `json:"open_flags"`
}

// Collect gathers corpus counters. Every status appears in ByStatus.
func Collect(ctx context.Context, d DocumentRepo, f FlagRepo, c ChunkIndex) (*StatsResponse, error) {
	docs, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := d.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range lifecycle.Statuses {
		if _, ok := byStatus[s]; !ok {
			byStatus[s] = 0
		}
	}
	chunks, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	flags, err := f.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResponse{Documents: docs, ByStatus: byStatus, Chunks: chunks, OpenFlags: flags}, nil
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := Collect(ctx, h.docs, h.flags, h.chunks)
	if err != nil {
		slog.ErrorContext(ctx, "failed to collect stats", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to collect stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
