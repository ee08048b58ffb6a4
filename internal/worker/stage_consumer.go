package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"paperlib/features/ledger"
	"paperlib/internal/middleware"
)

// StageConsumer appends pipeline stage completions to the processing ledger.
type StageConsumer struct {
	ledger StageMarker
}

func NewStageConsumer(l StageMarker) *StageConsumer {
	return &StageConsumer{ledger: l}
}

func (h *StageConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload StagePayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "poison pill: invalid json", "error", err)
		return nil
	}
	if payload.DocumentID == "" {
		slog.ErrorContext(ctx, "missing document_id, dropping", "stage", payload.Stage)
		return nil
	}

	if payload.Status == "failed" {
		slog.WarnContext(ctx, "pipeline stage failed", "document_id", payload.DocumentID, "stage", payload.Stage, "error", payload.Error)
		return nil
	}

	if err := h.ledger.MarkStage(ctx, payload.DocumentID, payload.Stage); err != nil {
		if errors.Is(err, ledger.ErrUnknownStage) {
			slog.ErrorContext(ctx, "unknown stage, dropping", "document_id", payload.DocumentID, "stage", payload.Stage)
			return nil
		}
		slog.ErrorContext(ctx, "failed to mark stage", "error", err, "document_id", payload.DocumentID, "stage", payload.Stage)
		return err
	}

	slog.InfoContext(ctx, "stage recorded", "document_id", payload.DocumentID, "stage", payload.Stage)
	return nil
}
