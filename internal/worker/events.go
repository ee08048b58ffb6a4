package worker

// StagePayload reports that a pipeline stage finished for a document.
type StagePayload struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status,omitempty"` // "success" (default) or "failed"
	Error      string `json:"error,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// ChunkPayload carries one parsed chunk to be embedded and indexed.
type ChunkPayload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Index      int    `json:"chunk_index"`
	Section    string `json:"section,omitempty"`
	Text       string `json:"text"`

	CorrelationID string `json:"correlation_id,omitempty"`
}
