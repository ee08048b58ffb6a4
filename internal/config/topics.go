package config

const (
	// TopicStage carries pipeline stage completions (parsed, chunked, embedded) for the ledger.
	TopicStage = "paperlib.stage"

	// TopicChunk carries extracted text chunks awaiting embedding and indexing.
	TopicChunk = "paperlib.chunk"

	// ChannelBackend is the NSQ channel the backend consumes on.
	ChannelBackend = "backend"
)
