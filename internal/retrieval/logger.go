package retrieval

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome buckets a query result for the query log.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeNoPassages  Outcome = "no_passages"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeRejected    Outcome = "rejected"
)

// OutcomeOf maps a Retrieve or Ask error onto its log bucket.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAnswered
	case errors.Is(err, ErrNoRelevantPassages):
		return OutcomeNoPassages
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrBackendUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeRejected
	}
}

// QueryRecord is one JSON line of the query log.
type QueryRecord struct {
	At            time.Time `json:"at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Question      string    `json:"question"`
	TopK          int       `json:"top_k"`
	Chemistry     string    `json:"chemistry,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Passages      int       `json:"passages"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

// QueryLogger appends QueryRecords as JSON lines. Safe for concurrent use.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends to path, creating it and its directory. The
// file is closed by Close.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(f)
	l.c = f
	return l, nil
}

// Record stamps and writes r. d is the end-to-end latency.
func (l *QueryLogger) Record(r QueryRecord, d time.Duration) {
	r.At = time.Now().UTC()
	r.LatencyMs = d.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(r); err != nil {
		slog.Error("failed to write query record", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
