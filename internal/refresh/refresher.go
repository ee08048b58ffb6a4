package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Report struct {
	Classify *ClassifyReport `json:"classify"`
	Sync     *SyncReport     `json:"sync"`
	Duration time.Duration   `json:"duration_ns"`
}

// Refresher runs classification followed by sync. Runs never overlap.
type Refresher struct {
	mu         sync.Mutex
	classifier *Classifier
	syncer     *Syncer
}

func NewRefresher(c *Classifier, s *Syncer) *Refresher {
	return &Refresher{classifier: c, syncer: s}
}

func (r *Refresher) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := &Report{}

	cls, err := r.classifier.Run(ctx)
	if err != nil {
		return nil, err
	}
	report.Classify = cls

	syn, err := r.syncer.Run(ctx)
	report.Sync = syn
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}
	return report, nil
}

// Start refreshes every interval until ctx is done. A zero interval disables
// the loop.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Run(ctx); err != nil {
					slog.ErrorContext(ctx, "scheduled refresh failed", "error", err)
				}
			}
		}
	}()
}
