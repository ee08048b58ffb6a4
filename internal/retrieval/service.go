package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"paperlib/internal/chunkindex"
	"paperlib/internal/middleware"
	"paperlib/internal/settings"
)

var (
	ErrNoRelevantPassages = errors.New("no relevant passages found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrTimeout also matches ErrBackendUnavailable.
	ErrTimeout       = fmt.Errorf("%w: deadline exceeded", ErrBackendUnavailable)
	ErrEmptyQuestion = errors.New("question is required")
)

type Options struct {
	TopK      int    `json:"top_k"`
	Chemistry string `json:"chemistry,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

func (o Options) filtered() bool {
	return o.Chemistry != "" || o.Topic != ""
}

type RetrievedChunk = chunkindex.Result

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Nearest(ctx context.Context, vec []float32, n int) ([]chunkindex.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

type Timeouts struct {
	Embed    time.Duration
	Generate time.Duration
}

type Answer struct {
	Text      string           `json:"answer"`
	Citations []Citation       `json:"citations"`
	Passages  []RetrievedChunk `json:"passages,omitempty"`
}

type Service struct {
	embedder  Embedder
	index     Searcher
	generator Generator
	settings  SettingsProvider
	logger    *QueryLogger
	timeouts  Timeouts
}

func NewService(e Embedder, idx Searcher, g Generator, set SettingsProvider, l *QueryLogger, t Timeouts) *Service {
	return &Service{embedder: e, index: idx, generator: g, settings: set, logger: l, timeouts: t}
}

// Retrieve returns at most TopK chunks that satisfy every filter, in
// descending similarity. When filters are set the index is over-sampled and
// filtered afterwards; there is no unfiltered fallback.
func (s *Service) Retrieve(ctx context.Context, question string, opts Options) (results []RetrievedChunk, err error) {
	start := time.Now()
	defer func() {
		s.log(ctx, question, opts, len(results), time.Since(start), err)
	}()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		slog.WarnContext(ctx, "settings unavailable, using defaults", "error", err)
		cfg = &settings.Settings{SearchTopK: settings.DefaultSearchTopK, OversampleFactor: settings.DefaultOversampleFactor}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = cfg.SearchTopK
	}
	n := topK
	if opts.filtered() {
		n = topK * cfg.OversampleFactor
	}

	vec, err := s.embed(ctx, question)
	if err != nil {
		return nil, err
	}

	candidates, err := s.index.Nearest(ctx, vec, n)
	if err != nil {
		return nil, unavailable("search", err)
	}

	results = make([]RetrievedChunk, 0, topK)
	for _, c := range candidates {
		if !Matches(c.Filter, opts) {
			continue
		}
		results = append(results, c)
		if len(results) == topK {
			break
		}
	}
	if len(results) == 0 {
		return nil, ErrNoRelevantPassages
	}
	return results, nil
}

// Ask retrieves passages and has the generator answer from them alone.
func (s *Service) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	passages, err := s.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	genCtx := ctx
	if s.timeouts.Generate > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeouts.Generate)
		defer cancel()
	}
	text, err := s.generator.Generate(genCtx, BuildPrompt(question, passages))
	if err != nil {
		return nil, unavailable("generate", err)
	}

	return &Answer{Text: text, Citations: Citations(passages), Passages: passages}, nil
}

func (s *Service) embed(ctx context.Context, question string) ([]float32, error) {
	embedCtx := ctx
	if s.timeouts.Embed > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.timeouts.Embed)
		defer cancel()
	}
	vec, err := s.embedder.Embed(embedCtx, question)
	if err != nil {
		return nil, unavailable("embed", err)
	}
	return vec, nil
}

func unavailable(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, stage, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, stage, err)
}

// Matches reports whether a chunk's filter copy satisfies opts. Chemistry is
// an exact token match and topic a substring of any topic tag, both
// case-insensitive.
func Matches(f chunkindex.FilterFields, opts Options) bool {
	if opts.Chemistry != "" {
		found := false
		for _, c := range f.Chemistries {
			if strings.EqualFold(strings.TrimSpace(c), opts.Chemistry) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.Topic != "" {
		want := strings.ToLower(opts.Topic)
		found := false
		for _, t := range f.Topics {
			if strings.Contains(strings.ToLower(t), want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Service) log(ctx context.Context, question string, opts Options, n int, d time.Duration, err error) {
	if s.logger == nil {
		return
	}
	rec := QueryRecord{
		CorrelationID: middleware.GetCorrelationID(ctx),
		Question:      question,
		TopK:          opts.TopK,
		Chemistry:     opts.Chemistry,
		Topic:         opts.Topic,
		Passages:      n,
		Outcome:       OutcomeOf(err),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	s.logger.Record(rec, d)
}
