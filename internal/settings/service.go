package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	DefaultSearchTopK       = 5
	DefaultOversampleFactor = 10
)

// Settings are the runtime-tunable knobs of the query path.
type Settings struct {
	GeminiAPIKey     string `json:"gemini_api_key"`
	SearchTopK       int    `json:"search_top_k"`
	OversampleFactor int    `json:"oversample_factor"`
}

func (s *Settings) applyDefaults() {
	if s.SearchTopK <= 0 {
		s.SearchTopK = DefaultSearchTopK
	}
	if s.OversampleFactor <= 0 {
		s.OversampleFactor = DefaultOversampleFactor
	}
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo       Repository
	defaultKey string
}

// NewService returns a Service that falls back to defaultKey when no API key
// has been stored.
func NewService(repo Repository, defaultKey string) *Service {
	return &Service{repo: repo, defaultKey: defaultKey}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if set.GeminiAPIKey == "" {
		set.GeminiAPIKey = s.defaultKey
	}
	set.applyDefaults()
	return set, nil
}

var ErrInvalid = errors.New("invalid settings")

// Patch is a partial update. Nil fields keep their stored value.
type Patch struct {
	GeminiAPIKey     *string `json:"gemini_api_key"`
	SearchTopK       *int    `json:"search_top_k"`
	OversampleFactor *int    `json:"oversample_factor"`
}

func (p Patch) Validate() error {
	if p.SearchTopK != nil && *p.SearchTopK < 0 {
		return fmt.Errorf("%w: search_top_k must not be negative", ErrInvalid)
	}
	if p.OversampleFactor != nil && *p.OversampleFactor < 0 {
		return fmt.Errorf("%w: oversample_factor must not be negative", ErrInvalid)
	}
	return nil
}

// Apply merges p into the stored row and returns the effective settings.
// Zero values reset a knob to its default.
func (s *Service) Apply(ctx context.Context, p Patch) (*Settings, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cur, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if p.GeminiAPIKey != nil {
		cur.GeminiAPIKey = strings.TrimSpace(*p.GeminiAPIKey)
	}
	if p.SearchTopK != nil {
		cur.SearchTopK = *p.SearchTopK
	}
	if p.OversampleFactor != nil {
		cur.OversampleFactor = *p.OversampleFactor
	}
	if err := s.repo.Update(ctx, cur); err != nil {
		return nil, err
	}

	eff := *cur
	if eff.GeminiAPIKey == "" {
		eff.GeminiAPIKey = s.defaultKey
	}
	eff.applyDefaults()
	return &eff, nil
}

// View is the client-facing form of Settings. The API key never leaves the
// process.
type View struct {
	GeminiAPIKeySet  bool `json:"gemini_api_key_set"`
	SearchTopK       int  `json:"search_top_k"`
	OversampleFactor int  `json:"oversample_factor"`
}

func (s *Settings) View() View {
	return View{
		GeminiAPIKeySet:  s.GeminiAPIKey != "",
		SearchTopK:       s.SearchTopK,
		OversampleFactor: s.OversampleFactor,
	}
}

// MemoryRepo holds settings in process memory.
type MemoryRepo struct {
	mu  sync.Mutex
	set Settings
}

func NewMemoryRepo(initial Settings) *MemoryRepo {
	return &MemoryRepo{set: initial}
}

func (r *MemoryRepo) Get(context.Context) (*Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.set
	return &s, nil
}

func (r *MemoryRepo) Update(_ context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = *s
	return nil
}
