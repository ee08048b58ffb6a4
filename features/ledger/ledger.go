package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var ErrUnknownStage = errors.New("unknown pipeline stage")

type Stage string

const (
	StageParsed   Stage = "parsed"
	StageChunked  Stage = "chunked"
	StageEmbedded Stage = "embedded"
)

var Stages = []Stage{StageParsed, StageChunked, StageEmbedded}

func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Stages {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*s = make(Set, len(ids))
	for _, id := range ids {
		(*s)[id] = struct{}{}
	}
	return nil
}

// Ledger is a snapshot of which documents cleared each pipeline stage.
type Ledger struct {
	Parsed   Set `json:"parsed"`
	Chunked  Set `json:"chunked"`
	Embedded Set `json:"embedded"`
}

func New() *Ledger {
	return &Ledger{Parsed: Set{}, Chunked: Set{}, Embedded: Set{}}
}

func (l *Ledger) set(stage Stage) Set {
	switch stage {
	case StageParsed:
		return l.Parsed
	case StageChunked:
		return l.Chunked
	case StageEmbedded:
		return l.Embedded
	}
	return nil
}

// Add records id under stage. Unknown stages are ignored.
func (l *Ledger) Add(id string, stage Stage) {
	if s := l.set(stage); s != nil {
		s[id] = struct{}{}
	}
}

func (l *Ledger) IsFullyProcessed(id string) bool {
	return l.Parsed.Has(id) && l.Chunked.Has(id) && l.Embedded.Has(id)
}

type Repository interface {
	Stages(ctx context.Context) (*Ledger, error)
	MarkStage(ctx context.Context, id string, stage Stage) error
	Reset(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Stages(ctx context.Context) (*Ledger, error) {
	return s.repo.Stages(ctx)
}

func (s *Service) MarkStage(ctx context.Context, id string, stage string) error {
	st, err := ParseStage(stage)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}
	return s.repo.MarkStage(ctx, id, st)
}

func (s *Service) Reset(ctx context.Context, id string) error {
	return s.repo.Reset(ctx, id)
}

func (s *Service) Export(ctx context.Context, w io.Writer) error {
	l, err := s.repo.Stages(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}

// Import adds every membership in the file. Existing memberships are kept.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	l := New()
	if err := json.NewDecoder(r).Decode(l); err != nil {
		return 0, fmt.Errorf("decode ledger: %w", err)
	}
	n := 0
	for _, stage := range Stages {
		for _, id := range l.set(stage).Sorted() {
			if err := s.repo.MarkStage(ctx, id, stage); err != nil {
				return n, fmt.Errorf("mark %s %s: %w", id, stage, err)
			}
			n++
		}
	}
	return n, nil
}
