package flag

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrNotFound = errors.New("flag not found")

type Kind string

const (
	KindOrphanChunk    Kind = "orphan_chunk"
	KindSyncFailed     Kind = "sync_failed"
	KindClassifyFailed Kind = "classify_failed"
)

// Flag is an operator-visible problem with one document. At most one open
// flag exists per (kind, document).
type Flag struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"document_id"`
	ChunkIDs   []string  `json:"chunk_ids"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}

type Repository interface {
	Raise(ctx context.Context, f *Flag) error
	List(ctx context.Context) ([]Flag, error)
	Resolve(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Raise records or refreshes the flag for (kind, documentID).
func (s *Service) Raise(ctx context.Context, kind Kind, documentID, message string, chunkIDs []string) error {
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	f := &Flag{Kind: kind, DocumentID: documentID, Message: message, ChunkIDs: chunkIDs}
	if err := s.repo.Raise(ctx, f); err != nil {
		slog.ErrorContext(ctx, "failed to raise flag", "kind", kind, "document_id", documentID, "error", err)
		return err
	}
	slog.WarnContext(ctx, "operator flag raised", "kind", kind, "document_id", documentID, "message", message)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Flag, error) {
	return s.repo.List(ctx)
}

func (s *Service) Resolve(ctx context.Context, id string) error {
	return s.repo.Resolve(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
