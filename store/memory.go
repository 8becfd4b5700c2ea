package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process ChunkStore guarded by a read-write mutex.
// It backs local runs and tests; similarity scans go through All.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    []Chunk
}

// NewMemoryStore creates an empty store. A positive dimension is enforced
// on every write, mirroring the VECTOR(n) column of the Postgres backend.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

func (s *MemoryStore) Put(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validate(chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryStore) All(ctx context.Context) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *MemoryStore) DeleteBySource(ctx context.Context, sourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = withoutSource(s.chunks, sourceID)
	return nil
}

func (s *MemoryStore) ReplaceSource(ctx context.Context, sourceID string, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.validate(chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := withoutSource(s.chunks, sourceID)
	s.chunks = append(kept, chunks...)
	return nil
}

func (s *MemoryStore) validate(chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return err
	}
	if s.dimension > 0 {
		for i, c := range chunks {
			if len(c.Embedding) != s.dimension {
				return fmt.Errorf("%w: chunk %d embedding dimension %d, expected %d", ErrWrite, i, len(c.Embedding), s.dimension)
			}
		}
	}
	return nil
}

func withoutSource(chunks []Chunk, sourceID string) []Chunk {
	kept := chunks[:0:0]
	for _, c := range chunks {
		if c.SourceID != sourceID {
			kept = append(kept, c)
		}
	}
	return kept
}

var _ ChunkStore = (*MemoryStore)(nil)
