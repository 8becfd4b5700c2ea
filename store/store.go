// Package store owns the Chunk lifecycle: append-only persistence of
// embedded lecture segments, full scans for retrieval, and per-source
// replacement for re-ingestion.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrWrite = errors.New("chunk store write failed")
	ErrRead  = errors.New("chunk store read failed")
)

// Chunk is the unit of retrievable knowledge: one embedded transcript
// segment with its provenance. Chunks are never mutated after creation.
type Chunk struct {
	ID        string
	SourceID  string
	Text      string
	Embedding []float32
	Sequence  int
}

// Scored pairs a chunk with its similarity to a query embedding.
type Scored struct {
	Chunk Chunk
	Score float64
}

// ChunkStore persists chunks. Put and ReplaceSource are atomic: concurrent
// readers observe either the prior state or the full new batch, never a
// partial one.
type ChunkStore interface {
	Put(ctx context.Context, chunks []Chunk) error
	All(ctx context.Context) ([]Chunk, error)
	// DeleteBySource removes every chunk of a source. Deleting an unknown
	// source is a no-op.
	DeleteBySource(ctx context.Context, sourceID string) error
	// ReplaceSource atomically swaps a source's chunk set for a new batch.
	ReplaceSource(ctx context.Context, sourceID string, chunks []Chunk) error
}

// Searcher is an optional ChunkStore extension for backends with indexed
// similarity search. Results come back ordered by descending similarity.
type Searcher interface {
	Similar(ctx context.Context, embedding []float32, limit int) ([]Scored, error)
}

func validateChunks(chunks []Chunk) error {
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk %d has no id", ErrWrite, i)
		}
		if c.SourceID == "" {
			return fmt.Errorf("%w: chunk %d has no source id", ErrWrite, i)
		}
		if c.Text == "" {
			return fmt.Errorf("%w: chunk %d has empty text", ErrWrite, i)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", ErrWrite, i)
		}
	}
	return nil
}
