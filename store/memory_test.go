package store

import (
	"context"
	"errors"
	"testing"
)

func chunk(id, source string, seq int) Chunk {
	return Chunk{
		ID:        id,
		SourceID:  source,
		Text:      "segment " + id,
		Embedding: []float32{1, 0, 0},
		Sequence:  seq,
	}
}

func TestMemoryStorePutAndAll(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	if err := s.Put(ctx, []Chunk{chunk("a", "lecture-1", 0), chunk("b", "lecture-1", 1)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(all))
	}
}

func TestMemoryStoreRejectsInvalidChunks(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	bad := chunk("a", "lecture-1", 0)
	bad.Embedding = nil
	if err := s.Put(ctx, []Chunk{bad}); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected write error for missing embedding, got %v", err)
	}

	wrongDim := chunk("b", "lecture-1", 0)
	wrongDim.Embedding = []float32{1, 0}
	if err := s.Put(ctx, []Chunk{wrongDim}); !errors.Is(err, ErrWrite) {
		t.Fatalf("expected write error for dimension mismatch, got %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("failed writes must not leave chunks behind, got %d", len(all))
	}
}

func TestMemoryStoreDeleteBySourceIsIdempotent(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	if err := s.Put(ctx, []Chunk{chunk("a", "lecture-1", 0), chunk("b", "lecture-2", 0)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.DeleteBySource(ctx, "lecture-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteBySource(ctx, "lecture-1"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if err := s.DeleteBySource(ctx, "never-ingested"); err != nil {
		t.Fatalf("deleting unknown source must be a no-op, got %v", err)
	}

	all, _ := s.All(ctx)
	if len(all) != 1 || all[0].SourceID != "lecture-2" {
		t.Fatalf("expected only lecture-2 to remain, got %+v", all)
	}
}

func TestMemoryStoreReplaceSource(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	if err := s.Put(ctx, []Chunk{chunk("a", "lecture-1", 0), chunk("b", "lecture-2", 0)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.ReplaceSource(ctx, "lecture-1", []Chunk{chunk("c", "lecture-1", 0), chunk("d", "lecture-1", 1)}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	all, _ := s.All(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 chunks after replace, got %d", len(all))
	}
	for _, c := range all {
		if c.SourceID == "lecture-1" && (c.ID == "a") {
			t.Fatal("old lecture-1 chunks must be gone after replace")
		}
	}
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	s := NewMemoryStore(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, []Chunk{chunk("a", "lecture-1", 0)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	all, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatal("cancelled put must not commit")
	}
}
