// Package index turns lecture uploads into persisted, embedded chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/devanaclimgo/lectern/gateway"
	"github.com/devanaclimgo/lectern/knowledge"
	"github.com/devanaclimgo/lectern/store"
)

// ErrIngestion marks a failed ingestion. No partial chunk set is ever left
// visible behind this error.
var ErrIngestion = errors.New("ingestion failed")

type Service struct {
	gateway   gateway.Gateway
	chunks    store.ChunkStore
	driver    neo4j.DriverWithContext
	logger    *log.Logger
	chunkSize int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the indexer. driver may be nil to disable graph sync.
func NewService(gw gateway.Gateway, chunks store.ChunkStore, driver neo4j.DriverWithContext, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		gateway:   gw,
		chunks:    chunks,
		driver:    driver,
		logger:    logger,
		chunkSize: defaultChunkSize,
		locks:     map[string]*sync.Mutex{},
	}
}

// Ingest transcribes a lecture audio upload, segments and embeds the
// transcript, and atomically replaces the source's chunk set. Re-ingesting
// the same source swaps old chunks for new in one step; concurrent readers
// never observe a mix.
func (s *Service) Ingest(ctx context.Context, sourceID string, audio []byte, mimeType string) ([]store.Chunk, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: empty source id", ErrIngestion)
	}

	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	transcript, err := s.gateway.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	return s.ingestText(ctx, sourceID, transcript)
}

// IngestNotes indexes a lecture-notes document (PDF, markdown, or plain
// text) through the same segment/embed/persist tail as audio, with no
// transcription leg.
func (s *Service) IngestNotes(ctx context.Context, sourceID string, data []byte, format NotesFormat) ([]store.Chunk, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("%w: empty source id", ErrIngestion)
	}

	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	text, err := extractNotesText(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	return s.ingestText(ctx, sourceID, text)
}

// Remove deletes a source's chunks and its graph projection.
func (s *Service) Remove(ctx context.Context, sourceID string) error {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.chunks.DeleteBySource(ctx, sourceID); err != nil {
		return err
	}
	if s.driver != nil {
		if err := knowledge.RemoveLecture(ctx, s.driver, sourceID); err != nil {
			s.logger.Printf("remove lecture %s from graph: %v", sourceID, err)
		}
	}
	return nil
}

func (s *Service) ingestText(ctx context.Context, sourceID, text string) ([]store.Chunk, error) {
	segments := SegmentTranscript(text, s.chunkSize)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: transcription produced no text for source %s", ErrIngestion, sourceID)
	}

	chunks := make([]store.Chunk, 0, len(segments))
	for seq, segment := range segments {
		embedding, err := s.gateway.Embed(ctx, segment)
		if err != nil {
			return nil, fmt.Errorf("%w: embed chunk %d: %w", ErrIngestion, seq, err)
		}
		chunks = append(chunks, store.Chunk{
			ID:        uuid.New().String(),
			SourceID:  sourceID,
			Text:      segment,
			Embedding: embedding,
			Sequence:  seq,
		})
	}

	if err := s.chunks.ReplaceSource(ctx, sourceID, chunks); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}

	s.syncGraph(ctx, sourceID, chunks)

	s.logger.Printf("ingested source %s (%d chunks)", sourceID, len(chunks))
	return chunks, nil
}

// syncGraph mirrors the chunk set into Neo4j. The chunk store is the source
// of truth, so a graph failure is logged, not surfaced.
func (s *Service) syncGraph(ctx context.Context, sourceID string, chunks []store.Chunk) {
	if s.driver == nil {
		return
	}

	refs := make([]knowledge.ChunkRef, len(chunks))
	for i, c := range chunks {
		refs[i] = knowledge.ChunkRef{ID: c.ID, Sequence: c.Sequence, Text: c.Text}
	}

	if err := knowledge.SyncLecture(ctx, s.driver, knowledge.Lecture{SourceID: sourceID, Chunks: refs}); err != nil {
		s.logger.Printf("sync lecture %s to graph: %v", sourceID, err)
	}
}

func (s *Service) sourceLock(sourceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sourceID] = lock
	}
	return lock
}
