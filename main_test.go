package main

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/devanaclimgo/lectern/answer"
	"github.com/devanaclimgo/lectern/gateway"
	"github.com/devanaclimgo/lectern/index"
	"github.com/devanaclimgo/lectern/retrieve"
	"github.com/devanaclimgo/lectern/store"
)

const embeddingDim = 16

// pipelineGateway is a deterministic stand-in for the provider: transcripts
// are canned per MIME type marker, embeddings are bag-of-words hash vectors
// (so shared vocabulary means high cosine similarity), and generation echoes
// a grounded sentence.
type pipelineGateway struct {
	transcripts map[string]string

	generateCalls int
	lastPrompt    string
}

func (g *pipelineGateway) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	transcript, ok := g.transcripts[string(audio)]
	if !ok || strings.TrimSpace(transcript) == "" {
		return "", &gateway.ProviderError{Kind: gateway.ErrTranscription, Cause: errors.New("no transcript produced")}
	}
	return transcript, nil
}

func (g *pipelineGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &gateway.ProviderError{Kind: gateway.ErrEmbedding, Cause: errors.New("empty input text")}
	}
	vec := make([]float32, embeddingDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%embeddingDim]++
	}
	return vec, nil
}

func (g *pipelineGateway) Generate(ctx context.Context, prompt string) (string, error) {
	g.generateCalls++
	g.lastPrompt = prompt
	return "According to the lecture content, an object stays at rest unless a force acts on it.", nil
}

var _ gateway.Gateway = (*pipelineGateway)(nil)

type pipeline struct {
	gw          *pipelineGateway
	chunks      *store.MemoryStore
	indexer     *index.Service
	retriever   *retrieve.Retriever
	synthesizer *answer.Synthesizer
}

func newPipeline(transcripts map[string]string) *pipeline {
	gw := &pipelineGateway{transcripts: transcripts}
	chunks := store.NewMemoryStore(embeddingDim)
	logger := log.New(io.Discard, "", 0)
	return &pipeline{
		gw:          gw,
		chunks:      chunks,
		indexer:     index.NewService(gw, chunks, nil, logger),
		retriever:   retrieve.NewRetriever(gw, chunks, logger),
		synthesizer: answer.NewSynthesizer(gw, nil, logger),
	}
}

func TestPipelineAnswersFromIngestedLecture(t *testing.T) {
	p := newPipeline(map[string]string{
		"physics-audio": "Newton's first law states that an object stays at rest unless acted upon by a force.",
		"biology-audio": "Photosynthesis converts sunlight into chemical energy inside plant cells.",
	})
	ctx := context.Background()

	if _, err := p.indexer.Ingest(ctx, "physics", []byte("physics-audio"), "audio/webm"); err != nil {
		t.Fatalf("ingest physics: %v", err)
	}
	if _, err := p.indexer.Ingest(ctx, "biology", []byte("biology-audio"), "audio/webm"); err != nil {
		t.Fatalf("ingest biology: %v", err)
	}

	question := "What does Newton's first law say?"
	retrieval, err := p.retriever.Retrieve(ctx, question, retrieve.Params{K: 1, SimilarityFloor: 0.1})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if retrieval.Empty() {
		t.Fatal("expected the physics chunk to clear the similarity floor")
	}
	top := retrieval.Chunks[0]
	if top.Chunk.SourceID != "physics" {
		t.Fatalf("expected the physics lecture to rank first, got %q", top.Chunk.SourceID)
	}
	if top.Score <= 0.1 {
		t.Fatalf("expected similarity above floor, got %v", top.Score)
	}

	result, err := p.synthesizer.Answer(ctx, question, retrieval)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(result.Text, "force") || !strings.Contains(result.Text, "rest") {
		t.Fatalf("expected a grounded paraphrase mentioning force and rest, got %q", result.Text)
	}
	if len(result.ChunkIDs) != 1 || result.ChunkIDs[0] != top.Chunk.ID {
		t.Fatalf("answer must cite the grounding chunk, got %v", result.ChunkIDs)
	}
	if !strings.Contains(p.gw.lastPrompt, top.Chunk.Text) {
		t.Fatal("generation prompt must embed the retrieved chunk text")
	}
}

func TestPipelineWithNoIngestedSources(t *testing.T) {
	p := newPipeline(nil)
	ctx := context.Background()

	retrieval, err := p.retriever.Retrieve(ctx, "What is inertia?", retrieve.Params{K: 3, SimilarityFloor: 0.1})
	if err != nil {
		t.Fatalf("retrieve over empty store: %v", err)
	}
	if !retrieval.Empty() {
		t.Fatalf("expected empty retrieval, got %d chunks", len(retrieval.Chunks))
	}

	result, err := p.synthesizer.Answer(ctx, "What is inertia?", retrieval)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Text != answer.InsufficientContextAnswer {
		t.Fatalf("expected the fixed insufficiency answer, got %q", result.Text)
	}
	if p.gw.generateCalls != 0 {
		t.Fatalf("generation must not run without context, got %d calls", p.gw.generateCalls)
	}
}

func TestPipelineFailedTranscriptionLeavesStoreUnchanged(t *testing.T) {
	p := newPipeline(map[string]string{"silent-audio": ""})
	ctx := context.Background()

	_, err := p.indexer.Ingest(ctx, "silent", []byte("silent-audio"), "audio/webm")
	if !errors.Is(err, index.ErrIngestion) {
		t.Fatalf("expected ingestion error, got %v", err)
	}
	if !errors.Is(err, gateway.ErrTranscription) {
		t.Fatalf("expected the transcription cause to stay visible, got %v", err)
	}

	all, err := p.chunks.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("store must be unchanged after failed transcription, got %d chunks", len(all))
	}
}
