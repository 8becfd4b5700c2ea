package answer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/devanaclimgo/lectern/retrieve"
	"github.com/devanaclimgo/lectern/store"
)

type stubGateway struct {
	answer      string
	generateErr error

	generateCalls int
	lastPrompt    string
}

func (s *stubGateway) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return "", nil
}

func (s *stubGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (s *stubGateway) Generate(ctx context.Context, prompt string) (string, error) {
	s.generateCalls++
	s.lastPrompt = prompt
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return s.answer, nil
}

type stubGraph struct {
	data map[string]LectureInsight
	err  error
}

func (s *stubGraph) LectureInsights(ctx context.Context, sourceIDs []string) (map[string]LectureInsight, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.data == nil {
		return map[string]LectureInsight{}, nil
	}
	return s.data, nil
}

var _ GraphStore = (*stubGraph)(nil)

func retrievalOf(chunks ...store.Scored) retrieve.Result {
	return retrieve.Result{Chunks: chunks}
}

func scored(id, source string, seq int, text string, score float64) store.Scored {
	return store.Scored{
		Chunk: store.Chunk{ID: id, SourceID: source, Text: text, Embedding: []float32{1}, Sequence: seq},
		Score: score,
	}
}

func TestAnswerRecordsChunkIDsInOrder(t *testing.T) {
	gw := &stubGateway{answer: "Grounded answer."}
	syn := NewSynthesizer(gw, nil, log.New(io.Discard, "", 0))

	res, err := syn.Answer(context.Background(), "What is inertia?", retrievalOf(
		scored("c1", "lecture-1", 0, "Inertia resists changes in motion.", 0.9),
		scored("c2", "lecture-2", 3, "Mass measures inertia.", 0.7),
	))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if res.Text != "Grounded answer." {
		t.Fatalf("unexpected answer text: %q", res.Text)
	}
	if len(res.ChunkIDs) != 2 || res.ChunkIDs[0] != "c1" || res.ChunkIDs[1] != "c2" {
		t.Fatalf("chunk ids not recorded in retrieval order: %v", res.ChunkIDs)
	}
}

func TestAnswerPromptEmbedsContextAndQuestion(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	syn := NewSynthesizer(gw, nil, log.New(io.Discard, "", 0))

	question := "What does Newton's first law say?"
	_, err := syn.Answer(context.Background(), question, retrievalOf(
		scored("c1", "lecture-1", 0, "An object stays at rest unless acted upon by a force.", 0.9),
		scored("c2", "lecture-1", 1, "This property is called inertia.", 0.8),
	))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	prompt := gw.lastPrompt
	if !strings.Contains(prompt, question) {
		t.Fatal("prompt must embed the question verbatim")
	}
	if !strings.Contains(prompt, "only the lecture content") {
		t.Fatal("prompt must restrict the model to the supplied context")
	}
	if !strings.Contains(prompt, "insufficient") {
		t.Fatal("prompt must instruct the model to state insufficiency")
	}
	first := strings.Index(prompt, "stays at rest")
	second := strings.Index(prompt, "called inertia")
	if first < 0 || second < 0 || first > second {
		t.Fatal("context chunks must appear in retrieval order")
	}
}

func TestAnswerEmptyRetrievalSkipsModel(t *testing.T) {
	gw := &stubGateway{answer: "should never be used"}
	syn := NewSynthesizer(gw, nil, log.New(io.Discard, "", 0))

	res, err := syn.Answer(context.Background(), "Anything?", retrieve.Result{})
	if err != nil {
		t.Fatalf("empty retrieval must not be an error, got %v", err)
	}
	if res.Text != InsufficientContextAnswer {
		t.Fatalf("expected the fixed insufficiency answer, got %q", res.Text)
	}
	if len(res.ChunkIDs) != 0 {
		t.Fatalf("no chunks should be cited, got %v", res.ChunkIDs)
	}
	if gw.generateCalls != 0 {
		t.Fatalf("generation must not be invoked without context, got %d calls", gw.generateCalls)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	gw := &stubGateway{generateErr: errors.New("provider down")}
	syn := NewSynthesizer(gw, nil, log.New(io.Discard, "", 0))

	_, err := syn.Answer(context.Background(), "What is inertia?", retrievalOf(
		scored("c1", "lecture-1", 0, "Inertia resists changes in motion.", 0.9),
	))
	if !errors.Is(err, ErrAnswer) {
		t.Fatalf("expected answer error, got %v", err)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	syn := NewSynthesizer(&stubGateway{}, nil, log.New(io.Discard, "", 0))
	if _, err := syn.Answer(context.Background(), "   ", retrieve.Result{}); !errors.Is(err, ErrAnswer) {
		t.Fatalf("expected answer error for empty question, got %v", err)
	}
}

func TestAnswerMergesSourcesWithInsights(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	graph := &stubGraph{data: map[string]LectureInsight{
		"lecture-1": {ChunkCount: 7},
	}}
	syn := NewSynthesizer(gw, graph, log.New(io.Discard, "", 0))

	res, err := syn.Answer(context.Background(), "question", retrievalOf(
		scored("c1", "lecture-1", 0, "first", 0.9),
		scored("c2", "lecture-1", 1, "second", 0.8),
		scored("c3", "lecture-2", 0, "third", 0.6),
	))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 merged sources, got %d", len(res.Sources))
	}
	if res.Sources[0].SourceID != "lecture-1" || res.Sources[0].Score != 0.9 {
		t.Fatalf("unexpected first source: %+v", res.Sources[0])
	}
	if res.Sources[0].Insight.ChunkCount != 7 {
		t.Fatalf("expected insight chunk count 7, got %d", res.Sources[0].Insight.ChunkCount)
	}
	if res.Sources[1].SourceID != "lecture-2" {
		t.Fatalf("unexpected second source: %+v", res.Sources[1])
	}
}

func TestAnswerToleratesInsightFailure(t *testing.T) {
	gw := &stubGateway{answer: "ok"}
	syn := NewSynthesizer(gw, &stubGraph{err: errors.New("graph down")}, log.New(io.Discard, "", 0))

	res, err := syn.Answer(context.Background(), "question", retrievalOf(
		scored("c1", "lecture-1", 0, "first", 0.9),
	))
	if err != nil {
		t.Fatalf("insight failure must not fail the answer, got %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("unexpected answer: %q", res.Text)
	}
}
