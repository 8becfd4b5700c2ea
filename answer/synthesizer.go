// Package answer turns a retrieval result and a question into a grounded,
// traceable answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/devanaclimgo/lectern/gateway"
	"github.com/devanaclimgo/lectern/retrieve"
)

// ErrAnswer marks a generation failure during synthesis.
var ErrAnswer = errors.New("answer generation failed")

// InsufficientContextAnswer is returned without calling the model when
// retrieval found nothing relevant.
const InsufficientContextAnswer = "I don't have enough lecture material to answer that question."

// Answer is the synthesized response plus the chunk ids that made up its
// grounding context, in the order they were presented to the model.
type Answer struct {
	Text     string
	ChunkIDs []string
	Sources  []Source
}

// Source aggregates the grounding chunks of one lecture.
type Source struct {
	SourceID string
	Score    float64
	Insight  LectureInsight
}

type Synthesizer struct {
	gateway gateway.Gateway
	graph   GraphStore
	logger  *log.Logger
}

// NewSynthesizer wires the answer stage. graph may be nil; lecture insights
// are then omitted from sources.
func NewSynthesizer(gw gateway.Gateway, graph GraphStore, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{gateway: gw, graph: graph, logger: logger}
}

// Answer builds a grounded prompt from the retrieval result and invokes
// generation. An empty retrieval short-circuits with a fixed insufficiency
// answer and no model call, so the model can never improvise context.
func (s *Synthesizer) Answer(ctx context.Context, question string, retrieval retrieve.Result) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: empty question", ErrAnswer)
	}

	if retrieval.Empty() {
		return Answer{Text: InsufficientContextAnswer}, nil
	}

	prompt := BuildPrompt(question, retrieval)
	generated, err := s.gateway.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrAnswer, err)
	}

	chunkIDs := make([]string, len(retrieval.Chunks))
	for i, item := range retrieval.Chunks {
		chunkIDs[i] = item.Chunk.ID
	}

	return Answer{
		Text:     strings.TrimSpace(generated),
		ChunkIDs: chunkIDs,
		Sources:  s.mergeSources(ctx, retrieval),
	}, nil
}

// mergeSources groups grounding chunks by lecture, keeping each lecture's
// best score and the retrieval order of first appearance. Graph insight
// failures are logged, not surfaced; provenance is an enrichment.
func (s *Synthesizer) mergeSources(ctx context.Context, retrieval retrieve.Result) []Source {
	order := make([]string, 0)
	best := make(map[string]float64)
	for _, item := range retrieval.Chunks {
		id := item.Chunk.SourceID
		if _, seen := best[id]; !seen {
			order = append(order, id)
			best[id] = item.Score
		} else if item.Score > best[id] {
			best[id] = item.Score
		}
	}

	insights := map[string]LectureInsight{}
	if s.graph != nil {
		found, err := s.graph.LectureInsights(ctx, order)
		if err != nil {
			s.logger.Printf("lecture insights: %v", err)
		} else {
			insights = found
		}
	}

	sources := make([]Source, len(order))
	for i, id := range order {
		sources[i] = Source{SourceID: id, Score: best[id], Insight: insights[id]}
	}
	return sources
}

// BuildPrompt assembles the grounding prompt: usage rules first, then the
// retrieved chunks in retrieval order, then the question verbatim.
func BuildPrompt(question string, retrieval retrieve.Result) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the lecture content below.\n")
	sb.WriteString("If the lecture content does not contain the answer, say explicitly that the lecture material is insufficient.\n")
	sb.WriteString("Be objective and keep an educational tone. When citing, refer to the material as \"the lecture content\".\n\n")
	sb.WriteString("LECTURE CONTENT:\n")
	for i, item := range retrieval.Chunks {
		sb.WriteString(fmt.Sprintf("[%d] (lecture %s, segment %d)\n", i+1, item.Chunk.SourceID, item.Chunk.Sequence))
		sb.WriteString(item.Chunk.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	return sb.String()
}
