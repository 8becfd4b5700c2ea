// Package retrieve ranks stored chunks against a question embedding and
// selects a bounded, deterministic grounding context.
package retrieve

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/devanaclimgo/lectern/gateway"
	"github.com/devanaclimgo/lectern/store"
)

const (
	DefaultK           = 5
	DefaultFloor       = 0.5
	DefaultTokenBudget = 2000
)

// Params bound a retrieval: at most K chunks, each scoring at least
// SimilarityFloor, with the summed approximate token cost staying within
// TokenBudget.
type Params struct {
	K               int
	SimilarityFloor float64
	TokenBudget     int
}

func (p Params) withDefaults() Params {
	if p.K <= 0 {
		p.K = DefaultK
	}
	if p.TokenBudget <= 0 {
		p.TokenBudget = DefaultTokenBudget
	}
	return p
}

// Result is the ordered grounding context: chunks by descending similarity.
// An empty Result is a valid outcome, not an error.
type Result struct {
	Chunks []store.Scored
}

func (r Result) Empty() bool { return len(r.Chunks) == 0 }

type Retriever struct {
	gateway gateway.Gateway
	chunks  store.ChunkStore
	logger  *log.Logger
}

func NewRetriever(gw gateway.Gateway, chunks store.ChunkStore, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.Default()
	}
	return &Retriever{gateway: gw, chunks: chunks, logger: logger}
}

// Retrieve embeds the question, scores every stored chunk by cosine
// similarity, and greedily selects chunks in descending score order until K
// chunks are taken or the next chunk would exceed the token budget. Ties
// break by ascending sequence, then id, so results are reproducible.
func (r *Retriever) Retrieve(ctx context.Context, question string, p Params) (Result, error) {
	p = p.withDefaults()

	queryEmbedding, err := r.gateway.Embed(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	scored, err := r.score(ctx, queryEmbedding, p)
	if err != nil {
		return Result{}, err
	}

	sortScored(scored)

	selected := make([]store.Scored, 0, p.K)
	budget := 0
	for _, item := range scored {
		if item.Score < p.SimilarityFloor {
			break
		}
		if len(selected) == p.K {
			break
		}
		cost := EstimateTokens(item.Chunk.Text)
		if budget+cost > p.TokenBudget {
			break
		}
		budget += cost
		selected = append(selected, item)
	}

	if len(selected) == 0 {
		r.logger.Printf("no chunk cleared the similarity floor %.2f", p.SimilarityFloor)
	}

	return Result{Chunks: selected}, nil
}

// score uses the store's indexed similarity search when available and falls
// back to an exhaustive scan otherwise.
func (r *Retriever) score(ctx context.Context, queryEmbedding []float32, p Params) ([]store.Scored, error) {
	if searcher, ok := r.chunks.(store.Searcher); ok {
		// Over-fetch so floor and budget filtering still leave K candidates.
		limit := p.K * 4
		if limit < 20 {
			limit = 20
		}
		scored, err := searcher.Similar(ctx, queryEmbedding, limit)
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
		return scored, nil
	}

	chunks, err := r.chunks.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}

	scored := make([]store.Scored, 0, len(chunks))
	for _, chunk := range chunks {
		scored = append(scored, store.Scored{
			Chunk: chunk,
			Score: CosineSimilarity(queryEmbedding, chunk.Embedding),
		})
	}
	return scored, nil
}

func sortScored(scored []store.Scored) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Chunk.Sequence != scored[j].Chunk.Sequence {
			return scored[i].Chunk.Sequence < scored[j].Chunk.Sequence
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
}

// CosineSimilarity is dot(a,b) / (||a||*||b||), in [-1,1]. Mismatched or
// zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EstimateTokens approximates token count as one token per four characters,
// which is close enough for budget enforcement over English-like text.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
