package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the pgvector extension and the lecture_chunks table.
// The embedding column is NOT NULL with a fixed dimension, so a persisted
// chunk can never be observed without a well-formed embedding.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lecture_chunks (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			sequence INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(source_id, sequence)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_lecture_chunks_source ON lecture_chunks(source_id)",
		"CREATE INDEX IF NOT EXISTS idx_lecture_chunks_embedding ON lecture_chunks USING ivfflat (embedding vector_cosine_ops)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
