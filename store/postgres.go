package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore persists chunks in a pgvector-backed table. Batch writes run
// in a single transaction so readers never see a partial set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrWrite, err)
	}
	defer tx.Rollback(ctx)

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrWrite, err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, sequence, content, embedding
		FROM lecture_chunks
		ORDER BY source_id, sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query chunks: %w", ErrRead, err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (s *PostgresStore) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM lecture_chunks WHERE source_id = $1", sourceID); err != nil {
		return fmt.Errorf("%w: delete source %s: %w", ErrWrite, sourceID, err)
	}
	return nil
}

func (s *PostgresStore) ReplaceSource(ctx context.Context, sourceID string, chunks []Chunk) error {
	if err := validateChunks(chunks); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", ErrWrite, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM lecture_chunks WHERE source_id = $1", sourceID); err != nil {
		return fmt.Errorf("%w: clear source %s: %w", ErrWrite, sourceID, err)
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrWrite, err)
	}
	return nil
}

// Similar pushes ranking into pgvector's cosine distance operator. The
// returned score is cosine similarity, descending.
func (s *PostgresStore) Similar(ctx context.Context, embedding []float32, limit int) ([]Scored, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", ErrRead)
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, sequence, content, embedding,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM lecture_chunks
		ORDER BY embedding <=> $1::vector, sequence, id
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query similar chunks: %w", ErrRead, err)
	}
	defer rows.Close()

	results := make([]Scored, 0, limit)
	for rows.Next() {
		var (
			item Scored
			vec  pgvector.Vector
		)
		if err := rows.Scan(&item.Chunk.ID, &item.Chunk.SourceID, &item.Chunk.Sequence, &item.Chunk.Text, &vec, &item.Score); err != nil {
			return nil, fmt.Errorf("%w: scan similar chunk: %w", ErrRead, err)
		}
		item.Chunk.Embedding = vec.Slice()
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate similar chunks: %w", ErrRead, err)
	}

	return results, nil
}

func insertChunks(ctx context.Context, tx pgx.Tx, chunks []Chunk) error {
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lecture_chunks (id, source_id, sequence, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, c.ID, c.SourceID, c.Sequence, c.Text, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("%w: insert chunk %d of source %s: %w", ErrWrite, c.Sequence, c.SourceID, err)
		}
	}
	return nil
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	chunks := make([]Chunk, 0)
	for rows.Next() {
		var (
			c   Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Sequence, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", ErrRead, err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %w", ErrRead, err)
	}
	return chunks, nil
}

var (
	_ ChunkStore = (*PostgresStore)(nil)
	_ Searcher   = (*PostgresStore)(nil)
)
