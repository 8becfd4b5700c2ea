// Package knowledge mirrors ingested lectures into an optional Neo4j graph
// used to enrich answers with per-lecture provenance.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Lecture struct {
	SourceID string
	Chunks   []ChunkRef
}

type ChunkRef struct {
	ID       string
	Sequence int
	Text     string
}

// SyncLecture replaces the graph projection of a lecture: one Lecture node
// and an ordered HAS_CHUNK relation per chunk. Stale chunk nodes from a
// previous ingestion of the same source are removed first.
func SyncLecture(ctx context.Context, driver neo4j.DriverWithContext, lecture Lecture) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (l:Lecture {id: $id})
			SET l.updated_at = datetime()
		`, map[string]any{"id": lecture.SourceID}); err != nil {
			return nil, fmt.Errorf("upsert lecture node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (l:Lecture {id: $id})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, map[string]any{"id": lecture.SourceID}); err != nil {
			return nil, fmt.Errorf("clear stale chunk nodes: %w", err)
		}

		for _, chunk := range lecture.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (l:Lecture {id: $lecture_id})
				MERGE (c:Chunk {id: $chunk_id})
				SET c.sequence = $sequence,
				    c.text = $text
				MERGE (l)-[:HAS_CHUNK {order: $sequence}]->(c)
			`, map[string]any{
				"lecture_id": lecture.SourceID,
				"chunk_id":   chunk.ID,
				"sequence":   chunk.Sequence,
				"text":       chunk.Text,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node: %w", err)
			}
		}

		return nil, nil
	})

	return err
}

// RemoveLecture deletes a lecture and its chunk nodes. Removing an unknown
// lecture is a no-op.
func RemoveLecture(ctx context.Context, driver neo4j.DriverWithContext, sourceID string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (l:Lecture {id: $id})
			OPTIONAL MATCH (l)-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE l, c
		`, map[string]any{"id": sourceID}); err != nil {
			return nil, fmt.Errorf("delete lecture: %w", err)
		}
		return nil, nil
	})

	return err
}
