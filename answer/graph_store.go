package answer

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// LectureInsight is provenance pulled from the lecture graph for one source.
type LectureInsight struct {
	ChunkCount int
}

type GraphStore interface {
	LectureInsights(ctx context.Context, sourceIDs []string) (map[string]LectureInsight, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) LectureInsights(ctx context.Context, sourceIDs []string) (map[string]LectureInsight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(sourceIDs) == 0 {
		return map[string]LectureInsight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (l:Lecture)
		WHERE l.id IN $ids
		OPTIONAL MATCH (l)-[:HAS_CHUNK]->(c:Chunk)
		RETURN l.id AS id, count(c) AS chunkCount
	`, map[string]any{"ids": sourceIDs})
	if err != nil {
		return nil, fmt.Errorf("run lecture insights query: %w", err)
	}

	insights := make(map[string]LectureInsight, len(sourceIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		countVal, _ := record.Get("chunkCount")

		id, ok := idVal.(string)
		if !ok {
			continue
		}
		var count int64
		switch v := countVal.(type) {
		case int64:
			count = v
		case int32:
			count = int64(v)
		}
		insights[id] = LectureInsight{ChunkCount: int(count)}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("lecture insights result error: %w", err)
	}

	return insights, nil
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
