package postgres

import (
	"coach-app/internal/repository/db"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// MatchKnowledgeChunks runs the match_knowledge_chunks similarity procedure.
// Rows come back in the procedure's order (closest first).
func (p *PostgresDB) MatchKnowledgeChunks(ctx context.Context, embedding []float32, threshold float64, count int) ([]db.KnowledgeChunk, error) {
	query := `
	SELECT id, content, source, metadata, similarity
	FROM match_knowledge_chunks($1::vector, $2, $3)
	`

	rows, err := p.conn.QueryContext(ctx, query, pgvector.NewVector(embedding), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("error matching knowledge chunks: %w", err)
	}
	defer rows.Close()

	var chunks []db.KnowledgeChunk
	for rows.Next() {
		var chunk db.KnowledgeChunk
		var metadata []byte
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.Source, &metadata, &chunk.Similarity); err != nil {
			return nil, fmt.Errorf("error scanning knowledge chunk: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge chunks: %w", err)
	}

	return chunks, nil
}

// InsertKnowledgeChunk stores one embedded chunk and returns its id
func (p *PostgresDB) InsertKnowledgeChunk(ctx context.Context, create db.CreateKnowledgeChunk) (string, error) {
	metadata := create.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("error encoding chunk metadata: %w", err)
	}

	id := uuid.New().String()
	query := `
	INSERT INTO knowledge_chunks (id, content, source, metadata, embedding)
	VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := p.conn.ExecContext(ctx, query, id, create.Content, create.Source, metadataJSON, pgvector.NewVector(create.Embedding)); err != nil {
		return "", fmt.Errorf("error inserting knowledge chunk: %w", err)
	}

	return id, nil
}
