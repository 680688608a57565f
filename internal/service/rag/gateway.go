package rag

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"context"

	"github.com/sirupsen/logrus"
)

// Default search parameters
const (
	DefaultThreshold = 0.7
	DefaultCount     = 5
)

// ChunkStore is the part of the store the gateway needs
type ChunkStore interface {
	MatchKnowledgeChunks(ctx context.Context, embedding []float32, threshold float64, count int) ([]db.KnowledgeChunk, error)
}

// Gateway runs similarity searches against the knowledge base
type Gateway struct {
	store ChunkStore
}

// NewGateway creates a gateway over store
func NewGateway(store ChunkStore) *Gateway {
	return &Gateway{store: store}
}

// Search returns chunks with similarity above threshold, closest first, at most count.
// Failures are logged and yield an empty result.
func (g *Gateway) Search(ctx context.Context, vector []float32, threshold float64, count int) []db.KnowledgeChunk {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if count <= 0 {
		count = DefaultCount
	}

	chunks, err := g.store.MatchKnowledgeChunks(ctx, vector, threshold, count)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"threshold": threshold,
			"count":     count,
		}).Warn("Knowledge search failed, continuing without context")
		return nil
	}
	return chunks
}
