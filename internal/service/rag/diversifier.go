package rag

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"context"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Search thresholds of the two retrieval passes
const (
	MainThreshold    = 0.7
	KeywordThreshold = 0.65
)

// Embedder turns text into a query vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Diversifier widens retrieval with a second keyword-driven search and merges both result sets
type Diversifier struct {
	embedder  Embedder
	gateway   *Gateway
	stopWords map[string]struct{}
}

// NewDiversifier creates a diversifier
func NewDiversifier(embedder Embedder, gateway *Gateway, stopWords []string) *Diversifier {
	return &Diversifier{
		embedder:  embedder,
		gateway:   gateway,
		stopWords: StopWordSet(stopWords),
	}
}

// Retrieve returns up to 2k distinct chunks relevant to query, most similar first.
// It never fails, the worst case is an empty result.
func (d *Diversifier) Retrieve(ctx context.Context, query string, k int) []db.KnowledgeChunk {
	if k <= 0 {
		k = 3
	}
	keywords := ExtractKeywords(query, d.stopWords)

	var main, secondary []db.KnowledgeChunk

	// Neither goroutine returns an error, failures come back as empty slices
	var g errgroup.Group
	g.Go(func() error {
		main = d.search(ctx, query, MainThreshold, k)
		return nil
	})
	if keywords != "" {
		g.Go(func() error {
			secondary = d.search(ctx, keywords, KeywordThreshold, (k+1)/2)
			return nil
		})
	}
	_ = g.Wait()

	merged := mergeChunks(main, secondary, 2*k)

	logger.Log.WithFields(logrus.Fields{
		"main":      len(main),
		"keywords":  keywords,
		"secondary": len(secondary),
		"merged":    len(merged),
	}).Debug("Retrieved diversified context")

	return merged
}

func (d *Diversifier) search(ctx context.Context, text string, threshold float64, count int) []db.KnowledgeChunk {
	vector, err := d.embedder.Embed(ctx, text)
	if err != nil {
		logger.Log.WithError(err).Warn("Embedding failed, skipping knowledge search")
		return nil
	}
	return d.gateway.Search(ctx, vector, threshold, count)
}

// mergeChunks concatenates primary then secondary, keeps the first occurrence of each id,
// orders by similarity descending (ties keep merge order) and truncates to limit.
func mergeChunks(primary, secondary []db.KnowledgeChunk, limit int) []db.KnowledgeChunk {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	merged := make([]db.KnowledgeChunk, 0, len(primary)+len(secondary))
	for _, chunk := range slices.Concat(primary, secondary) {
		if _, dup := seen[chunk.ID]; dup {
			continue
		}
		seen[chunk.ID] = struct{}{}
		merged = append(merged, chunk)
	}

	slices.SortStableFunc(merged, func(a, b db.KnowledgeChunk) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
