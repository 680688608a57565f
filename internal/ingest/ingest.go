package ingest

import (
	"coach-app/internal/logger"
	"coach-app/internal/repository/db"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Embedder turns chunk text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkWriter stores embedded chunks
type ChunkWriter interface {
	InsertKnowledgeChunk(ctx context.Context, create db.CreateKnowledgeChunk) (string, error)
}

// Options control a single ingestion run
type Options struct {
	MaxChars int
	DryRun   bool
}

// Stats summarizes an ingestion run
type Stats struct {
	Files  int
	Chunks int
}

// Ingester loads a directory of documents into the knowledge base
type Ingester struct {
	embedder Embedder
	writer   ChunkWriter
}

// NewIngester creates an ingester. The writer may be nil for dry runs.
func NewIngester(embedder Embedder, writer ChunkWriter) *Ingester {
	return &Ingester{embedder: embedder, writer: writer}
}

// IngestDir chunks, embeds and stores every .md and .txt file below root (read from fsys).
// It stops at the first failure.
func (in *Ingester) IngestDir(ctx context.Context, fsys fs.FS, opts Options) (Stats, error) {
	var stats Stats

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isDocument(path) {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", path, err)
		}

		chunks := SplitChunks(string(content), opts.MaxChars)
		stats.Files++

		for i, chunk := range chunks {
			if opts.DryRun {
				stats.Chunks++
				continue
			}

			vector, err := in.embedder.Embed(ctx, chunk)
			if err != nil {
				return fmt.Errorf("error embedding %s chunk %d: %w", path, i, err)
			}

			if _, err := in.writer.InsertKnowledgeChunk(ctx, db.CreateKnowledgeChunk{
				Content:   chunk,
				Source:    filepath.ToSlash(path),
				Metadata:  map[string]any{"chunk": i, "chunks": len(chunks)},
				Embedding: vector,
			}); err != nil {
				return fmt.Errorf("error storing %s chunk %d: %w", path, i, err)
			}
			stats.Chunks++
		}

		logger.Log.WithFields(logrus.Fields{
			"source":  path,
			"chunks":  len(chunks),
			"dry_run": opts.DryRun,
		}).Info("Ingested document")
		return nil
	})

	return stats, err
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	}
	return false
}
