package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/embedding"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
	"legal-rag/internal/rag"
	"legal-rag/internal/storage"
)

// Options controls chunking and embedding during a build.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Retry        helper.RetryPolicy
}

// DocumentResult is the outcome of indexing one document.
type DocumentResult struct {
	Key      string `json:"key"`
	Pages    int    `json:"pages"`
	Passages int    `json:"passages"`
	Error    string `json:"error,omitempty"`
}

// BuildReport summarizes a build. A failed document never aborts the
// others.
type BuildReport struct {
	Documents []DocumentResult `json:"documents"`
	Indexed   int              `json:"indexed"`
	Failed    int              `json:"failed"`
	Passages  int              `json:"passages"`
	Dimension int              `json:"dimension"`
	Duration  time.Duration    `json:"duration"`
}

// Indexer runs Loader → Chunker/Embedder → Index for a set of keys.
type Indexer struct {
	source   storage.ObjectStore
	embedder embedding.Embedder
	index    rag.Index
	opts     Options
}

func New(source storage.ObjectStore, embedder embedding.Embedder, index rag.Index, opts Options) *Indexer {
	return &Indexer{source: source, embedder: embedder, index: index, opts: opts}
}

// Build indexes every key in order. Only a cancelled context stops it
// early.
func (ix *Indexer) Build(ctx context.Context, keys []string) (*BuildReport, error) {
	start := time.Now()
	report := &BuildReport{}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, dim, err := ix.indexDocument(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Error().Err(err).Str("key", key).Msg("Failed to index document")
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Indexed++
			report.Passages += res.Passages
			if dim > 0 {
				report.Dimension = dim
			}
			log.Info().Str("key", key).Int("pages", res.Pages).Int("passages", res.Passages).Msg("Indexed document")
		}
		report.Documents = append(report.Documents, res)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (ix *Indexer) indexDocument(ctx context.Context, key string) (DocumentResult, int, error) {
	res := DocumentResult{Key: key}
	doc, err := parser.LoadDocument(ctx, ix.source, key)
	if err != nil {
		return res, 0, err
	}
	res.Pages = len(doc.Pages)

	passages := parser.ChunkDocument(doc, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	if len(passages) == 0 {
		return res, 0, &models.ExtractionError{Key: key, Err: errors.New("no passages")}
	}

	entries, err := embedding.GenerateEmbedding(ctx, ix.embedder, passages, embedding.Options{
		BatchSize: ix.opts.BatchSize,
		Retry:     ix.opts.Retry,
	})
	if err != nil {
		return res, 0, err
	}
	if err := ix.index.Upsert(ctx, entries); err != nil {
		return res, 0, err
	}
	res.Passages = len(entries)
	return res, len(entries[0].Embedding), nil
}
