package embedding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

const defaultBatchSize = 16

// Options controls how passages are sent to the embedding service.
type Options struct {
	BatchSize int
	Retry     helper.RetryPolicy
}

// GenerateEmbedding embeds passages in order, batch by batch. A batch that
// keeps failing after Options.Retry is exhausted aborts the whole call with
// an *models.EmbeddingServiceError.
func GenerateEmbedding(ctx context.Context, embedder Embedder, passages []models.Passage, opts Options) ([]models.IndexEntry, error) {
	if len(passages) == 0 {
		log.Info().Msg("No passages to embed")
		return nil, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	entries := make([]models.IndexEntry, 0, len(passages))
	dimension := 0
	for start := 0; start < len(passages); start += batchSize {
		end := min(start+batchSize, len(passages))
		batch := passages[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}

		vectors, err := embedWithRetry(ctx, opts.Retry, func(ctx context.Context) ([][]float32, error) {
			vectors, err := embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return nil, err
			}
			if len(vectors) != len(texts) {
				return nil, helper.Permanent(fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)))
			}
			return vectors, nil
		})
		if err != nil {
			return nil, err
		}

		for i, vec := range vectors {
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) == 0 || len(vec) != dimension {
				return nil, fmt.Errorf("%w: passage %s has %d values, expected %d", models.ErrDimensionMismatch, batch[i].ID, len(vec), dimension)
			}
			entries = append(entries, models.IndexEntry{
				Passage:   batch[i],
				Embedding: vec,
				Metadata: map[string]string{
					models.MetadataSource: batch[i].SourceKey,
					models.MetadataPage:   strconv.Itoa(batch[i].PageNumber),
					models.MetadataChunk:  strconv.Itoa(batch[i].ChunkID),
				},
			})
		}
		log.Debug().Int("from", start).Int("to", end).Msg("Embedded passage batch")
	}
	return entries, nil
}

// EmbedQuery embeds a user question with the same retry policy.
func EmbedQuery(ctx context.Context, embedder Embedder, query string, retry helper.RetryPolicy) ([]float32, error) {
	vectors, err := embedWithRetry(ctx, retry, func(ctx context.Context) ([][]float32, error) {
		vec, err := embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, helper.Permanent(fmt.Errorf("empty query embedding"))
		}
		return [][]float32{vec}, nil
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func embedWithRetry(ctx context.Context, retry helper.RetryPolicy, call func(ctx context.Context) ([][]float32, error)) ([][]float32, error) {
	var vectors [][]float32
	attempts, err := helper.Retry(ctx, retry, "embed", func(ctx context.Context) error {
		var err error
		vectors, err = call(ctx)
		return err
	})
	if err != nil {
		return nil, &models.EmbeddingServiceError{Attempts: attempts, Err: err}
	}
	return vectors, nil
}
