package rag

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/embedding"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

// Retriever finds the passages closest to a question.
type Retriever struct {
	embedder      embedding.Embedder
	indexes       IndexProvider
	topK          int
	minSimilarity float32
	retry         helper.RetryPolicy
}

func NewRetriever(embedder embedding.Embedder, indexes IndexProvider, topK int, minSimilarity float64, retry helper.RetryPolicy) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		embedder:      embedder,
		indexes:       indexes,
		topK:          topK,
		minSimilarity: float32(minSimilarity),
		retry:         retry,
	}
}

// Retrieve embeds query and returns the best passages scoring at least the
// minimum similarity. Index failures come back as *models.RetrievalError and
// are not retried.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredPassage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.ErrEmptyQuery
	}

	idx, err := r.indexes.Index(ctx)
	if err != nil {
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &models.RetrievalError{Err: err}
	}
	count, err := idx.Count(ctx)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}
	if count == 0 {
		return nil, &models.RetrievalError{Err: models.ErrIndexEmpty}
	}

	vec, err := embedding.EmbedQuery(ctx, r.embedder, query, r.retry)
	if err != nil {
		return nil, err
	}

	results, err := idx.Query(ctx, vec, r.topK)
	if err != nil {
		return nil, &models.RetrievalError{Err: err}
	}

	relevant := results[:0]
	for _, res := range results {
		if res.Similarity >= r.minSimilarity {
			relevant = append(relevant, res)
		}
	}
	if len(relevant) == 0 {
		return nil, models.ErrNoRelevantPassages
	}

	log.Debug().Int("found", len(results)).Int("relevant", len(relevant)).
		Float32("best", relevant[0].Similarity).Msg("Retrieved passages")
	return relevant, nil
}
