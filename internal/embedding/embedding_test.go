package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag/internal/config"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

var fastRetry = helper.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

// flakyEmbedder fails the first failures calls, then returns one vector per text
type flakyEmbedder struct {
	failures int
	calls    int
	dim      int
}

func (f *flakyEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("throttled")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func passages(n int) []models.Passage {
	out := make([]models.Passage, n)
	for i := range out {
		out[i] = models.Passage{
			ID:         models.PassageID("doc.pdf", 1, i+1),
			Content:    fmt.Sprintf("passage %d", i),
			SourceKey:  "doc.pdf",
			PageNumber: 1,
			ChunkID:    i + 1,
		}
	}
	return out
}

func TestGenerateEmbeddingRecoversAfterTransientFailures(t *testing.T) {
	emb := &flakyEmbedder{failures: 3, dim: 4}

	entries, err := GenerateEmbedding(context.Background(), emb, passages(2), Options{BatchSize: 8, Retry: fastRetry})
	require.NoError(t, err)
	assert.Equal(t, 4, emb.calls)
	require.Len(t, entries, 2)
	assert.Equal(t, "doc.pdf", entries[1].Metadata[models.MetadataSource])
	assert.Equal(t, "2", entries[1].Metadata[models.MetadataChunk])
	assert.Len(t, entries[0].Embedding, 4)
}

func TestGenerateEmbeddingGivesUp(t *testing.T) {
	emb := &flakyEmbedder{failures: 100, dim: 4}

	_, err := GenerateEmbedding(context.Background(), emb, passages(1), Options{Retry: fastRetry})
	var svcErr *models.EmbeddingServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 4, svcErr.Attempts)
	assert.Equal(t, 4, emb.calls)
}

func TestGenerateEmbeddingBatches(t *testing.T) {
	emb := &flakyEmbedder{dim: 2}

	entries, err := GenerateEmbedding(context.Background(), emb, passages(5), Options{BatchSize: 2, Retry: fastRetry})
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Passage.ChunkID)
	}
}

func TestGenerateEmbeddingNoPassages(t *testing.T) {
	emb := &flakyEmbedder{dim: 2}
	entries, err := GenerateEmbedding(context.Background(), emb, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, emb.calls)
}

type shortEmbedder struct{ flakyEmbedder }

func (s *shortEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	return [][]float32{{1}}, nil
}

func TestGenerateEmbeddingCountMismatchIsNotRetried(t *testing.T) {
	emb := &shortEmbedder{}
	_, err := GenerateEmbedding(context.Background(), emb, passages(3), Options{Retry: fastRetry})
	var svcErr *models.EmbeddingServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 1, emb.calls)
}

func TestEmbedQuery(t *testing.T) {
	emb := &flakyEmbedder{failures: 1, dim: 3}
	vec, err := EmbedQuery(context.Background(), emb, "qual a multa?", fastRetry)
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 2, emb.calls)
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.LLMConfig{Provider: "mystery"}, aws.Config{Region: "us-east-1"})
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EMBEDDING_PROVIDER", cfgErr.Field)
}

func TestNewOllamaEmbedder(t *testing.T) {
	emb, err := NewEmbedder(&config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text"}, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.NotNil(t, emb)
}
