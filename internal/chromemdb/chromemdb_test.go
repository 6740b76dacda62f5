package chromemdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag/internal/models"
)

func entry(id string, chunk int, vec ...float32) models.IndexEntry {
	return models.IndexEntry{
		Passage: models.Passage{
			ID:         id,
			Content:    "content of " + id,
			SourceKey:  "doc.pdf",
			PageNumber: 1,
			ChunkID:    chunk,
		},
		Embedding: vec,
	}
}

func newManager(t *testing.T, key string) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("", models.DefaultCollection, true, key)
	require.NoError(t, err)
	return m
}

func TestQueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{
		entry("a", 1, 1, 0, 0),
		entry("b", 2, 0.7, 0.7, 0),
		entry("c", 3, 0, 1, 0),
		entry("d", 4, 0, 0, 1),
	}))

	results, err := m.Query(ctx, []float32{1, 0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Passage.ID)
	assert.Equal(t, "b", results[1].Passage.ID)
	assert.Equal(t, "c", results[2].Passage.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	assert.Equal(t, "doc.pdf", results[0].Passage.SourceKey)
	assert.Equal(t, 1, results[0].Passage.ChunkID)
	assert.Equal(t, "content of a", results[0].Passage.Content)
}

func TestQuerySelfRetrieval(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	vec := []float32{0.2, 0.5, 0.1, 0.9}
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{
		entry("other", 1, 1, 0, 0, 0),
		entry("self", 2, vec...),
	}))

	results, err := m.Query(ctx, vec, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "self", results[0].Passage.ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{
		entry("first", 1, 0, 1),
		entry("second", 2, 0, 1),
	}))
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{
		entry("third", 3, 0, 1),
		entry("best", 4, 1, 0),
	}))

	for range 5 {
		results, err := m.Query(ctx, []float32{1, 1}, 4)
		require.NoError(t, err)
		var ids []string
		for _, r := range results {
			ids = append(ids, r.Passage.ID)
		}
		assert.Equal(t, []string{"first", "second", "third", "best"}, ids)
	}

	results, err := m.Query(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, "first", results[0].Passage.ID)
	assert.Equal(t, "second", results[1].Passage.ID)
}

func TestQueryKLargerThanCount(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 1, 0)}))

	results, err := m.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQueryEmptyIndex(t *testing.T) {
	m := newManager(t, "")
	_, err := m.Query(context.Background(), []float32{1, 0}, 3)
	assert.ErrorIs(t, err, models.ErrIndexEmpty)
}

func TestInvalidQueries(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 1, 0)}))

	_, err := m.Query(ctx, []float32{1, 0}, 0)
	assert.Error(t, err)
	_, err = m.Query(ctx, nil, 1)
	assert.Error(t, err)
	_, err = m.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 1, 0)}))

	err := m.Upsert(ctx, []models.IndexEntry{entry("b", 2, 1, 0, 0)})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	n, _ := m.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestUpsertReplacesExistingID(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 1, 0)}))
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 0, 1)}))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResetClearsIndex(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "")
	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("a", 1, 1, 0)}))
	require.NoError(t, m.Reset(ctx))

	n, _ := m.Count(ctx)
	assert.Zero(t, n)
	assert.Zero(t, m.Dimension())

	require.NoError(t, m.Upsert(ctx, []models.IndexEntry{entry("b", 1, 1, 0, 0)}))
	assert.Equal(t, 3, m.Dimension())
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := "0123456789abcdef0123456789abcdef"
	src := newManager(t, key)
	require.NoError(t, src.Upsert(ctx, []models.IndexEntry{
		entry("a", 1, 1, 0),
		entry("b", 2, 0, 1),
	}))

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	dst := newManager(t, key)
	require.NoError(t, dst.Import(buf.Bytes(), 2))
	n, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := dst.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", results[0].Passage.ID)

	wrongKey := newManager(t, "ffffffffffffffffffffffffffffffff")
	assert.Error(t, wrongKey.Import(buf.Bytes(), 2))
}
