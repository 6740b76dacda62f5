package rag

import (
	"context"

	"legal-rag/internal/models"
)

// Index is a vector index of passages. Implemented by
// chromemdb.VectorDBManager and db.Store.
type Index interface {
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	// Query returns at most k passages by non-increasing similarity, ties in
	// insertion order.
	Query(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// IndexProvider hands out the index to query, loading it on first use.
type IndexProvider interface {
	Index(ctx context.Context) (Index, error)
}

type staticIndex struct{ idx Index }

func (s staticIndex) Index(context.Context) (Index, error) { return s.idx, nil }

// StaticIndex wraps an index that is already loaded.
func StaticIndex(idx Index) IndexProvider {
	return staticIndex{idx: idx}
}
