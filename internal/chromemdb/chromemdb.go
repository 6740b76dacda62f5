package chromemdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/models"
)

// meta data will have source filename, page number, chunk id and the
// insertion sequence used to order equal scores

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	dbPath         string
	encryptionKey  string
	dimension      int
	seq            int
}

const (
	compress = true
)

// NewVectorDBManager initializes a new vector database manager. With
// inMemory false the collection is persisted under dbPath.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	m := &VectorDBManager{
		db:             db,
		collectionName: collectionName,
		dbPath:         dbPath,
		encryptionKey:  encryptionKey,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	m.seq = m.collection.Count()
	return m, nil
}

// create or read collection
func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return c, nil
}

// Upsert stores entries, replacing any with the same passage id. All
// embeddings in the collection must share one dimension.
func (m *VectorDBManager) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dimension := m.dimension
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if dimension == 0 {
			dimension = len(e.Embedding)
		}
		if len(e.Embedding) == 0 || len(e.Embedding) != dimension {
			return fmt.Errorf("%w: passage %s has %d values, index uses %d", models.ErrDimensionMismatch, e.Passage.ID, len(e.Embedding), dimension)
		}

		meta := make(map[string]string, len(e.Metadata)+4)
		for k, v := range e.Metadata {
			meta[k] = v
		}
		meta[models.MetadataSource] = e.Passage.SourceKey
		meta[models.MetadataPage] = strconv.Itoa(e.Passage.PageNumber)
		meta[models.MetadataChunk] = strconv.Itoa(e.Passage.ChunkID)
		meta[models.MetadataSeq] = strconv.Itoa(m.seq + len(docs))

		docs = append(docs, chromem.Document{
			ID:        e.Passage.ID,
			Content:   e.Passage.Content,
			Metadata:  meta,
			Embedding: e.Embedding,
		})
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	m.seq += len(docs)
	m.dimension = dimension
	log.Debug().Int("added", len(docs)).Int("count", m.collection.Count()).Msg("Upserted passages")
	return nil
}

// Query returns up to k passages by descending cosine similarity. Equal
// scores keep insertion order.
func (m *VectorDBManager) Query(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.collection.Count()
	if n == 0 {
		return nil, models.ErrIndexEmpty
	}
	if m.dimension > 0 && len(embedding) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d values, index uses %d", models.ErrDimensionMismatch, len(embedding), m.dimension)
	}

	// chromem orders by similarity only; fetch every candidate so equal
	// scores at the cut-off are resolved by sequence
	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return metaInt(results[i].Metadata, models.MetadataSeq) < metaInt(results[j].Metadata, models.MetadataSeq)
	})
	if len(results) > k {
		results = results[:k]
	}

	out := make([]models.ScoredPassage, len(results))
	for i, r := range results {
		out[i] = models.ScoredPassage{
			Passage: models.Passage{
				ID:         r.ID,
				Content:    r.Content,
				SourceKey:  r.Metadata[models.MetadataSource],
				PageNumber: metaInt(r.Metadata, models.MetadataPage),
				ChunkID:    metaInt(r.Metadata, models.MetadataChunk),
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// Count returns the number of stored passages.
func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collection.Count(), nil
}

// Dimension returns the embedding size in use, 0 while empty.
func (m *VectorDBManager) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Reset drops every stored passage.
func (m *VectorDBManager) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return err
	}
	m.seq = 0
	m.dimension = 0
	return nil
}

// Export writes a compressed snapshot of the collection, encrypted when an
// encryption key is configured.
func (m *VectorDBManager) Export(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Debug().Str("collection", m.collectionName).Int("count", m.collection.Count()).
		Bool("encrypted", m.encryptionKey != "").Msg("Exporting collection")
	if err := m.db.ExportToWriter(w, compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import replaces the collection with a snapshot produced by Export.
// dimension is the embedding size recorded alongside the snapshot.
func (m *VectorDBManager) Import(data []byte, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ImportFromReader(bytes.NewReader(data), m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	c := m.db.GetCollection(m.collectionName, nil)
	if c == nil {
		return fmt.Errorf("snapshot has no collection %q", m.collectionName)
	}
	m.collection = c
	m.seq = c.Count()
	m.dimension = dimension
	log.Debug().Str("collection", m.collectionName).Int("count", m.seq).Msg("Imported collection")
	return nil
}

func metaInt(meta map[string]string, key string) int {
	v, err := strconv.Atoi(meta[key])
	if err != nil {
		return 0
	}
	return v
}
