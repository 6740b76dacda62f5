package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"legal-rag/internal/models"
)

type PassageRow struct {
	bun.BaseModel `bun:"table:passages,alias:p"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	SourceKey     string          `bun:"source_key,notnull"`
	PageNumber    int             `bun:"page_number,notnull"`
	ChunkID       int             `bun:"chunk_id,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
}

type scoredRow struct {
	ID         string  `bun:"id"`
	Content    string  `bun:"content"`
	SourceKey  string  `bun:"source_key"`
	PageNumber int     `bun:"page_number"`
	ChunkID    int     `bun:"chunk_id"`
	Similarity float32 `bun:"similarity"`
}

type ManifestRow struct {
	bun.BaseModel `bun:"table:index_manifest"`
	ID            int             `bun:"id,pk"`
	Manifest      models.Manifest `bun:"data,type:jsonb,notnull"`
}

const manifestRowID = 1

// passages.seq records insertion order and breaks similarity ties
const createPassagesSQL = `CREATE TABLE IF NOT EXISTS passages (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source_key TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	chunk_id INTEGER NOT NULL,
	embedding vector(%d) NOT NULL
)`

// Store keeps passages in a pgvector table and ranks them by cosine
// distance.
type Store struct {
	db        *bun.DB
	mu        sync.Mutex
	dimension int
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitDB creates the extension and the tables for embeddings of the given
// dimension.
func (s *Store) InitDB(ctx context.Context, dimension int) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createPassagesSQL, dimension)); err != nil {
		return fmt.Errorf("failed to create passages table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*ManifestRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create manifest table: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dimension := s.dimension
	rows := make([]PassageRow, 0, len(entries))
	for _, e := range entries {
		if dimension == 0 {
			dimension = len(e.Embedding)
		}
		if len(e.Embedding) == 0 || len(e.Embedding) != dimension {
			return fmt.Errorf("%w: passage %s has %d values, index uses %d", models.ErrDimensionMismatch, e.Passage.ID, len(e.Embedding), dimension)
		}
		rows = append(rows, PassageRow{
			ID:         e.Passage.ID,
			Content:    e.Passage.Content,
			SourceKey:  e.Passage.SourceKey,
			PageNumber: e.Passage.PageNumber,
			ChunkID:    e.Passage.ChunkID,
			Embedding:  pgvector.NewVector(e.Embedding),
		})
	}

	if s.dimension == 0 {
		if err := s.InitDB(ctx, dimension); err != nil {
			return err
		}
	}
	if _, err := s.upsertQuery(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store passages: %w", err)
	}
	s.dimension = dimension
	log.Debug().Int("added", len(rows)).Msg("Upserted passages")
	return nil
}

func (s *Store) upsertQuery(rows *[]PassageRow) *bun.InsertQuery {
	return s.db.NewInsert().Model(rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("source_key = EXCLUDED.source_key").
		Set("page_number = EXCLUDED.page_number").
		Set("chunk_id = EXCLUDED.chunk_id").
		Set("embedding = EXCLUDED.embedding")
}

func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]models.ScoredPassage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	s.mu.Lock()
	dimension := s.dimension
	s.mu.Unlock()
	if dimension > 0 && len(embedding) != dimension {
		return nil, fmt.Errorf("%w: query has %d values, index uses %d", models.ErrDimensionMismatch, len(embedding), dimension)
	}

	var rows []scoredRow
	if err := s.nearestQuery(embedding, k).Scan(ctx, &rows); err != nil {
		if isUndefinedTable(err) {
			return nil, models.ErrIndexEmpty
		}
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrIndexEmpty
	}

	out := make([]models.ScoredPassage, len(rows))
	for i, r := range rows {
		out[i] = models.ScoredPassage{
			Passage: models.Passage{
				ID:         r.ID,
				Content:    r.Content,
				SourceKey:  r.SourceKey,
				PageNumber: r.PageNumber,
				ChunkID:    r.ChunkID,
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *Store) nearestQuery(embedding []float32, k int) *bun.SelectQuery {
	vec := pgvector.NewVector(embedding)
	return s.db.NewSelect().
		TableExpr("passages").
		Column("id", "content", "source_key", "page_number", "chunk_id").
		ColumnExpr("1 - (embedding <=> ?::vector) AS similarity", vec).
		OrderExpr("embedding <=> ?::vector", vec).
		OrderExpr("seq ASC").
		Limit(k)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().TableExpr("passages").Count(ctx)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.NewDropTable().Model((*PassageRow)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop passages: %w", err)
	}
	if _, err := s.db.NewDelete().Model((*ManifestRow)(nil)).Where("id = ?", manifestRowID).Exec(ctx); err != nil && !isUndefinedTable(err) {
		return fmt.Errorf("failed to clear manifest: %w", err)
	}
	s.dimension = 0
	return nil
}

// SaveManifest records how the stored passages were built.
func (s *Store) SaveManifest(ctx context.Context, m models.Manifest) error {
	row := &ManifestRow{ID: manifestRowID, Manifest: m}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return err
}

// LoadManifest returns the stored manifest, models.ErrIndexUnavailable when
// the index was never built.
func (s *Store) LoadManifest(ctx context.Context) (models.Manifest, error) {
	var row ManifestRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", manifestRowID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
			return models.Manifest{}, models.ErrIndexUnavailable
		}
		return models.Manifest{}, err
	}
	s.mu.Lock()
	s.dimension = row.Manifest.Dimension
	s.mu.Unlock()
	return row.Manifest, nil
}

// pgError is satisfied by pgdriver.Error.
type pgError interface {
	error
	Field(k byte) string
}

func isUndefinedTable(err error) bool {
	var pgErr pgError
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "42P01"
	}
	return false
}
