package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"legal-rag/internal/chromemdb"
	"legal-rag/internal/db"
	"legal-rag/internal/models"
	"legal-rag/internal/storage"
)

// SnapshotKey and ManifestKey locate a built index under prefix.
func SnapshotKey(prefix string) string { return storage.Join(prefix, models.SnapshotFile) }
func ManifestKey(prefix string) string { return storage.Join(prefix, models.ManifestFile) }

type loadFunc func(ctx context.Context) (Index, models.Manifest, error)

// Loader loads an index once per process. A successful load is reused by
// every later call; a failed one is retried on the next call.
type Loader struct {
	model string
	load  loadFunc

	mu  sync.Mutex
	idx Index
}

// NewSnapshotLoader reads a chromem snapshot and its manifest from store.
func NewSnapshotLoader(store storage.ObjectStore, prefix string, newManager func() (*chromemdb.VectorDBManager, error), model string) *Loader {
	return &Loader{model: model, load: func(ctx context.Context) (Index, models.Manifest, error) {
		var (
			snapshot []byte
			manifest models.Manifest
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			snapshot, err = store.Get(gctx, SnapshotKey(prefix))
			return err
		})
		g.Go(func() error {
			raw, err := store.Get(gctx, ManifestKey(prefix))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &manifest); err != nil {
				return fmt.Errorf("decode manifest: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, manifest, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
			}
			return nil, manifest, err
		}

		mgr, err := newManager()
		if err != nil {
			return nil, manifest, err
		}
		if err := mgr.Import(snapshot, manifest.Dimension); err != nil {
			return nil, manifest, err
		}
		log.Debug().Int("dimension", mgr.Dimension()).Int("bytes", len(snapshot)).Msg("Imported snapshot")
		return mgr, manifest, nil
	}}
}

// NewStoreLoader checks the manifest kept next to a pgvector table.
func NewStoreLoader(store *db.Store, model string) *Loader {
	return &Loader{model: model, load: func(ctx context.Context) (Index, models.Manifest, error) {
		manifest, err := store.LoadManifest(ctx)
		if err != nil {
			return nil, manifest, err
		}
		return store, manifest, nil
	}}
}

// Index returns the loaded index. A manifest built with a different
// embedding model than the configured one is a *models.ConfigurationError.
func (l *Loader) Index(ctx context.Context) (Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idx != nil {
		return l.idx, nil
	}

	idx, manifest, err := l.load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load index")
		return nil, err
	}
	if manifest.EmbeddingModel != l.model {
		return nil, &models.ConfigurationError{
			Field: "EMBEDDING_MODEL_ID",
			Err:   fmt.Errorf("index was built with %q, configured model is %q", manifest.EmbeddingModel, l.model),
		}
	}

	log.Info().Int("passages", manifest.Passages).Int("documents", manifest.Documents).
		Time("built_at", manifest.BuiltAt).Msg("Index loaded")
	l.idx = idx
	return idx, nil
}
