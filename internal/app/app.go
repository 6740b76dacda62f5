// Package app builds the clients shared by the entry points. Every client is
// created once per process and injected into the stages that use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/chromemdb"
	"legal-rag/internal/config"
	"legal-rag/internal/db"
	"legal-rag/internal/embedding"
	"legal-rag/internal/gateway"
	"legal-rag/internal/helper"
	"legal-rag/internal/indexer"
	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
	"legal-rag/internal/rag"
	"legal-rag/internal/storage"
	"legal-rag/internal/telegram"
)

const telegramTimeout = 10 * time.Second

type App struct {
	Config   *config.Config
	AWS      aws.Config
	Retry    helper.RetryPolicy
	Embedder embedding.Embedder
	LLM      *llmservice.Client
	Composer *rag.Composer

	store *db.Store
}

// New validates cfg for purpose and creates the model clients. Nothing
// external is contacted when validation fails.
func New(ctx context.Context, cfg *config.Config, purpose config.Purpose) (*App, error) {
	if err := cfg.Validate(purpose); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	retry := RetryPolicy(cfg.Retry)

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM, awsCfg)
	if err != nil {
		return nil, err
	}
	llm, err := llmservice.NewClient(&cfg.TextLLM, cfg.Generation, retry, awsCfg)
	if err != nil {
		return nil, err
	}
	composer, err := rag.LoadComposer(cfg.RAG.PromptTemplateFile, cfg.RAG.MaxContextChars)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("embedding_model", cfg.EmbedLLM.Model).Str("text_model", llm.Model()).Msg("Model clients ready")

	return &App{
		Config:   cfg,
		AWS:      awsCfg,
		Retry:    retry,
		Embedder: embedder,
		LLM:      llm,
		Composer: composer,
	}, nil
}

// RetryPolicy converts the configured retry settings.
func RetryPolicy(c config.RetryConfig) helper.RetryPolicy {
	return helper.RetryPolicy{
		MaxRetries:      c.MaxRetries,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
	}
}

func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// pgStore opens the pgvector store once. Without ping, connection errors
// show up on the first query.
func (a *App) pgStore(ctx context.Context, ping bool) (*db.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	c := a.Config.Database
	if !ping {
		a.store = db.NewStore(db.NewDB(db.ConnectDB(c.URL, c.Password), c.Debug))
		return a.store, nil
	}
	store, err := db.Open(ctx, c.URL, c.Password, c.Debug)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	a.store = store
	return store, nil
}

// SnapshotStore is where chromem snapshots are published: the embedding
// bucket, or a local directory next to CHROMA_DB_DIR when no bucket is set.
func (a *App) SnapshotStore() storage.ObjectStore {
	if name := a.Config.Storage.EmbeddingBucket; name != "" {
		return storage.NewS3BucketFromConfig(a.AWS, name)
	}
	return storage.NewLocalDir(filepath.Clean(a.Config.Index.Dir) + "_snapshots")
}

func (a *App) newManager(persistent bool) (*chromemdb.VectorDBManager, error) {
	c := a.Config.Index
	dir := ""
	if persistent {
		dir = c.Dir
		if err := helper.CreateFolder(dir); err != nil {
			return nil, err
		}
	}
	return chromemdb.NewVectorDBManager(dir, c.Collection, !persistent, c.EncryptionKey)
}

// Indexes returns the query side index provider, loaded lazily on first use.
func (a *App) Indexes(ctx context.Context) (rag.IndexProvider, error) {
	model := a.Config.EmbedLLM.Model
	if a.Config.Index.VectorStore == "pgvector" {
		store, err := a.pgStore(ctx, false)
		if err != nil {
			return nil, err
		}
		return rag.NewStoreLoader(store, model), nil
	}
	return rag.NewSnapshotLoader(a.SnapshotStore(), a.Config.Storage.EmbeddingsKey, func() (*chromemdb.VectorDBManager, error) {
		return a.newManager(false)
	}, model), nil
}

// Pipeline wires retriever, composer and LLM over indexes.
func (a *App) Pipeline(indexes rag.IndexProvider) *rag.RAG {
	c := a.Config.RAG
	return rag.NewRAG(rag.NewRetriever(a.Embedder, indexes, c.TopK, c.MinSimilarity, a.Retry), a.Composer, a.LLM)
}

// Gateway builds the Telegram webhook handler.
func (a *App) Gateway(ctx context.Context) (*gateway.Gateway, error) {
	indexes, err := a.Indexes(ctx)
	if err != nil {
		return nil, err
	}
	c := a.Config
	bot := telegram.NewClient(c.Telegram.APIBase, c.Telegram.Token, telegramTimeout)
	return gateway.New(a.Pipeline(indexes), bot, c.ProcessingTimeout, gateway.DebugInfo{
		MaskedToken:     helper.MaskSecret(c.Telegram.Token),
		PDFBucket:       c.Storage.PDFBucket,
		EmbeddingBucket: c.Storage.EmbeddingBucket,
		Region:          c.AWSRegion,
		IndexDir:        c.Index.Dir,
		VectorStore:     c.Index.VectorStore,
	}), nil
}

// Initializer builds the full indexing run. persistent keeps the chromem
// collection on disk in CHROMA_DB_DIR as well as publishing the snapshot.
func (a *App) Initializer(ctx context.Context, persistent bool) (*indexer.Initializer, error) {
	c := a.Config
	in := &indexer.Initializer{
		Prefix:         c.Storage.PDFFolder,
		MaxDocuments:   c.Storage.MaxDocuments,
		SmokeTestQuery: c.RAG.SmokeTestQuery,
		EmbeddingModel: c.EmbedLLM.Model,
		Collection:     c.Index.Collection,
	}

	var docsBucket, fallbackDir string
	if c.Storage.PDFBucket != "" {
		docs := storage.NewS3BucketFromConfig(a.AWS, c.Storage.PDFBucket)
		in.Documents = docs
		in.Buckets = append(in.Buckets, docs)
		docsBucket = docs.Name()
	}
	if c.Storage.LocalDatasetDir != "" {
		fallback := storage.NewLocalDir(c.Storage.LocalDatasetDir)
		in.Fallback = fallback
		fallbackDir = fallback.Root()
	}
	if in.Documents == nil && in.Fallback == nil {
		return nil, errors.New("no document source configured")
	}

	if c.Index.VectorStore == "pgvector" {
		store, err := a.pgStore(ctx, true)
		if err != nil {
			return nil, err
		}
		in.Index = store
		in.Publisher = &indexer.StorePublisher{Store: store}
	} else {
		mgr, err := a.newManager(persistent)
		if err != nil {
			return nil, err
		}
		snapshots := a.SnapshotStore()
		if ensurer, ok := snapshots.(storage.BucketEnsurer); ok {
			in.Buckets = append(in.Buckets, ensurer)
		}
		in.Index = mgr
		in.Publisher = &indexer.SnapshotPublisher{Store: snapshots, Prefix: c.Storage.EmbeddingsKey, Exporter: mgr}
	}

	in.Indexer = indexer.New(nil, a.Embedder, in.Index, indexer.Options{
		ChunkSize:    c.RAG.ChunkSize,
		ChunkOverlap: c.RAG.ChunkOverlap,
		BatchSize:    c.EmbedLLM.BatchSize,
		Retry:        a.Retry,
	})
	in.Asker = a.Pipeline(rag.StaticIndex(in.Index))

	log.Info().Str("vector_store", c.Index.VectorStore).Str("pdf_bucket", docsBucket).Str("fallback_dir", fallbackDir).
		Str("embedding_bucket", c.Storage.EmbeddingBucket).Bool("persistent", persistent).Msg("Initializer ready")
	return in, nil
}
