package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag/internal/config"
	"legal-rag/internal/models"
	"legal-rag/internal/storage"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Telegram.Token = ""

	_, err = New(context.Background(), cfg, config.PurposeWebhook)
	var cfgErr *models.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "TELEGRAM_BOT_TOKEN", cfgErr.Field)
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy(config.RetryConfig{MaxRetries: 3, InitialInterval: time.Second, MaxInterval: 8 * time.Second})
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, 8*time.Second, p.MaxInterval)
}

func TestSnapshotStoreFallsBackToLocalDir(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Storage.EmbeddingBucket = ""
	cfg.Index.Dir = "/tmp/chroma_db/"

	local, ok := (&App{Config: cfg}).SnapshotStore().(*storage.LocalDir)
	require.True(t, ok)
	assert.Equal(t, "/tmp/chroma_db_snapshots", local.Root())
}

func TestInitializerNeedsDocumentSource(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Storage.PDFBucket = ""
	cfg.Storage.LocalDatasetDir = ""

	_, err = (&App{Config: cfg}).Initializer(context.Background(), false)
	assert.Error(t, err)
}

func TestInitializerFromLocalDataset(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	dataset := t.TempDir()
	cfg.Storage.PDFBucket = ""
	cfg.Storage.EmbeddingBucket = ""
	cfg.Storage.LocalDatasetDir = dataset
	cfg.Index.Dir = t.TempDir()

	in, err := (&App{Config: cfg}).Initializer(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, in.Documents)
	fallback, ok := in.Fallback.(*storage.LocalDir)
	require.True(t, ok)
	assert.Equal(t, dataset, fallback.Root())
	assert.NotNil(t, in.Index)
	assert.NotNil(t, in.Publisher)
}
