package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag/internal/chromemdb"
	"legal-rag/internal/embedding"
	"legal-rag/internal/helper"
	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
	"legal-rag/internal/storage"
)

const dims = 64

// wordEmbedder hashes words into a fixed size bag of words vector with a
// constant bias component, so no text maps to the zero vector.
type wordEmbedder struct{ calls int }

func (w *wordEmbedder) vector(text string) []float32 {
	vec := make([]float32, dims)
	vec[dims-1] = 0.1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:?!%")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%(dims-1)]++
	}
	return vec
}

func (w *wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	w.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = w.vector(t)
	}
	return out, nil
}

func (w *wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	w.calls++
	return w.vector(text), nil
}

type mockGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ ...llmservice.Option) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

var fastRetry = helper.RetryPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func buildIndex(t *testing.T, emb embedding.Embedder, docs map[string]string) *chromemdb.VectorDBManager {
	t.Helper()
	ctx := context.Background()
	mgr, err := chromemdb.NewVectorDBManager("", models.DefaultCollection, true, "")
	require.NoError(t, err)
	for _, key := range sortedKeys(docs) {
		passages := parser.ChunkText(key, 1, docs[key], 50, 5)
		entries, err := embedding.GenerateEmbedding(ctx, emb, passages, embedding.Options{Retry: fastRetry})
		require.NoError(t, err)
		require.NoError(t, mgr.Upsert(ctx, entries))
	}
	return mgr
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var corpus = map[string]string{
	"contrato.pdf":   "Contract X states the penalty is 10%.",
	"recurso.pdf":    "O recurso especial foi interposto contra acórdão do tribunal estadual.",
	"locacao.pdf":    "A locação residencial tem prazo mínimo de trinta meses.",
	"honorarios.pdf": "Os honorários advocatícios foram fixados em quinze por cento.",
}

func TestRetrieverSelfRetrieval(t *testing.T) {
	emb := &wordEmbedder{}
	idx := buildIndex(t, emb, corpus)
	r := NewRetriever(emb, StaticIndex(idx), 2, 0, fastRetry)

	for key, text := range corpus {
		results, err := r.Retrieve(context.Background(), text)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, key, results[0].Passage.SourceKey)
		assert.LessOrEqual(t, len(results), 2)
	}
}

func TestRetrieverEmptyQuery(t *testing.T) {
	r := NewRetriever(&wordEmbedder{}, StaticIndex(nil), 3, 0, fastRetry)
	_, err := r.Retrieve(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
}

func TestRetrieverEmptyIndex(t *testing.T) {
	emb := &wordEmbedder{}
	mgr, err := chromemdb.NewVectorDBManager("", models.DefaultCollection, true, "")
	require.NoError(t, err)
	r := NewRetriever(emb, StaticIndex(mgr), 3, 0, fastRetry)

	_, err = r.Retrieve(context.Background(), "qual a multa?")
	var retrievalErr *models.RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.ErrorIs(t, err, models.ErrIndexEmpty)
	assert.Zero(t, emb.calls)
}

func TestRetrieverMinSimilarity(t *testing.T) {
	emb := &wordEmbedder{}
	idx := buildIndex(t, emb, corpus)
	r := NewRetriever(emb, StaticIndex(idx), 3, 0.99, fastRetry)

	_, err := r.Retrieve(context.Background(), "zebra girafa elefante")
	assert.ErrorIs(t, err, models.ErrNoRelevantPassages)
}

type failingProvider struct{ err error }

func (f failingProvider) Index(context.Context) (Index, error) { return nil, f.err }

func TestRetrieverProviderErrors(t *testing.T) {
	r := NewRetriever(&wordEmbedder{}, failingProvider{err: models.ErrIndexUnavailable}, 3, 0, fastRetry)
	_, err := r.Retrieve(context.Background(), "q")
	var retrievalErr *models.RetrievalError
	assert.ErrorAs(t, err, &retrievalErr)

	cfgErr := &models.ConfigurationError{Field: "EMBEDDING_MODEL_ID", Err: errors.New("mismatch")}
	r = NewRetriever(&wordEmbedder{}, failingProvider{err: cfgErr}, 3, 0, fastRetry)
	_, err = r.Retrieve(context.Background(), "q")
	assert.Same(t, cfgErr, err)
}

func TestComposerIsPure(t *testing.T) {
	c, err := NewComposer("", 0)
	require.NoError(t, err)
	passages := []models.ScoredPassage{
		{Passage: models.Passage{Content: "primeiro trecho"}, Similarity: 0.9},
		{Passage: models.Passage{Content: "segundo trecho"}, Similarity: 0.5},
	}

	first, err := c.Compose("Qual a multa?", passages)
	require.NoError(t, err)
	second, err := c.Compose("Qual a multa?", passages)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "PERGUNTA: Qual a multa?")
	assert.Contains(t, first, "primeiro trecho\n---\nsegundo trecho")
	assert.True(t, strings.HasSuffix(first, "RESPOSTA:"))
	assert.Equal(t, "primeiro trecho", passages[0].Passage.Content)
}

func TestComposerRejectsEmptyQuery(t *testing.T) {
	c, err := NewComposer("", 0)
	require.NoError(t, err)
	_, err = c.Compose(" ", nil)
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
}

func TestComposerTruncatesContext(t *testing.T) {
	c, err := NewComposer("{{range .Passages}}[{{.Content}}]{{end}}", 8)
	require.NoError(t, err)
	out, err := c.Compose("q", []models.ScoredPassage{
		{Passage: models.Passage{Content: "abcde"}},
		{Passage: models.Passage{Content: "fghij"}},
		{Passage: models.Passage{Content: "klmno"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "[abcde][fgh]", out)
}

func TestComposerTemplateErrors(t *testing.T) {
	_, err := NewComposer("{{.Query", 0)
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = LoadComposer("/does/not/exist.tmpl", 0)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRAGQueryContractScenario(t *testing.T) {
	emb := &wordEmbedder{}
	idx := buildIndex(t, emb, corpus)
	composer, err := NewComposer("", 3000)
	require.NoError(t, err)
	llm := &mockGenerator{reply: "The penalty is 10%."}
	r := NewRAG(NewRetriever(emb, StaticIndex(idx), 3, 0, fastRetry), composer, llm)

	answer, err := r.Query(context.Background(), "What is the penalty in Contract X?")
	require.NoError(t, err)
	assert.Equal(t, "The penalty is 10%.", answer.Text)
	assert.Equal(t, "contrato.pdf", answer.Source())
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Contract X states the penalty is 10%.")
}

func TestRAGQueryGenerationFailure(t *testing.T) {
	emb := &wordEmbedder{}
	idx := buildIndex(t, emb, corpus)
	composer, err := NewComposer("", 0)
	require.NoError(t, err)
	genErr := &models.GenerationServiceError{Attempts: 4, Err: errors.New("quota")}
	r := NewRAG(NewRetriever(emb, StaticIndex(idx), 3, 0, fastRetry), composer, &mockGenerator{err: genErr})

	_, err = r.Query(context.Background(), "penalty")
	assert.ErrorIs(t, err, genErr)
}

func writeSnapshot(t *testing.T, store storage.ObjectStore, idx *chromemdb.VectorDBManager, model string) {
	t.Helper()
	ctx := context.Background()
	var buf bytes.Buffer
	require.NoError(t, idx.Export(&buf))
	require.NoError(t, store.Put(ctx, SnapshotKey("embeddings/chroma_db"), buf.Bytes(), ""))
	n, _ := idx.Count(ctx)
	manifest, err := json.Marshal(models.Manifest{EmbeddingModel: model, Dimension: dims, Passages: n})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ManifestKey("embeddings/chroma_db"), manifest, "application/json"))
}

func newManager() (*chromemdb.VectorDBManager, error) {
	return chromemdb.NewVectorDBManager("", models.DefaultCollection, true, "")
}

func TestSnapshotLoaderLoadsOnceAndRetriesFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalDir(t.TempDir())
	loader := NewSnapshotLoader(store, "embeddings/chroma_db", newManager, "test-model")

	_, err := loader.Index(ctx)
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)

	writeSnapshot(t, store, buildIndex(t, &wordEmbedder{}, corpus), "test-model")

	first, err := loader.Index(ctx)
	require.NoError(t, err)
	n, err := first.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(corpus), n)

	second, err := loader.Index(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSnapshotLoaderRejectsOtherModel(t *testing.T) {
	store := storage.NewLocalDir(t.TempDir())
	writeSnapshot(t, store, buildIndex(t, &wordEmbedder{}, corpus), "other-model")
	loader := NewSnapshotLoader(store, "embeddings/chroma_db", newManager, "test-model")

	_, err := loader.Index(context.Background())
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "EMBEDDING_MODEL_ID", cfgErr.Field)
}
