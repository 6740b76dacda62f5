package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
	"legal-rag/internal/parser"
	"legal-rag/internal/rag"
	"legal-rag/internal/storage"
)

// Step names in the initialization report.
const (
	StepBuckets   = "s3_buckets"
	StepDocuments = "pdf_processing"
	StepIndex     = "embeddings"
	StepPublish   = "publish"
	StepSmokeTest = "rag_test"
)

// StepResult is one line of the initialization report.
type StepResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is returned by an initialization run.
type Report struct {
	Message string       `json:"message"`
	Steps   []StepResult `json:"results"`
	Build   *BuildReport `json:"build,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	if r.Error != "" || len(r.Steps) == 0 {
		return false
	}
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

func (r *Report) add(name string, err error, detail string) bool {
	step := StepResult{Name: name, OK: err == nil, Detail: detail}
	if err != nil {
		step.Detail = err.Error()
	}
	r.Steps = append(r.Steps, step)
	return err == nil
}

// Publisher makes a finished build visible to the query side.
type Publisher interface {
	Publish(ctx context.Context, manifest models.Manifest) error
}

// Exporter writes an index snapshot.
type Exporter interface {
	Export(w io.Writer) error
}

// SnapshotPublisher uploads a chromem snapshot and its manifest.
type SnapshotPublisher struct {
	Store    storage.ObjectStore
	Prefix   string
	Exporter Exporter
}

func (p *SnapshotPublisher) Publish(ctx context.Context, manifest models.Manifest) error {
	var buf bytes.Buffer
	if err := p.Exporter.Export(&buf); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	// manifest last, a reader never sees a manifest without its snapshot
	if err := p.Store.Put(ctx, rag.SnapshotKey(p.Prefix), buf.Bytes(), "application/octet-stream"); err != nil {
		return err
	}
	return p.Store.Put(ctx, rag.ManifestKey(p.Prefix), raw, "application/json")
}

// ManifestSaver is implemented by db.Store.
type ManifestSaver interface {
	SaveManifest(ctx context.Context, m models.Manifest) error
}

// StorePublisher records the manifest next to a database backed index.
type StorePublisher struct {
	Store ManifestSaver
}

func (p *StorePublisher) Publish(ctx context.Context, manifest models.Manifest) error {
	return p.Store.SaveManifest(ctx, manifest)
}

// Asker answers a question end to end; *rag.RAG implements it.
type Asker interface {
	Query(ctx context.Context, query string, opts ...llmservice.Option) (*models.Answer, error)
}

// Initializer builds the whole index from scratch and publishes it.
type Initializer struct {
	Documents      storage.ObjectStore
	Fallback       storage.ObjectStore
	Prefix         string
	MaxDocuments   int
	Buckets        []storage.BucketEnsurer
	Index          rag.Index
	Indexer        *Indexer
	Publisher      Publisher
	Asker          Asker
	SmokeTestQuery string
	EmbeddingModel string
	Collection     string
}

// Run executes every step and never panics on a failed one; the report
// says what went wrong.
func (in *Initializer) Run(ctx context.Context) *Report {
	report := &Report{}
	log.Info().Msg("Starting full initialization")

	var bucketErr error
	for _, b := range in.Buckets {
		if err := b.EnsureBucket(ctx); err != nil {
			bucketErr = errors.Join(bucketErr, err)
		}
	}
	report.add(StepBuckets, bucketErr, fmt.Sprintf("%d bucket(s) ready", len(in.Buckets)))

	store, keys, err := in.listDocuments(ctx)
	if !report.add(StepDocuments, err, fmt.Sprintf("%d document(s) found", len(keys))) {
		return finish(report)
	}

	build, err := in.rebuild(ctx, store, keys)
	report.Build = build
	if !report.add(StepIndex, err, buildDetail(build)) {
		return finish(report)
	}

	manifest := models.Manifest{
		EmbeddingModel: in.EmbeddingModel,
		Dimension:      build.Dimension,
		Passages:       build.Passages,
		Documents:      build.Indexed,
		Collection:     in.Collection,
		BuiltAt:        time.Now().UTC(),
	}
	if !report.add(StepPublish, in.Publisher.Publish(ctx, manifest), "index published") {
		return finish(report)
	}

	if in.Asker != nil {
		answer, err := in.Asker.Query(ctx, in.SmokeTestQuery)
		detail := ""
		if err == nil {
			detail = fmt.Sprintf("answered from %s", answer.Source())
		}
		report.add(StepSmokeTest, err, detail)
	}
	return finish(report)
}

func (in *Initializer) listDocuments(ctx context.Context) (storage.ObjectStore, []string, error) {
	var (
		keys []string
		err  error
	)
	store := in.Documents
	if store != nil {
		keys, err = in.supported(ctx, store, in.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list documents in bucket")
		}
	}
	if len(keys) == 0 && in.Fallback != nil {
		log.Info().Msg("No documents in bucket, using local dataset")
		store = in.Fallback
		keys, err = in.supported(ctx, store, "")
	}
	if err != nil {
		return nil, nil, err
	}
	if len(keys) == 0 {
		return nil, nil, errors.New("no documents to index")
	}
	if in.MaxDocuments > 0 && len(keys) > in.MaxDocuments {
		log.Info().Int("found", len(keys)).Int("max", in.MaxDocuments).Msg("Limiting documents for this run")
		keys = keys[:in.MaxDocuments]
	}
	return store, keys, nil
}

func (in *Initializer) supported(ctx context.Context, store storage.ObjectStore, prefix string) ([]string, error) {
	all, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if !strings.HasSuffix(k, "/") && parser.SupportedExtension(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (in *Initializer) rebuild(ctx context.Context, store storage.ObjectStore, keys []string) (*BuildReport, error) {
	if err := in.Index.Reset(ctx); err != nil {
		return nil, err
	}
	ix := *in.Indexer
	ix.source = store
	build, err := ix.Build(ctx, keys)
	if err != nil {
		return build, err
	}
	if build.Indexed == 0 {
		return build, errors.New("no document could be indexed")
	}
	return build, nil
}

func buildDetail(b *BuildReport) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%d indexed, %d failed, %d passages", b.Indexed, b.Failed, b.Passages)
}

func finish(r *Report) *Report {
	if r.OK() {
		r.Message = "Inicialização do sistema concluída"
		log.Info().Msg("Initialization finished")
	} else {
		r.Message = "Inicialização do sistema com erros"
		log.Warn().Interface("steps", r.Steps).Msg("Initialization finished with errors")
	}
	return r
}

// FailureReport is returned when the run could not even start.
func FailureReport(err error) *Report {
	return &Report{Message: "Erro interno ao inicializar o sistema", Error: err.Error()}
}

// Response renders a report as a Lambda proxy response, 200 when every step
// succeeded and 500 otherwise.
func (r *Report) Response() events.APIGatewayProxyResponse {
	status := http.StatusOK
	if !r.OK() {
		status = http.StatusInternalServerError
	}
	body, err := json.Marshal(r)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"message":"Erro interno ao inicializar o sistema"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
