package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
)

// Generator produces text for a prompt; *llmservice.Client implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...llmservice.Option) (string, error)
}

type RAG struct {
	retriever *Retriever
	composer  *Composer
	llm       Generator
}

func NewRAG(retriever *Retriever, composer *Composer, llm Generator) *RAG {
	return &RAG{retriever: retriever, composer: composer, llm: llm}
}

// Retrieve runs the retrieval stage only.
func (r *RAG) Retrieve(ctx context.Context, query string) ([]models.ScoredPassage, error) {
	return r.retriever.Retrieve(ctx, query)
}

// Generate composes the prompt from passages and asks the model for an
// answer.
func (r *RAG) Generate(ctx context.Context, query string, passages []models.ScoredPassage, opts ...llmservice.Option) (string, error) {
	prompt, err := r.composer.Compose(query, passages)
	if err != nil {
		return "", err
	}
	log.Debug().Int("prompt_chars", len(prompt)).Int("passages", len(passages)).Msg("Composed prompt")
	return r.llm.Generate(ctx, prompt, opts...)
}

// Query answers a single question. No state is kept between calls.
func (r *RAG) Query(ctx context.Context, query string, opts ...llmservice.Option) (*models.Answer, error) {
	start := time.Now()
	passages, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	text, err := r.Generate(ctx, query, passages, opts...)
	if err != nil {
		return nil, err
	}
	return &models.Answer{
		Query:    query,
		Text:     text,
		Passages: passages,
		Duration: time.Since(start),
	}, nil
}
