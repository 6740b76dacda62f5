package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	bedrockembed "github.com/tmc/langchaingo/embeddings/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"legal-rag/internal/config"
	"legal-rag/internal/models"
)

// Embedder turns text into vectors. langchaingo embedders satisfy it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder creates the embedder selected by cfg.Provider. awsCfg is only
// used by the bedrock provider.
func NewEmbedder(cfg *config.LLMConfig, awsCfg aws.Config) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	switch cfg.Provider {
	case "bedrock":
		return NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.Model)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, &models.ConfigurationError{Field: "EMBEDDING_PROVIDER", Err: fmt.Errorf("unknown provider %q", cfg.Provider)}
	}
}

// NewBedrockEmbedder creates an embedder backed by a Bedrock embedding model
func NewBedrockEmbedder(client *bedrockruntime.Client, model string) (Embedder, error) {
	embedder, err := bedrockembed.NewBedrock(
		bedrockembed.WithClient(client),
		bedrockembed.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bedrock embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(LLMconfig *config.LLMConfig) (Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(LLMconfig.BaseURL),
		ollama.WithModel(LLMconfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// NewOpenAIEmbedder creates an embedder for any OpenAI compatible endpoint
func NewOpenAIEmbedder(LLMconfig *config.LLMConfig) (Embedder, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(LLMconfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(LLMconfig.Model),
	}
	if LLMconfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(LLMconfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
