package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"legal-rag/internal/config"
	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

// Generator is the part of llms.Model the client needs.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Params are the sampling parameters of one generation call.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Option overrides a default parameter for a single call.
type Option func(*Params)

func WithTemperature(t float64) Option { return func(p *Params) { p.Temperature = t } }
func WithMaxTokens(n int) Option       { return func(p *Params) { p.MaxTokens = n } }
func WithTopP(v float64) Option        { return func(p *Params) { p.TopP = v } }

// Client sends prompts to a text generation model.
type Client struct {
	llm      Generator
	model    string
	defaults Params
	retry    helper.RetryPolicy
}

// New wraps an existing generator.
func New(llm Generator, model string, defaults Params, retry helper.RetryPolicy) *Client {
	return &Client{llm: llm, model: model, defaults: defaults, retry: retry}
}

// NewClient creates a client for the provider selected in cfg.
func NewClient(cfg *config.LLMConfig, gen config.GenerationConfig, retry helper.RetryPolicy, awsCfg aws.Config) (*Client, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating generation client")

	var (
		llm Generator
		err error
	)
	switch cfg.Provider {
	case "bedrock":
		llm, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, &models.ConfigurationError{Field: "GENERATION_PROVIDER", Err: fmt.Errorf("unknown provider %q", cfg.Provider)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return New(llm, cfg.Model, Params{
		Temperature: gen.Temperature,
		MaxTokens:   gen.MaxTokens,
		TopP:        gen.TopP,
	}, retry), nil
}

// Model returns the model identifier the client was built for.
func (c *Client) Model() string { return c.model }

// Generate sends prompt as a single user message and returns the cleaned
// answer text. Transient failures are retried; once the policy is exhausted
// the error is a *models.GenerationServiceError.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	params := c.defaults
	for _, opt := range opts {
		opt(&params)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	callOpts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
		llms.WithTopP(params.TopP),
	}
	if params.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(params.MaxTokens))
	}

	var text string
	attempts, err := helper.Retry(ctx, c.retry, "generate", func(ctx context.Context) error {
		resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return helper.Permanent(errors.New("model returned no choices"))
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", &models.GenerationServiceError{Attempts: attempts, Err: err}
	}

	log.Debug().Int("attempts", attempts).Int("chars", len(text)).Msg("Generated answer")
	return CleanAnswer(text), nil
}

// CleanAnswer trims whitespace and a leading answer label echoed back from
// the prompt.
func CleanAnswer(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range models.AnswerPrefixes {
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	return text
}
