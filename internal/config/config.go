package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"legal-rag/internal/helper"
	"legal-rag/internal/models"
)

// LLMConfig selects a model behind one of the supported providers.
type LLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider" validate:"required,oneof=bedrock openai ollama"`
	Model     string `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Key       string `mapstructure:"key" yaml:"key"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=0"`
}

// GenerationConfig holds the default generation parameters.
type GenerationConfig struct {
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p" validate:"gte=0,lte=1"`
}

type RAGConfig struct {
	ChunkSize          int     `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap       int     `mapstructure:"chunk_overlap" yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK               int     `mapstructure:"top_k" yaml:"top_k" validate:"gt=0,lte=50"`
	MinSimilarity      float64 `mapstructure:"min_similarity" yaml:"min_similarity" validate:"gte=-1,lte=1"`
	MaxContextChars    int     `mapstructure:"max_context_chars" yaml:"max_context_chars" validate:"gte=0"`
	PromptTemplateFile string  `mapstructure:"prompt_template_file" yaml:"prompt_template_file"`
	SmokeTestQuery     string  `mapstructure:"smoke_test_query" yaml:"smoke_test_query"`
}

type StorageConfig struct {
	PDFBucket       string `mapstructure:"pdf_bucket" yaml:"pdf_bucket"`
	PDFFolder       string `mapstructure:"pdf_folder" yaml:"pdf_folder"`
	EmbeddingBucket string `mapstructure:"embedding_bucket" yaml:"embedding_bucket"`
	EmbeddingsKey   string `mapstructure:"embeddings_key" yaml:"embeddings_key" validate:"required"`
	LocalDatasetDir string `mapstructure:"local_dataset_dir" yaml:"local_dataset_dir"`
	MaxDocuments    int    `mapstructure:"max_documents" yaml:"max_documents" validate:"gte=0"`
}

type IndexConfig struct {
	VectorStore   string `mapstructure:"vector_store" yaml:"vector_store" validate:"required,oneof=chromem pgvector"`
	Collection    string `mapstructure:"collection" yaml:"collection" validate:"required"`
	Dir           string `mapstructure:"dir" yaml:"dir"`
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key" validate:"omitempty,len=32"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Password string `mapstructure:"password" yaml:"password"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	APIBase string `mapstructure:"api_base" yaml:"api_base" validate:"required,url"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval" validate:"gtefield=InitialInterval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

type Config struct {
	EmbedLLM          LLMConfig        `mapstructure:"embed_llm" yaml:"embed_llm"`
	TextLLM           LLMConfig        `mapstructure:"text_llm" yaml:"text_llm"`
	Generation        GenerationConfig `mapstructure:"generation" yaml:"generation"`
	RAG               RAGConfig        `mapstructure:"rag" yaml:"rag"`
	Storage           StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Index             IndexConfig      `mapstructure:"index" yaml:"index"`
	Database          DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Telegram          TelegramConfig   `mapstructure:"telegram" yaml:"telegram"`
	Retry             RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Log               LogConfig        `mapstructure:"log" yaml:"log"`
	AWSRegion         string           `mapstructure:"aws_region" yaml:"aws_region" validate:"required"`
	ProcessingTimeout time.Duration    `mapstructure:"processing_timeout" yaml:"processing_timeout" validate:"gt=0"`
}

// Purpose names the entry point a config is validated for.
type Purpose int

const (
	PurposeCLI Purpose = iota
	PurposeWebhook
	PurposeInitialize
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"embed_llm.provider":        {"EMBEDDING_PROVIDER"},
	"embed_llm.model":           {"EMBEDDING_MODEL_ID"},
	"embed_llm.base_url":        {"EMBEDDING_BASE_URL"},
	"embed_llm.key":             {"EMBEDDING_API_KEY"},
	"embed_llm.batch_size":      {"EMBEDDING_BATCH_SIZE"},
	"text_llm.provider":         {"GENERATION_PROVIDER"},
	"text_llm.model":            {"TEXT_MODEL_ID"},
	"text_llm.base_url":         {"GENERATION_BASE_URL"},
	"text_llm.key":              {"GENERATION_API_KEY"},
	"generation.temperature":    {"TEMPERATURE"},
	"generation.max_tokens":     {"MAX_TOKENS"},
	"generation.top_p":          {"TOP_P"},
	"rag.chunk_size":            {"CHUNK_SIZE"},
	"rag.chunk_overlap":         {"CHUNK_OVERLAP"},
	"rag.top_k":                 {"TOP_K"},
	"rag.min_similarity":        {"MIN_SIMILARITY"},
	"rag.max_context_chars":     {"MAX_CONTEXT_CHARS"},
	"rag.prompt_template_file":  {"PROMPT_TEMPLATE_FILE"},
	"rag.smoke_test_query":      {"SMOKE_TEST_QUERY"},
	"storage.pdf_bucket":        {"PDF_BUCKET_NAME"},
	"storage.pdf_folder":        {"PDF_FOLDER"},
	"storage.embedding_bucket":  {"EMBEDDING_BUCKET_NAME"},
	"storage.embeddings_key":    {"EMBEDDINGS_KEY"},
	"storage.local_dataset_dir": {"LOCAL_DATASET_DIR"},
	"storage.max_documents":     {"MAX_DOCUMENTS"},
	"index.vector_store":        {"VECTOR_STORE"},
	"index.collection":          {"COLLECTION_NAME"},
	"index.dir":                 {"CHROMA_DB_DIR"},
	"index.encryption_key":      {"INDEX_ENCRYPTION_KEY"},
	"database.url":              {"DATABASE_URL"},
	"database.password":         {"DATABASE_PASSWORD"},
	"database.debug":            {"DATABASE_DEBUG"},
	"telegram.token":            {"TELEGRAM_BOT_TOKEN"},
	"telegram.api_base":         {"TELEGRAM_API_BASE"},
	"retry.max_retries":         {"RETRY_MAX_RETRIES"},
	"retry.initial_interval":    {"RETRY_INITIAL_INTERVAL"},
	"retry.max_interval":        {"RETRY_MAX_INTERVAL"},
	"log.level":                 {"LOG_LEVEL"},
	"log.format":                {"LOG_FORMAT"},
	"aws_region":                {"AWS_DEFAULT_REGION", "AWS_REGION"},
	"processing_timeout":        {"PROCESSING_TIMEOUT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embed_llm.provider", "bedrock")
	v.SetDefault("embed_llm.model", models.DefaultEmbeddingModel)
	v.SetDefault("embed_llm.batch_size", 16)
	v.SetDefault("text_llm.provider", "bedrock")
	v.SetDefault("text_llm.model", models.DefaultTextModel)
	v.SetDefault("generation.temperature", 0.1)
	v.SetDefault("generation.max_tokens", 400)
	v.SetDefault("generation.top_p", 0.9)
	v.SetDefault("rag.chunk_size", 800)
	v.SetDefault("rag.chunk_overlap", 80)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.min_similarity", 0.0)
	v.SetDefault("rag.max_context_chars", 3000)
	v.SetDefault("rag.smoke_test_query", models.DefaultSmokeTestQuery)
	v.SetDefault("storage.pdf_folder", models.DefaultPDFFolder)
	v.SetDefault("storage.embeddings_key", models.DefaultEmbeddingsKey)
	v.SetDefault("storage.local_dataset_dir", "dataset")
	v.SetDefault("storage.max_documents", 0)
	v.SetDefault("index.vector_store", "chromem")
	v.SetDefault("index.collection", models.DefaultCollection)
	v.SetDefault("index.dir", "/tmp/chroma_db")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_interval", time.Second)
	v.SetDefault("retry.max_interval", 8*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("processing_timeout", 15*time.Second)
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path, a .env file in the working directory and the environment, in
// increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &models.ConfigurationError{Field: ".env", Err: err}
	}

	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, &models.ConfigurationError{Field: key, Err: err}
		}
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &models.ConfigurationError{Field: "config_file", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigurationError{Err: err}
	}
	cfg.Storage.PDFFolder = strings.TrimPrefix(cfg.Storage.PDFFolder, "/")
	cfg.Storage.EmbeddingsKey = strings.Trim(cfg.Storage.EmbeddingsKey, "/")
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings needed by the given entry point. Any failure
// is a *models.ConfigurationError.
func (c *Config) Validate(purpose Purpose) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return &models.ConfigurationError{
				Field: verrs[0].Namespace(),
				Err:   fmt.Errorf("invalid settings: %s", strings.Join(fields, ", ")),
			}
		}
		return &models.ConfigurationError{Err: err}
	}

	if c.Index.VectorStore == "pgvector" && c.Database.URL == "" {
		return missing("DATABASE_URL")
	}

	switch purpose {
	case PurposeWebhook:
		if c.Telegram.Token == "" {
			return missing("TELEGRAM_BOT_TOKEN")
		}
		if c.Index.VectorStore == "chromem" && c.Storage.EmbeddingBucket == "" {
			return missing("EMBEDDING_BUCKET_NAME")
		}
	case PurposeInitialize:
		if c.Storage.PDFBucket == "" && c.Storage.LocalDatasetDir == "" {
			return missing("PDF_BUCKET_NAME")
		}
		if c.Index.VectorStore == "chromem" && c.Storage.EmbeddingBucket == "" {
			return missing("EMBEDDING_BUCKET_NAME")
		}
	}
	return nil
}

func missing(env string) error {
	return &models.ConfigurationError{Field: env, Err: errors.New("required setting is missing")}
}

// Redacted returns a copy with secrets masked, safe to log or print.
func (c *Config) Redacted() Config {
	r := *c
	r.EmbedLLM.Key = helper.MaskSecret(r.EmbedLLM.Key)
	r.TextLLM.Key = helper.MaskSecret(r.TextLLM.Key)
	r.Telegram.Token = helper.MaskSecret(r.Telegram.Token)
	r.Database.Password = helper.MaskSecret(r.Database.Password)
	r.Index.EncryptionKey = helper.MaskSecret(r.Index.EncryptionKey)
	return r
}

// YAML renders the redacted configuration.
func (c *Config) YAML() (string, error) {
	r := c.Redacted()
	out, err := yaml.Marshal(&r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
