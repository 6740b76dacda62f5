package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery          = errors.New("query is empty")
	ErrIndexEmpty          = errors.New("index is empty")
	ErrIndexUnavailable    = errors.New("index is unavailable")
	ErrNoRelevantPassages  = errors.New("no relevant passages found")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrUnsupportedDocument = errors.New("unsupported document format")
)

// ExtractionError is returned when a stored document cannot be turned into text.
type ExtractionError struct {
	Key string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Key, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingServiceError is returned once the embedding API kept failing
// after all retries.
type EmbeddingServiceError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationServiceError is returned once the generation API kept failing
// after all retries.
type GenerationServiceError struct {
	Attempts int
	Err      error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// RetrievalError means the index could not answer. It is never retried.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
