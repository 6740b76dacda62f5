package models

import (
	"fmt"
	"time"
)

// Document is the text extracted from one stored file
type Document struct {
	Key   string
	Pages []Page
}

// Page holds the text of one page, 1-based
type Page struct {
	Number int
	Text   string
}

// Passage represents a chunk of a document with its origin
type Passage struct {
	ID         string
	Content    string
	SourceKey  string
	PageNumber int
	ChunkID    int
}

// PassageID builds the stable identifier of a passage.
func PassageID(sourceKey string, pageNumber, chunkID int) string {
	return fmt.Sprintf("%s#%d-%d", sourceKey, pageNumber, chunkID)
}

// IndexEntry is what the vector index stores for a passage
type IndexEntry struct {
	Passage   Passage
	Embedding []float32
	Metadata  map[string]string
}

// ScoredPassage is a passage returned from a similarity query
type ScoredPassage struct {
	Passage    Passage
	Similarity float32
}

// Answer is the generated text and the passages it was conditioned on
type Answer struct {
	Query    string
	Text     string
	Passages []ScoredPassage
	Duration time.Duration
}

// Source returns the key of the best ranked passage.
func (a *Answer) Source() string {
	if a == nil || len(a.Passages) == 0 {
		return ""
	}
	return a.Passages[0].Passage.SourceKey
}

// Manifest describes a built index snapshot
type Manifest struct {
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Passages       int       `json:"passages"`
	Documents      int       `json:"documents"`
	Collection     string    `json:"collection"`
	BuiltAt        time.Time `json:"built_at"`
}
