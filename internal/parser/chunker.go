package parser

import (
	"strings"

	"legal-rag/internal/models"
)

// ChunkDocument splits every page of doc into passages of at most
// chunkSize words, consecutive passages sharing chunkOverlap words.
// Passages never span pages. Identical input always yields identical
// passages.
func ChunkDocument(doc models.Document, chunkSize, chunkOverlap int) []models.Passage {
	var passages []models.Passage
	for _, page := range doc.Pages {
		passages = append(passages, ChunkText(doc.Key, page.Number, page.Text, chunkSize, chunkOverlap)...)
	}
	return passages
}

// ChunkText splits one span of text into passages.
func ChunkText(sourceKey string, pageNumber int, content string, chunkSize, chunkOverlap int) []models.Passage {
	var passages []models.Passage
	for i, chunk := range chunkContent(content, chunkSize, chunkOverlap) {
		chunkID := i + 1
		passages = append(passages, models.Passage{
			ID:         models.PassageID(sourceKey, pageNumber, chunkID),
			Content:    chunk,
			SourceKey:  sourceKey,
			PageNumber: pageNumber,
			ChunkID:    chunkID,
		})
	}
	return passages
}

// chunk content into chunks of maxWords words with overlapWords words shared
// between neighbours
func chunkContent(content string, maxWords, overlapWords int) []string {
	// Handle edge cases
	if maxWords <= 0 {
		return nil
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords >= maxWords {
		overlapWords = maxWords / 2
	}

	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= maxWords {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := min(start+maxWords, len(words))

		// prefer to end on a sentence boundary within the last 10% of the chunk
		if end < len(words) {
			lookBack := maxWords / 10
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if endsSentence(words[i]) {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}

		next := end - overlapWords
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "?") ||
		strings.HasSuffix(word, "!") || strings.HasSuffix(word, ";")
}
