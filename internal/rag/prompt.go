package rag

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"unicode/utf8"

	"legal-rag/internal/models"
)

// Composer renders the generation prompt from a question and its passages.
type Composer struct {
	tmpl            *template.Template
	maxContextChars int
}

// promptData is what the template sees.
type promptData struct {
	Query    string
	Passages []models.Passage
}

// NewComposer parses text as a text/template. An empty text selects the
// default Portuguese template. maxContextChars caps the passage text, 0
// meaning no cap.
func NewComposer(text string, maxContextChars int) (*Composer, error) {
	if strings.TrimSpace(text) == "" {
		text = models.PromptTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "PROMPT_TEMPLATE_FILE", Err: err}
	}
	return &Composer{tmpl: tmpl, maxContextChars: maxContextChars}, nil
}

// LoadComposer reads the template from path, or uses the default when path
// is empty.
func LoadComposer(path string, maxContextChars int) (*Composer, error) {
	if path == "" {
		return NewComposer("", maxContextChars)
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigurationError{Field: "PROMPT_TEMPLATE_FILE", Err: err}
	}
	return NewComposer(string(text), maxContextChars)
}

// Compose is a pure function of its inputs.
func (c *Composer) Compose(query string, passages []models.ScoredPassage) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", models.ErrEmptyQuery
	}

	data := promptData{Query: query, Passages: c.fit(passages)}
	var b strings.Builder
	if err := c.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// fit keeps passages in rank order until the character budget is spent,
// cutting the last one that does not fit entirely.
func (c *Composer) fit(scored []models.ScoredPassage) []models.Passage {
	out := make([]models.Passage, 0, len(scored))
	budget := c.maxContextChars
	for _, sp := range scored {
		p := sp.Passage
		if c.maxContextChars > 0 {
			n := utf8.RuneCountInString(p.Content)
			if n > budget {
				if budget == 0 {
					break
				}
				p.Content = string([]rune(p.Content)[:budget])
				out = append(out, p)
				break
			}
			budget -= n
		}
		out = append(out, p)
	}
	return out
}
