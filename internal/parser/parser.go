package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"legal-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Source is where stored documents are read from
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

const defaultPageNumber = 1

var (
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
	docxText         = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	pptxParagraphEnd = regexp.MustCompile(`</a:p>`)
	pptxText         = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
	slideName        = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// SupportedExtension reports whether key names a format Extract understands.
func SupportedExtension(key string) bool {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".txt", ".md":
		return true
	}
	return false
}

// LoadDocument reads key from src and extracts its text. Every failure is an
// *models.ExtractionError so callers can skip the document.
func LoadDocument(ctx context.Context, src Source, key string) (models.Document, error) {
	data, err := src.Get(ctx, key)
	if err != nil {
		return models.Document{}, &models.ExtractionError{Key: key, Err: err}
	}
	return Extract(key, data)
}

// Extract turns the raw bytes of a stored file into page text, chosen by
// the file extension of key.
func Extract(key string, data []byte) (doc models.Document, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed inputs
		if r := recover(); r != nil {
			doc = models.Document{}
			err = &models.ExtractionError{Key: key, Err: fmt.Errorf("corrupt document: %v", r)}
		}
	}()

	if len(data) == 0 {
		return models.Document{}, &models.ExtractionError{Key: key, Err: fmt.Errorf("empty file")}
	}

	var pages []models.Page
	ext := strings.ToLower(filepath.Ext(key))
	switch ext {
	case ".pdf":
		pages, err = extractPDF(data)
	case ".docx":
		pages, err = extractDOCX(data)
	case ".pptx":
		pages, err = extractPPTX(data)
	case ".xlsx", ".xlsm":
		pages, err = extractSpreadsheet(data)
	case ".txt":
		pages = []models.Page{{Number: defaultPageNumber, Text: string(data)}}
	case ".md":
		pages, err = extractMarkdown(data)
	default:
		err = fmt.Errorf("%w: %q", models.ErrUnsupportedDocument, ext)
	}
	if err != nil {
		return models.Document{}, &models.ExtractionError{Key: key, Err: err}
	}

	doc = models.Document{Key: key}
	for _, p := range pages {
		p.Text = strings.TrimSpace(p.Text)
		if p.Text != "" {
			doc.Pages = append(doc.Pages, p)
		}
	}
	if len(doc.Pages) == 0 {
		return models.Document{}, &models.ExtractionError{Key: key, Err: fmt.Errorf("no text found")}
	}
	return doc, nil
}

func extractPDF(data []byte) ([]models.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: CleanLegalText(pageText)})
	}
	return pages, nil
}

func extractDOCX(data []byte) ([]models.Page, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = docxParagraphEnd.ReplaceAllString(content, "\n</w:p>")
	return []models.Page{{Number: defaultPageNumber, Text: extractTextFromXML(content, docxText)}}, nil
}

func extractPPTX(data []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for _, file := range zr.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		xml := pptxParagraphEnd.ReplaceAllString(string(raw), "\n</a:p>")
		pages = append(pages, models.Page{Number: slideNum, Text: extractTextFromXML(xml, pptxText)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func extractSpreadsheet(data []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var sheet strings.Builder
		sheet.WriteString(sheetName + "\n")
		for _, row := range rows {
			sheet.WriteString(strings.Join(row, "\t"))
			sheet.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: sheet.String()})
	}
	return pages, nil
}

// extractMarkdown drops markdown syntax and keeps the readable text
func extractMarkdown(data []byte) ([]models.Page, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(data))

	var buf bytes.Buffer
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: defaultPageNumber, Text: buf.String()}}, nil
}

func extractTextFromXML(xmlContent string, tag *regexp.Regexp) string {
	var out strings.Builder
	for _, line := range strings.Split(xmlContent, "\n") {
		var lineText strings.Builder
		for _, m := range tag.FindAllStringSubmatch(line, -1) {
			lineText.WriteString(html.UnescapeString(m[1]))
		}
		if s := strings.TrimSpace(lineText.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
	}
	return out.String()
}
