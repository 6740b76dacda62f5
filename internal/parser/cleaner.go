package parser

import (
	"bufio"
	"regexp"
	"strings"
)

// Line level noise found in Brazilian court PDFs: electronic filing stamps,
// page counters and scanned header lines.
var (
	stampRe       = regexp.MustCompile(`\(e-STJ Fl\.\s*\d+\)`)
	receivedRe    = regexp.MustCompile(`Documento recebido eletronicamente da origem`)
	pageMarkRe    = regexp.MustCompile(`^(?:p(?:ág|ag)?\.?\s*)?\d+\s*(?:/\s*\d+)?$`)
	bulletRe      = regexp.MustCompile(`[•\x{2022}\x{25cf}\x{25cb}\x{25aa}\x{25a0}]`)
	escapeCodeRe  = regexp.MustCompile(`\\[a-z0-9]{1,5}`)
	spaceRunRe    = regexp.MustCompile(`[ \t\f\v]+`)
	repeatedDotRe = regexp.MustCompile(`\.{4,}`)
)

// CleanLegalText removes filing stamps, page counters and formatting debris
// from extracted text while keeping line structure.
func CleanLegalText(input string) string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line, ok := cleanLine(scanner.Text()); ok {
			out = append(out, line)
		}
	}
	if scanner.Err() != nil {
		// a line over the buffer limit, fall back to the raw text
		return strings.TrimSpace(input)
	}
	return strings.Join(out, "\n")
}

// cleanLine normalizes a single line and reports whether to keep it
func cleanLine(line string) (string, bool) {
	line = stampRe.ReplaceAllString(line, "")
	line = receivedRe.ReplaceAllString(line, "")
	line = escapeCodeRe.ReplaceAllString(line, " ")
	line = bulletRe.ReplaceAllString(line, "- ")
	line = repeatedDotRe.ReplaceAllString(line, "...")
	line = spaceRunRe.ReplaceAllString(line, " ")
	line = strings.TrimSpace(line)
	if line == "" || pageMarkRe.MatchString(line) {
		return "", false
	}
	return line, true
}
