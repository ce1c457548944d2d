package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/extractor/xmltree"
)

const docxMainPart = "word/document.xml"

// docxParts are read in this order; only the main part is required.
var docxParts = []string{docxMainPart, "word/footnotes.xml", "word/endnotes.xml"}

func (e *Extractor) extractDocx(ctx context.Context, a *archive) (string, []Warning, error) {
	if !a.has(docxMainPart) {
		return "", nil, &ExtractionError{Format: analysis.FormatDocx, Part: docxMainPart, Err: errors.New("required part missing")}
	}

	r := &partReader{archive: a, log: e.log}
	var sections []string

	for _, name := range docxParts {
		if !a.has(name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		root, ok := r.read(name)
		if !ok {
			continue
		}
		if text := wordParagraphs(root); text != "" {
			sections = append(sections, text)
		}
	}

	if r.allFailed() {
		return "", r.warnings, &ExtractionError{Format: analysis.FormatDocx, Err: errors.New("every document part is malformed")}
	}
	return strings.Join(sections, "\n\n"), r.warnings, nil
}

// wordParagraphs returns one line per non-empty paragraph. Runs inside a
// paragraph are concatenated as-is since Word splits words across runs.
func wordParagraphs(root *xmltree.Node) string {
	var lines []string
	root.Walk(func(n *xmltree.Node) bool {
		if !xmltree.IsWordParagraph(n) {
			return true
		}
		var sb strings.Builder
		n.Walk(func(c *xmltree.Node) bool {
			switch {
			case xmltree.IsWordTextRun(c):
				sb.WriteString(c.Text)
			case xmltree.IsWordTab(c):
				sb.WriteByte('\t')
			}
			return true
		})
		if line := strings.TrimSpace(sb.String()); line != "" {
			lines = append(lines, line)
		}
		return false
	})
	return strings.Join(lines, "\n")
}
