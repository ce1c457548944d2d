package extractor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/extractor/xmltree"
)

var (
	slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	notesPartPattern = regexp.MustCompile(`^ppt/notesSlides/notesSlide(\d+)\.xml$`)
	slideTarget      = regexp.MustCompile(`slide(\d+)\.xml$`)
)

const slideRelationshipType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"

func (e *Extractor) extractPptx(ctx context.Context, a *archive) (string, []Warning, error) {
	slides := a.numbered(slidePartPattern)
	if len(slides) == 0 && !a.has("ppt/presentation.xml") {
		return "", nil, &ExtractionError{Format: analysis.FormatPptx, Err: errors.New("not a presentation: no slides and no ppt/presentation.xml")}
	}

	r := &partReader{archive: a, log: e.log}
	var blocks []string

	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		root, ok := r.read(s.Name)
		if !ok {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- Slide %d ---\n%s", s.N, drawingText(root)))
	}

	var notes []string
	for _, n := range a.numbered(notesPartPattern) {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		root, ok := r.read(n.Name)
		if !ok {
			continue
		}
		text := drawingText(root)
		if text == "" {
			continue
		}
		notes = append(notes, fmt.Sprintf("Note for Slide %d:\n%s", e.noteSlideNumber(a, n), text))
	}

	if r.allFailed() {
		return "", r.warnings, &ExtractionError{Format: analysis.FormatPptx, Err: errors.New("every slide and note part is malformed")}
	}

	if len(notes) > 0 {
		blocks = append(blocks, "--- Notes ---\n"+strings.Join(notes, "\n\n"))
	}
	return strings.TrimSpace(strings.Join(blocks, "\n\n")), r.warnings, nil
}

// drawingText joins the slide's text runs with single spaces.
func drawingText(root *xmltree.Node) string {
	runs := root.Collect(xmltree.IsDrawingTextRun)
	parts := make([]string, 0, len(runs))
	for _, run := range runs {
		parts = append(parts, run.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// noteSlideNumber resolves which slide a notes part belongs to through its
// relationship part. The notes part's own number is used when the rels part
// is missing or does not name a slide.
func (e *Extractor) noteSlideNumber(a *archive, note numberedPart) int {
	relsName := path.Join(path.Dir(note.Name), "_rels", path.Base(note.Name)+".rels")
	if !a.has(relsName) {
		return note.N
	}
	rels, err := a.parse(relsName)
	if err != nil {
		e.log.Debug("Unreadable notes relationship part", zap.String("part", relsName), zap.Error(err))
		return note.N
	}
	for _, rel := range rels.Children {
		if rel.Name.Local != "Relationship" || rel.Attr("Type") != slideRelationshipType {
			continue
		}
		if m := slideTarget.FindStringSubmatch(rel.Attr("Target")); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return note.N
}
