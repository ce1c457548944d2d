package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/doc-analyzer/backend/internal/analysis"
)

type outputFile struct {
	name    string
	content []byte
}

// WriteFiles writes analysis.json, summary.md and one .mmd file per diagram
// into dir, creating it if needed. It returns the written paths in order.
func WriteFiles(dir string, rec *analysis.Record) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}

	files := []outputFile{
		{"analysis.json", data},
		{"summary.md", []byte(Markdown(rec))},
	}
	for i, d := range rec.Diagrams {
		files = append(files, outputFile{DiagramFilename(i, d.Title), []byte(d.Code)})
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.content, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// DiagramFilename names the i-th diagram file, e.g. diagram-1-Document_Structure.mmd.
func DiagramFilename(i int, title string) string {
	name := strings.Join(strings.Fields(title), "_")
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "diagram"
	}
	return fmt.Sprintf("diagram-%d-%s.mmd", i+1, name)
}
