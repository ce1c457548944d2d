package extractor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/extractor/xmltree"
)

// maxPartSize caps the decompressed size of a single XML part.
const maxPartSize = 64 << 20

type archive struct {
	files map[string]*zip.File
}

func openArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a := &archive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[f.Name] = f
	}
	return a, nil
}

func (a *archive) has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *archive) parse(name string) (*xmltree.Node, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}
	if f.UncompressedSize64 > maxPartSize {
		return nil, fmt.Errorf("part %s too large (%d bytes)", name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", name, err)
	}
	defer rc.Close()

	return xmltree.Parse(io.LimitReader(rc, maxPartSize))
}

type numberedPart struct {
	Name string
	N    int
}

// numbered lists the parts whose name matches pattern, ordered by the
// integer captured in its first group, so slide10 sorts after slide9.
func (a *archive) numbered(pattern *regexp.Regexp) []numberedPart {
	var parts []numberedPart
	for name := range a.files {
		m := pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		parts = append(parts, numberedPart{Name: name, N: n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].N < parts[j].N })
	return parts
}

// partReader parses XML parts and turns malformed ones into warnings.
type partReader struct {
	archive  *archive
	log      *zap.Logger
	warnings []Warning
	parsed   int
	failed   int
}

func (r *partReader) read(name string) (*xmltree.Node, bool) {
	root, err := r.archive.parse(name)
	if err != nil {
		r.failed++
		r.warnings = append(r.warnings, Warning{Kind: WarningPartSkipped, Part: name, Err: err})
		r.log.Warn("Skipping malformed XML part", zap.String("part", name), zap.Error(err))
		return nil, false
	}
	r.parsed++
	return root, true
}

// allFailed is true when parts were attempted and none of them parsed.
func (r *partReader) allFailed() bool {
	return r.failed > 0 && r.parsed == 0
}
