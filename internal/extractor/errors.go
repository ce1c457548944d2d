package extractor

import (
	"fmt"

	"github.com/doc-analyzer/backend/internal/analysis"
)

// UnsupportedFormatError is returned for formats with no extraction strategy.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format: %q", e.Format)
}

// ExtractionError reports a container that could not be read at all: a
// broken archive, a missing required part, or every XML part malformed.
type ExtractionError struct {
	Format analysis.Format
	Part   string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Part != "" {
		return fmt.Sprintf("extract %s: %s: %v", e.Format, e.Part, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type WarningKind string

const (
	// WarningPartSkipped: one XML part was malformed and left out.
	WarningPartSkipped WarningKind = "xml_part_skipped"
	// WarningPDFDegraded: the PDF collaborator failed and raw bytes were
	// decoded instead.
	WarningPDFDegraded WarningKind = "pdf_extraction_degraded"
	// WarningMetadata: document properties could not be read.
	WarningMetadata WarningKind = "metadata_extraction"
)

// Warning is a recoverable problem met during extraction. Warnings never
// fail the extraction; they travel on the Result.
type Warning struct {
	Kind WarningKind
	Part string
	Err  error
}

func (w Warning) String() string {
	if w.Part == "" {
		return fmt.Sprintf("%s: %v", w.Kind, w.Err)
	}
	return fmt.Sprintf("%s: %s: %v", w.Kind, w.Part, w.Err)
}
