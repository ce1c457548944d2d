// Package extractor turns document bytes into plain text. Office formats
// are read as ZIP containers of XML parts; PDF goes through a pluggable
// collaborator with a raw-decode fallback.
package extractor

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/pkg/logger"
)

const defaultStatsSampleChars = 100000

type Config struct {
	// PDF defaults to NewPDFCPU().
	PDF PDFTextExtractor
	// StatsSampleChars bounds the text handed to the sentence tokenizer.
	StatsSampleChars int
	Logger           *zap.Logger
}

type Extractor struct {
	pdf         PDFTextExtractor
	statsSample int
	log         *zap.Logger
}

// Result is the extracted text plus everything learned on the way.
// Degraded is set when the PDF collaborator failed and the text is a raw
// decode of the file bytes.
type Result struct {
	Text     string
	Metadata map[string]any
	Warnings []Warning
	Degraded bool
}

func New(cfg Config) *Extractor {
	if cfg.PDF == nil {
		cfg.PDF = NewPDFCPU()
	}
	if cfg.StatsSampleChars <= 0 {
		cfg.StatsSampleChars = defaultStatsSampleChars
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	return &Extractor{
		pdf:         cfg.PDF,
		statsSample: cfg.StatsSampleChars,
		log:         cfg.Logger.Named("extractor"),
	}
}

// DetectFormat maps a file name to its format.
func DetectFormat(path string) (analysis.Format, error) {
	format, ok := analysis.FormatFromPath(path)
	if !ok {
		ext := path
		if i := strings.LastIndexByte(path, '.'); i >= 0 {
			ext = path[i:]
		}
		return "", &UnsupportedFormatError{Format: ext}
	}
	return format, nil
}

// ExtractFile reads path and extracts it using the format implied by its
// extension.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, analysis.Format, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, format, &ExtractionError{Format: format, Err: err}
	}
	res, err := e.Extract(ctx, data, format)
	return res, format, err
}

// Extract dispatches on format. Malformed XML parts and unreadable document
// properties become warnings; only an unreadable container is an error.
func (e *Extractor) Extract(ctx context.Context, data []byte, format analysis.Format) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Metadata: baseMetadata(format)}
	var err error

	switch format {
	case analysis.FormatTXT:
		res.Text = string(data)
		if !utf8.Valid(data) {
			res.Text = strings.ToValidUTF8(res.Text, "\uFFFD")
		}

	case analysis.FormatPDF:
		e.extractPDF(ctx, data, res)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

	case analysis.FormatHTML:
		text, title, herr := extractHTML(data)
		if herr != nil {
			return nil, &ExtractionError{Format: format, Err: herr}
		}
		res.Text = text
		if title != "" {
			res.Metadata["title"] = title
		}

	case analysis.FormatDocx, analysis.FormatPptx:
		err = e.extractOffice(ctx, data, format, res)
		if err != nil {
			return nil, err
		}

	default:
		return nil, &UnsupportedFormatError{Format: string(format)}
	}

	if !res.hasWarning(WarningMetadata) {
		if serr := textStatistics(res.Text, e.statsSample, res.Metadata); serr != nil {
			e.metadataFailed(format, "", serr, res)
		}
	}

	e.log.Debug("Document extracted",
		zap.String("format", string(format)),
		zap.Int("chars", utf8.RuneCountInString(res.Text)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Bool("degraded", res.Degraded),
	)
	return res, nil
}

func (e *Extractor) extractOffice(ctx context.Context, data []byte, format analysis.Format, res *Result) error {
	a, err := openArchive(data)
	if err != nil {
		return &ExtractionError{Format: format, Err: err}
	}

	var warnings []Warning
	if format == analysis.FormatPptx {
		res.Text, warnings, err = e.extractPptx(ctx, a)
	} else {
		res.Text, warnings, err = e.extractDocx(ctx, a)
	}
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return err
	}

	if perr := documentProperties(a, res.Metadata); perr != nil {
		e.metadataFailed(format, "docProps", perr, res)
	}
	return nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, res *Result) {
	text, err := e.pdf.ExtractText(ctx, data)
	if err == nil {
		res.Text = text
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.log.Warn("PDF extraction degraded, decoding raw bytes", zap.Error(err))
	res.Warnings = append(res.Warnings, Warning{Kind: WarningPDFDegraded, Err: err})
	res.Text = strings.ToValidUTF8(string(data), "\uFFFD")
	res.Degraded = true
}

func (r *Result) hasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// metadataFailed resets metadata to the format alone and records why.
func (e *Extractor) metadataFailed(format analysis.Format, part string, err error, res *Result) {
	e.log.Warn("Metadata extraction failed", zap.String("format", string(format)), zap.Error(err))
	res.Warnings = append(res.Warnings, Warning{Kind: WarningMetadata, Part: part, Err: err})
	res.Metadata = baseMetadata(format)
}
