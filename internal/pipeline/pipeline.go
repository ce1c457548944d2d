// Package pipeline runs one document analysis end to end:
// extract, identify the language, build the prompt, generate, parse and,
// when asked for, synthesize diagrams. Stages run strictly in order and the
// first failure ends the analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/diagram"
	"github.com/doc-analyzer/backend/internal/extractor"
	"github.com/doc-analyzer/backend/internal/langdetect"
	"github.com/doc-analyzer/backend/internal/llm"
	"github.com/doc-analyzer/backend/internal/metrics"
	"github.com/doc-analyzer/backend/internal/parser"
	"github.com/doc-analyzer/backend/internal/prompt"
	"github.com/doc-analyzer/backend/pkg/logger"
)

type Stage string

const (
	StageExtracting           Stage = "extracting"
	StageDetectingLanguage    Stage = "detecting_language"
	StagePrompting            Stage = "prompting"
	StageGenerating           Stage = "generating"
	StageParsing              Stage = "parsing"
	StageSynthesizingDiagrams Stage = "synthesizing_diagrams"
	StageDone                 Stage = "done"
)

// StageError tags a failure with the stage it happened in. The cause stays
// reachable through errors.As.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageObserver is told about each stage as it starts. It runs on the
// analysis goroutine and must not block.
type StageObserver func(stage Stage)

var errNoInput = errors.New("request has neither a path nor document data")

// Request describes one analysis. Either Path or Data must be set. Format
// is derived from Filename (or Path) when empty. A non-empty Language skips
// identification.
type Request struct {
	Path     string
	Data     []byte
	Filename string
	Format   analysis.Format
	Options  analysis.Options
	Language string
	Observer StageObserver
}

// Result is a finished analysis.
type Result struct {
	Record   *analysis.Record
	Format   analysis.Format
	Warnings []extractor.Warning
	Degraded bool
	Repaired bool
	Duration time.Duration
}

type Config struct {
	Extractor *extractor.Extractor
	// Language defaults to the statistical identifier.
	Language  langdetect.Identifier
	Generator llm.Generator
	Prompt    prompt.Builder
	// LanguageSampleChars defaults to langdetect.DefaultSampleChars.
	LanguageSampleChars int
	Logger              *zap.Logger
}

// Analyzer holds only immutable collaborators and is safe for concurrent
// use.
type Analyzer struct {
	extractor   *extractor.Extractor
	language    langdetect.Identifier
	generator   llm.Generator
	prompt      prompt.Builder
	sampleChars int
	log         *zap.Logger
}

func New(cfg Config) (*Analyzer, error) {
	if cfg.Generator == nil {
		return nil, errors.New("pipeline needs a generator")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extractor.New(extractor.Config{Logger: cfg.Logger})
	}
	if cfg.Language == nil {
		cfg.Language = langdetect.NewStatistical()
	}
	if cfg.LanguageSampleChars <= 0 {
		cfg.LanguageSampleChars = langdetect.DefaultSampleChars
	}
	return &Analyzer{
		extractor:   cfg.Extractor,
		language:    cfg.Language,
		generator:   cfg.Generator,
		prompt:      cfg.Prompt,
		sampleChars: cfg.LanguageSampleChars,
		log:         cfg.Logger.Named("pipeline"),
	}, nil
}

// AnalyzeFile reads and analyzes the document at path.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, opts analysis.Options) (*Result, error) {
	return a.Analyze(ctx, Request{Path: path, Options: opts})
}

// AnalyzeContent analyzes text that is already extracted. format only
// shapes the prompt.
func (a *Analyzer) AnalyzeContent(ctx context.Context, text string, format analysis.Format, opts analysis.Options) (*Result, error) {
	run := a.newRun(Request{Format: format, Options: opts})
	run.enter(StageExtracting)
	run.res.Format = format
	return run.finish(ctx, &extractor.Result{
		Text:     text,
		Metadata: map[string]any{"format": string(format)},
	})
}

// Analyze runs every stage for req.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	run := a.newRun(req)

	run.enter(StageExtracting)
	ext, err := a.extract(ctx, req, &run.res.Format)
	if err != nil {
		return nil, run.fail(StageExtracting, err)
	}
	run.res.Warnings = ext.Warnings
	run.res.Degraded = ext.Degraded
	for _, w := range ext.Warnings {
		metrics.ExtractionWarnings.WithLabelValues(string(w.Kind)).Inc()
	}

	return run.finish(ctx, ext)
}

func (a *Analyzer) extract(ctx context.Context, req Request, format *analysis.Format) (*extractor.Result, error) {
	switch {
	case req.Data != nil:
		f := req.Format
		if f == "" {
			name := req.Filename
			if name == "" {
				name = req.Path
			}
			var err error
			if f, err = extractor.DetectFormat(name); err != nil {
				return nil, err
			}
		}
		*format = f
		return a.extractor.Extract(ctx, req.Data, f)

	case req.Path != "":
		if req.Format != "" {
			*format = req.Format
			data, err := os.ReadFile(req.Path)
			if err != nil {
				return nil, &extractor.ExtractionError{Format: req.Format, Err: err}
			}
			return a.extractor.Extract(ctx, data, req.Format)
		}
		res, f, err := a.extractor.ExtractFile(ctx, req.Path)
		*format = f
		return res, err
	}
	return nil, errNoInput
}

// run carries the per-analysis state; nothing in it outlives the call.
type run struct {
	a       *Analyzer
	req     Request
	res     Result
	start   time.Time
	stage   Stage
	entered time.Time
}

func (a *Analyzer) newRun(req Request) *run {
	return &run{a: a, req: req, start: time.Now()}
}

func (r *run) enter(stage Stage) {
	now := time.Now()
	if r.stage != "" {
		metrics.StageDuration.WithLabelValues(string(r.stage)).Observe(now.Sub(r.entered).Seconds())
	}
	r.stage, r.entered = stage, now
	r.a.log.Debug("Pipeline stage", zap.String("stage", string(stage)))
	if r.req.Observer != nil {
		r.req.Observer(stage)
	}
}

func (r *run) fail(stage Stage, err error) error {
	metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	metrics.AnalysesTotal.WithLabelValues(string(r.res.Format), "failed").Inc()
	r.a.log.Warn("Analysis failed",
		zap.String("stage", string(stage)),
		zap.String("format", string(r.res.Format)),
		zap.Error(err),
	)
	return &StageError{Stage: stage, Err: err}
}

// finish runs everything after extraction.
func (r *run) finish(ctx context.Context, ext *extractor.Result) (*Result, error) {
	a, opts := r.a, r.req.Options
	if opts.OutputFormat == "" {
		opts.OutputFormat = analysis.OutputJSON
	}

	r.enter(StageDetectingLanguage)
	language := r.req.Language
	if language == "" {
		language = a.language.Identify(ctx, langdetect.Sample(ext.Text, a.sampleChars))
	}
	if err := ctx.Err(); err != nil {
		return nil, r.fail(StageDetectingLanguage, err)
	}

	r.enter(StagePrompting)
	instruction := a.prompt.Build(ext.Text, r.res.Format, opts, language)

	r.enter(StageGenerating)
	reply, err := a.generator.Generate(ctx, instruction)
	if err != nil {
		var genErr *llm.GenerationError
		if !errors.As(err, &genErr) {
			err = &llm.GenerationError{Provider: "custom", Err: err}
		}
		return nil, r.fail(StageGenerating, err)
	}

	r.enter(StageParsing)
	rec, report, err := parser.ParseReport(reply, language, opts.OutputFormat)
	if err != nil {
		return nil, r.fail(StageParsing, err)
	}
	if report.Repaired {
		metrics.ParseRepairs.Inc()
	}
	r.res.Repaired = report.Repaired

	if opts.GenerateMermaid && !rec.HasDiagrams() {
		r.enter(StageSynthesizingDiagrams)
		rec.Diagrams = diagram.Synthesize(rec)
	}

	rec.Metadata = ext.Metadata
	if opts.PreserveRawText {
		rec.RawText = ext.Text
	}

	r.enter(StageDone)
	r.res.Record = rec
	r.res.Duration = time.Since(r.start)

	metrics.AnalysisDuration.WithLabelValues(string(r.res.Format)).Observe(r.res.Duration.Seconds())
	metrics.AnalysesTotal.WithLabelValues(string(r.res.Format), "success").Inc()
	a.log.Info("Analysis complete",
		zap.String("format", string(r.res.Format)),
		zap.String("language", language),
		zap.Int("keywords", len(rec.Keywords)),
		zap.Int("entities", len(rec.Entities)),
		zap.Int("diagrams", len(rec.Diagrams)),
		zap.Bool("repaired", report.Repaired),
		zap.Duration("duration", r.res.Duration),
	)

	res := r.res
	return &res, nil
}
