package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/extractor"
	"github.com/doc-analyzer/backend/internal/langdetect"
	"github.com/doc-analyzer/backend/internal/llm"
	"github.com/doc-analyzer/backend/internal/pipeline"
	"github.com/doc-analyzer/backend/internal/prompt"
	"github.com/doc-analyzer/backend/internal/report"
	"github.com/doc-analyzer/backend/pkg/config"
	"github.com/doc-analyzer/backend/pkg/logger"
)

func main() {
	var (
		outputDir    = flag.StringP("output", "o", "analysis-output", "Directory the results are written to")
		types        = flag.StringP("types", "t", "all", "Comma separated analysis types (summary, keywords, entities, structure, optimization, all)")
		outputFormat = flag.StringP("format", "f", "json", "Reply format requested from the model (json, markdown, text, mermaid)")
		mermaid      = flag.Bool("mermaid", true, "Generate mermaid diagrams when the model returns none")
		detailed     = flag.Bool("detailed", false, "Ask for a detailed analysis")
		rawText      = flag.Bool("raw", false, "Keep the extracted text in analysis.json")
		language     = flag.String("language", "", "Document language; skips detection when set")
	)
	flag.String("provider", "", "Generation provider (openai, local)")
	flag.String("model", "", "Model name")
	flag.String("detector", "", "Language detector (statistical, generative)")
	flag.String("log-level", "", "Log level")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <document>\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	v := viper.New()
	for key, name := range map[string]string{
		"llm.provider":              "provider",
		"llm.model":                 "model",
		"analysis.languageDetector": "detector",
		"logging.level":             "log-level",
	} {
		if f := flag.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to bind flag %s: %v\n", name, err)
				os.Exit(1)
			}
		}
	}

	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	opts := analysis.Options{
		GenerateMermaid: *mermaid,
		DetailedMode:    *detailed,
		PreserveRawText: *rawText,
	}
	if opts.Types, err = analysis.ParseAnalysisTypes(*types); err != nil {
		logger.Fatal("Invalid analysis types", zap.Error(err))
	}
	if opts.OutputFormat, err = analysis.ParseOutputFormat(*outputFormat); err != nil {
		logger.Fatal("Invalid output format", zap.Error(err))
	}

	generator, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to create generator", zap.Error(err))
	}

	identifier, err := langdetect.New(cfg.Analysis.LanguageDetector, generator)
	if err != nil {
		logger.Fatal("Failed to create language identifier", zap.Error(err))
	}

	analyzer, err := pipeline.New(pipeline.Config{
		Extractor:           extractor.New(extractor.Config{}),
		Language:            identifier,
		Generator:           generator,
		Prompt:              prompt.Builder{MaxContentChars: cfg.Analysis.MaxContentChars},
		LanguageSampleChars: cfg.Analysis.LanguageSampleChars,
	})
	if err != nil {
		logger.Fatal("Failed to create analysis pipeline", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := cfg.LLM.GenerationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Info("Analyzing document",
		zap.String("path", path),
		zap.String("provider", cfg.LLM.Provider),
	)

	res, err := analyzer.Analyze(ctx, pipeline.Request{
		Path:     path,
		Options:  opts,
		Language: *language,
		Observer: func(stage pipeline.Stage) {
			logger.Debug("Stage", zap.String("stage", string(stage)))
		},
	})
	if err != nil {
		logger.Fatal("Analysis failed", zap.Error(err))
	}

	for _, w := range res.Warnings {
		logger.Warn("Extraction warning", zap.String("warning", w.String()))
	}

	dir := filepath.Join(*outputDir, filepath.Base(path)+"-"+cfg.LLM.Provider)
	written, err := report.WriteFiles(dir, res.Record)
	if err != nil {
		logger.Fatal("Failed to write results", zap.Error(err))
	}

	rec := res.Record
	fmt.Printf("Document language: %s\n", rec.Language)
	fmt.Printf("Summary: %s\n", excerpt(rec.Summary, 200))
	fmt.Printf("Found %d keywords and %d entities\n", len(rec.Keywords), len(rec.Entities))
	fmt.Printf("Generated %d optimization suggestions and %d diagrams\n", len(rec.Optimizations), len(rec.Diagrams))
	if res.Repaired {
		fmt.Println("The model reply needed JSON repair")
	}
	fmt.Printf("Results saved to %s (%d files, %s)\n", dir, len(written), res.Duration.Round(time.Millisecond))
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
