package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/extractor"
	"github.com/doc-analyzer/backend/internal/kg/neo4j"
	"github.com/doc-analyzer/backend/internal/metrics"
	"github.com/doc-analyzer/backend/internal/pipeline"
	"github.com/doc-analyzer/backend/internal/storage/models"
	"github.com/doc-analyzer/backend/internal/storage/sqlite"
	"github.com/doc-analyzer/backend/pkg/logger"
	"github.com/doc-analyzer/backend/pkg/retry"
	"github.com/doc-analyzer/backend/pkg/utils"
)

// ErrNotFound is returned by Get for unknown analysis IDs.
var ErrNotFound = errors.New("analysis not found")

type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Store interface {
	InsertAnalysis(a *models.Analysis, entities []models.EntityMention) error
	GetAnalysis(id string) (*models.Analysis, error)
	FindByFingerprint(fingerprint string) (*models.Analysis, error)
	ListAnalyses(limit, offset int) ([]models.AnalysisSummary, error)
	TopEntities(limit int) ([]models.EntityCount, error)
	DeleteAnalysis(id string) error
}

type Cache interface {
	GetAnalysis(ctx context.Context, fingerprint string, entry interface{}) (bool, error)
	SetAnalysis(ctx context.Context, fingerprint string, entry interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, fingerprint string) error
	InvalidateAll(ctx context.Context) error
}

type GraphSink interface {
	RecordAnalysis(ctx context.Context, doc neo4j.Document, entities []analysis.Entity) error
	RemoveDocument(ctx context.Context, docID string) error
}

// Upload is one document handed to the processor.
type Upload struct {
	Filename string
	Data     []byte
	Options  analysis.Options
	Observer pipeline.StageObserver
}

// Outcome is what callers (and the cache) see of a processed upload.
type Outcome struct {
	ID         string           `json:"id"`
	Filename   string           `json:"filename"`
	Format     analysis.Format  `json:"format"`
	Record     *analysis.Record `json:"analysis"`
	Warnings   []string         `json:"warnings,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
	Cached     bool             `json:"cached"`
	DurationMS int64            `json:"durationMs"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Processor wraps the analysis pipeline with a result cache, history store
// and entity graph. Store, cache and graph are optional.
type Processor struct {
	analyzer Analyzer
	store    Store
	cache    Cache
	graph    GraphSink
	cacheTTL time.Duration
	retry    retry.Config
}

type Option func(*Processor)

func WithStore(s Store) Option {
	return func(p *Processor) { p.store = s }
}

func WithCache(c Cache, ttl time.Duration) Option {
	return func(p *Processor) { p.cache, p.cacheTTL = c, ttl }
}

func WithGraph(g GraphSink) Option {
	return func(p *Processor) { p.graph = g }
}

func NewProcessor(analyzer Analyzer, opts ...Option) *Processor {
	p := &Processor{
		analyzer: analyzer,
		cacheTTL: time.Hour,
		retry:    retry.DefaultConfig("store-analysis"),
	}
	p.retry.Logger = logger.GetLogger()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process analyzes one upload. Identical bytes with identical options are
// answered from the cache, then from the history store, before the pipeline
// runs again.
func (p *Processor) Process(ctx context.Context, up Upload) (*Outcome, error) {
	logger.Info("Processing document", zap.String("filename", up.Filename), zap.Int("bytes", len(up.Data)))

	format, err := extractor.DetectFormat(up.Filename)
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageExtracting, Err: err}
	}

	fingerprint := utils.Fingerprint(up.Data, string(format), up.Options.Key())

	if p.cache != nil {
		var cached Outcome
		hit, err := p.cache.GetAnalysis(ctx, fingerprint, &cached)
		if err != nil {
			logger.Warn("Analysis cache lookup failed", zap.Error(err))
		}
		if hit && cached.Record != nil {
			metrics.CacheHits.WithLabelValues("analysis").Inc()
			cached.Cached = true
			cached.Filename = up.Filename
			if up.Observer != nil {
				up.Observer(pipeline.StageDone)
			}
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("analysis").Inc()
	}

	if out := p.fromHistory(fingerprint); out != nil {
		out.Filename = up.Filename
		if p.cache != nil {
			if err := p.cache.SetAnalysis(ctx, fingerprint, out, p.cacheTTL); err != nil {
				logger.Warn("Failed to cache analysis", zap.Error(err))
			}
		}
		if up.Observer != nil {
			up.Observer(pipeline.StageDone)
		}
		out.Cached = true
		return out, nil
	}

	res, err := p.analyzer.Analyze(ctx, pipeline.Request{
		Data:     up.Data,
		Filename: up.Filename,
		Format:   format,
		Options:  up.Options,
		Observer: up.Observer,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		ID:         uuid.New().String(),
		Filename:   up.Filename,
		Format:     res.Format,
		Record:     res.Record,
		Degraded:   res.Degraded,
		DurationMS: res.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}

	p.persist(ctx, fingerprint, up.Options, out)
	p.record(ctx, out)

	if p.cache != nil {
		if err := p.cache.SetAnalysis(ctx, fingerprint, out, p.cacheTTL); err != nil {
			logger.Warn("Failed to cache analysis", zap.Error(err))
		}
	}

	metrics.DocumentsProcessed.Inc()
	logger.Info("Document processed successfully",
		zap.String("analysis_id", out.ID),
		zap.String("format", string(out.Format)),
		zap.Int("entities", len(out.Record.Entities)),
		zap.Int("warnings", len(out.Warnings)),
	)

	return out, nil
}

// persist writes the history row. A failed write is logged; the analysis is
// still returned to the caller.
func (p *Processor) persist(ctx context.Context, fingerprint string, opts analysis.Options, out *Outcome) {
	if p.store == nil {
		return
	}

	recordJSON, err := json.Marshal(out.Record)
	if err != nil {
		logger.Error("Failed to encode analysis", zap.String("analysis_id", out.ID), zap.Error(err))
		return
	}

	row := &models.Analysis{
		ID:          out.ID,
		Fingerprint: fingerprint,
		Filename:    out.Filename,
		Format:      string(out.Format),
		Language:    out.Record.Language,
		Options:     opts.Key(),
		Summary:     out.Record.Summary,
		Record:      recordJSON,
		Warnings:    out.Warnings,
		Degraded:    out.Degraded,
		DurationMS:  out.DurationMS,
		CreatedAt:   out.CreatedAt,
	}
	mentions := make([]models.EntityMention, 0, len(out.Record.Entities))
	for _, e := range out.Record.Entities {
		mentions = append(mentions, models.EntityMention{
			AnalysisID: out.ID,
			Name:       e.Name,
			Type:       e.Type,
			Mentions:   e.Mentions,
			Relevance:  e.Relevance,
		})
	}

	err = retry.Do(ctx, p.retry, func(ctx context.Context) error {
		return p.store.InsertAnalysis(row, mentions)
	})
	if err != nil {
		logger.Error("Failed to store analysis", zap.String("analysis_id", out.ID), zap.Error(err))
	}
}

func (p *Processor) record(ctx context.Context, out *Outcome) {
	if p.graph == nil || len(out.Record.Entities) == 0 {
		return
	}
	doc := neo4j.Document{
		ID:       out.ID,
		Filename: out.Filename,
		Format:   string(out.Format),
		Language: out.Record.Language,
	}
	if err := p.graph.RecordAnalysis(ctx, doc, out.Record.Entities); err != nil {
		logger.Warn("Failed to record analysis in knowledge graph", zap.String("analysis_id", out.ID), zap.Error(err))
	}
}

func (p *Processor) fromHistory(fingerprint string) *Outcome {
	if p.store == nil {
		return nil
	}
	row, err := p.store.FindByFingerprint(fingerprint)
	if err != nil {
		if !errors.Is(err, sqlite.ErrNotFound) {
			logger.Warn("History lookup failed", zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues("history").Inc()
		return nil
	}
	out, err := outcomeFromRow(row)
	if err != nil {
		logger.Warn("Stored analysis unreadable", zap.String("analysis_id", row.ID), zap.Error(err))
		return nil
	}
	metrics.CacheHits.WithLabelValues("history").Inc()
	return out
}

// Get loads a stored analysis.
func (p *Processor) Get(id string) (*Outcome, error) {
	if p.store == nil {
		return nil, ErrNotFound
	}
	row, err := p.store.GetAnalysis(id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return outcomeFromRow(row)
}

func outcomeFromRow(row *models.Analysis) (*Outcome, error) {
	var rec analysis.Record
	if err := json.Unmarshal(row.Record, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode stored analysis %s: %w", row.ID, err)
	}
	return &Outcome{
		ID:         row.ID,
		Filename:   row.Filename,
		Format:     analysis.Format(row.Format),
		Record:     &rec,
		Warnings:   row.Warnings,
		Degraded:   row.Degraded,
		DurationMS: row.DurationMS,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (p *Processor) List(limit, offset int) ([]models.AnalysisSummary, error) {
	if p.store == nil {
		return []models.AnalysisSummary{}, nil
	}
	return p.store.ListAnalyses(limit, offset)
}

func (p *Processor) TopEntities(limit int) ([]models.EntityCount, error) {
	if p.store == nil {
		return []models.EntityCount{}, nil
	}
	return p.store.TopEntities(limit)
}

// Delete removes a stored analysis together with its cache entry and graph
// edges. Cache and graph failures are logged only.
func (p *Processor) Delete(ctx context.Context, id string) error {
	if p.store == nil {
		return ErrNotFound
	}
	row, err := p.store.GetAnalysis(id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := p.store.DeleteAnalysis(id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, row.Fingerprint); err != nil {
			logger.Warn("Failed to invalidate cached analysis", zap.String("analysis_id", id), zap.Error(err))
		}
	}
	if p.graph != nil {
		if err := p.graph.RemoveDocument(ctx, id); err != nil {
			logger.Warn("Failed to remove document from knowledge graph", zap.String("analysis_id", id), zap.Error(err))
		}
	}

	logger.Info("Analysis deleted", zap.String("analysis_id", id))
	return nil
}

// ClearCache drops every cached analysis. Stored history is kept.
func (p *Processor) ClearCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.InvalidateAll(ctx)
}
