package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/extractor"
	"github.com/doc-analyzer/backend/internal/ingestion"
	"github.com/doc-analyzer/backend/internal/kg/neo4j"
	"github.com/doc-analyzer/backend/internal/llm"
	"github.com/doc-analyzer/backend/internal/parser"
	"github.com/doc-analyzer/backend/internal/pipeline"
	"github.com/doc-analyzer/backend/internal/report"
	"github.com/doc-analyzer/backend/internal/storage/models"
	"github.com/doc-analyzer/backend/pkg/logger"
)

// AnalysisService is the slice of ingestion.Processor the HTTP layer uses.
type AnalysisService interface {
	Process(ctx context.Context, up ingestion.Upload) (*ingestion.Outcome, error)
	Get(id string) (*ingestion.Outcome, error)
	List(limit, offset int) ([]models.AnalysisSummary, error)
	TopEntities(limit int) ([]models.EntityCount, error)
	Delete(ctx context.Context, id string) error
	ClearCache(ctx context.Context) error
}

type RelatedFinder interface {
	RelatedDocuments(ctx context.Context, docID string, limit int) ([]neo4j.RelatedDocument, error)
}

type AnalysisHandler struct {
	service AnalysisService
	related RelatedFinder
	timeout time.Duration
}

// NewAnalysisHandler builds the handler. related may be nil when no graph is
// configured. timeout bounds one analysis request; zero means none.
func NewAnalysisHandler(service AnalysisService, related RelatedFinder, timeout time.Duration) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
		related: related,
		timeout: timeout,
	}
}

// OptionsFromForm reads analysis options from multipart form fields.
func OptionsFromForm(c *fiber.Ctx) (analysis.Options, error) {
	opts := analysis.DefaultOptions()

	types, err := analysis.ParseAnalysisTypes(c.FormValue("analysisTypes"))
	if err != nil {
		return opts, err
	}
	opts.Types = types

	if opts.OutputFormat, err = analysis.ParseOutputFormat(c.FormValue("outputFormat")); err != nil {
		return opts, err
	}

	opts.GenerateMermaid = formBool(c, "generateMermaid")
	opts.DetailedMode = formBool(c, "detailedMode")
	opts.PreserveRawText = formBool(c, "preserveRawText")
	return opts, nil
}

func formBool(c *fiber.Ctx, key string) bool {
	b, _ := strconv.ParseBool(c.FormValue(key))
	return b
}

func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	file, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A document file is required",
		})
	}

	opts, err := OptionsFromForm(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	f, err := file.Open()
	if err != nil {
		logger.Error("Failed to open upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Failed to read upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not read uploaded file",
		})
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	out, err := h.service.Process(ctx, ingestion.Upload{
		Filename: file.Filename,
		Data:     data,
		Options:  opts,
	})
	if err != nil {
		status, body := ErrorResponse(err)
		logger.Error("Failed to analyze document",
			zap.String("filename", file.Filename),
			zap.Int("status", status),
			zap.Error(err),
		)
		return c.Status(status).JSON(body)
	}

	return c.JSON(out)
}

func (h *AnalysisHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	if limit <= 0 || limit > 100 || offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be 1-100 and offset non-negative",
		})
	}

	list, err := h.service.List(limit, offset)
	if err != nil {
		logger.Error("Failed to list analyses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list analyses",
		})
	}

	return c.JSON(fiber.Map{
		"analyses": list,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *AnalysisHandler) Get(c *fiber.Ctx) error {
	out, status, msg := h.lookup(c)
	if out == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.JSON(out)
}

// Report renders a stored analysis as markdown.
func (h *AnalysisHandler) Report(c *fiber.Ctx) error {
	out, status, msg := h.lookup(c)
	if out == nil {
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(report.Markdown(out.Record))
}

func (h *AnalysisHandler) Delete(c *fiber.Ctx) error {
	err := h.service.Delete(c.UserContext(), c.Params("id"))
	if errors.Is(err, ingestion.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Analysis not found"})
	}
	if err != nil {
		logger.Error("Failed to delete analysis", zap.String("id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete analysis",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TopEntities lists the entities mentioned by the most stored analyses.
func (h *AnalysisHandler) TopEntities(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be 1-100",
		})
	}

	entities, err := h.service.TopEntities(limit)
	if err != nil {
		logger.Error("Failed to aggregate entities", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to aggregate entities",
		})
	}
	if entities == nil {
		entities = []models.EntityCount{}
	}

	return c.JSON(fiber.Map{"entities": entities})
}

func (h *AnalysisHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.service.ClearCache(c.UserContext()); err != nil {
		logger.Error("Failed to clear analysis cache", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to clear cache",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AnalysisHandler) Related(c *fiber.Ctx) error {
	if h.related == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Knowledge graph is not configured",
		})
	}

	docs, err := h.related.RelatedDocuments(c.UserContext(), c.Params("id"), c.QueryInt("limit", 10))
	if err != nil {
		logger.Error("Failed to find related documents", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to query knowledge graph",
		})
	}

	return c.JSON(fiber.Map{
		"id":      c.Params("id"),
		"related": docs,
	})
}

func (h *AnalysisHandler) lookup(c *fiber.Ctx) (*ingestion.Outcome, int, string) {
	out, err := h.service.Get(c.Params("id"))
	if errors.Is(err, ingestion.ErrNotFound) {
		return nil, fiber.StatusNotFound, "Analysis not found"
	}
	if err != nil {
		logger.Error("Failed to load analysis", zap.String("id", c.Params("id")), zap.Error(err))
		return nil, fiber.StatusInternalServerError, "Failed to load analysis"
	}
	return out, fiber.StatusOK, ""
}

// ErrorResponse maps an analysis failure to an HTTP status and body.
func ErrorResponse(err error) (int, fiber.Map) {
	body := fiber.Map{"error": err.Error()}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
	}

	var (
		unsupported *extractor.UnsupportedFormatError
		extraction  *extractor.ExtractionError
		generation  *llm.GenerationError
		parse       *parser.ParseError
	)
	switch {
	case errors.As(err, &unsupported):
		return fiber.StatusUnsupportedMediaType, body
	case errors.As(err, &extraction):
		return fiber.StatusUnprocessableEntity, body
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, body
	case errors.As(err, &parse):
		body["excerpt"] = parse.Excerpt
		return fiber.StatusBadGateway, body
	case errors.As(err, &generation):
		return fiber.StatusBadGateway, body
	}
	return fiber.StatusInternalServerError, body
}
