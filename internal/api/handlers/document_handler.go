package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/ingestion"
	"github.com/doc-analyzer/backend/pkg/logger"
)

// DocumentHandler accepts documents sent as JSON text instead of a multipart
// upload. The filename extension still selects the extractor, so HTML and
// markdown bodies go through the same pipeline as files.
type DocumentHandler struct {
	service AnalysisService
	timeout time.Duration
}

func NewDocumentHandler(service AnalysisService, timeout time.Duration) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		timeout: timeout,
	}
}

func (h *DocumentHandler) AnalyzeText(c *fiber.Ctx) error {
	var req struct {
		Filename string            `json:"filename"`
		Content  string            `json:"content"`
		Options  *analysis.Options `json:"options"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}
	if req.Filename == "" {
		req.Filename = "document.txt"
	}

	opts := analysis.DefaultOptions()
	if req.Options != nil {
		var err error
		if opts, err = normalizeOptions(*req.Options); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	out, err := h.service.Process(ctx, ingestion.Upload{
		Filename: req.Filename,
		Data:     []byte(req.Content),
		Options:  opts,
	})
	if err != nil {
		status, body := ErrorResponse(err)
		logger.Error("Failed to analyze text document",
			zap.String("filename", req.Filename),
			zap.Int("status", status),
			zap.Error(err),
		)
		return c.Status(status).JSON(body)
	}

	return c.JSON(out)
}
