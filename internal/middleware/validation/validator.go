package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
)

type Config struct {
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects analysis requests that can never succeed before they
// reach the pipeline: wrong content type, missing or oversized documents,
// unknown extensions and malformed options.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := strings.TrimSuffix(c.Path(), "/")

		switch {
		case strings.HasSuffix(path, "/analyze/text"):
			return validateText(c, cfg)
		case strings.HasSuffix(path, "/analyze"):
			if !strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Expected a multipart upload with a document field",
				})
			}
			return validateUpload(c, cfg)
		}

		return c.Next()
	}
}

func validateUpload(c *fiber.Ctx, cfg Config) error {
	file, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A document file is required",
		})
	}

	if file.Size > int64(cfg.MaxDocumentSize) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Document exceeds maximum size",
		})
	}

	name := sanitizeString(file.Filename)
	if _, ok := analysis.FormatFromPath(name); !ok {
		cfg.Logger.Warn("Rejected upload with unsupported extension",
			zap.String("ip", c.IP()),
			zap.String("filename", name),
		)
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported document format",
		})
	}

	if _, err := analysis.ParseAnalysisTypes(c.FormValue("analysisTypes")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if _, err := analysis.ParseOutputFormat(c.FormValue("outputFormat")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Next()
}

func validateText(c *fiber.Ctx, cfg Config) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	content, ok := req["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required and must be a string",
		})
	}
	if len(content) > cfg.MaxDocumentSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Document content exceeds maximum size",
		})
	}

	if name, ok := req["filename"].(string); ok && sanitizeString(name) != "" {
		if _, known := analysis.FormatFromPath(sanitizeString(name)); !known {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported document format",
			})
		}
	}

	return c.Next()
}

func allowedType(contentType string, allowed []string) bool {
	if contentType == "" {
		return false
	}
	for _, t := range allowed {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
