package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/ingestion"
	"github.com/doc-analyzer/backend/internal/pipeline"
	"github.com/doc-analyzer/backend/pkg/logger"
)

// WebSocketHandler runs analyses over a websocket, streaming one message per
// pipeline stage before the result.
type WebSocketHandler struct {
	service AnalysisService
	timeout time.Duration
}

func NewWebSocketHandler(service AnalysisService, timeout time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		timeout: timeout,
	}
}

type analyzeMessage struct {
	Type     string           `json:"type"`
	Filename string           `json:"filename"`
	Content  string           `json:"content"`
	Options  analysis.Options `json:"options"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg analyzeMessage

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "analyze" {
			h.sendError(c, fmt.Sprintf("unknown message type %q", msg.Type), 0)
			continue
		}

		logger.Info("Processing WebSocket analysis", zap.String("filename", msg.Filename))

		if err := h.analyze(c, msg); err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			break
		}
	}
}

// analyze returns an error only when the connection itself failed.
func (h *WebSocketHandler) analyze(c *websocket.Conn, msg analyzeMessage) error {
	data, err := base64.StdEncoding.DecodeString(msg.Content)
	if err != nil {
		return h.sendError(c, "content must be base64 encoded", 400)
	}

	opts, err := normalizeOptions(msg.Options)
	if err != nil {
		return h.sendError(c, err.Error(), 400)
	}

	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var writeErr error
	out, err := h.service.Process(ctx, ingestion.Upload{
		Filename: msg.Filename,
		Data:     data,
		Options:  opts,
		Observer: func(stage pipeline.Stage) {
			if writeErr == nil {
				writeErr = h.sendStage(c, stage)
			}
		},
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		status, body := ErrorResponse(err)
		body["type"] = "error"
		body["status"] = status
		return c.WriteJSON(body)
	}

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": out,
	})
}

func normalizeOptions(opts analysis.Options) (analysis.Options, error) {
	for _, t := range opts.Types {
		if _, err := analysis.ParseAnalysisType(string(t)); err != nil {
			return opts, err
		}
	}
	if len(opts.Types) == 0 {
		opts.Types = []analysis.AnalysisType{analysis.TypeAll}
	}
	format, err := analysis.ParseOutputFormat(string(opts.OutputFormat))
	if err != nil {
		return opts, err
	}
	opts.OutputFormat = format
	return opts, nil
}

func (h *WebSocketHandler) sendStage(c *websocket.Conn, stage pipeline.Stage) error {
	return c.WriteJSON(map[string]interface{}{
		"type":  "stage",
		"stage": stage,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string, status int) error {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}
	if status != 0 {
		msg["status"] = status
	}
	return c.WriteJSON(msg)
}
