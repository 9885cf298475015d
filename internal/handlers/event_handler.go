package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/studio"
	"github.com/logofresh/studio-renderer/pkg/models"
)

// EventHandler processes export requests arriving on the message stream
type EventHandler struct {
	exporter Exporter
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(exporter Exporter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		exporter: exporter,
		logger:   logger,
	}
}

// Handle processes an export request event. A result is returned even when
// the export fails so the requester can be told why.
func (h *EventHandler) Handle(ctx context.Context, request *models.ExportRequest) (*models.ExportResult, error) {
	h.logger.Info("Processing export request",
		zap.String("session_id", request.SessionID),
		zap.String("format", request.Format),
		zap.String("type", request.Type))

	if request.Type != models.TypeExportRequest {
		h.logger.Error("Invalid request type", zap.String("type", request.Type))
		return nil, fmt.Errorf("invalid request type: %s", request.Type)
	}

	if request.SessionID == "" {
		h.logger.Error("Missing session_id")
		return nil, fmt.Errorf("session_id is required")
	}

	result := &models.ExportResult{
		Type:      models.TypeExportResult,
		UUID:      request.UUID,
		SessionID: request.SessionID,
	}

	format, err := models.ParseFormat(request.Format)
	if err != nil {
		result.Error = err.Error()
		result.ProcessedAt = time.Now()
		return result, err
	}

	artifact, err := h.exporter.Submit(ctx, request.SessionID, format)
	result.ProcessedAt = time.Now()
	if err != nil {
		h.logger.Error("Export request failed",
			zap.Error(err),
			zap.String("session_id", request.SessionID),
			zap.String("format", string(format)))

		result.Error = studio.UserMessage(err)
		return result, err
	}

	result.Filename = artifact.Filename
	result.ContentType = artifact.ContentType
	result.SizeBytes = len(artifact.Data)
	result.Scale = artifact.Outcome.Scale
	result.Quality = artifact.Outcome.Quality
	result.Info = artifact.Info
	result.Output = base64.StdEncoding.EncodeToString(artifact.Data)

	h.logger.Info("Export request completed successfully",
		zap.String("session_id", request.SessionID),
		zap.String("filename", artifact.Filename),
		zap.Int("bytes", result.SizeBytes))

	return result, nil
}
