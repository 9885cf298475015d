package handlers

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/studio"
	"github.com/logofresh/studio-renderer/pkg/models"
)

func TestEventHandler_Handle(t *testing.T) {
	e := setupTestHandler(t, nil, nil)
	id := e.createSessionWithImage(t)

	pool := studio.NewWorkerPool(1, e.sessions, 30*time.Second, zap.NewNop())
	pool.Start()
	defer pool.Stop()

	h := NewEventHandler(pool, zap.NewNop())
	result, err := h.Handle(context.Background(), &models.ExportRequest{
		Type:      models.TypeExportRequest,
		UUID:      "req-1",
		SessionID: id,
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if result.Type != models.TypeExportResult || result.UUID != "req-1" || result.SessionID != id {
		t.Errorf("Unexpected envelope: %+v", result)
	}
	if result.Filename != "logo-transparent.png" {
		t.Errorf("Expected logo-transparent.png, got %s", result.Filename)
	}
	data, err := base64.StdEncoding.DecodeString(result.Output)
	if err != nil {
		t.Fatalf("Output is not base64: %v", err)
	}
	if len(data) != result.SizeBytes || result.SizeBytes == 0 {
		t.Errorf("Size mismatch: %d decoded, %d reported", len(data), result.SizeBytes)
	}
	if result.Scale != 2 {
		t.Errorf("Expected scale 2, got %v", result.Scale)
	}
}

func TestEventHandler_InvalidRequests(t *testing.T) {
	h := NewEventHandler(&stubExporter{}, zap.NewNop())
	ctx := context.Background()

	if _, err := h.Handle(ctx, &models.ExportRequest{Type: "render_request", SessionID: "x"}); err == nil {
		t.Error("Expected error for wrong type")
	}
	if _, err := h.Handle(ctx, &models.ExportRequest{Type: models.TypeExportRequest}); err == nil {
		t.Error("Expected error for missing session")
	}

	result, err := h.Handle(ctx, &models.ExportRequest{Type: models.TypeExportRequest, SessionID: "x", Format: "bmp"})
	if err == nil || result == nil || result.Error == "" {
		t.Errorf("Expected result carrying the format error, got %+v, %v", result, err)
	}
}

func TestEventHandler_ExportFailure(t *testing.T) {
	exhausted := &studio.SearchExhaustedError{Format: models.FormatWEBP, LimitBytes: 512 * 1024, Attempts: 49}
	h := NewEventHandler(&stubExporter{err: exhausted}, zap.NewNop())

	result, err := h.Handle(context.Background(), &models.ExportRequest{
		Type:      models.TypeExportRequest,
		SessionID: "x",
		Format:    "webp",
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if result.Error != "Could not fit under 512KB. Try PNG format." || result.Output != "" {
		t.Errorf("Unexpected result: %+v", result)
	}
}
