package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/studio"
	"github.com/logofresh/studio-renderer/pkg/models"
)

const maxUploadBytes = 2 * studio.DefaultMaxImageBytes

// Exporter runs exports outside the request goroutine
type Exporter interface {
	Submit(ctx context.Context, sessionID string, format models.Format) (*studio.Artifact, error)
}

// VariationGenerator produces logo variation specs for a working logo and
// renders previews of single variations.
type VariationGenerator interface {
	GenerateLogoSpecs(ctx context.Context, data []byte, mimeType string, params models.VariationParams) (*models.LogoFreshResponse, error)
	VisualizeVariation(ctx context.Context, data []byte, mimeType string, variation models.LogoVariation) (*models.VariationPreview, error)
	RenderVariation(ctx context.Context, data []byte, mimeType string, variation models.LogoVariation) ([]byte, error)
	GenerateSVGPreview(ctx context.Context, data []byte, variation models.LogoVariation) string
}

// StudioHandler handles HTTP requests for editor sessions
type StudioHandler struct {
	sessions   *studio.Sessions
	exporter   Exporter
	occasions  *models.OccasionRegistry
	variations VariationGenerator
	logger     *zap.Logger
}

// NewStudioHandler creates a new studio handler. variations may be nil when
// no AI backend is configured.
func NewStudioHandler(
	sessions *studio.Sessions,
	exporter Exporter,
	occasions *models.OccasionRegistry,
	variations VariationGenerator,
	logger *zap.Logger,
) *StudioHandler {
	return &StudioHandler{
		sessions:   sessions,
		exporter:   exporter,
		occasions:  occasions,
		variations: variations,
		logger:     logger,
	}
}

// RegisterRoutes registers the studio routes
func (h *StudioHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/occasions", h.handleOccasions)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/sessions/", h.handleSessionDetails)
}

// handleHealth handles GET /health - returns service health status
func (h *StudioHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "studio-renderer",
		"version":  "1.0.0",
		"sessions": h.sessions.Len(),
	})
}

// handleOccasions handles GET /occasions?category=&month=
func (h *StudioHandler) handleOccasions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	month := -1
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 0 || m > 11 {
			http.Error(w, "month must be between 0 and 11", http.StatusBadRequest)
			return
		}
		month = m
	}

	list := h.occasions.List(r.URL.Query().Get("category"), month)
	writeJSON(w, http.StatusOK, list)

	h.logger.Debug("Served occasions list", zap.Int("count", len(list)))
}

// handleSessions handles POST /sessions - starts a new editor session
func (h *StudioHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	o := h.sessions.Create(r.Context())
	writeJSON(w, http.StatusCreated, o.State())
}

// handleSessionDetails handles:
// - GET /sessions/{id} - returns the session state
// - DELETE /sessions/{id} - ends the session and flushes its persisted data
// - PUT /sessions/{id}/image - sets the working logo
// - DELETE /sessions/{id}/image - removes the working logo
// - PUT /sessions/{id}/background - updates the background settings
// - POST /sessions/{id}/remove-background - replaces the logo with a cutout
// - GET /sessions/{id}/preview - renders a PNG preview
// - POST /sessions/{id}/export?format= - downloads an export
// - POST /sessions/{id}/variations - generates logo variation specs
// - POST /sessions/{id}/variations/visualize - raster and SVG preview of one variation
// - POST /sessions/{id}/variations/png - downloads the raster preview
// - POST /sessions/{id}/variations/svg - downloads the SVG trace
func (h *StudioHandler) handleSessionDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	pathParts := strings.Split(strings.TrimSuffix(path, "/"), "/")

	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	if len(pathParts) > 3 || (len(pathParts) == 3 && pathParts[1] != "variations") {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	sessionID := pathParts[0]
	action := ""
	if len(pathParts) >= 2 {
		action = pathParts[1]
	}
	if len(pathParts) == 3 {
		action += "/" + pathParts[2]
		if !isKnownAction(action) {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
	}

	if action == "" && r.Method == http.MethodDelete {
		h.handleDeleteSession(w, r, sessionID)
		return
	}

	o, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, o.State())
	case action == "image" && r.Method == http.MethodPut:
		h.handleImage(w, r, o)
	case action == "image" && r.Method == http.MethodDelete:
		h.handleClearImage(w, r, o)
	case action == "background" && r.Method == http.MethodPut:
		h.handleBackground(w, r, o)
	case action == "remove-background" && r.Method == http.MethodPost:
		h.handleRemoveBackground(w, r, o)
	case action == "preview" && r.Method == http.MethodGet:
		h.handlePreview(w, r, o)
	case action == "export" && r.Method == http.MethodPost:
		h.handleExport(w, r, o)
	case action == "variations" && r.Method == http.MethodPost:
		h.handleVariations(w, r, o)
	case strings.HasPrefix(action, "variations/") && r.Method == http.MethodPost:
		h.handleVariationPreview(w, r, o, strings.TrimPrefix(action, "variations/"))
	case action == "" || isKnownAction(action):
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Endpoint not found", http.StatusNotFound)
	}
}

func isKnownAction(action string) bool {
	switch action {
	case "image", "background", "remove-background", "preview", "export", "variations",
		"variations/visualize", "variations/png", "variations/svg":
		return true
	}
	return false
}

func (h *StudioHandler) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, studio.ErrSessionNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.writeStudioError(w, sessionID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImage accepts raw image bytes (image/* content type), a JSON body
// {"image": ref} or a plain text reference.
func (h *StudioHandler) handleImage(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "Image too large", http.StatusRequestEntityTooLarge)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		err = o.SetSourceBytes(r.Context(), body)
	default:
		ref := string(body)
		if mediaType == "application/json" {
			var update ImageUpdate
			if err := json.Unmarshal(body, &update); err != nil {
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
			ref = update.Image
		}
		if verrs := validateImageRef(ref); len(verrs) > 0 {
			writeValidationErrors(w, verrs)
			return
		}
		err = o.SetSourceImage(r.Context(), ref)
	}

	if err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}
	writeJSON(w, http.StatusOK, o.State())
}

func (h *StudioHandler) handleClearImage(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	if err := o.ClearImage(r.Context()); err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}
	writeJSON(w, http.StatusOK, o.State())
}

func (h *StudioHandler) handleBackground(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	var update BackgroundUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&update); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if verrs := validateBackgroundUpdate(&update); len(verrs) > 0 {
		writeValidationErrors(w, verrs)
		return
	}

	change := studio.BackgroundChange{
		SolidColor:    update.SolidColor,
		GradientA:     update.GradientA,
		GradientB:     update.GradientB,
		GradientAngle: update.GradientAngle,
	}
	if update.Mode != nil {
		mode, _ := models.ParseBackgroundMode(*update.Mode)
		change.Mode = &mode
	}
	if _, err := o.UpdateBackground(change); err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}

	if update.Title != nil {
		o.SetTitle(*update.Title)
		if err := o.PersistTitle(r.Context()); err != nil {
			h.logger.Warn("Failed to persist title",
				zap.String("session_id", o.SessionID()),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, o.State())
}

func (h *StudioHandler) handleRemoveBackground(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	if err := o.RemoveBackground(r.Context()); err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}
	writeJSON(w, http.StatusOK, o.State())
}

func (h *StudioHandler) handlePreview(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	res, err := o.Preview(r.Context())
	if err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}

	w.Header().Set("Content-Type", models.FormatPNG.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(res.Bytes))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// handleExport runs the size constrained search and returns the artifact as
// an attachment. The metadata line is sent in X-Export-Info.
func (h *StudioHandler) handleExport(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(models.FormatPNG)
	}
	format, err := models.ParseFormat(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artifact, err := h.exporter.Submit(r.Context(), o.SessionID(), format)
	if err != nil {
		h.writeStudioError(w, o.SessionID(), err)
		return
	}

	w.Header().Set("X-Export-Info", artifact.Info)
	writeAttachment(w, artifact.ContentType, artifact.Filename, artifact.Data)

	h.logger.Info("Served export",
		zap.String("session_id", o.SessionID()),
		zap.String("filename", artifact.Filename),
		zap.Int("bytes", len(artifact.Data)))
}

func (h *StudioHandler) handleVariations(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator) {
	if h.variations == nil {
		http.Error(w, "Variation generation is not configured", http.StatusServiceUnavailable)
		return
	}

	var params models.VariationParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&params); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if verrs := validateVariationParams(&params, h.occasions); len(verrs) > 0 {
		writeValidationErrors(w, verrs)
		return
	}

	img := o.Image()
	if img == nil {
		h.writeStudioError(w, o.SessionID(), studio.ErrNoImage)
		return
	}

	resp, err := h.variations.GenerateLogoSpecs(r.Context(), img.Data, img.MIME, params)
	if err != nil {
		h.logger.Error("Variation generation failed",
			zap.String("session_id", o.SessionID()),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Could not generate variations. Please try again.",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVariationPreview renders one variation of the working logo. kind is
// visualize (JSON with both previews), png or svg (downloads).
func (h *StudioHandler) handleVariationPreview(w http.ResponseWriter, r *http.Request, o *studio.Orchestrator, kind string) {
	if h.variations == nil {
		http.Error(w, "Variation generation is not configured", http.StatusServiceUnavailable)
		return
	}

	var variation models.LogoVariation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&variation); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if verrs := validateVariation(&variation); len(verrs) > 0 {
		writeValidationErrors(w, verrs)
		return
	}

	img := o.Image()
	if img == nil {
		h.writeStudioError(w, o.SessionID(), studio.ErrNoImage)
		return
	}

	filename := "logofresh-" + studio.Slug(variation.ID)

	switch kind {
	case "visualize":
		preview, err := h.variations.VisualizeVariation(r.Context(), img.Data, img.MIME, variation)
		if err != nil {
			h.writeVariationError(w, o.SessionID(), variation, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)

	case "png":
		data, err := h.variations.RenderVariation(r.Context(), img.Data, img.MIME, variation)
		if err != nil {
			h.writeVariationError(w, o.SessionID(), variation, err)
			return
		}
		writeAttachment(w, models.FormatPNG.ContentType(), filename+".png", data)

	case "svg":
		markup := h.variations.GenerateSVGPreview(r.Context(), img.Data, variation)
		if markup == "" {
			h.writeVariationError(w, o.SessionID(), variation, fmt.Errorf("empty SVG trace"))
			return
		}
		writeAttachment(w, "image/svg+xml; charset=utf-8", filename+".svg", []byte(markup))
	}
}

func (h *StudioHandler) writeVariationError(w http.ResponseWriter, sessionID string, variation models.LogoVariation, err error) {
	h.logger.Error("Variation preview failed",
		zap.String("session_id", sessionID),
		zap.String("variation_id", variation.ID),
		zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]string{
		"error": fmt.Sprintf("Sorry, the visualization for %q failed. Please try again.", variation.Title),
	})
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writeStudioError maps studio errors to HTTP responses with the user message
func (h *StudioHandler) writeStudioError(w http.ResponseWriter, sessionID string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("session_id", sessionID), zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.String("session_id", sessionID), zap.Error(err))
	}

	writeJSON(w, status, map[string]string{
		"error":   studio.UserMessage(err),
		"details": err.Error(),
	})
}

func statusForError(err error) int {
	var exhausted *studio.SearchExhaustedError
	var decodeErr *studio.DecodeError
	var removalErr *studio.RemovalError

	switch {
	case errors.As(err, &exhausted):
		return http.StatusUnprocessableEntity
	case errors.As(err, &decodeErr),
		errors.Is(err, studio.ErrInvalidColor),
		errors.Is(err, models.ErrInvalidMode),
		errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrNoImage), errors.Is(err, studio.ErrStaleExport):
		return http.StatusConflict
	case errors.As(err, &removalErr):
		if errors.Is(err, studio.ErrRemoverUnavailable) {
			return http.StatusServiceUnavailable
		}
		if errors.Is(err, studio.ErrImageChanged) {
			return http.StatusConflict
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeValidationErrors(w http.ResponseWriter, verrs []ValidationError) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "validation failed",
		"errors": verrs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
