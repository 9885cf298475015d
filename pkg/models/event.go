package models

import "time"

// Message types carried on the Redis stream and pub/sub channels
const (
	TypeExportRequest = "export_request"
	TypeExportResult  = "export_result"
	TypeImageChanged  = "image_changed"
)

// ExportRequest represents a queued request to export a session's logo
type ExportRequest struct {
	Type      string `json:"type"`
	UUID      string `json:"uuid"`
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"`
	UUID        string    `json:"uuid"`
	SessionID   string    `json:"session_id"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int       `json:"size_bytes"`
	Scale       float64   `json:"scale,omitempty"`
	Quality     float64   `json:"quality,omitempty"`
	Info        string    `json:"info,omitempty"`
	Output      string    `json:"output"` // base64 encoded artifact
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ImageChangedEvent notifies observers that a session's working logo changed
type ImageChangedEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"` // upload, background_removal, restore, clear
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	ChangedAt time.Time `json:"changed_at"`
}

// SessionState is the externally visible state of an editor session
type SessionState struct {
	SessionID      string          `json:"session_id"`
	Title          string          `json:"title"`
	Background     BackgroundState `json:"background"`
	HasImage       bool            `json:"has_image"`
	ImageWidth     int             `json:"image_width,omitempty"`
	ImageHeight    int             `json:"image_height,omitempty"`
	LastExportInfo string          `json:"last_export_info,omitempty"`
	Exporting      bool            `json:"exporting"`
}

// LogoVariation is one generated variation spec
type LogoVariation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	Palette   struct {
		Hex   []string `json:"hex"`
		Usage []struct {
			Role string `json:"role"`
			Hex  string `json:"hex"`
		} `json:"usage"`
	} `json:"palette"`
	Geometry struct {
		IconAdjustments string `json:"iconAdjustments"`
	} `json:"geometry"`
	Typography struct {
		Change bool   `json:"change"`
		Family string `json:"family"`
	} `json:"typography"`
}

// LogoFreshResponse is the structured response of the variation generator
type LogoFreshResponse struct {
	Variations   []LogoVariation `json:"variations"`
	Dice         []LogoVariation `json:"dice,omitempty"`
	BrandSummary *struct {
		IntegrityNotes string `json:"integrityNotes"`
	} `json:"brandSummary,omitempty"`
}

// VariationPreview is the rendered raster and traced SVG of one variation
type VariationPreview struct {
	VariationID string `json:"variation_id"`
	Image       string `json:"image"` // PNG data URL
	SVG         string `json:"svg,omitempty"`
}

// VariationParams are the user options forwarded to the variation generator
type VariationParams struct {
	Mode                   string   `json:"mode"` // occasion or style
	Occasion               string   `json:"occasion,omitempty"`
	Tone                   string   `json:"tone,omitempty"`
	StyleTags              []string `json:"styleTags,omitempty"`
	IntegrateElements      bool     `json:"integrateElements"`
	AllowTypographyChanges bool     `json:"allowTypographyChanges"`
}
