package models

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

// ErrUnsupportedFormat is returned for export formats other than png and webp
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format is an export encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
)

// ParseFormat converts a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPNG, FormatWEBP:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	if f == FormatWEBP {
		return "image/webp"
	}
	return "image/png"
}

// Other returns the alternative export format
func (f Format) Other() Format {
	if f == FormatPNG {
		return FormatWEBP
	}
	return FormatPNG
}

// Base canvas limits applied to the natural size of the source image
const (
	MinCanvasWidth  = 800
	MinCanvasHeight = 600

	// used when the decoded image reports no natural size
	FallbackCanvasWidth  = 1200
	FallbackCanvasHeight = 800

	MinScale = 0.5
)

// CanvasSize floors the natural image size to the minimum canvas
func CanvasSize(naturalW, naturalH, minW, minH int) (int, int) {
	w, h := naturalW, naturalH
	if w <= 0 {
		w = FallbackCanvasWidth
	}
	if h <= 0 {
		h = FallbackCanvasHeight
	}
	if w < minW {
		w = minW
	}
	if h < minH {
		h = minH
	}
	return w, h
}

// RenderRequest describes one renderer invocation. It is built per search
// iteration and never modified afterwards.
type RenderRequest struct {
	Width      int
	Height     int
	Scale      float64
	Background BackgroundConfig
	Image      image.Image
	Format     Format
	// Quality is used for webp only, in (0, 1]
	Quality float64
	// Padding in base pixels, scaled by Scale
	Padding int
	// Checkerboard paints the preview pattern behind transparent backgrounds.
	// Never set for exports.
	Checkerboard bool
}

// SurfaceSize returns the pixel size of the surface the request renders to
func (r RenderRequest) SurfaceSize() (int, int) {
	w := int(math.Round(float64(r.Width) * r.Scale))
	h := int(math.Round(float64(r.Height) * r.Scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Validate checks the request invariants
func (r RenderRequest) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", r.Width, r.Height)
	}
	if r.Scale < MinScale {
		return fmt.Errorf("scale %.2f below minimum %.2f", r.Scale, MinScale)
	}
	if r.Image == nil {
		return fmt.Errorf("render request has no image")
	}
	if r.Background == nil {
		return fmt.Errorf("render request has no background")
	}
	switch r.Format {
	case FormatPNG:
	case FormatWEBP:
		if r.Quality <= 0 || r.Quality > 1 {
			return fmt.Errorf("webp quality %.2f outside (0, 1]", r.Quality)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}
	return nil
}

// RenderResult is one encoded frame
type RenderResult struct {
	Data    []byte
	Bytes   int
	Format  Format
	Scale   float64
	Quality float64 // zero for png
	Width   int
	Height  int
}

// ExportOutcome is the first render that met the size limit
type ExportOutcome struct {
	Result   *RenderResult
	Scale    float64
	Quality  float64 // rounded to two decimals, zero for png
	Attempts int
}

// RoundQuality rounds q to two decimal places
func RoundQuality(q float64) float64 {
	return math.Round(q*100) / 100
}
