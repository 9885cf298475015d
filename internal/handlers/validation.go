package handlers

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/logofresh/studio-renderer/internal/studio"
	"github.com/logofresh/studio-renderer/pkg/models"
)

const maxTitleLength = 200

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// BackgroundUpdate is the body of PUT /sessions/{id}/background.
// Absent fields are left unchanged.
type BackgroundUpdate struct {
	Mode          *string  `json:"mode"`
	SolidColor    *string  `json:"solid_color"`
	GradientA     *string  `json:"gradient_a"`
	GradientB     *string  `json:"gradient_b"`
	GradientAngle *float64 `json:"gradient_angle"`
	Title         *string  `json:"title"`
}

// ImageUpdate is the JSON body of PUT /sessions/{id}/image
type ImageUpdate struct {
	Image string `json:"image"`
}

func validateBackgroundUpdate(u *BackgroundUpdate) []ValidationError {
	var errors []ValidationError

	if u.Mode != nil {
		if _, err := models.ParseBackgroundMode(*u.Mode); err != nil {
			errors = append(errors, ValidationError{
				Field:   "mode",
				Message: "Mode must be one of transparent, solid, gradient",
				Code:    "invalid_option",
			})
		}
	}

	colors := []struct {
		field string
		value *string
	}{
		{"solid_color", u.SolidColor},
		{"gradient_a", u.GradientA},
		{"gradient_b", u.GradientB},
	}
	for _, c := range colors {
		if c.value != nil && !isValidColor(*c.value) {
			errors = append(errors, ValidationError{
				Field:   c.field,
				Message: fmt.Sprintf("Field '%s' must be a hex color like #112233", c.field),
				Code:    "invalid_color",
			})
		}
	}

	if u.GradientAngle != nil && (math.IsNaN(*u.GradientAngle) || math.IsInf(*u.GradientAngle, 0)) {
		errors = append(errors, ValidationError{
			Field:   "gradient_angle",
			Message: "Gradient angle must be a finite number of degrees",
			Code:    "invalid_number",
		})
	}

	if u.Title != nil && len(*u.Title) > maxTitleLength {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("Title must be at most %d characters", maxTitleLength),
			Code:    "too_long",
		})
	}

	return errors
}

func validateVariationParams(p *models.VariationParams, occasions *models.OccasionRegistry) []ValidationError {
	var errors []ValidationError

	switch p.Mode {
	case "occasion":
		if p.Occasion == "" {
			errors = append(errors, ValidationError{
				Field:   "occasion",
				Message: "Field 'occasion' is required in occasion mode",
				Code:    "required",
			})
		} else if occasions != nil {
			if _, ok := occasions.Get(p.Occasion); !ok {
				errors = append(errors, ValidationError{
					Field:   "occasion",
					Message: fmt.Sprintf("Unknown occasion '%s'", p.Occasion),
					Code:    "invalid_option",
				})
			}
		}
	case "style":
		if len(p.StyleTags) == 0 {
			errors = append(errors, ValidationError{
				Field:   "styleTags",
				Message: "At least one style tag is required in style mode",
				Code:    "required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "mode",
			Message: "Mode must be 'occasion' or 'style'",
			Code:    "invalid_option",
		})
	}

	return errors
}

func validateVariation(v *models.LogoVariation) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(v.ID) == "" {
		errors = append(errors, ValidationError{
			Field:   "id",
			Message: "Field 'id' is required",
			Code:    "required",
		})
	} else if studio.Slug(v.ID) == "" {
		errors = append(errors, ValidationError{
			Field:   "id",
			Message: "Field 'id' must contain letters or digits",
			Code:    "invalid_format",
		})
	}

	if strings.TrimSpace(v.Title) == "" {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: "Field 'title' is required",
			Code:    "required",
		})
	}

	return errors
}

func validateImageRef(ref string) []ValidationError {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return []ValidationError{{Field: "image", Message: "Field 'image' is required", Code: "required"}}
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return nil
	}
	if !isValidBase64Image(trimmed) {
		return []ValidationError{{Field: "image", Message: "Image must be a data URL, base64 data or an http(s) URL", Code: "invalid_image"}}
	}
	return nil
}

// isValidColor accepts #RRGGBB and #RGB
func isValidColor(color string) bool {
	if (len(color) != 7 && len(color) != 4) || color[0] != '#' {
		return false
	}
	for i := 1; i < len(color); i++ {
		c := color[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func isValidBase64Image(data string) bool {
	clean := sanitizeBase64Payload(data)
	if clean == "" {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(clean); err == nil {
		return true
	}
	return false
}

func sanitizeBase64Payload(data string) string {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "data:") {
		if idx := strings.Index(trimmed, ","); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.ReplaceAll(trimmed, "\n", "")
	trimmed = strings.ReplaceAll(trimmed, "\r", "")
	return trimmed
}
