package ai

import (
	"fmt"
	"strings"

	"github.com/logofresh/studio-renderer/pkg/models"
)

const removeBackgroundPrompt = `Remove the solid background from this logo.
Make the background fully transparent and render the logo artwork as a solid black silhouette.
Return a single PNG image with a clean cutout.`

const svgPreviewPrompt = `Trace the provided raster logo into an equivalent SVG.
Match the geometry and colors exactly; do not stylize or simplify.
Use a viewBox, keep path data compact and output the SVG markup only, without markdown fences.`

const variationSystemPrompt = `You are a brand-safe logo variation assistant.
Given a base logo and the JSON options in the first part, return export-ready variation specs as JSON
with the fields variations, dice and brandSummary.
Keep the icon silhouette and letterforms unless allowTypographyChanges is true, use 2 to 4 solid colors,
stay legible at 32px, and respect the requested tone. Each rationale must name the concrete reason for
every color and shape choice. Output JSON only.`

func variationRasterPrompt(v models.LogoVariation) string {
	return fmt.Sprintf(`Generate a high-quality visualization of this logo variation: %q.
Description: %s.
Palette: %s.
Preserve the brand silhouette. Add thematic elements around the logo or in the negative space; do not alter the core shape.
Output a PNG on a solid white background.`, v.Title, v.Rationale, strings.Join(v.Palette.Hex, ", "))
}
