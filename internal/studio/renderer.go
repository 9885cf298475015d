package studio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/chai2010/webp"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/logofresh/studio-renderer/pkg/models"
)

// Renderer draws and encodes one composite frame
type Renderer interface {
	Render(ctx context.Context, req models.RenderRequest) (*models.RenderResult, error)
}

// checkerColor is the dark square of the on-screen transparency pattern
var checkerColor = color.RGBA{R: 0x1A, G: 0x1A, B: 0x2E, A: 0xff}

const checkerSize = 10

// CanvasRenderer renders requests on a CPU raster surface
type CanvasRenderer struct{}

// NewCanvasRenderer creates a new canvas renderer
func NewCanvasRenderer() *CanvasRenderer {
	return &CanvasRenderer{}
}

// Render paints the background, draws the image centered inside the scaled
// padding and encodes the surface in the requested format.
func (r *CanvasRenderer) Render(ctx context.Context, req models.RenderRequest) (*models.RenderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w, h := req.SurfaceSize()
	dc := gg.NewContext(w, h)

	if err := paintBackground(dc, req.Background, req.Scale, req.Checkerboard); err != nil {
		return nil, err
	}

	dst, ok := dc.Image().(draw.Image)
	if !ok {
		return nil, fmt.Errorf("surface is not drawable")
	}
	pad := int(math.Round(float64(req.Padding) * req.Scale))
	drawCentered(dst, req.Image, pad)

	var buf bytes.Buffer
	switch req.Format {
	case models.FormatPNG:
		if err := dc.EncodePNG(&buf); err != nil {
			return nil, fmt.Errorf("error encoding PNG: %w", err)
		}
	case models.FormatWEBP:
		opts := &webp.Options{Quality: float32(req.Quality * 100)}
		if err := webp.Encode(&buf, dc.Image(), opts); err != nil {
			return nil, fmt.Errorf("error encoding WebP: %w", err)
		}
	}
	if buf.Len() == 0 {
		return nil, ErrNoOutput
	}

	result := &models.RenderResult{
		Data:   buf.Bytes(),
		Bytes:  buf.Len(),
		Format: req.Format,
		Scale:  req.Scale,
		Width:  w,
		Height: h,
	}
	if req.Format == models.FormatWEBP {
		result.Quality = req.Quality
	}
	return result, nil
}

func paintBackground(dc *gg.Context, bg models.BackgroundConfig, scale float64, checkerboard bool) error {
	w, h := float64(dc.Width()), float64(dc.Height())

	switch b := bg.(type) {
	case models.Transparent:
		// the context starts fully transparent
		if checkerboard {
			paintChecker(dc, scale)
		}
	case models.Solid:
		c, err := ParseHexColor(b.ColorHex)
		if err != nil {
			return err
		}
		dc.SetColor(c)
		dc.Clear()
	case models.Gradient:
		a, err := ParseHexColor(b.ColorHexA)
		if err != nil {
			return err
		}
		z, err := ParseHexColor(b.ColorHexB)
		if err != nil {
			return err
		}
		x0, y0, x1, y1 := gradientAxis(w, h, b.AngleDegrees)
		grad := gg.NewLinearGradient(x0, y0, x1, y1)
		grad.AddColorStop(0, a)
		grad.AddColorStop(1, z)
		dc.SetFillStyle(grad)
		dc.DrawRectangle(0, 0, w, h)
		dc.Fill()
	default:
		return fmt.Errorf("unsupported background %T", bg)
	}
	return nil
}

// gradientAxis returns the gradient endpoints on the line through the surface
// center at angle degrees. 0 runs along +x, 90 along +y (downwards).
func gradientAxis(w, h, angle float64) (x0, y0, x1, y1 float64) {
	rad := angle * math.Pi / 180
	cx, cy := w/2, h/2
	dx := math.Cos(rad) * w / 2
	dy := math.Sin(rad) * h / 2
	return cx - dx, cy - dy, cx + dx, cy + dy
}

func paintChecker(dc *gg.Context, scale float64) {
	size := math.Max(1, math.Round(checkerSize*scale))
	dc.SetColor(checkerColor)
	for y, row := 0.0, 0; y < float64(dc.Height()); y, row = y+size, row+1 {
		for x, col := 0.0, 0; x < float64(dc.Width()); x, col = x+size, col+1 {
			if (row+col)%2 == 0 {
				dc.DrawRectangle(x, y, size, size)
			}
		}
	}
	dc.Fill()
}

// drawCentered scales src uniformly to fit dst minus pad on every side and
// composites it over the center of dst.
func drawCentered(dst draw.Image, src image.Image, pad int) {
	db := dst.Bounds()
	maxW := db.Dx() - 2*pad
	maxH := db.Dy() - 2*pad
	if maxW <= 0 || maxH <= 0 {
		return
	}

	sb := src.Bounds()
	nw, nh := sb.Dx(), sb.Dy()
	if nw <= 0 {
		nw = 1
	}
	if nh <= 0 {
		nh = 1
	}

	ratio := math.Min(float64(maxW)/float64(nw), float64(maxH)/float64(nh))
	drawW := float64(nw) * ratio
	drawH := float64(nh) * ratio
	x := (float64(db.Dx()) - drawW) / 2
	y := (float64(db.Dy()) - drawH) / 2

	rect := image.Rect(
		db.Min.X+int(math.Round(x)),
		db.Min.Y+int(math.Round(y)),
		db.Min.X+int(math.Round(x+drawW)),
		db.Min.Y+int(math.Round(y+drawH)),
	)
	if rect.Empty() {
		return
	}
	draw.CatmullRom.Scale(dst, rect, src, sb, draw.Over, nil)
}
