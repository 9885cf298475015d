package studio

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/pkg/models"
)

// Search candidates in hundredths, so the sequences are exact.
const (
	scaleStart = 200
	scaleStop  = 50
	scaleStep  = 25

	qualityStart = 92
	qualityStop  = 40
	qualityStep  = 8
)

// ScaleCandidates returns 2.00 down to 0.50 in steps of 0.25
func ScaleCandidates() []float64 {
	var out []float64
	for c := scaleStart; c >= scaleStop; c -= scaleStep {
		out = append(out, float64(c)/100)
	}
	return out
}

// QualityCandidates returns the webp qualities tried at each scale:
// 0.92 down while >= 0.40 in steps of 0.08. The last value is 0.44; 0.40
// itself is never reached.
func QualityCandidates() []float64 {
	var out []float64
	for c := qualityStart; c >= qualityStop; c -= qualityStep {
		out = append(out, float64(c)/100)
	}
	return out
}

// SearchParams describes one size constrained export search
type SearchParams struct {
	Image          image.Image
	Width          int
	Height         int
	Padding        int
	Background     models.BackgroundConfig
	Format         models.Format
	HardLimitBytes int
}

// Searcher finds the largest scale (and, for webp, the highest quality at
// that scale) whose encoded size is within the hard limit.
type Searcher struct {
	renderer Renderer
	logger   *zap.Logger
}

// NewSearcher creates a new searcher
func NewSearcher(renderer Renderer, logger *zap.Logger) *Searcher {
	return &Searcher{renderer: renderer, logger: logger}
}

// Search renders candidates scale-major, quality-minor, both descending, and
// returns the first one that fits. Renders run one at a time. A candidate
// whose render fails is skipped; cancellation of ctx aborts the search.
// When nothing fits, the error is a *SearchExhaustedError.
func (s *Searcher) Search(ctx context.Context, p SearchParams) (*models.ExportOutcome, error) {
	qualities := []float64{0}
	if p.Format == models.FormatWEBP {
		qualities = QualityCandidates()
	}

	attempts := 0
	for _, scale := range ScaleCandidates() {
		for _, quality := range qualities {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			req := models.RenderRequest{
				Width:      p.Width,
				Height:     p.Height,
				Scale:      scale,
				Background: p.Background,
				Image:      p.Image,
				Format:     p.Format,
				Quality:    quality,
				Padding:    p.Padding,
			}

			attempts++
			res, err := s.renderer.Render(ctx, req)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				s.logger.Debug("Render produced no usable sample, skipping",
					zap.String("format", string(p.Format)),
					zap.Float64("scale", scale),
					zap.Float64("quality", quality),
					zap.Error(err))
				continue
			}
			if res == nil || res.Bytes == 0 {
				continue
			}

			s.logger.Debug("Rendered export candidate",
				zap.String("format", string(p.Format)),
				zap.Float64("scale", scale),
				zap.Float64("quality", quality),
				zap.Int("bytes", res.Bytes),
				zap.Int("limit", p.HardLimitBytes))

			if res.Bytes <= p.HardLimitBytes {
				outcome := &models.ExportOutcome{
					Result:   res,
					Scale:    scale,
					Attempts: attempts,
				}
				if p.Format == models.FormatWEBP {
					outcome.Quality = models.RoundQuality(quality)
				}
				return outcome, nil
			}
		}
	}

	return nil, &SearchExhaustedError{
		Format:     p.Format,
		LimitBytes: p.HardLimitBytes,
		Attempts:   attempts,
	}
}
