package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/internal/retry"
	"github.com/logofresh/studio-renderer/pkg/models"
)

// ErrNoImageReturned is returned when the model answered without image data
var ErrNoImageReturned = errors.New("model returned no image")

// contentGenerator is the part of the genai client the studio uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client talks to the generative AI backend
type Client struct {
	models   contentGenerator
	cfg      config.GenAIConfig
	retrier  *retry.Retrier
	svgRetry *retry.Retrier
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient creates a client for the Gemini API
func NewClient(ctx context.Context, cfg config.GenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GENAI_API_KEY is not set")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newClient(gc.Models, cfg, logger), nil
}

func newClient(models contentGenerator, cfg config.GenAIConfig, logger *zap.Logger) *Client {
	policy := retry.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		policy.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBase > 0 {
		policy.BaseDelay = cfg.RetryBase
	}

	// vectorization is slower and more often throttled
	svgPolicy := policy
	svgPolicy.BaseDelay = 3 * time.Second

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.RatePerMinute) / 60)
	}

	return &Client{
		models:   models,
		cfg:      cfg,
		retrier:  retry.New(policy, logger),
		svgRetry: retry.New(svgPolicy, logger),
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

func (c *Client) generate(ctx context.Context, r *retry.Retrier, model string, parts []*genai.Part, gcfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	err := r.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		resp, err = c.models.GenerateContent(ctx, model, contents, gcfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RemoveBackground asks the image model for a transparent cutout of data
func (c *Client) RemoveBackground(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	out, err := c.EditImage(ctx, data, mimeType, removeBackgroundPrompt)
	if err != nil {
		return nil, fmt.Errorf("background removal failed: %w", err)
	}
	return out, nil
}

// EditImage sends data and an instruction to the image model and returns
// the first image of the answer.
func (c *Client) EditImage(ctx context.Context, data []byte, mimeType, prompt string) ([]byte, error) {
	start := time.Now()

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(prompt),
	}
	resp, err := c.generate(ctx, c.retrier, c.cfg.EditModel, parts, nil)
	if err != nil {
		return nil, fmt.Errorf("image edit request failed: %w", err)
	}

	out := firstInlineImage(resp)
	if out == nil {
		return nil, ErrNoImageReturned
	}

	c.logger.Info("Image edited",
		zap.String("model", c.cfg.EditModel),
		zap.Int("bytes", len(out)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// RenderVariation draws the logo as described by variation
func (c *Client) RenderVariation(ctx context.Context, data []byte, mimeType string, variation models.LogoVariation) ([]byte, error) {
	out, err := c.EditImage(ctx, data, mimeType, variationRasterPrompt(variation))
	if err != nil {
		return nil, fmt.Errorf("variation %s: %w", variation.ID, err)
	}
	return out, nil
}

// VisualizeVariation renders the raster preview and the SVG trace of a
// variation concurrently. A failed SVG trace leaves SVG empty; a failed
// raster render fails the call.
func (c *Client) VisualizeVariation(ctx context.Context, data []byte, mimeType string, variation models.LogoVariation) (*models.VariationPreview, error) {
	preview := &models.VariationPreview{VariationID: variation.ID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		png, err := c.RenderVariation(gctx, data, mimeType, variation)
		if err != nil {
			return err
		}
		preview.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		return nil
	})
	g.Go(func() error {
		preview.SVG = c.GenerateSVGPreview(gctx, data, variation)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return preview, nil
}

// GenerateLogoSpecs asks the JSON model for variation specs of the logo
func (c *Client) GenerateLogoSpecs(ctx context.Context, data []byte, mimeType string, params models.VariationParams) (*models.LogoFreshResponse, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variation params: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(string(paramsJSON)),
		genai.NewPartFromBytes(data, mimeType),
	}
	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(variationSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := c.generate(ctx, c.retrier, c.cfg.JSONModel, parts, gcfg)
	if err != nil {
		return nil, fmt.Errorf("variation request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var out models.LogoFreshResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("failed to parse variation response: %w", err)
	}
	return &out, nil
}

// GenerateSVGPreview traces the logo into SVG markup. Failures are logged
// and yield an empty string.
func (c *Client) GenerateSVGPreview(ctx context.Context, data []byte, variation models.LogoVariation) string {
	parts := []*genai.Part{
		genai.NewPartFromText(svgPreviewPrompt),
		genai.NewPartFromBytes(data, "image/png"),
	}

	resp, err := c.generate(ctx, c.svgRetry, c.cfg.SVGModel, parts, nil)
	if err != nil {
		c.logger.Warn("SVG preview generation failed",
			zap.String("variation_id", variation.ID),
			zap.Error(err))
		return ""
	}
	return stripFences(resp.Text())
}

var fenceReplacer = strings.NewReplacer("```svg", "", "```xml", "", "```", "")

func stripFences(s string) string {
	return strings.TrimSpace(fenceReplacer.Replace(s))
}

func firstInlineImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}
