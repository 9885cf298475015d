package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/pkg/models"
)

type fakeModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	byModel   map[string]*genai.GenerateContentResponse
	calls     int
	models    []string
	configs   []*genai.GenerateContentConfig
	prompts   []string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	f.models = append(f.models, model)
	f.configs = append(f.configs, cfg)
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				f.prompts = append(f.prompts, p.Text)
			}
		}
	}

	if resp, ok := f.byModel[model]; ok {
		if resp == nil {
			return nil, errors.New("model unavailable")
		}
		return resp, nil
	}

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromText("here you go"),
				genai.NewPartFromBytes(data, "image/png"),
			}, genai.RoleModel),
		}},
	}
}

func testConfig() config.GenAIConfig {
	return config.GenAIConfig{
		EditModel:     "edit-model",
		JSONModel:     "json-model",
		SVGModel:      "svg-model",
		RetryAttempts: 3,
		RetryBase:     time.Millisecond,
	}
}

func TestRemoveBackground(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{imageResponse([]byte("cutout"))}}
	c := newClient(fake, testConfig(), zap.NewNop())

	out, err := c.RemoveBackground(context.Background(), []byte("logo"), "image/png")
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if string(out) != "cutout" {
		t.Errorf("Expected cutout bytes, got %q", out)
	}
	if fake.models[0] != "edit-model" {
		t.Errorf("Expected edit model, got %s", fake.models[0])
	}
}

func TestRemoveBackground_NoImage(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("sorry")}}
	c := newClient(fake, testConfig(), zap.NewNop())

	if _, err := c.RemoveBackground(context.Background(), []byte("logo"), "image/png"); !errors.Is(err, ErrNoImageReturned) {
		t.Errorf("Expected ErrNoImageReturned, got %v", err)
	}
}

func TestRemoveBackground_RetriesRateLimit(t *testing.T) {
	fake := &fakeModels{
		errs:      []error{genai.APIError{Code: 429, Message: "quota"}},
		responses: []*genai.GenerateContentResponse{nil, imageResponse([]byte("ok"))},
	}
	c := newClient(fake, testConfig(), zap.NewNop())

	out, err := c.RemoveBackground(context.Background(), []byte("logo"), "image/png")
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if string(out) != "ok" || fake.calls != 2 {
		t.Errorf("Expected success on second call, got %q after %d calls", out, fake.calls)
	}
}

func TestGenerateLogoSpecs(t *testing.T) {
	body := `{"variations":[{"id":"v1","title":"Winter","rationale":"cool palette"}],"brandSummary":{"integrityNotes":"kept"}}`
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(body)}}
	c := newClient(fake, testConfig(), zap.NewNop())

	resp, err := c.GenerateLogoSpecs(context.Background(), []byte("logo"), "image/png", models.VariationParams{Mode: "occasion", Occasion: "christmas"})
	if err != nil {
		t.Fatalf("GenerateLogoSpecs failed: %v", err)
	}
	if len(resp.Variations) != 1 || resp.Variations[0].ID != "v1" {
		t.Errorf("Unexpected variations: %+v", resp.Variations)
	}
	if resp.BrandSummary == nil || resp.BrandSummary.IntegrityNotes != "kept" {
		t.Errorf("Unexpected brand summary: %+v", resp.BrandSummary)
	}
	if cfg := fake.configs[0]; cfg == nil || cfg.ResponseMIMEType != "application/json" || cfg.SystemInstruction == nil {
		t.Errorf("Expected JSON config with system instruction, got %+v", cfg)
	}
}

func TestGenerateLogoSpecs_InvalidJSON(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("not json")}}
	c := newClient(fake, testConfig(), zap.NewNop())

	if _, err := c.GenerateLogoSpecs(context.Background(), []byte("logo"), "image/png", models.VariationParams{}); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestGenerateSVGPreview(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("```svg\n<svg viewBox=\"0 0 1 1\"/>\n```")}}
	c := newClient(fake, testConfig(), zap.NewNop())

	got := c.GenerateSVGPreview(context.Background(), []byte("logo"), models.LogoVariation{ID: "v1"})
	if got != `<svg viewBox="0 0 1 1"/>` {
		t.Errorf("Unexpected SVG: %q", got)
	}
}

func TestGenerateSVGPreview_FailureIsEmpty(t *testing.T) {
	fake := &fakeModels{errs: []error{errors.New("boom")}}
	c := newClient(fake, testConfig(), zap.NewNop())

	if got := c.GenerateSVGPreview(context.Background(), []byte("logo"), models.LogoVariation{}); got != "" {
		t.Errorf("Expected empty SVG on failure, got %q", got)
	}
}

func TestEditImage(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{imageResponse([]byte("edited"))}}
	c := newClient(fake, testConfig(), zap.NewNop())

	out, err := c.EditImage(context.Background(), []byte("logo"), "image/jpeg", "make it festive")
	if err != nil {
		t.Fatalf("EditImage failed: %v", err)
	}
	if string(out) != "edited" {
		t.Errorf("Expected edited image, got %q", out)
	}
	if fake.models[0] != "edit-model" {
		t.Errorf("Expected edit model, got %s", fake.models[0])
	}
	if len(fake.prompts) != 1 || fake.prompts[0] != "make it festive" {
		t.Errorf("Unexpected prompts: %q", fake.prompts)
	}
}

func TestEditImage_RetriesOverload(t *testing.T) {
	fake := &fakeModels{
		errs:      []error{&genai.APIError{Code: 503, Message: "overloaded"}},
		responses: []*genai.GenerateContentResponse{nil, imageResponse([]byte("ok"))},
	}
	c := newClient(fake, testConfig(), zap.NewNop())

	if _, err := c.EditImage(context.Background(), []byte("logo"), "image/png", "edit"); err != nil {
		t.Fatalf("EditImage failed: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", fake.calls)
	}
}

func TestRenderVariation_Prompt(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{imageResponse([]byte("png"))}}
	c := newClient(fake, testConfig(), zap.NewNop())

	v := models.LogoVariation{ID: "v2", Title: "Harvest Glow", Rationale: "warm autumn tones"}
	v.Palette.Hex = []string{"#AA5500", "#FFEEDD"}

	if _, err := c.RenderVariation(context.Background(), []byte("logo"), "image/png", v); err != nil {
		t.Fatalf("RenderVariation failed: %v", err)
	}
	prompt := fake.prompts[0]
	for _, want := range []string{`"Harvest Glow"`, "warm autumn tones", "#AA5500, #FFEEDD", "white background"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q, got %q", want, prompt)
		}
	}
}

func TestVisualizeVariation(t *testing.T) {
	fake := &fakeModels{byModel: map[string]*genai.GenerateContentResponse{
		"edit-model": imageResponse([]byte("png")),
		"svg-model":  textResponse("<svg/>"),
	}}
	c := newClient(fake, testConfig(), zap.NewNop())

	preview, err := c.VisualizeVariation(context.Background(), []byte("logo"), "image/png", models.LogoVariation{ID: "v1"})
	if err != nil {
		t.Fatalf("VisualizeVariation failed: %v", err)
	}
	if preview.VariationID != "v1" {
		t.Errorf("Expected variation v1, got %s", preview.VariationID)
	}
	if preview.Image != "data:image/png;base64,cG5n" {
		t.Errorf("Unexpected image: %s", preview.Image)
	}
	if preview.SVG != "<svg/>" {
		t.Errorf("Unexpected SVG: %s", preview.SVG)
	}
	if fake.calls != 2 {
		t.Errorf("Expected 2 model calls, got %d", fake.calls)
	}
}

func TestVisualizeVariation_SVGFailureKeepsRaster(t *testing.T) {
	fake := &fakeModels{byModel: map[string]*genai.GenerateContentResponse{
		"edit-model": imageResponse([]byte("png")),
		"svg-model":  nil,
	}}
	c := newClient(fake, testConfig(), zap.NewNop())

	preview, err := c.VisualizeVariation(context.Background(), []byte("logo"), "image/png", models.LogoVariation{ID: "v1"})
	if err != nil {
		t.Fatalf("VisualizeVariation failed: %v", err)
	}
	if preview.Image == "" || preview.SVG != "" {
		t.Errorf("Expected raster only, got %+v", preview)
	}
}

func TestVisualizeVariation_RasterFailure(t *testing.T) {
	fake := &fakeModels{byModel: map[string]*genai.GenerateContentResponse{
		"edit-model": textResponse("no image today"),
		"svg-model":  textResponse("<svg/>"),
	}}
	c := newClient(fake, testConfig(), zap.NewNop())

	if _, err := c.VisualizeVariation(context.Background(), []byte("logo"), "image/png", models.LogoVariation{ID: "v1"}); !errors.Is(err, ErrNoImageReturned) {
		t.Errorf("Expected ErrNoImageReturned, got %v", err)
	}
}
