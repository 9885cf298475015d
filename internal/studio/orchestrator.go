package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logofresh/studio-renderer/internal/config"
	"github.com/logofresh/studio-renderer/pkg/models"
)

// BackgroundRemover produces a cutout of an image with a transparent background
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, data []byte, mimeType string) ([]byte, error)
}

// ImageListener is notified after the working image changes
type ImageListener func(models.ImageChangedEvent)

// Options are the export pipeline settings of an orchestrator
type Options struct {
	HardLimitBytes int
	MinWidth       int
	MinHeight      int
	Padding        int
}

// OptionsFromConfig builds Options from the studio configuration
func OptionsFromConfig(cfg *config.StudioConfig) Options {
	return Options{
		HardLimitBytes: cfg.HardLimitBytes,
		MinWidth:       cfg.MinWidth,
		MinHeight:      cfg.MinHeight,
		Padding:        cfg.Padding,
	}
}

// DefaultOptions returns the stock pipeline settings
func DefaultOptions() Options {
	return Options{
		HardLimitBytes: config.DefaultHardLimitBytes,
		MinWidth:       models.MinCanvasWidth,
		MinHeight:      models.MinCanvasHeight,
		Padding:        40,
	}
}

// Artifact is a finished export ready to be downloaded
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	Info        string
	Outcome     *models.ExportOutcome
}

// Orchestrator owns the state of one editor session: the working logo, the
// background settings and the last export metadata.
type Orchestrator struct {
	sessionID string
	renderer  Renderer
	searcher  *Searcher
	decoder   ImageDecoder
	remover   BackgroundRemover
	store     Store
	opts      Options
	logger    *zap.Logger

	mu         sync.Mutex
	title      string
	background models.BackgroundState
	image      *SourceImage
	lastExport string
	generation uint64
	inFlight   int
	listeners  map[int]ImageListener
	nextID     int
}

// NewOrchestrator creates an orchestrator for one session
func NewOrchestrator(
	sessionID string,
	renderer Renderer,
	decoder ImageDecoder,
	remover BackgroundRemover,
	store Store,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if store == nil {
		store = NewMemoryStore().ForSession(sessionID)
	}
	return &Orchestrator{
		sessionID:  sessionID,
		renderer:   renderer,
		searcher:   NewSearcher(renderer, logger),
		decoder:    decoder,
		remover:    remover,
		store:      store,
		opts:       opts,
		logger:     logger.With(zap.String("session_id", sessionID)),
		title:      "logo",
		background: models.DefaultBackgroundState(),
		listeners:  make(map[int]ImageListener),
	}
}

// SessionID returns the session the orchestrator belongs to
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// SetBackgroundMode switches the active background variant
func (o *Orchestrator) SetBackgroundMode(mode models.BackgroundMode) error {
	if _, err := models.ParseBackgroundMode(string(mode)); err != nil {
		return err
	}
	o.mu.Lock()
	o.background.Mode = mode
	o.mu.Unlock()
	return nil
}

// SetSolidColor sets the solid fill color
func (o *Orchestrator) SetSolidColor(hex string) error {
	if _, err := ParseHexColor(hex); err != nil {
		return err
	}
	o.mu.Lock()
	o.background.SolidColor = hex
	o.mu.Unlock()
	return nil
}

// SetGradientColors sets both gradient endpoints
func (o *Orchestrator) SetGradientColors(a, b string) error {
	if _, err := ParseHexColor(a); err != nil {
		return err
	}
	if _, err := ParseHexColor(b); err != nil {
		return err
	}
	o.mu.Lock()
	o.background.GradientA = a
	o.background.GradientB = b
	o.mu.Unlock()
	return nil
}

// SetGradientAngle sets the gradient direction in degrees
func (o *Orchestrator) SetGradientAngle(deg float64) {
	o.mu.Lock()
	o.background.GradientAngle = models.NormalizeAngle(deg)
	o.mu.Unlock()
}

// BackgroundChange is a partial background update. Nil fields are kept.
type BackgroundChange struct {
	Mode          *models.BackgroundMode
	SolidColor    *string
	GradientA     *string
	GradientB     *string
	GradientAngle *float64
}

// UpdateBackground validates every field of change and applies them
// together. Nothing is applied when any field is invalid.
func (o *Orchestrator) UpdateBackground(change BackgroundChange) (models.BackgroundState, error) {
	if change.Mode != nil {
		if _, err := models.ParseBackgroundMode(string(*change.Mode)); err != nil {
			return o.Background(), err
		}
	}
	for _, hex := range []*string{change.SolidColor, change.GradientA, change.GradientB} {
		if hex == nil {
			continue
		}
		if _, err := ParseHexColor(*hex); err != nil {
			return o.Background(), err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	next := o.background
	if change.Mode != nil {
		next.Mode = *change.Mode
	}
	if change.SolidColor != nil {
		next.SolidColor = *change.SolidColor
	}
	if change.GradientA != nil {
		next.GradientA = *change.GradientA
	}
	if change.GradientB != nil {
		next.GradientB = *change.GradientB
	}
	if change.GradientAngle != nil {
		next.GradientAngle = models.NormalizeAngle(*change.GradientAngle)
	}
	o.background = next
	return next, nil
}

// SetTitle sets the title used to name exports
func (o *Orchestrator) SetTitle(title string) {
	o.mu.Lock()
	o.title = title
	o.mu.Unlock()
}

// Background returns the current background settings
func (o *Orchestrator) Background() models.BackgroundState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.background
}

// LastExportInfo returns the metadata line of the last successful export
func (o *Orchestrator) LastExportInfo() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastExport
}

// State returns a snapshot of the session state
func (o *Orchestrator) State() models.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := models.SessionState{
		SessionID:      o.sessionID,
		Title:          o.title,
		Background:     o.background,
		HasImage:       o.image != nil,
		LastExportInfo: o.lastExport,
		Exporting:      o.inFlight > 0,
	}
	if o.image != nil {
		state.ImageWidth = o.image.Width
		state.ImageHeight = o.image.Height
	}
	return state
}

// Subscribe registers fn for image change notifications and returns a
// function that removes it.
func (o *Orchestrator) Subscribe(fn ImageListener) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// SetSourceImage decodes ref and makes it the working logo
func (o *Orchestrator) SetSourceImage(ctx context.Context, ref string) error {
	img, err := o.decoder.Decode(ctx, ref)
	if err != nil {
		o.logger.Warn("Failed to load source image", zap.Error(err))
		return err
	}
	o.replaceImage(ctx, img, "upload", true)
	return nil
}

// SetSourceBytes decodes raw image bytes and makes them the working logo
func (o *Orchestrator) SetSourceBytes(ctx context.Context, data []byte) error {
	img, err := o.decoder.DecodeBytes(data)
	if err != nil {
		o.logger.Warn("Failed to decode uploaded image", zap.Error(err))
		return err
	}
	o.replaceImage(ctx, img, "upload", true)
	return nil
}

// Image returns the current working logo, or nil
func (o *Orchestrator) Image() *SourceImage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.image
}

// Restore loads the persisted working logo and title, if any.
// It reports whether a logo was restored.
func (o *Orchestrator) Restore(ctx context.Context) (bool, error) {
	if title, ok, err := o.store.Get(ctx, KeyTitle); err == nil && ok {
		o.SetTitle(string(title))
	}

	ref, ok, err := o.store.Get(ctx, KeyWorkingLogo)
	if err != nil {
		return false, fmt.Errorf("failed to read working logo: %w", err)
	}
	if !ok {
		return false, nil
	}

	img, err := o.decoder.Decode(ctx, string(ref))
	if err != nil {
		return false, err
	}
	o.replaceImage(ctx, img, "restore", false)
	return true, nil
}

// PersistTitle stores the current title so it survives a reload
func (o *Orchestrator) PersistTitle(ctx context.Context) error {
	o.mu.Lock()
	title := o.title
	o.mu.Unlock()
	return o.store.Set(ctx, KeyTitle, []byte(title))
}

// ClearImage drops the working logo and its persisted copy
func (o *Orchestrator) ClearImage(ctx context.Context) error {
	o.mu.Lock()
	had := o.image != nil
	o.image = nil
	listeners := o.listenersLocked()
	o.mu.Unlock()

	if err := o.store.Clear(ctx, KeyWorkingLogo); err != nil {
		return fmt.Errorf("failed to clear working logo: %w", err)
	}
	if had {
		o.notify(listeners, models.ImageChangedEvent{
			Type:      models.TypeImageChanged,
			SessionID: o.sessionID,
			Source:    "clear",
			ChangedAt: time.Now(),
		})
	}
	return nil
}

// RemoveBackground replaces the working logo with a background free cutout.
// On failure the previous image is kept and a *RemovalError is returned.
// Exports already running keep the image they started with.
func (o *Orchestrator) RemoveBackground(ctx context.Context) error {
	o.mu.Lock()
	current := o.image
	o.mu.Unlock()

	if current == nil {
		return ErrNoImage
	}
	if o.remover == nil {
		return &RemovalError{Err: ErrRemoverUnavailable}
	}

	data, err := o.remover.RemoveBackground(ctx, current.Data, current.MIME)
	if err != nil {
		o.logger.Error("Background removal failed", zap.Error(err))
		return &RemovalError{Err: err}
	}

	next, err := o.decoder.DecodeBytes(data)
	if err != nil {
		o.logger.Error("Background removal returned an undecodable image", zap.Error(err))
		return &RemovalError{Err: err}
	}

	if !o.commitImage(ctx, next, "background_removal", true, current) {
		return &RemovalError{Err: ErrImageChanged}
	}
	return nil
}

func (o *Orchestrator) replaceImage(ctx context.Context, img *SourceImage, source string, persist bool) {
	o.commitImage(ctx, img, source, persist, nil)
}

// commitImage installs img as the working logo. When expected is non-nil
// the swap only happens if the working logo is still expected; the check and
// the swap share one critical section.
func (o *Orchestrator) commitImage(ctx context.Context, img *SourceImage, source string, persist bool, expected *SourceImage) bool {
	o.mu.Lock()
	if expected != nil && o.image != expected {
		o.mu.Unlock()
		return false
	}
	o.image = img
	listeners := o.listenersLocked()
	o.mu.Unlock()

	if persist {
		if err := o.store.Set(ctx, KeyWorkingLogo, []byte(img.DataURL())); err != nil {
			// the in-memory image is still usable
			o.logger.Warn("Failed to persist working logo", zap.Error(err))
		}
	}

	o.notify(listeners, models.ImageChangedEvent{
		Type:      models.TypeImageChanged,
		SessionID: o.sessionID,
		Source:    source,
		Width:     img.Width,
		Height:    img.Height,
		ChangedAt: time.Now(),
	})
	return true
}

func (o *Orchestrator) listenersLocked() []ImageListener {
	listeners := make([]ImageListener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	return listeners
}

func (o *Orchestrator) notify(listeners []ImageListener, event models.ImageChangedEvent) {
	for _, l := range listeners {
		l(event)
	}
}

// ExportAs runs the size constrained search for format with the current
// settings and returns the artifact to download. The image and background
// are captured when the call starts. If another export starts before this
// one finishes, this result is dropped with ErrStaleExport.
func (o *Orchestrator) ExportAs(ctx context.Context, format models.Format) (*Artifact, error) {
	if _, err := models.ParseFormat(string(format)); err != nil {
		return nil, err
	}

	o.mu.Lock()
	img := o.image
	if img == nil {
		o.mu.Unlock()
		return nil, ErrNoImage
	}
	bg := o.background.Active()
	title := o.title
	o.generation++
	gen := o.generation
	o.inFlight++
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}()

	w, h := models.CanvasSize(img.Width, img.Height, o.opts.MinWidth, o.opts.MinHeight)

	start := time.Now()
	outcome, err := o.searcher.Search(ctx, SearchParams{
		Image:          img.Image,
		Width:          w,
		Height:         h,
		Padding:        o.opts.Padding,
		Background:     bg,
		Format:         format,
		HardLimitBytes: o.opts.HardLimitBytes,
	})
	if err != nil {
		var exhausted *SearchExhaustedError
		if errors.As(err, &exhausted) {
			o.logger.Info("Export search exhausted",
				zap.String("format", string(format)),
				zap.Int("attempts", exhausted.Attempts))
		} else {
			o.logger.Error("Export failed", zap.String("format", string(format)), zap.Error(err))
		}
		return nil, err
	}

	artifact := &Artifact{
		Filename:    ExportFilename(title, bg.Mode(), format),
		ContentType: format.ContentType(),
		Data:        outcome.Result.Data,
		Info:        ExportInfo(format, outcome),
		Outcome:     outcome,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		o.logger.Debug("Discarding stale export result", zap.Uint64("generation", gen))
		return nil, ErrStaleExport
	}
	o.lastExport = artifact.Info

	o.logger.Info("Export completed",
		zap.String("filename", artifact.Filename),
		zap.Int("bytes", outcome.Result.Bytes),
		zap.Float64("scale", outcome.Scale),
		zap.Float64("quality", outcome.Quality),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("elapsed", time.Since(start)))

	return artifact, nil
}

// Preview renders the current composite at minimum scale as PNG, with the
// checker pattern behind transparent backgrounds.
func (o *Orchestrator) Preview(ctx context.Context) (*models.RenderResult, error) {
	o.mu.Lock()
	img := o.image
	bg := o.background.Active()
	o.mu.Unlock()

	if img == nil {
		return nil, ErrNoImage
	}

	w, h := models.CanvasSize(img.Width, img.Height, o.opts.MinWidth, o.opts.MinHeight)
	return o.renderer.Render(ctx, models.RenderRequest{
		Width:        w,
		Height:       h,
		Scale:        models.MinScale,
		Background:   bg,
		Image:        img.Image,
		Format:       models.FormatPNG,
		Padding:      o.opts.Padding,
		Checkerboard: true,
	})
}
