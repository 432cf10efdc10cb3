// Package thumbnail orchestrates the create, refine and generate stages of a
// generation request.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/providers/image"
	"thumbnailer/internal/providers/prompt"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/upload"
)

// Stage names used in logs and metrics.
const (
	StageRefine   = "refine"
	StageGenerate = "generate"
)

// FileStore is the blob storage holding uploads and generated thumbnails.
type FileStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Recorder receives stage observations. A nil Recorder is allowed.
type Recorder interface {
	ObserveStage(stage, provider string, err error, took time.Duration)
	RequestCreated()
}

// CreateInput is the user-supplied part of a new request.
type CreateInput struct {
	OriginalPrompt    string
	Customizations    domain.Customizations
	UploadedImagePath *string
	Locale            string
}

// Service runs the generation pipeline. It holds no per-request state; every
// transition is a single store update.
type Service struct {
	store       domain.RequestStore
	refiner     prompt.Refiner
	synthesizer image.Synthesizer
	files       FileStore
	logger      zerolog.Logger
	recorder    Recorder
	now         func() time.Time
	newID       func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder attaches metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides uuid.NewString, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store domain.RequestStore, refiner prompt.Refiner, synthesizer image.Synthesizer, files FileStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		refiner:     refiner,
		synthesizer: synthesizer,
		files:       files,
		logger:      logger.With().Str("component", "thumbnail").Logger(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the input and stores a pending request. No collaborator
// is called.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.GenerationRequest, error) {
	original, err := domain.NormalizePrompt(in.OriginalPrompt)
	if err != nil {
		return nil, err
	}
	custom := in.Customizations
	custom.Normalize()
	if err := custom.Validate(); err != nil {
		return nil, err
	}

	var uploaded *string
	if in.UploadedImagePath != nil {
		if p := strings.TrimSpace(*in.UploadedImagePath); p != "" {
			uploaded = &p
		}
	}
	locale := strings.TrimSpace(in.Locale)
	if locale == "" {
		locale = domain.DefaultLocale
	}

	req := &domain.GenerationRequest{
		ID:                s.newID(),
		OriginalPrompt:    original,
		Customizations:    custom,
		UploadedImagePath: uploaded,
		Status:            domain.StatusPending,
		Locale:            locale,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RequestCreated()
	}
	s.logFor(ctx, req.ID).Info().
		Str("color_scheme", string(custom.ColorScheme)).
		Str("style", string(custom.Style)).
		Bool("reference", uploaded != nil).
		Msg("request created")
	out := req.Clone()
	return &out, nil
}

// Get returns the current record.
func (s *Service) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return s.store.GetByID(ctx, id)
}

// List returns requests with the given status, or all when status is empty.
func (s *Service) List(ctx context.Context, status domain.Status) ([]domain.GenerationRequest, error) {
	return s.store.ListByStatus(ctx, status)
}

// Refine moves a pending request to processing and stores the refined
// prompt. Any refiner failure marks the request failed.
func (s *Service) Refine(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot refine a %s request", domain.ErrInvalidState, req.Status)
	}

	req, err = s.store.Update(ctx, id, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusProcessing)})
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	start := time.Now()
	refined, err := s.refiner.Refine(ctx, prompt.RequestFrom(req))
	if err == nil && strings.TrimSpace(refined) == "" {
		err = prompt.ErrEmptyRefinement
	}
	s.observe(StageRefine, s.refiner.Name(), err, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, id, StageRefine, err)
	}

	updated, err := s.store.Update(ctx, id, domain.RequestUpdate{RefinedPrompt: domain.StringPtr(strings.TrimSpace(refined))})
	if err != nil {
		return nil, fmt.Errorf("store refined prompt: %w", err)
	}
	s.logFor(ctx, id).Info().Str("provider", s.refiner.Name()).Int("chars", len(refined)).Msg("prompt refined")
	return updated, nil
}

// Generate renders the thumbnail from the refined prompt and completes the
// request. The result always lands at generated_<id>.png.
func (s *Service) Generate(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RefinedPrompt == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrNotRefined)
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot generate for a %s request", domain.ErrInvalidState, req.Status)
	}

	synth := image.SynthesisRequest{Prompt: *req.RefinedPrompt, RequestID: id}
	if req.UploadedImagePath != nil {
		synth.Reference = s.loadReference(ctx, id, *req.UploadedImagePath)
	}

	start := time.Now()
	img, err := s.synthesizer.Synthesize(ctx, synth)
	if err == nil && (img == nil || len(img.Data) == 0) {
		err = image.ErrEmptyImage
	}
	s.observe(StageGenerate, s.synthesizer.Name(), err, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, id, StageGenerate, err)
	}

	key, err := s.files.Write(ctx, domain.GeneratedImageName(id), img.Data)
	if err != nil {
		return nil, s.fail(ctx, id, StageGenerate, fmt.Errorf("write result: %w", err))
	}

	updated, err := s.store.Update(ctx, id, domain.RequestUpdate{
		Status:             domain.StatusPtr(domain.StatusCompleted),
		GeneratedImagePath: &key,
	})
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	s.logFor(ctx, id).Info().Str("provider", s.synthesizer.Name()).Str("path", key).Int("bytes", len(img.Data)).Msg("thumbnail generated")
	return updated, nil
}

// loadReference reads the uploaded source. A missing or unreadable file is
// logged and generation continues without it.
func (s *Service) loadReference(ctx context.Context, id, path string) *image.ReferenceImage {
	data, err := s.files.Read(ctx, path)
	if err != nil {
		event := s.logFor(ctx, id).Warn().Err(err).Str("path", path)
		if errors.Is(err, storage.ErrNotExist) {
			event.Msg("reference image missing; generating without it")
		} else {
			event.Msg("reference image unreadable; generating without it")
		}
		return nil
	}
	return &image.ReferenceImage{Data: data, MIME: upload.MediaTypeFor(path)}
}

// fail marks the request failed and returns the generic collaborator error.
// The cause is logged, never returned.
func (s *Service) fail(ctx context.Context, id, stage string, cause error) error {
	s.logFor(ctx, id).Error().Err(cause).Str("stage", stage).Msg("stage failed")
	if _, err := s.store.Update(context.WithoutCancel(ctx), id, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusFailed)}); err != nil {
		s.logFor(ctx, id).Error().Err(err).Str("stage", stage).Msg("mark failed")
	}
	return fmt.Errorf("%w: %s failed", domain.ErrCollaborator, stage)
}

func (s *Service) observe(stage, provider string, err error, took time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveStage(stage, provider, err, took)
	}
}

// logFor prefers the request scoped logger placed on ctx by the HTTP layer.
func (s *Service) logFor(ctx context.Context, id string) *zerolog.Logger {
	l := s.logger
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger != nil && ctxLogger.GetLevel() != zerolog.Disabled {
		l = ctxLogger.With().Str("component", "thumbnail").Logger()
	}
	l = l.With().Str("request", id).Logger()
	return &l
}
