package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbnailer/internal/adapter/repo"
	"thumbnailer/internal/domain"
	"thumbnailer/internal/providers/image"
	"thumbnailer/internal/providers/prompt"
	"thumbnailer/internal/storage"
)

type fakeRefiner struct {
	mu    sync.Mutex
	calls int
	last  prompt.RefineRequest
	out   string
	err   error
}

func (f *fakeRefiner) Name() string { return "fake" }

func (f *fakeRefiner) Refine(_ context.Context, req prompt.RefineRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.out, f.err
}

type fakeSynth struct {
	mu    sync.Mutex
	calls int
	last  image.SynthesisRequest
	out   []byte
	err   error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, req image.SynthesisRequest) (*image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &image.Image{Data: f.out, MIME: "image/png"}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	created int
	stages  []string
}

func (f *fakeRecorder) RequestCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
}

func (f *fakeRecorder) ObserveStage(stage, _ string, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "err"
	}
	f.stages = append(f.stages, stage+":"+outcome)
}

type harness struct {
	svc      *Service
	store    *repo.MemoryStore
	files    *storage.FileStore
	refiner  *fakeRefiner
	synth    *fakeSynth
	recorder *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		store:    repo.NewMemoryStore(),
		files:    files,
		refiner:  &fakeRefiner{out: "ENHANCED: cat video"},
		synth:    &fakeSynth{out: []byte{0xFF, 0xD8, 0xFF, 0xE0}},
		recorder: &fakeRecorder{},
	}
	h.svc = NewService(h.store, h.refiner, h.synth, files, zerolog.Nop(), WithRecorder(h.recorder))
	return h
}

func scenarioInput() CreateInput {
	return CreateInput{
		OriginalPrompt: "cat video",
		Customizations: domain.Customizations{
			ColorScheme:   domain.ColorSchemeVibrant,
			TextOption:    domain.TextOptionNone,
			Style:         domain.StyleEnergetic,
			TargetEmotion: "joy",
		},
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.svc.Create(ctx, scenarioInput())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Nil(t, created.RefinedPrompt)
	assert.Nil(t, created.GeneratedImagePath)
	assert.Equal(t, domain.DefaultLocale, created.Locale)

	refined, err := h.svc.Refine(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, refined.RefinedPrompt)
	assert.Equal(t, "ENHANCED: cat video", *refined.RefinedPrompt)
	assert.Equal(t, domain.StatusProcessing, refined.Status)

	generated, err := h.svc.Generate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, generated.Status)
	require.NotNil(t, generated.GeneratedImagePath)
	assert.Equal(t, "generated_"+created.ID+".png", *generated.GeneratedImagePath)

	data, err := h.files.Read(ctx, *generated.GeneratedImagePath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data)

	assert.Equal(t, 1, h.recorder.created)
	assert.Equal(t, []string{"refine:ok", "generate:ok"}, h.recorder.stages)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		mut  func(*CreateInput)
	}{
		{"blank prompt", func(in *CreateInput) { in.OriginalPrompt = "   " }},
		{"unknown color", func(in *CreateInput) { in.Customizations.ColorScheme = "neon" }},
		{"custom without text", func(in *CreateInput) { in.Customizations.TextOption = domain.TextOptionCustom }},
		{"bad style", func(in *CreateInput) { in.Customizations.Style = "retro" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			in := scenarioInput()
			tc.mut(&in)
			_, err := h.svc.Create(ctx, in)
			require.ErrorIs(t, err, domain.ErrValidation)

			all, err := h.store.ListByStatus(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Zero(t, h.refiner.calls)
		})
	}
}

func TestCreateProducesUniqueIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		req, err := h.svc.Create(ctx, scenarioInput())
		require.NoError(t, err)
		require.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true
	}
}

func TestCreateKeepsUploadAndLocale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := scenarioInput()
	path := "abc.png"
	in.UploadedImagePath = &path
	in.Locale = "id"
	req, err := h.svc.Create(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, req.UploadedImagePath)
	assert.Equal(t, "abc.png", *req.UploadedImagePath)
	assert.Equal(t, "id", req.Locale)

	_, err = h.svc.Refine(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, h.refiner.last.HasReferenceImage)
	assert.Equal(t, "id", h.refiner.last.Locale)
}

func TestRefineUnknownID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Create(ctx, scenarioInput())
	require.NoError(t, err)
	before, err := h.svc.List(ctx, "")
	require.NoError(t, err)

	_, err = h.svc.Refine(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, h.refiner.calls)

	after, err := h.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGetIsReadOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	created, err := h.svc.Create(ctx, scenarioInput())
	require.NoError(t, err)
	_, err = h.svc.Refine(ctx, created.ID)
	require.NoError(t, err)

	snapshot := func() []byte {
		got, err := h.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		data, err := json.Marshal(got)
		require.NoError(t, err)
		return data
	}
	first := snapshot()
	second := snapshot()
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, h.refiner.calls)
	assert.Zero(t, h.synth.calls)
}

func TestRefineFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.refiner.err = errors.New("upstream exploded with secret detail")
	req, err := h.svc.Create(ctx, scenarioInput())
	require.NoError(t, err)

	_, err = h.svc.Refine(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	assert.NotContains(t, err.Error(), "secret detail")

	stored, err := h.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Nil(t, stored.RefinedPrompt)
	assert.Nil(t, stored.GeneratedImagePath)
}

func TestRefineEmptyOutputIsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.refiner.out = "   "
	req, _ := h.svc.Create(ctx, scenarioInput())
	_, err := h.svc.Refine(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	stored, _ := h.svc.Get(ctx, req.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestRefineOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, _ := h.svc.Create(ctx, scenarioInput())
	_, err := h.svc.Refine(ctx, req.ID)
	require.NoError(t, err)

	_, err = h.svc.Refine(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, h.refiner.calls)

	_, err = h.svc.Generate(ctx, req.ID)
	require.NoError(t, err)
	_, err = h.svc.Refine(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	stored, _ := h.svc.Get(ctx, req.ID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestGenerateBeforeRefine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, _ := h.svc.Create(ctx, scenarioInput())

	_, err := h.svc.Generate(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrNotRefined)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, h.synth.calls)

	stored, _ := h.svc.Get(ctx, req.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestGenerateAfterFailedRefine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.refiner.err = errors.New("boom")
	req, _ := h.svc.Create(ctx, scenarioInput())
	_, _ = h.svc.Refine(ctx, req.ID)

	_, err := h.svc.Generate(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrNotRefined)
	assert.Zero(t, h.synth.calls)
}

func TestGenerateFailureKeepsRefinedPrompt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.synth.err = errors.New("no image data found in response")
	req, _ := h.svc.Create(ctx, scenarioInput())
	_, err := h.svc.Refine(ctx, req.ID)
	require.NoError(t, err)

	_, err = h.svc.Generate(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrCollaborator)

	stored, _ := h.svc.Get(ctx, req.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.RefinedPrompt)
	assert.Nil(t, stored.GeneratedImagePath)
	exists, err := h.files.Exists(ctx, domain.GeneratedImageName(req.ID))
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = h.svc.Generate(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, h.synth.calls)
}

func TestGenerateEmptyImageIsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.synth.out = nil
	req, _ := h.svc.Create(ctx, scenarioInput())
	_, _ = h.svc.Refine(ctx, req.ID)
	_, err := h.svc.Generate(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrCollaborator)
	stored, _ := h.svc.Get(ctx, req.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestGeneratePassesReferenceImage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.files.Write(ctx, "src.jpg", []byte{1, 2, 3})
	require.NoError(t, err)
	in := scenarioInput()
	path := "src.jpg"
	in.UploadedImagePath = &path
	req, _ := h.svc.Create(ctx, in)
	_, _ = h.svc.Refine(ctx, req.ID)

	_, err = h.svc.Generate(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, h.synth.last.Reference)
	assert.Equal(t, []byte{1, 2, 3}, h.synth.last.Reference.Data)
	assert.Equal(t, "image/jpeg", h.synth.last.Reference.MIME)
	assert.Equal(t, "ENHANCED: cat video", h.synth.last.Prompt)
}

func TestGenerateToleratesMissingReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := scenarioInput()
	path := "gone.png"
	in.UploadedImagePath = &path
	req, _ := h.svc.Create(ctx, in)
	_, _ = h.svc.Refine(ctx, req.ID)

	out, err := h.svc.Generate(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.Nil(t, h.synth.last.Reference)
}

func TestRepeatedRequestsUseDistinctArtifacts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	var paths []string
	for i := 0; i < 2; i++ {
		req, _ := h.svc.Create(ctx, scenarioInput())
		_, _ = h.svc.Refine(ctx, req.ID)
		out, err := h.svc.Generate(ctx, req.ID)
		require.NoError(t, err)
		paths = append(paths, *out.GeneratedImagePath)
	}
	assert.NotEqual(t, paths[0], paths[1])
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h.svc = NewService(h.store, h.refiner, h.synth, h.files, zerolog.Nop(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first, _ := h.svc.Create(ctx, scenarioInput())
	second, _ := h.svc.Create(ctx, scenarioInput())
	_, err := h.svc.Refine(ctx, second.ID)
	require.NoError(t, err)

	pending, err := h.svc.List(ctx, domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	all, err := h.svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
}

func TestConcurrentPipelinesOnDistinctRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := h.svc.Create(ctx, scenarioInput())
			if err != nil {
				errs <- err
				return
			}
			if _, err := h.svc.Refine(ctx, req.ID); err != nil {
				errs <- err
				return
			}
			_, err = h.svc.Generate(ctx, req.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	completed, err := h.svc.List(ctx, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, n)
}
