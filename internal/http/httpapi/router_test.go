package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"thumbnailer/internal/adapter/repo"
	"thumbnailer/internal/domain"
	"thumbnailer/internal/http/handlers"
	"thumbnailer/internal/metrics"
	"thumbnailer/internal/providers/image"
	"thumbnailer/internal/providers/prompt"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/internal/upload"
)

type failingRefiner struct{}

func (failingRefiner) Name() string { return "failing" }

func (failingRefiner) Refine(context.Context, prompt.RefineRequest) (string, error) {
	return "", errors.New("upstream exploded: quota")
}

type fixture struct {
	server *httptest.Server
	files  *storage.FileStore
}

func newFixture(t *testing.T, refiner prompt.Refiner) *fixture {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	logger := zerolog.Nop()
	rec := metrics.New()
	svc := thumbnail.NewService(repo.NewMemoryStore(), refiner, image.NewSyntheticSynthesizer(), files, logger, thumbnail.WithRecorder(rec))
	app := &handlers.App{
		Logger:  logger,
		Service: svc,
		Uploads: upload.NewHandoff(files),
		Files:   files,
		Metrics: rec,
		Now:     func() time.Time { return time.UnixMilli(1700000000000) },
	}
	h := NewRouter(app, Options{
		Logger:         logger,
		Observer:       rec,
		MetricsHandler: rec.Handler(),
		DefaultLocale:  "en",
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, files: files}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return f.do(t, http.MethodPost, path, body, http.Header{"Content-Type": {"application/json"}})
}

func (f *fixture) upload(t *testing.T, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	return f.do(t, http.MethodPost, "/api/upload", buf, http.Header{"Content-Type": {mw.FormDataContentType()}})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func expectMessage(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	got := decode[map[string]any](t, resp)
	if got["message"] != want {
		t.Fatalf("expected message %q, got %v", want, got)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func validBody(uploaded *string) map[string]any {
	body := map[string]any{
		"originalPrompt": "  How I built a cabin in 30 days  ",
		"customizations": map[string]any{
			"colorScheme":   "vibrant",
			"textOption":    "yes-title",
			"style":         "energetic",
			"targetEmotion": "excitement",
		},
	}
	if uploaded != nil {
		body["uploadedImagePath"] = *uploaded
	}
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	resp := f.do(t, http.MethodGet, "/v1/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[map[string]string](t, resp); got["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestWizardFlow(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	source := pngBytes(t)

	resp := f.upload(t, "Cabin.PNG", "image/png", source)
	expectStatus(t, resp, http.StatusOK)
	up := decode[map[string]string](t, resp)
	if up["originalName"] != "Cabin.PNG" || !strings.HasSuffix(up["filePath"], ".png") {
		t.Fatalf("unexpected upload response: %v", up)
	}
	filePath := up["filePath"]

	resp = f.postJSON(t, "/api/thumbnail-requests", validBody(&filePath))
	expectStatus(t, resp, http.StatusOK)
	created := decode[domain.GenerationRequest](t, resp)
	if created.Status != domain.StatusPending || created.OriginalPrompt != "How I built a cabin in 30 days" {
		t.Fatalf("unexpected created request: %+v", created)
	}
	if created.UploadedImagePath == nil || *created.UploadedImagePath != filePath {
		t.Fatalf("uploaded path not stored: %+v", created.UploadedImagePath)
	}

	resp = f.postJSON(t, "/api/thumbnail-requests/"+created.ID+"/refine", nil)
	expectStatus(t, resp, http.StatusOK)
	refined := decode[domain.GenerationRequest](t, resp)
	if refined.Status != domain.StatusProcessing || refined.RefinedPrompt == nil || *refined.RefinedPrompt == "" {
		t.Fatalf("unexpected refined request: %+v", refined)
	}

	resp = f.postJSON(t, "/api/thumbnail-requests/"+created.ID+"/generate", nil)
	expectStatus(t, resp, http.StatusOK)
	done := decode[domain.GenerationRequest](t, resp)
	wantName := "generated_" + created.ID + ".png"
	if done.Status != domain.StatusCompleted || done.GeneratedImagePath == nil || *done.GeneratedImagePath != wantName {
		t.Fatalf("unexpected completed request: %+v", done)
	}

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests/"+created.ID, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[domain.GenerationRequest](t, resp); got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed on read, got %s", got.Status)
	}

	resp = f.do(t, http.MethodGet, "/api/images/"+wantName, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
	served, _ := io.ReadAll(resp.Body)
	if _, err := png.Decode(bytes.NewReader(served)); err != nil {
		t.Fatalf("served image is not a png: %v", err)
	}

	resp = f.do(t, http.MethodGet, "/api/download/"+wantName, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=thumbnail_1700000000000.png" {
		t.Fatalf("unexpected content disposition: %s", cd)
	}

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests/"+created.ID+"/archive", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	archive, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := map[string]bool{}
	for _, file := range zr.File {
		names[file.Name] = true
	}
	for _, want := range []string{"request.json", "original_prompt.txt", "refined_prompt.txt", filePath, wantName} {
		if !names[want] {
			t.Fatalf("archive missing %s: %v", want, names)
		}
	}

	resp = f.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	exposition, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`thumbnailer_generation_requests_created_total 1`,
		`thumbnailer_uploads_total{outcome="accepted"} 1`,
		`route="/api/thumbnail-requests/{id}/refine"`,
	} {
		if !strings.Contains(string(exposition), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())

	cases := []struct {
		name string
		body any
	}{
		{"empty prompt", map[string]any{"originalPrompt": "   ", "customizations": validBody(nil)["customizations"]}},
		{"bad color", map[string]any{"originalPrompt": "x", "customizations": map[string]any{
			"colorScheme": "neon", "textOption": "no", "style": "creative", "targetEmotion": "calm",
		}}},
		{"bad style", map[string]any{"originalPrompt": "x", "customizations": map[string]any{
			"colorScheme": "dark", "textOption": "yes-custom", "style": "calm", "targetEmotion": "calm",
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.postJSON(t, "/api/thumbnail-requests", tc.body)
			expectStatus(t, resp, http.StatusBadRequest)
			expectMessage(t, resp, "Invalid request data")
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/thumbnail-requests", strings.NewReader("{"), http.Header{"Content-Type": {"application/json"}})
		expectStatus(t, resp, http.StatusBadRequest)
		expectMessage(t, resp, "Invalid request data")
	})

	resp := f.do(t, http.MethodGet, "/api/thumbnail-requests", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[[]domain.GenerationRequest](t, resp); len(got) != 0 {
		t.Fatalf("rejected requests must not be stored, got %d", len(got))
	}
}

func TestCreateAcceptsOptionalInputs(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	cases := []struct {
		name   string
		prompt string
		custom map[string]any
	}{
		{"custom option without text", "cat video", map[string]any{
			"colorScheme": "vibrant", "textOption": "yes-custom", "style": "energetic", "targetEmotion": "joy",
		}},
		{"custom option with blank text", "cat video", map[string]any{
			"colorScheme": "vibrant", "textOption": "yes-custom", "customText": "   ", "style": "energetic", "targetEmotion": "joy",
		}},
		{"long prompt", strings.Repeat("p", 2001), map[string]any{
			"colorScheme": "dark", "textOption": "no", "style": "creative", "targetEmotion": "calm",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.postJSON(t, "/api/thumbnail-requests", map[string]any{"originalPrompt": tc.prompt, "customizations": tc.custom})
			expectStatus(t, resp, http.StatusOK)
			got := decode[domain.GenerationRequest](t, resp)
			if got.Status != domain.StatusPending {
				t.Fatalf("status = %q, want pending", got.Status)
			}
			if got.Customizations.CustomText != nil {
				t.Fatalf("customText = %q, want null", *got.Customizations.CustomText)
			}
			if len(got.OriginalPrompt) != len(tc.prompt) {
				t.Fatalf("prompt length = %d, want %d", len(got.OriginalPrompt), len(tc.prompt))
			}

			resp = f.postJSON(t, "/api/thumbnail-requests/"+got.ID+"/refine", nil)
			expectStatus(t, resp, http.StatusOK)
			refined := decode[domain.GenerationRequest](t, resp)
			if refined.RefinedPrompt == nil || strings.Contains(*refined.RefinedPrompt, `reading ""`) {
				t.Fatalf("unexpected refined prompt: %v", refined.RefinedPrompt)
			}
		})
	}
}

func TestUnknownRequest(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	id := "0b7c1c6e-0000-4000-8000-000000000000"

	resp := f.do(t, http.MethodGet, "/api/thumbnail-requests/"+id, nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectMessage(t, resp, "Request not found")

	for _, stage := range []string{"refine", "generate"} {
		resp := f.postJSON(t, "/api/thumbnail-requests/"+id+"/"+stage, nil)
		expectStatus(t, resp, http.StatusNotFound)
		expectMessage(t, resp, "Request not found")
	}

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests/"+id+"/archive", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestGenerateBeforeRefine(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	resp := f.postJSON(t, "/api/thumbnail-requests", validBody(nil))
	expectStatus(t, resp, http.StatusOK)
	created := decode[domain.GenerationRequest](t, resp)

	resp = f.postJSON(t, "/api/thumbnail-requests/"+created.ID+"/generate", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	expectMessage(t, resp, "Prompt not refined yet")

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests/"+created.ID, nil, nil)
	if got := decode[domain.GenerationRequest](t, resp); got.Status != domain.StatusPending {
		t.Fatalf("status must stay pending, got %s", got.Status)
	}
}

func TestRefineFailureHidesCause(t *testing.T) {
	f := newFixture(t, failingRefiner{})
	resp := f.postJSON(t, "/api/thumbnail-requests", validBody(nil))
	created := decode[domain.GenerationRequest](t, resp)

	resp = f.postJSON(t, "/api/thumbnail-requests/"+created.ID+"/refine", nil)
	expectStatus(t, resp, http.StatusInternalServerError)
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "quota") {
		t.Fatalf("collaborator cause leaked: %s", body)
	}
	if !strings.Contains(string(body), "Failed to refine prompt") {
		t.Fatalf("unexpected body: %s", body)
	}

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests/"+created.ID, nil, nil)
	if got := decode[domain.GenerationRequest](t, resp); got.Status != domain.StatusFailed || got.RefinedPrompt != nil {
		t.Fatalf("expected failed without refined prompt, got %+v", got)
	}

	resp = f.postJSON(t, "/api/thumbnail-requests/"+created.ID+"/refine", nil)
	expectStatus(t, resp, http.StatusConflict)

	resp = f.do(t, http.MethodGet, "/api/thumbnail-requests?status=failed", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[[]domain.GenerationRequest](t, resp); len(got) != 1 || got[0].ID != created.ID {
		t.Fatalf("expected the failed request in the listing, got %+v", got)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	resp := f.do(t, http.MethodGet, "/api/thumbnail-requests?status=archived", nil, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())

	resp := f.upload(t, "notes.txt", "text/plain", []byte("hello"))
	expectStatus(t, resp, http.StatusBadRequest)
	expectMessage(t, resp, upload.ErrUnsupportedType.Error())

	resp = f.upload(t, "huge.png", "image/png", make([]byte, upload.MaxUploadBytes+1))
	expectStatus(t, resp, http.StatusBadRequest)
	expectMessage(t, resp, upload.ErrTooLarge.Error())

	resp = f.postJSON(t, "/api/upload", map[string]string{"image": "nope"})
	expectStatus(t, resp, http.StatusBadRequest)
	expectMessage(t, resp, "No file uploaded")
}

func TestImagesNotFound(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())

	resp := f.do(t, http.MethodGet, "/api/images/missing.png", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectMessage(t, resp, "Image not found")

	resp = f.do(t, http.MethodGet, "/api/download/missing.png", nil, nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectMessage(t, resp, "File not found")
}

func TestLocaleDetectedOnCreate(t *testing.T) {
	f := newFixture(t, prompt.NewStaticRefiner())
	data, _ := json.Marshal(validBody(nil))
	resp := f.do(t, http.MethodPost, "/api/thumbnail-requests", bytes.NewReader(data), http.Header{
		"Content-Type":    {"application/json"},
		"Accept-Language": {"id-ID,id;q=0.9"},
	})
	expectStatus(t, resp, http.StatusOK)
	if got := decode[domain.GenerationRequest](t, resp); got.Locale != "id" {
		t.Fatalf("expected locale id, got %q", got.Locale)
	}
}
