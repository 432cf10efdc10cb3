package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/middleware"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/pkg/zip"
)

const maxJSONBody = 1 << 20

type createThumbnailRequest struct {
	OriginalPrompt    string                `json:"originalPrompt"`
	Customizations    domain.Customizations `json:"customizations"`
	UploadedImagePath *string               `json:"uploadedImagePath"`
}

func (a *App) CreateThumbnailRequest(w http.ResponseWriter, r *http.Request) {
	var body createThumbnailRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	req, err := a.Service.Create(r.Context(), thumbnail.CreateInput{
		OriginalPrompt:    body.OriginalPrompt,
		Customizations:    body.Customizations,
		UploadedImagePath: body.UploadedImagePath,
		Locale:            middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.serviceError(w, r, err, "Failed to create request")
		return
	}
	a.json(w, http.StatusOK, req)
}

func (a *App) ListThumbnailRequests(w http.ResponseWriter, r *http.Request) {
	var status domain.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := domain.ParseStatus(strings.ToLower(raw))
		if err != nil {
			a.serviceError(w, r, err, "Failed to list requests")
			return
		}
		status = parsed
	}
	items, err := a.Service.List(r.Context(), status)
	if err != nil {
		a.serviceError(w, r, err, "Failed to list requests")
		return
	}
	if items == nil {
		items = []domain.GenerationRequest{}
	}
	a.json(w, http.StatusOK, items)
}

func (a *App) GetThumbnailRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "Failed to get request")
		return
	}
	a.json(w, http.StatusOK, req)
}

func (a *App) RefineThumbnailRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.Service.Refine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "Failed to refine prompt")
		return
	}
	a.json(w, http.StatusOK, req)
}

func (a *App) GenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	req, err := a.Service.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err, "Failed to generate thumbnail")
		return
	}
	a.json(w, http.StatusOK, req)
}

// ArchiveThumbnailRequest bundles the source image, the result and both
// prompts of one request into a zip.
func (a *App) ArchiveThumbnailRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := a.Service.Get(r.Context(), id)
	if err != nil {
		a.serviceError(w, r, err, "Failed to build archive")
		return
	}

	record, err := marshalRequest(req)
	if err != nil {
		a.serviceError(w, r, fmt.Errorf("encode request: %w", err), "Failed to build archive")
		return
	}

	assets := []zip.Asset{
		{Filename: "request.json", Data: record, Modified: req.CreatedAt},
		{Filename: "original_prompt.txt", Data: []byte(req.OriginalPrompt), Modified: req.CreatedAt},
	}
	if req.RefinedPrompt != nil {
		assets = append(assets, zip.Asset{Filename: "refined_prompt.txt", Data: []byte(*req.RefinedPrompt), Modified: req.CreatedAt})
	}
	for _, key := range []*string{req.UploadedImagePath, req.GeneratedImagePath} {
		if key == nil {
			continue
		}
		data, err := a.Files.Read(r.Context(), *key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotExist) {
				a.log(r).Warn().Err(err).Str("path", *key).Msg("archive asset unreadable")
			}
			continue
		}
		assets = append(assets, zip.Asset{Filename: *key, Data: data, Modified: req.CreatedAt})
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.serviceError(w, r, err, "Failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=thumbnail-request-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

var marshalRequest = func(req *domain.GenerationRequest) ([]byte, error) {
	return json.MarshalIndent(req, "", "  ")
}
