package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/providers/genai"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/internal/upload"
)

// Analyzer describes an uploaded source image. Optional.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, img genai.InlineImage) (string, error)
}

// UploadRecorder counts accepted and rejected uploads. Optional.
type UploadRecorder interface {
	Upload(accepted bool, size int64)
}

type App struct {
	Logger   zerolog.Logger
	Service  *thumbnail.Service
	Uploads  *upload.Handoff
	Files    *storage.FileStore
	Analyzer Analyzer
	Metrics  UploadRecorder
	Now      func() time.Time
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, errorResponse{Message: message})
}

// serviceError maps orchestrator errors onto status codes. Collaborator
// causes were already logged by the service; clients only see failure.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "Request not found")
	case errors.Is(err, domain.ErrNotRefined):
		a.error(w, http.StatusBadRequest, "Prompt not refined yet")
	case errors.Is(err, domain.ErrValidation):
		a.json(w, http.StatusBadRequest, errorResponse{Message: "Invalid request data", Detail: validationDetail(err)})
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "Request cannot be processed in its current state")
	default:
		if !errors.Is(err, domain.ErrCollaborator) {
			a.log(r).Error().Err(err).Msg(failure)
		}
		a.error(w, http.StatusInternalServerError, failure)
	}
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) recordUpload(accepted bool, size int64) {
	if a.Metrics != nil {
		a.Metrics.Upload(accepted, size)
	}
}

func validationDetail(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}
