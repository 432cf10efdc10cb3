package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"thumbnailer/internal/storage"
	"thumbnailer/internal/upload"
)

// ServeImage returns the raw bytes of an uploaded or generated image.
func (a *App) ServeImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	data, ok := a.readFile(w, r, name, "Image not found")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", upload.MediaTypeFor(name))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

// DownloadImage serves the file as an attachment named thumbnail_<unixmillis>.png.
func (a *App) DownloadImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	data, ok := a.readFile(w, r, name, "File not found")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", upload.MediaTypeFor(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=thumbnail_%d.png", a.now().UnixMilli()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) readFile(w http.ResponseWriter, r *http.Request, name, notFound string) ([]byte, bool) {
	data, err := a.Files.Read(r.Context(), name)
	if err == nil {
		return data, true
	}
	if errors.Is(err, storage.ErrNotExist) {
		a.error(w, http.StatusNotFound, notFound)
		return nil, false
	}
	a.log(r).Warn().Err(err).Str("filename", name).Msg("read file")
	a.error(w, http.StatusNotFound, notFound)
	return nil, false
}
