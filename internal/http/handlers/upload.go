package handlers

import (
	"errors"
	"net/http"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/providers/genai"
	"thumbnailer/internal/upload"
)

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	upload.Result
	Analysis string `json:"analysis,omitempty"`
}

// Upload accepts one image in the multipart field "image".
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(upload.MaxUploadBytes); err != nil {
		a.recordUpload(false, 0)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusBadRequest, upload.ErrTooLarge.Error())
			return
		}
		a.error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		a.recordUpload(false, 0)
		a.error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	res, err := a.Uploads.Accept(r.Context(), upload.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		a.recordUpload(false, header.Size)
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			a.error(w, http.StatusBadRequest, upload.ErrTooLarge.Error())
		case errors.Is(err, upload.ErrUnsupportedType):
			a.error(w, http.StatusBadRequest, upload.ErrUnsupportedType.Error())
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusBadRequest, "No file uploaded")
		default:
			a.log(r).Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
			a.error(w, http.StatusInternalServerError, "Failed to upload file")
		}
		return
	}
	a.recordUpload(true, header.Size)

	resp := uploadResponse{Result: res}
	if a.Analyzer != nil {
		resp.Analysis = a.analyze(r, res.FilePath)
	}
	a.log(r).Info().Str("path", res.FilePath).Int64("bytes", header.Size).Msg("upload stored")
	a.json(w, http.StatusOK, resp)
}

// analyze describes the stored upload. Failures are logged and leave the
// analysis empty.
func (a *App) analyze(r *http.Request, path string) string {
	data, err := a.Files.Read(r.Context(), path)
	if err != nil {
		a.log(r).Warn().Err(err).Str("path", path).Msg("read upload for analysis")
		return ""
	}
	text, err := a.Analyzer.AnalyzeImage(r.Context(), genai.InlineImage{Data: data, MIMEType: upload.MediaTypeFor(path)})
	if err != nil {
		a.log(r).Warn().Err(err).Str("path", path).Msg("image analysis failed")
		return ""
	}
	return text
}
