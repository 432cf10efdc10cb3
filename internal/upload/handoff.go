// Package upload validates and stores source images handed to the wizard.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"thumbnailer/internal/domain"
)

// MaxUploadBytes is the largest accepted source image (10 MiB).
const MaxUploadBytes int64 = 10 << 20

// ErrTooLarge is joined with domain.ErrValidation for oversized uploads.
var ErrTooLarge = errors.New("file exceeds 10MB limit")

// ErrUnsupportedType is joined with domain.ErrValidation for disallowed media types.
var ErrUnsupportedType = errors.New("only JPEG, PNG, and WebP images are allowed")

var canonicalExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// Writer is the storage the handoff persists accepted files into.
type Writer interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Upload describes one incoming file. Size may be -1 when unknown; the limit
// is enforced while reading regardless.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result is the opaque reference handed back to the client.
type Result struct {
	FilePath     string `json:"filePath"`
	OriginalName string `json:"originalName"`
}

// Handoff validates uploads and stores them under fresh names.
type Handoff struct {
	store   Writer
	newName func() string
}

func NewHandoff(store Writer) *Handoff {
	return &Handoff{store: store, newName: uuid.NewString}
}

// Accept stores the upload as "<uuid><ext>". Nothing is written when the
// file is rejected.
func (h *Handoff) Accept(ctx context.Context, up Upload) (Result, error) {
	mediaType := normalizeMediaType(up.ContentType)
	if _, ok := canonicalExt[mediaType]; !ok {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrValidation, ErrUnsupportedType)
	}
	if up.Size > MaxUploadBytes {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrValidation, ErrTooLarge)
	}
	if up.Body == nil {
		return Result{}, fmt.Errorf("%w: no file uploaded", domain.ErrValidation)
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, MaxUploadBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > MaxUploadBytes {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrValidation, ErrTooLarge)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: uploaded file is empty", domain.ErrValidation)
	}

	name := h.newName() + extensionFor(up.Filename, mediaType)
	key, err := h.store.Write(ctx, name, data)
	if err != nil {
		return Result{}, fmt.Errorf("store upload: %w", err)
	}
	return Result{FilePath: key, OriginalName: filepath.Base(up.Filename)}, nil
}

// MediaTypeFor guesses the media type of a stored reference from its extension.
func MediaTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func normalizeMediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func extensionFor(filename, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if extPattern.MatchString(ext) {
		return ext
	}
	return canonicalExt[mediaType]
}
