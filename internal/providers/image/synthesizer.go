// Package image produces the final thumbnail from a refined prompt.
package image

import (
	"context"
	"errors"
)

// Provider names accepted by IMAGE_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderSynthetic = "synthetic"
)

// ErrEmptyImage is returned when a provider answers without image bytes.
var ErrEmptyImage = errors.New("image: provider returned no image data")

// ReferenceImage is the user's uploaded source image.
type ReferenceImage struct {
	Data []byte
	MIME string
}

// SynthesisRequest describes one thumbnail to render.
type SynthesisRequest struct {
	Prompt    string
	Reference *ReferenceImage
	RequestID string
}

// Image is a rendered thumbnail.
type Image struct {
	Data []byte
	MIME string
}

// Synthesizer is the contract implemented by all image providers.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*Image, error)
	Name() string
}
