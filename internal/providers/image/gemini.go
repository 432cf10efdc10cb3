package image

import (
	"context"
	"fmt"

	"thumbnailer/internal/providers/genai"
)

// ImageGenerator is the part of genai.Client the Gemini synthesizer uses.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error)
}

// GeminiSynthesizer renders thumbnails with a Gemini image model.
type GeminiSynthesizer struct {
	client ImageGenerator
}

func NewGeminiSynthesizer(client ImageGenerator) *GeminiSynthesizer {
	return &GeminiSynthesizer{client: client}
}

func (g *GeminiSynthesizer) Name() string { return ProviderGemini }

func (g *GeminiSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Image, error) {
	genReq := genai.ImageRequest{Prompt: req.Prompt, RequestID: req.RequestID}
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		genReq.Reference = &genai.InlineImage{Data: req.Reference.Data, MIMEType: req.Reference.MIME}
	}
	res, err := g.client.GenerateImage(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("gemini synthesize: %w", err)
	}
	if res == nil || len(res.Data) == 0 {
		return nil, ErrEmptyImage
	}
	return &Image{Data: res.Data, MIME: res.MIMEType}, nil
}

var _ Synthesizer = (*GeminiSynthesizer)(nil)
