package prompt

import (
	"context"
	"fmt"

	"thumbnailer/internal/providers/genai"
)

// TextGenerator is the part of genai.Client the Gemini refiner uses.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts genai.TextOptions) (string, error)
}

// GeminiRefiner refines prompts with a Gemini text model.
type GeminiRefiner struct {
	client TextGenerator
}

func NewGeminiRefiner(client TextGenerator) *GeminiRefiner {
	return &GeminiRefiner{client: client}
}

func (g *GeminiRefiner) Name() string { return ProviderGemini }

func (g *GeminiRefiner) Refine(ctx context.Context, req RefineRequest) (string, error) {
	text, err := g.client.GenerateText(ctx, UserPrompt(req), genai.TextOptions{
		System:          SystemPrompt,
		Temperature:     Temperature,
		MaxOutputTokens: MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini refine: %w", err)
	}
	return cleanRefinement(text)
}

var _ Refiner = (*GeminiRefiner)(nil)
