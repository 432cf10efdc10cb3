// Package prompt turns a user's rough idea and wizard preferences into a
// detailed image-generation prompt.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"thumbnailer/internal/domain"
)

// Provider names accepted by PROMPT_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

const (
	// MaxTokens bounds the refined prompt length.
	MaxTokens = 500
	// Temperature used for every model-backed refiner.
	Temperature = 0.7
)

// ErrEmptyRefinement is returned when a model answers with no text.
var ErrEmptyRefinement = errors.New("prompt: model returned an empty refinement")

// RefineRequest carries everything a refiner needs.
type RefineRequest struct {
	OriginalPrompt    string
	ColorScheme       domain.ColorScheme
	TextOption        domain.TextOption
	CustomText        string
	Style             domain.Style
	TargetEmotion     string
	Locale            string
	HasReferenceImage bool
}

// RequestFrom builds a RefineRequest for a stored generation request.
func RequestFrom(req *domain.GenerationRequest) RefineRequest {
	return RefineRequest{
		OriginalPrompt:    req.OriginalPrompt,
		ColorScheme:       req.Customizations.ColorScheme,
		TextOption:        req.Customizations.TextOption,
		CustomText:        req.Customizations.CustomTextValue(),
		Style:             req.Customizations.Style,
		TargetEmotion:     req.Customizations.TargetEmotion,
		Locale:            req.Locale,
		HasReferenceImage: req.UploadedImagePath != nil,
	}
}

// Refiner produces the refined prompt. Implementations return an error
// rather than substituting a default answer.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (string, error)
	Name() string
}

// SystemPrompt instructs the model how to expand a thumbnail idea.
const SystemPrompt = `You are an expert at creating detailed prompts for AI image generation, specifically for YouTube thumbnails. Your task is to enhance a user's basic prompt into a comprehensive, detailed prompt that will generate an engaging YouTube thumbnail.

Consider these requirements:
- YouTube thumbnails are 1280x720 pixels
- They need to be eye-catching and clickable
- Text should be large and readable at thumbnail size
- Colors should be vibrant and attention-grabbing
- Composition should follow the rule of thirds
- Should convey the video's value proposition quickly

Transform the user's prompt by incorporating their style preferences and creating a detailed description that includes:
- Specific visual elements and composition
- Color palette and lighting
- Text placement and styling (if requested)
- Emotional tone and mood
- Technical specifications for optimal thumbnail performance

Respond with only the enhanced prompt, no additional commentary.`

// UserPrompt renders the per-request message sent after SystemPrompt.
func UserPrompt(req RefineRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Original prompt: %q\n\n", req.OriginalPrompt)
	sb.WriteString("User preferences:\n")
	fmt.Fprintf(sb, "- Color scheme: %s\n", req.ColorScheme)
	fmt.Fprintf(sb, "- Text inclusion: %s", req.TextOption)
	if req.TextOption == domain.TextOptionCustom && req.CustomText != "" {
		fmt.Fprintf(sb, " (Custom text: %q)", req.CustomText)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "- Style: %s\n", req.Style)
	fmt.Fprintf(sb, "- Target emotion: %s\n", req.TargetEmotion)
	if req.TextOption != domain.TextOptionNone {
		fmt.Fprintf(sb, "- Text language: %s\n", LanguageName(req.Locale))
	}
	sb.WriteString("\n")
	if req.HasReferenceImage {
		sb.WriteString("IMPORTANT: The user has uploaded a reference image that should be incorporated into the thumbnail design. ")
		sb.WriteString("The AI will receive both this prompt and the uploaded image, so make sure to mention how the uploaded image should be used or modified in the final thumbnail.\n\n")
		sb.WriteString("Please create a detailed, comprehensive prompt for generating a YouTube thumbnail that incorporates all these elements and references how to use the uploaded image.")
	} else {
		sb.WriteString("Please create a detailed, comprehensive prompt for generating a YouTube thumbnail that incorporates all these elements.")
	}
	return sb.String()
}

// LanguageName returns the English name of a locale, defaulting to English.
func LanguageName(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || tag == language.Und {
		tag = language.English
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return "English"
}

// cleanRefinement strips code fences and surrounding quotes models sometimes add.
func cleanRefinement(raw string) (string, error) {
	text := trimCodeFence(raw)
	text = strings.Trim(text, "\"“”")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyRefinement
	}
	return text, nil
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```text")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
