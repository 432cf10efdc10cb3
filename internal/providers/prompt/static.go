package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"thumbnailer/internal/domain"
)

var paletteDescriptions = map[domain.ColorScheme]string{
	domain.ColorSchemeVibrant:      "saturated complementary colors with high contrast",
	domain.ColorSchemeProfessional: "a restrained navy, white and slate palette",
	domain.ColorSchemeDark:         "deep shadows with a single glowing accent color",
	domain.ColorSchemeMinimal:      "a clean neutral background with one bold accent",
}

var styleDescriptions = map[domain.Style]string{
	domain.StyleEnergetic:    "dynamic diagonal composition, motion lines and an expressive close-up subject",
	domain.StyleProfessional: "balanced composition, crisp studio lighting and tidy alignment",
	domain.StyleCreative:     "playful surreal elements, layered cut-out shapes and bold framing",
}

// StaticRefiner expands prompts with a fixed template. It needs no network
// and is selected explicitly for offline development.
type StaticRefiner struct{}

func NewStaticRefiner() *StaticRefiner { return &StaticRefiner{} }

func (s *StaticRefiner) Name() string { return ProviderStatic }

func (s *StaticRefiner) Refine(ctx context.Context, req RefineRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := strings.TrimSpace(req.OriginalPrompt)
	if subject == "" {
		return "", ErrEmptyRefinement
	}
	title := cases.Title(localeTag(req.Locale)).String(subject)

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "YouTube thumbnail, 1280x720: %s. ", subject)
	fmt.Fprintf(sb, "Use %s. ", paletteDescriptions[req.ColorScheme])
	fmt.Fprintf(sb, "Style: %s, subject placed on a rule-of-thirds intersection. ", styleDescriptions[req.Style])
	if e := strings.TrimSpace(req.TargetEmotion); e != "" {
		fmt.Fprintf(sb, "The mood should evoke %s. ", strings.ToLower(e))
	}
	switch req.TextOption {
	case domain.TextOptionTitle:
		fmt.Fprintf(sb, "Large, bold, outlined %s headline reading %q, readable at small sizes. ", LanguageName(req.Locale), title)
	case domain.TextOptionCustom:
		if req.CustomText != "" {
			fmt.Fprintf(sb, "Large, bold, outlined text reading %q, readable at small sizes. ", req.CustomText)
		} else {
			fmt.Fprintf(sb, "Large, bold, outlined short %s caption, readable at small sizes. ", LanguageName(req.Locale))
		}
	default:
		sb.WriteString("No text in the image. ")
	}
	if req.HasReferenceImage {
		sb.WriteString("Incorporate the uploaded reference image as the main subject, keeping its likeness and enhancing lighting and contrast.")
	} else {
		sb.WriteString("High detail, sharp focus, eye-catching and clickable.")
	}
	return strings.TrimSpace(sb.String()), nil
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

var _ Refiner = (*StaticRefiner)(nil)
