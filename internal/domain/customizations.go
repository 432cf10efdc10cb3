package domain

import (
	"fmt"
	"strings"
)

// ColorScheme enumerates the palettes offered by the wizard.
type ColorScheme string

const (
	ColorSchemeVibrant      ColorScheme = "vibrant"
	ColorSchemeProfessional ColorScheme = "professional"
	ColorSchemeDark         ColorScheme = "dark"
	ColorSchemeMinimal      ColorScheme = "minimal"
)

// TextOption controls whether text is rendered onto the thumbnail.
type TextOption string

const (
	TextOptionTitle  TextOption = "yes-title"
	TextOptionCustom TextOption = "yes-custom"
	TextOptionNone   TextOption = "no"
)

// Style enumerates the visual styles offered by the wizard.
type Style string

const (
	StyleEnergetic    Style = "energetic"
	StyleProfessional Style = "professional"
	StyleCreative     Style = "creative"
)

var (
	allowedColorSchemes = map[ColorScheme]struct{}{
		ColorSchemeVibrant:      {},
		ColorSchemeProfessional: {},
		ColorSchemeDark:         {},
		ColorSchemeMinimal:      {},
	}
	allowedTextOptions = map[TextOption]struct{}{
		TextOptionTitle:  {},
		TextOptionCustom: {},
		TextOptionNone:   {},
	}
	allowedStyles = map[Style]struct{}{
		StyleEnergetic:    {},
		StyleProfessional: {},
		StyleCreative:     {},
	}
)

// Customizations are the stylistic preferences chosen in the wizard. They are
// validated once at creation and carried typed through every stage.
type Customizations struct {
	ColorScheme   ColorScheme `json:"colorScheme"`
	TextOption    TextOption  `json:"textOption"`
	CustomText    *string     `json:"customText,omitempty"`
	Style         Style       `json:"style"`
	TargetEmotion string      `json:"targetEmotion"`
}

// Normalize trims free text. Custom text is dropped unless the custom option
// is chosen, and a blank custom text is treated as absent.
func (c *Customizations) Normalize() {
	if c == nil {
		return
	}
	c.ColorScheme = ColorScheme(strings.ToLower(strings.TrimSpace(string(c.ColorScheme))))
	c.TextOption = TextOption(strings.ToLower(strings.TrimSpace(string(c.TextOption))))
	c.Style = Style(strings.ToLower(strings.TrimSpace(string(c.Style))))
	c.TargetEmotion = strings.TrimSpace(c.TargetEmotion)
	if c.TextOption != TextOptionCustom {
		c.CustomText = nil
		return
	}
	if c.CustomText != nil {
		trimmed := strings.TrimSpace(*c.CustomText)
		if trimmed == "" {
			c.CustomText = nil
			return
		}
		c.CustomText = &trimmed
	}
}

// Validate ensures the enum and shape constraints hold.
func (c Customizations) Validate() error {
	if _, ok := allowedColorSchemes[c.ColorScheme]; !ok {
		return fmt.Errorf("%w: colorScheme must be one of vibrant, professional, dark, minimal", ErrValidation)
	}
	if _, ok := allowedTextOptions[c.TextOption]; !ok {
		return fmt.Errorf("%w: textOption must be one of yes-title, yes-custom, no", ErrValidation)
	}
	if _, ok := allowedStyles[c.Style]; !ok {
		return fmt.Errorf("%w: style must be one of energetic, professional, creative", ErrValidation)
	}
	if c.TextOption != TextOptionCustom && c.CustomText != nil {
		return fmt.Errorf("%w: customText is only allowed when textOption is yes-custom", ErrValidation)
	}
	return nil
}

// CustomTextValue returns the custom text or an empty string.
func (c Customizations) CustomTextValue() string {
	if c.CustomText == nil {
		return ""
	}
	return *c.CustomText
}

// NormalizePrompt trims the original prompt and rejects a blank one.
func NormalizePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: originalPrompt is required", ErrValidation)
	}
	return prompt, nil
}
