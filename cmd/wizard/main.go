package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/infra"
	"thumbnailer/internal/wizard"
)

func main() {
	var (
		imageFlag      string
		promptFlag     string
		colorFlag      string
		textFlag       string
		customTextFlag string
		styleFlag      string
		emotionFlag    string
		outFlag        string
		apiFlag        string
		localeFlag     string
	)
	flag.StringVar(&imageFlag, "image", "", "optional source image (jpeg, png or webp, max 10MB)")
	flag.StringVar(&promptFlag, "prompt", "", "what the video is about")
	flag.StringVar(&colorFlag, "color", string(domain.ColorSchemeVibrant), "color scheme: vibrant, professional, dark, minimal")
	flag.StringVar(&textFlag, "text", string(domain.TextOptionTitle), "text option: yes-title, yes-custom, no")
	flag.StringVar(&customTextFlag, "custom-text", "", "overlay text when -text=yes-custom")
	flag.StringVar(&styleFlag, "style", string(domain.StyleEnergetic), "style: energetic, professional, creative")
	flag.StringVar(&emotionFlag, "emotion", "curiosity", "emotion the thumbnail should trigger")
	flag.StringVar(&outFlag, "out", "", "where to write the thumbnail (default thumbnail_<id>.png)")
	flag.StringVar(&apiFlag, "api", "", "API base URL (falls back to THUMBNAILER_API_URL, then http://localhost:5000)")
	flag.StringVar(&localeFlag, "locale", "", "typography language sent as X-Locale")
	flag.Parse()

	_ = godotenv.Load()

	if strings.TrimSpace(promptFlag) == "" {
		exitWithError(errors.New("-prompt is required"))
	}
	baseURL := firstNonEmpty(apiFlag, os.Getenv("THUMBNAILER_API_URL"), "http://localhost:5000")

	in := wizard.Input{
		ImagePath: imageFlag,
		Prompt:    promptFlag,
		Customizations: domain.Customizations{
			ColorScheme:   domain.ColorScheme(colorFlag),
			TextOption:    domain.TextOption(textFlag),
			Style:         domain.Style(styleFlag),
			TargetEmotion: emotionFlag,
		},
	}
	if customTextFlag != "" {
		in.Customizations.CustomText = &customTextFlag
	}
	in.Customizations.Normalize()
	if err := in.Customizations.Validate(); err != nil {
		exitWithError(err)
	}

	logger := infra.NewLogger("development").With().Str("cmd", "wizard").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := wizard.NewClient(baseURL, nil).WithLocale(localeFlag)
	res, err := wizard.NewDriver(client).Run(ctx, in, func(s wizard.Step) {
		fmt.Printf("[%3d%%] %s\n", s.Progress, s.Name)
		if s.Name == wizard.StepGenerating && s.RefinedPrompt != "" {
			fmt.Printf("refined prompt:\n%s\n\n", s.RefinedPrompt)
		}
	})
	if err != nil {
		var stageErr *wizard.StageError
		if errors.As(err, &stageErr) {
			logger.Debug().Err(stageErr.Err).Str("step", stageErr.Step).Msg("run failed")
		}
		exitWithError(err)
	}

	out := firstNonEmpty(outFlag, fmt.Sprintf("thumbnail_%s.png", res.Request.ID))
	if err := os.WriteFile(out, res.Image, 0o644); err != nil {
		exitWithError(fmt.Errorf("write %s: %w", out, err))
	}
	fmt.Printf("saved %s (%d bytes)\n", out, len(res.Image))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
