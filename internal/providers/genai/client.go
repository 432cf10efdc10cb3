// Package genai is a thin client for the Gemini generateContent REST API.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultImageModel  = "gemini-2.5-flash-image-preview"
	DefaultVisionModel = "gemini-2.5-pro"
)

// ErrNoImage is returned when a generation response carries no inline image.
var ErrNoImage = errors.New("genai: no image data found in response")

// ErrEmptyResponse is returned when a text response has no text parts.
var ErrEmptyResponse = errors.New("genai: empty response")

const analyzeInstruction = "Analyze this image that will be used as source material for a YouTube thumbnail. " +
	"Describe the key visual elements, composition, colors, and subject matter that could be enhanced or incorporated into a thumbnail design."

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	ImageModel  string
	VisionModel string
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client issues generateContent calls. It never substitutes placeholder
// output: every failure is returned to the caller.
type Client struct {
	apiKey      string
	baseURL     string
	textModel   string
	imageModel  string
	visionModel string
	httpClient  *http.Client
	logger      zerolog.Logger
}

// InlineImage is raw image bytes with their media type.
type InlineImage struct {
	Data     []byte
	MIMEType string
}

// ImageRequest describes one image generation call.
type ImageRequest struct {
	Prompt    string
	Reference *InlineImage
	RequestID string
}

// ImageResult is the first image part of a generation response plus any
// commentary text the model returned alongside it.
type ImageResult struct {
	Data     []byte
	MIMEType string
	Text     string
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("genai: api key is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "genai").Logger()
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     firstNonEmpty(strings.TrimRight(opts.BaseURL, "/"), DefaultBaseURL),
		textModel:   firstNonEmpty(opts.TextModel, DefaultTextModel),
		imageModel:  firstNonEmpty(opts.ImageModel, DefaultImageModel),
		visionModel: firstNonEmpty(opts.VisionModel, DefaultVisionModel),
		httpClient:  client,
		logger:      logger,
	}, nil
}

// ImageModel returns the model used by GenerateImage.
func (c *Client) ImageModel() string { return c.imageModel }

// TextModel returns the model used by GenerateText.
func (c *Client) TextModel() string { return c.textModel }

// GenerateImage sends the prompt (and the reference image when present) and
// returns the first inline image of the first candidate.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	parts := []part{{Text: req.Prompt}}
	if req.Reference != nil && len(req.Reference.Data) > 0 {
		parts = append(parts, inlinePart(*req.Reference))
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	var resp generateContentResponse
	if err := c.generateContent(ctx, c.imageModel, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, blockedOr(resp, errors.New("genai: no image generated"))
	}

	result := &ImageResult{}
	var texts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("genai: decode inline data: %w", err)
			}
			result.Data = data
			result.MIMEType = firstNonEmpty(p.InlineData.MimeType, "image/png")
			break
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	result.Text = strings.Join(texts, "\n")
	if len(result.Data) == 0 {
		return nil, ErrNoImage
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.imageModel).
		Bool("reference", req.Reference != nil).
		Int("bytes", len(result.Data)).
		Msg("image generated")
	return result, nil
}

// AnalyzeImage asks the vision model to describe an uploaded source image.
func (c *Client) AnalyzeImage(ctx context.Context, img InlineImage) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.New("genai: image data is required")
	}
	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{inlinePart(img), {Text: analyzeInstruction}},
		}},
	}
	var resp generateContentResponse
	if err := c.generateContent(ctx, c.visionModel, payload, &resp); err != nil {
		return "", err
	}
	return responseText(resp)
}

// TextOptions tunes a GenerateText call.
type TextOptions struct {
	System          string
	Temperature     float64
	MaxOutputTokens int
}

// GenerateText runs a single-turn text prompt against the text model.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts TextOptions) (string, error) {
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			CandidateCount:  1,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	if opts.Temperature > 0 {
		t := opts.Temperature
		payload.GenerationConfig.Temperature = &t
	}
	if opts.System != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: opts.System}}}
	}
	var resp generateContentResponse
	if err := c.generateContent(ctx, c.textModel, payload, &resp); err != nil {
		return "", err
	}
	return responseText(resp)
}

func (c *Client) generateContent(ctx context.Context, model string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("genai: invoke %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr errorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("genai: %s status %d: %s", model, resp.StatusCode, apiErr.Error.Message)
		}
		if msg := strings.TrimSpace(string(data)); msg != "" {
			return fmt.Errorf("genai: %s status %d: %s", model, resp.StatusCode, msg)
		}
		return fmt.Errorf("genai: %s status %d", model, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	c.logger.Debug().Str("model", model).Dur("took", time.Since(start)).Msg("generateContent")
	return nil
}

func inlinePart(img InlineImage) part {
	return part{InlineData: &inlineData{
		MimeType: firstNonEmpty(img.MIMEType, "image/jpeg"),
		Data:     base64.StdEncoding.EncodeToString(img.Data),
	}}
}

func responseText(resp generateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", blockedOr(resp, ErrEmptyResponse)
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func blockedOr(resp generateContentResponse, fallback error) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("genai: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
