// Package wizard drives the thumbnail API the way the browser wizard does:
// upload, create, refine, generate, then fetch the result.
package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"thumbnailer/internal/domain"
	"thumbnailer/internal/upload"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// CreateRequest is the body of POST /api/thumbnail-requests.
type CreateRequest struct {
	OriginalPrompt    string                `json:"originalPrompt"`
	Customizations    domain.Customizations `json:"customizations"`
	UploadedImagePath *string               `json:"uploadedImagePath,omitempty"`
}

// Client calls the thumbnail HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	locale     string
}

// NewClient builds a client for baseURL. A nil httpClient gets a default
// with a timeout long enough for image generation.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// WithLocale sends X-Locale on every call.
func (c *Client) WithLocale(locale string) *Client {
	out := *c
	out.locale = strings.TrimSpace(locale)
	return &out
}

// Upload posts the image in the "image" multipart field.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (upload.Result, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	hdr.Set("Content-Type", upload.MediaTypeFor(filename))
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return upload.Result{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return upload.Result{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return upload.Result{}, fmt.Errorf("build upload: %w", err)
	}

	var out upload.Result
	err = c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), buf, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (*domain.GenerationRequest, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var out domain.GenerationRequest
	if err := c.do(ctx, http.MethodPost, "/api/thumbnail-requests", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refine(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return c.stage(ctx, id, "refine")
}

func (c *Client) Generate(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return c.stage(ctx, id, "generate")
}

func (c *Client) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	var out domain.GenerationRequest
	if err := c.do(ctx, http.MethodGet, "/api/thumbnail-requests/"+url.PathEscape(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches a stored image through the attachment endpoint.
func (c *Client) Download(ctx context.Context, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/api/download/"+url.PathEscape(filename), "", nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) stage(ctx context.Context, id, stage string) (*domain.GenerationRequest, error) {
	var out domain.GenerationRequest
	path := fmt.Sprintf("/api/thumbnail-requests/%s/%s", url.PathEscape(id), stage)
	if err := c.do(ctx, http.MethodPost, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends the request and decodes a JSON body into out, or copies the raw
// body when out is a *bytes.Buffer.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.locale != "" {
		req.Header.Set("X-Locale", c.locale)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if buf, ok := out.(*bytes.Buffer); ok {
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
