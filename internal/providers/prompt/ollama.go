package prompt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3.2"

type OllamaOptions struct {
	Host       string
	Model      string
	HTTPClient *http.Client
}

// OllamaRefiner refines prompts with a locally hosted model.
type OllamaRefiner struct {
	client *api.Client
	model  string
}

func NewOllamaRefiner(opts OllamaOptions) (*OllamaRefiner, error) {
	host := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(opts.Host), "/"), "/v1")
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaRefiner{client: api.NewClient(base, httpClient), model: model}, nil
}

func (o *OllamaRefiner) Name() string { return ProviderOllama }

func (o *OllamaRefiner) Refine(ctx context.Context, req RefineRequest) (string, error) {
	stream := false
	chat := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserPrompt(req)},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": Temperature,
			"num_predict": MaxTokens,
		},
	}
	var out strings.Builder
	err := o.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return cleanRefinement(out.String())
}

var _ Refiner = (*OllamaRefiner)(nil)
