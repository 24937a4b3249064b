package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server through its Go client.
type OllamaProvider struct {
	Model  string
	client *api.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &OllamaProvider{
		Model:  model,
		client: api.NewClient(u, http.DefaultClient),
	}, nil
}

func (o *OllamaProvider) Name() string { return string(KindOllama) }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := o.client.List(ctx)
	if err != nil {
		return false
	}
	base := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range list.Models {
		if strings.Contains(m.Name, base) {
			return true
		}
	}
	return false
}

// Generate sends a chat request to Ollama and returns the full reply.
func (o *OllamaProvider) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = o.Model
	}

	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	options := map[string]any{}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}

	req := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   new(bool),
		Options:  options,
	}
	if opts.JSONMode {
		req.Format = json.RawMessage(`"json"`)
	}

	var out strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return &Response{Content: strings.TrimSpace(out.String()), Model: model}, nil
}
