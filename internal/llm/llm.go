package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind selects a text-generation backend.
type Kind string

const (
	KindOllama    Kind = "ollama"
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
)

// ParseKind maps a config or request value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOllama, KindOpenAI, KindAnthropic:
		return k, nil
	case "":
		return KindOllama, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", s)
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build messages.
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Options tunes a single generation. Zero values fall back to the provider's defaults.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
}

// Response is the generated text.
type Response struct {
	Content string
	Model   string
}

// Provider is the interface for text-generation backends.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
	IsConfigured(ctx context.Context) bool
}

// ErrNotConfigured is returned when a provider lacks credentials.
var ErrNotConfigured = errors.New("provider not configured")

// Settings selects and configures a provider. It is passed explicitly to
// every caller; there is no process-wide current provider.
type Settings struct {
	Kind           Kind
	Model          string
	FallbackModels []string
	BaseURL        string
	APIKeyEnv      string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
}

// DefaultModel returns the model used when Settings.Model is empty.
func DefaultModel(k Kind) string {
	switch k {
	case KindOpenAI:
		return "gpt-4o-mini"
	case KindAnthropic:
		return "claude-3-5-sonnet-20241022"
	default:
		return "qwen2.5:7b"
	}
}

// CreateProvider builds the provider named by s, wrapped in a Cascade over
// its configured model and fallbacks.
func CreateProvider(s Settings, logger *zap.Logger) (*Cascade, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := s.Model
	if model == "" {
		model = DefaultModel(s.Kind)
	}

	var p Provider
	switch s.Kind {
	case KindOllama, "":
		op, err := NewOllamaProvider(model, s.BaseURL)
		if err != nil {
			return nil, err
		}
		p = op
	case KindOpenAI:
		p = NewOpenAIProvider(model, s.BaseURL, os.Getenv(envOr(s.APIKeyEnv, "OPENAI_API_KEY")))
	case KindAnthropic:
		p = NewAnthropicProvider(model, s.BaseURL, os.Getenv(envOr(s.APIKeyEnv, "ANTHROPIC_API_KEY")))
	default:
		return nil, fmt.Errorf("unknown provider: %s", s.Kind)
	}

	models := append([]string{model}, s.FallbackModels...)
	logger.Info("text generation provider selected",
		zap.String("provider", p.Name()),
		zap.Strings("models", models),
	)
	return &Cascade{
		Provider:    p,
		Models:      models,
		Timeout:     s.Timeout,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		Logger:      logger,
	}, nil
}

func envOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
