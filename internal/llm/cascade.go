package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single model attempt when none is configured.
const DefaultTimeout = 120 * time.Second

// ErrAllModelsFailed wraps the per-model errors of an exhausted cascade.
var ErrAllModelsFailed = errors.New("all models failed")

// Cascade tries each model in order until one answers. Every attempt runs
// under its own timeout.
type Cascade struct {
	Provider    Provider
	Models      []string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Logger      *zap.Logger
}

func (c *Cascade) Name() string { return c.Provider.Name() }

func (c *Cascade) IsConfigured(ctx context.Context) bool { return c.Provider.IsConfigured(ctx) }

// Generate runs the cascade. Options.Model, when set, is tried first.
// Unset MaxTokens and Temperature take the cascade's defaults.
func (c *Cascade) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = c.MaxTokens
	}
	if opts.Temperature == nil && c.Temperature > 0 {
		t := c.Temperature
		opts.Temperature = &t
	}

	models := c.Models
	if opts.Model != "" {
		models = append([]string{opts.Model}, withoutModel(c.Models, opts.Model)...)
	}
	if len(models) == 0 {
		models = []string{""}
	}

	var errs []error
	for _, model := range models {
		attempt := opts
		attempt.Model = model

		start := time.Now()
		resp, err := c.generateOnce(ctx, timeout, messages, attempt)
		if err == nil {
			logger.Debug("generation succeeded",
				zap.String("provider", c.Provider.Name()),
				zap.String("model", model),
				zap.Duration("elapsed", time.Since(start)),
			)
			return resp, nil
		}

		logger.Warn("generation attempt failed",
			zap.String("provider", c.Provider.Name()),
			zap.String("model", model),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
		if errors.Is(err, ErrNotConfigured) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllModelsFailed, errors.Join(errs...))
}

func (c *Cascade) generateOnce(ctx context.Context, timeout time.Duration, messages []Message, opts Options) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Provider.Generate(ctx, messages, opts)
}

func withoutModel(models []string, skip string) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m != skip {
			out = append(out, m)
		}
	}
	return out
}
