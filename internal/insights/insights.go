package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/PageInsights/internal/llm"
)

var (
	ErrUnknownMode    = errors.New("unknown insight mode")
	ErrAuthorRequired = errors.New("author is required for this mode")
	ErrNoProvider     = errors.New("no text generation provider available")

	// ErrGenerate and ErrDecode label which side of the boundary failed.
	ErrGenerate = errors.New("text generation failed")
	ErrDecode   = errors.New("could not decode generated text")
)

// defaultMaxTokens caps a reply when the caller sets no limit.
const defaultMaxTokens = 1500

// Request is one narrative to generate. Context carries the rendered
// statistics blocks, never raw CSV.
type Request struct {
	Mode    Mode
	Context string
	Author  string
	Labels  []string
}

// Item is one point of a narrative section.
type Item struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Metric string `json:"metric,omitempty"`
}

// Section is a named list of items, such as "strengths".
type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Insight is a decoded narrative.
type Insight struct {
	Mode     Mode      `json:"mode"`
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
	Model    string    `json:"model,omitempty"`
	Raw      string    `json:"-"`
}

// Generator turns rendered statistics into narratives.
type Generator struct {
	provider    llm.Provider
	opts        llm.Options
	concurrency int
}

// NewGenerator creates a generator. opts applies to every call; a zero
// MaxTokens falls back to a mode-independent default.
func NewGenerator(provider llm.Provider, opts llm.Options, concurrency int) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	opts.JSONMode = true
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Generator{provider: provider, opts: opts, concurrency: concurrency}
}

// Messages builds the chat turns for a request.
func Messages(req Request) ([]llm.Message, error) {
	if _, ok := templates[req.Mode]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	if req.Mode.NeedsAuthor() && strings.TrimSpace(req.Author) == "" {
		return nil, ErrAuthorRequired
	}

	var b strings.Builder
	if len(req.Labels) > 0 {
		fmt.Fprintf(&b, "Datasets: %s\n\n", strings.Join(req.Labels, ", "))
	}
	b.WriteString("Statistics:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\n")
	b.WriteString(req.Mode.instructions(req.Author))

	return []llm.Message{llm.System(systemPrompt), llm.User(b.String())}, nil
}

// Generate produces one narrative. Failures wrap ErrGenerate or ErrDecode;
// a decode failure still returns the raw reply on the Insight.
func (g *Generator) Generate(ctx context.Context, req Request) (*Insight, error) {
	messages, err := Messages(req)
	if err != nil {
		return nil, err
	}
	if g.provider == nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, ErrNoProvider)
	}

	resp, err := g.provider.Generate(ctx, messages, g.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	ins, err := Decode(req.Mode, resp.Content)
	ins.Model = resp.Model
	return ins, err
}

// Decode parses a reply for the given mode, repairing damaged JSON first.
// The returned Insight always carries Raw.
func Decode(mode Mode, text string) (*Insight, error) {
	ins := &Insight{Mode: mode, Raw: text}

	var fields map[string]json.RawMessage
	if err := llm.DecodeJSON(text, &fields); err != nil {
		return ins, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	unquote(fields["headline"], &ins.Headline)
	unquote(fields["summary"], &ins.Summary)

	for _, key := range mode.Sections() {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		sec := Section{Name: key}
		if err := json.Unmarshal(raw, &sec.Items); err != nil {
			// Some models answer with a plain list of strings.
			var plain []string
			if json.Unmarshal(raw, &plain) != nil {
				continue
			}
			sec.Items = nil
			for _, p := range plain {
				sec.Items = append(sec.Items, Item{Detail: p})
			}
		}
		ins.Sections = append(ins.Sections, sec)
	}

	if ins.Headline == "" && ins.Summary == "" && len(ins.Sections) == 0 {
		return ins, fmt.Errorf("%w: reply has none of the expected fields", ErrDecode)
	}
	return ins, nil
}

func unquote(raw json.RawMessage, dst *string) {
	if len(raw) > 0 {
		json.Unmarshal(raw, dst)
	}
}

// Outcome is the result of one request in a batch.
type Outcome struct {
	Request Request
	Insight *Insight
	Err     error
	Elapsed time.Duration
}

// GenerateAll runs several requests concurrently. One failing request does
// not cancel the others; outcomes keep the request order.
func (g *Generator) GenerateAll(ctx context.Context, reqs []Request) []Outcome {
	out := make([]Outcome, len(reqs))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, req := range reqs {
		eg.Go(func() error {
			start := time.Now()
			ins, err := g.Generate(ctx, req)
			out[i] = Outcome{Request: req, Insight: ins, Err: err, Elapsed: time.Since(start)}
			return nil
		})
	}
	eg.Wait()
	return out
}

// Markdown renders the insight for display and storage.
func (ins *Insight) Markdown() string {
	var b strings.Builder
	title := ins.Mode.Title()
	if title == "" {
		title = string(ins.Mode)
	}
	fmt.Fprintf(&b, "## %s\n\n", title)
	if ins.Headline != "" {
		fmt.Fprintf(&b, "**%s**\n\n", ins.Headline)
	}
	if ins.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", ins.Summary)
	}
	for _, sec := range ins.Sections {
		fmt.Fprintf(&b, "### %s\n\n", sectionTitle(sec.Name))
		for _, it := range sec.Items {
			switch {
			case it.Title != "" && it.Detail != "":
				fmt.Fprintf(&b, "- **%s**: %s", it.Title, it.Detail)
			case it.Title != "":
				fmt.Fprintf(&b, "- **%s**", it.Title)
			default:
				fmt.Fprintf(&b, "- %s", it.Detail)
			}
			if it.Metric != "" {
				fmt.Fprintf(&b, " (%s)", it.Metric)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sectionTitle(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}
