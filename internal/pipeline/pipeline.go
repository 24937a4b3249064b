package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/PageInsights/internal/database"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/insights"
	"github.com/TobiSchelling/PageInsights/internal/llm"
	"github.com/TobiSchelling/PageInsights/internal/metrics"
	"github.com/TobiSchelling/PageInsights/internal/ranking"
	"github.com/TobiSchelling/PageInsights/internal/reconcile"
	"github.com/TobiSchelling/PageInsights/internal/report"
)

var (
	ErrNoInput       = errors.New("no CSV data provided")
	ErrUnknownAuthor = errors.New("author not found in dataset")
	ErrDatasetCount  = errors.New("wrong number of datasets for this mode")
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Err     error  `json:"-"`
}

// Input is one uploaded export.
type Input struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Analysis is everything computed from the inputs without text generation.
type Analysis struct {
	Datasets  []*dataset.Dataset          `json:"-"`
	Summaries []*report.Summary           `json:"summaries"`
	Periods   *reconcile.PeriodComparison `json:"periods,omitempty"`
	Sources   *reconcile.SourceComparison `json:"sources,omitempty"`
}

// Labels returns the dataset labels in input order.
func (a *Analysis) Labels() []string {
	labels := make([]string, len(a.Summaries))
	for i, s := range a.Summaries {
		labels[i] = describe(s.Label, i)
	}
	return labels
}

// Request asks for one or more narratives over the inputs.
type Request struct {
	Inputs   []Input
	Modes    []insights.Mode
	Author   string
	Provider llm.Kind
	Model    string
	DryRun   bool
}

// InsightResult is the outcome of one mode.
type InsightResult struct {
	Mode    insights.Mode     `json:"mode"`
	Insight *insights.Insight `json:"insight,omitempty"`
	RunID   string            `json:"run_id,omitempty"`
	Prompt  string            `json:"prompt,omitempty"`
	Err     error             `json:"-"`
}

// Result holds the results of a full pipeline run. Analysis is kept even
// when every generation fails.
type Result struct {
	Analysis *Analysis       `json:"analysis"`
	Insights []InsightResult `json:"insights"`
	Steps    []StepResult    `json:"steps"`
}

// ProviderFactory builds the provider for a kind.
type ProviderFactory func(kind llm.Kind) (llm.Provider, error)

// Options configures a Pipeline. History and Metrics are optional.
type Options struct {
	Report      report.Options
	Providers   ProviderFactory
	Default     llm.Kind
	Concurrency int
	History     *database.DB
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Pipeline orchestrates parse, aggregate, summarise and generate.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New creates a new pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Default == "" {
		opts.Default = llm.KindOllama
	}
	return &Pipeline{opts: opts, logger: logger}
}

// Analyze parses and aggregates the inputs. Two or more inputs also get a
// period comparison; exactly two also get a traffic source comparison.
func (p *Pipeline) Analyze(inputs []Input) (*Analysis, error) {
	if len(inputs) == 0 {
		return nil, stageErr(StageParse, ErrNoInput)
	}

	a := &Analysis{}
	for i, in := range inputs {
		ds, err := dataset.Parse(in.Text, in.Label)
		if err != nil {
			return nil, stageErr(StageParse, fmt.Errorf("%s: %w", describe(in.Label, i), err))
		}
		s := report.Build(ds, p.opts.Report)
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordDataset(s.Rows, s.SkippedNoise, s.SkippedBlank, s.ArticleCount)
		}
		p.logger.Debug("dataset aggregated",
			zap.String("label", ds.Label),
			zap.Int("rows", s.Rows),
			zap.Int("articles", s.ArticleCount),
			zap.Int("skipped_low_views", s.SkippedNoise),
			zap.Int("skipped_missing_title", s.SkippedBlank),
			zap.Int("ragged_rows", ds.Ragged),
		)
		a.Datasets = append(a.Datasets, ds)
		a.Summaries = append(a.Summaries, s)
	}

	if len(a.Datasets) >= 2 {
		periods, err := reconcile.ComparePeriods(a.Datasets)
		if err != nil {
			return nil, stageErr(StageAggregate, err)
		}
		a.Periods = periods
	}
	if len(a.Datasets) == 2 {
		sources, err := reconcile.CompareSources(a.Datasets, p.rankingOptions())
		if err != nil {
			return nil, stageErr(StageAggregate, err)
		}
		a.Sources = sources
	}
	return a, nil
}

// Context renders the statistics handed to the generator for a mode.
func (p *Pipeline) Context(a *Analysis, mode insights.Mode, author string) (string, error) {
	least, most := mode.Datasets()
	n := len(a.Summaries)
	if n < least || (most > 0 && n > most) {
		return "", fmt.Errorf("%w: %s needs %s, got %d", ErrDatasetCount, mode, countRange(least, most), n)
	}

	switch mode {
	case insights.ModeWriterFeedback:
		if strings.TrimSpace(author) == "" {
			return "", insights.ErrAuthorRequired
		}
		opts := p.opts.Report
		opts.FocusAuthor = author
		s := report.Build(a.Datasets[0], opts)
		if s.Focus == nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownAuthor, author)
		}
		return report.Render(s), nil
	case insights.ModeComparison:
		var b strings.Builder
		b.WriteString(report.RenderPeriods(a.Periods))
		for _, s := range a.Summaries {
			b.WriteString("\n")
			b.WriteString(report.Render(s))
		}
		return b.String(), nil
	case insights.ModeSources:
		return report.RenderSources(a.Sources), nil
	default:
		return report.Render(a.Summaries[0]), nil
	}
}

// Run executes the full pipeline. The returned error is non-nil when the
// inputs cannot be analyzed, or when every requested mode failed; in the
// latter case the Result still carries the Analysis.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &Result{}

	a, err := p.Analyze(req.Inputs)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Analyze", Err: err})
		return r, err
	}
	r.Analysis = a
	r.Steps = append(r.Steps, StepResult{Name: "Analyze", Summary: describeAnalysis(a)})

	if len(req.Modes) == 0 {
		return r, nil
	}

	// idx maps each generation request to its slot in r.Insights.
	var reqs []insights.Request
	var idx []int
	var failed []error
	for _, mode := range req.Modes {
		text, err := p.Context(a, mode, req.Author)
		if err != nil {
			err = stageErr(StageAggregate, err)
			r.Insights = append(r.Insights, InsightResult{Mode: mode, Err: err})
			failed = append(failed, err)
			continue
		}
		idx = append(idx, len(r.Insights))
		r.Insights = append(r.Insights, InsightResult{Mode: mode})
		reqs = append(reqs, insights.Request{Mode: mode, Context: text, Author: req.Author, Labels: a.Labels()})
	}

	if req.DryRun {
		for i, ir := range reqs {
			msgs, err := insights.Messages(ir)
			if err != nil {
				r.Insights[idx[i]].Err = stageErr(StageAggregate, err)
				failed = append(failed, r.Insights[idx[i]].Err)
				continue
			}
			r.Insights[idx[i]].Prompt = msgs[len(msgs)-1].Content
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Generate",
			Summary: fmt.Sprintf("[dry-run] would generate %d insights", len(reqs)),
		})
		return r, firstIfAll(r, failed)
	}

	if len(reqs) > 0 {
		failed = append(failed, p.generate(ctx, r, req, reqs, idx)...)
	}

	ok := 0
	for _, ir := range r.Insights {
		if ir.Err == nil {
			ok++
		}
	}
	step := StepResult{Name: "Generate", Summary: fmt.Sprintf("Generated %d of %d insights", ok, len(r.Insights))}
	if ok == 0 && len(failed) > 0 {
		step.Err = failed[0]
	}
	r.Steps = append(r.Steps, step)
	return r, firstIfAll(r, failed)
}

func (p *Pipeline) generate(ctx context.Context, r *Result, req Request, reqs []insights.Request, idx []int) []error {
	kind := req.Provider
	if kind == "" {
		kind = p.opts.Default
	}

	var provider llm.Provider
	if p.opts.Providers != nil {
		var err error
		provider, err = p.opts.Providers(kind)
		if err != nil {
			err = stageErr(StageGenerate, err)
			for _, i := range idx {
				r.Insights[i].Err = err
			}
			return []error{err}
		}
	}

	gen := insights.NewGenerator(provider, llm.Options{Model: req.Model}, p.opts.Concurrency)
	outcomes := gen.GenerateAll(ctx, reqs)

	var failed []error
	for i, out := range outcomes {
		res := &r.Insights[idx[i]]
		res.Insight = out.Insight
		if out.Err != nil {
			res.Err = stageErr(generationStage(out.Err), out.Err)
			failed = append(failed, res.Err)
			p.logger.Warn("insight generation failed",
				zap.String("mode", string(out.Request.Mode)),
				zap.String("provider", string(kind)),
				zap.Error(out.Err),
			)
		}
		if p.opts.Metrics != nil {
			p.opts.Metrics.RecordGeneration(string(kind), string(out.Request.Mode), out.Err == nil, out.Elapsed)
		}
		res.RunID = p.record(kind, out)
	}
	return failed
}

// record stores the outcome when history is enabled.
func (p *Pipeline) record(kind llm.Kind, out insights.Outcome) string {
	if p.opts.History == nil {
		return ""
	}
	run := &database.Run{
		Mode:       string(out.Request.Mode),
		Labels:     out.Request.Labels,
		Provider:   string(kind),
		Context:    out.Request.Context,
		Status:     database.StatusOK,
		DurationMS: out.Elapsed.Milliseconds(),
	}
	if out.Request.Author != "" {
		run.Author = &out.Request.Author
	}
	if ins := out.Insight; ins != nil {
		if ins.Model != "" {
			run.Model = &ins.Model
		}
		raw := ins.Raw
		run.RawOutput = &raw
		if out.Err == nil {
			md := ins.Markdown()
			run.Markdown = &md
		}
	}
	if out.Err != nil {
		msg := out.Err.Error()
		run.Status = database.StatusFailed
		run.Error = &msg
	}

	id, err := p.opts.History.InsertRun(run)
	if err != nil {
		p.logger.Error("storing insight run", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) rankingOptions() ranking.Options {
	return ranking.Options{
		TopN:        p.opts.Report.TopN,
		MinArticles: p.opts.Report.MinArticles,
		Popular:     p.opts.Report.Popular,
	}
}

func generationStage(err error) Stage {
	if errors.Is(err, insights.ErrDecode) {
		return StageDecode
	}
	if errors.Is(err, insights.ErrGenerate) {
		return StageGenerate
	}
	return StageAggregate
}

// firstIfAll returns the first failure when no mode succeeded.
func firstIfAll(r *Result, failed []error) error {
	if len(failed) == 0 || len(failed) < len(r.Insights) {
		return nil
	}
	return failed[0]
}

func describe(label string, i int) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf("dataset %d", i+1)
}

func describeAnalysis(a *Analysis) string {
	rows, articles := 0, 0
	for _, s := range a.Summaries {
		rows += s.Rows
		articles += s.ArticleCount
	}
	return fmt.Sprintf("Parsed %d datasets: %d rows, %d articles", len(a.Summaries), rows, articles)
}

func countRange(least, most int) string {
	switch {
	case least == most:
		return fmt.Sprintf("exactly %d datasets", least)
	case most == 0:
		return fmt.Sprintf("at least %d datasets", least)
	default:
		return fmt.Sprintf("%d to %d datasets", least, most)
	}
}
