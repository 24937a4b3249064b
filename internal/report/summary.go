package report

import (
	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/ranking"
	"github.com/TobiSchelling/PageInsights/internal/reconcile"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// Options shapes a Summary.
type Options struct {
	TopN        int
	Popular     []string
	MinArticles int
	FocusAuthor string
}

func (o Options) ranking() ranking.Options {
	return ranking.Options{TopN: o.TopN, MinArticles: o.MinArticles, Popular: o.Popular}
}

// Summary is every derived statistic for one dataset. Fields carries the
// columns the export actually had; renderers must not report anything else.
type Summary struct {
	Label        string          `json:"label"`
	Fields       []dataset.Field `json:"fields"`
	Rows         int             `json:"rows"`
	SkippedNoise int             `json:"skipped_noise"`
	SkippedBlank int             `json:"skipped_missing_title"`
	ArticleCount int             `json:"article_count"`
	TotalViews   int             `json:"total_views"`
	TotalUniques int             `json:"total_uniques,omitempty"`

	Writers          []ranking.WriterRanking `json:"writers,omitempty"`
	EfficientWriters []ranking.WriterRanking `json:"efficient_writers,omitempty"`
	Authors          []rollup.AuthorStats    `json:"-"`
	Sections         *ranking.Result         `json:"sections,omitempty"`
	RatioSections    *ranking.Result         `json:"ratio_sections,omitempty"`
	Referrers        *ranking.Result         `json:"referrers,omitempty"`
	TopArticles      []aggregate.Article     `json:"top_articles"`
	Daily            []reconcile.DayBucket   `json:"daily,omitempty"`
	Focus            *rollup.AuthorStats     `json:"focus,omitempty"`
	FocusDaily       []reconcile.DayBucket   `json:"focus_daily,omitempty"`
}

// Has reports whether the export had the column.
func (s *Summary) Has(f dataset.Field) bool {
	for _, name := range s.Fields {
		if name == f {
			return true
		}
	}
	return false
}

// Build derives a Summary from a dataset.
func Build(ds *dataset.Dataset, opts Options) *Summary {
	res := aggregate.Articles(ds)
	total := res.TotalViews()

	s := &Summary{
		Label:        ds.Label,
		Fields:       ds.FieldNames,
		Rows:         res.Rows,
		SkippedNoise: res.Noise,
		SkippedBlank: res.MissingTitle,
		ArticleCount: len(res.Articles),
		TotalViews:   total,
	}
	if ds.Has(dataset.FieldPageUniques) {
		for _, a := range res.Articles {
			if a.Uniques != nil {
				s.TotalUniques += *a.Uniques
			}
		}
	}

	top := append([]aggregate.Article(nil), res.Articles...)
	rollup.SortArticles(top)
	if opts.TopN > 0 && len(top) > opts.TopN {
		top = top[:opts.TopN]
	}
	s.TopArticles = top

	if ds.Has(dataset.FieldAuthor) {
		s.Authors = rollup.Authors(res.Articles, total)
		s.Writers = ranking.Writers(s.Authors, total, opts.TopN)
		s.EfficientWriters = ranking.WritersByEfficiency(s.Authors, total, opts.TopN)
	}
	if ds.Has(dataset.FieldSection) {
		sections := rollup.Sections(res.Articles)
		byTotal := ranking.ByTotal(sections, opts.ranking())
		byRatio := ranking.ByRatio(sections, opts.ranking())
		s.Sections, s.RatioSections = &byTotal, &byRatio
	}
	if ds.Has(dataset.FieldReferrer) {
		refs := ranking.ByTotal(rollup.Referrers(res.Articles), ranking.Options{TopN: opts.TopN})
		s.Referrers = &refs
	}
	if ds.Has(dataset.FieldPublishDate) {
		s.Daily = reconcile.DailyTraffic(res.Articles)
	}

	if opts.FocusAuthor != "" {
		for i := range s.Authors {
			if s.Authors[i].Name == opts.FocusAuthor {
				focus := s.Authors[i]
				s.Focus = &focus
				break
			}
		}
		contrib := aggregate.ByAuthor(aggregate.Contributions(ds).Articles, opts.FocusAuthor)
		if ds.Has(dataset.FieldPublishDate) {
			s.FocusDaily = reconcile.DailyTraffic(contrib)
		}
	}
	return s
}
