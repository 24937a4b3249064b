package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// UnknownRange labels a period whose articles carry no usable dates.
const UnknownRange = "Unknown"

var (
	// ErrTooFewDatasets is returned when a comparison gets fewer than two datasets.
	ErrTooFewDatasets = errors.New("comparison needs at least two datasets")
	// ErrDatasetCount is returned when an operation needs an exact number of datasets.
	ErrDatasetCount = errors.New("wrong number of datasets")
)

// PeriodSummary is one period's headline numbers.
type PeriodSummary struct {
	Label           string    `json:"label"`
	DateRange       string    `json:"date_range"`
	Start           time.Time `json:"-"`
	End             time.Time `json:"-"`
	ArticleCount    int       `json:"article_count"`
	TotalViews      int       `json:"total_views"`
	AvgViewsPerPost float64   `json:"avg_views_per_post"`
}

// Delta is the change of one metric between consecutive periods.
type Delta struct {
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// PeriodDelta compares a period with the one before it.
type PeriodDelta struct {
	From            string `json:"from"`
	To              string `json:"to"`
	ArticleCount    Delta  `json:"article_count"`
	TotalViews      Delta  `json:"total_views"`
	AvgViewsPerPost Delta  `json:"avg_views_per_post"`
}

// PeriodComparison holds the periods in chronological order and the deltas
// between neighbours.
type PeriodComparison struct {
	Periods []PeriodSummary `json:"periods"`
	Deltas  []PeriodDelta   `json:"deltas"`
}

// Summarize computes a period's headline numbers from its articles.
func Summarize(label string, articles []aggregate.Article) PeriodSummary {
	p := PeriodSummary{Label: label, DateRange: UnknownRange}
	for _, a := range articles {
		p.TotalViews += a.Views
		t, ok := dataset.ParseDate(a.PublishDate)
		if !ok {
			continue
		}
		if p.Start.IsZero() || t.Before(p.Start) {
			p.Start = t
		}
		if p.End.IsZero() || t.After(p.End) {
			p.End = t
		}
	}
	p.ArticleCount = len(articles)
	p.AvgViewsPerPost = rollup.SafeDiv(float64(p.TotalViews), float64(p.ArticleCount))
	if !p.Start.IsZero() {
		p.DateRange = fmt.Sprintf("%s to %s", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
	}
	return p
}

// ComparePeriods aggregates each dataset and computes deltas between
// chronologically ordered periods. Periods with an unknown range keep their
// input position; only dated periods are reordered among themselves.
func ComparePeriods(datasets []*dataset.Dataset) (*PeriodComparison, error) {
	if len(datasets) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewDatasets, len(datasets))
	}

	periods := make([]PeriodSummary, len(datasets))
	for i, ds := range datasets {
		label := ds.Label
		if label == "" {
			label = fmt.Sprintf("Period %d", i+1)
		}
		periods[i] = Summarize(label, aggregate.Articles(ds).Articles)
	}
	SortPeriods(periods)

	cmp := &PeriodComparison{Periods: periods}
	for i := 1; i < len(periods); i++ {
		prev, cur := periods[i-1], periods[i]
		cmp.Deltas = append(cmp.Deltas, PeriodDelta{
			From:            prev.Label,
			To:              cur.Label,
			ArticleCount:    delta(float64(prev.ArticleCount), float64(cur.ArticleCount)),
			TotalViews:      delta(float64(prev.TotalViews), float64(cur.TotalViews)),
			AvgViewsPerPost: delta(prev.AvgViewsPerPost, cur.AvgViewsPerPost),
		})
	}
	return cmp, nil
}

// SortPeriods orders dated periods by start date in place, leaving undated
// periods in their slots.
func SortPeriods(periods []PeriodSummary) {
	var slots []int
	var dated []PeriodSummary
	for i, p := range periods {
		if p.DateRange != UnknownRange {
			slots = append(slots, i)
			dated = append(dated, p)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].Start.Before(dated[j].Start) })
	for k, i := range slots {
		periods[i] = dated[k]
	}
}

func delta(prev, cur float64) Delta {
	change := cur - prev
	return Delta{Change: change, ChangePercent: rollup.SafeDiv(change, prev) * 100}
}
