package rollup

import (
	"sort"
	"strconv"
	"time"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
)

// Ranked is a name with the views attributed to it.
type Ranked struct {
	Name  string `json:"name"`
	Views int    `json:"views"`
}

// AuthorStats is the rollup of one author's articles.
type AuthorStats struct {
	Name                 string              `json:"name"`
	Articles             []aggregate.Article `json:"articles"`
	TotalViews           int                 `json:"total_views"`
	TotalUniques         int                 `json:"total_uniques"`
	TotalQualityViews    int                 `json:"total_quality_views"`
	AverageViews         float64             `json:"average_views"`
	BestArticle          *aggregate.Article  `json:"best_article,omitempty"`
	WorstArticle         *aggregate.Article  `json:"worst_article,omitempty"`
	ArticlesAboveAverage int                 `json:"articles_above_average"`
	ArticlesBelowAverage int                 `json:"articles_below_average"`
	TopSections          []Ranked            `json:"top_sections"`
	TopReferrers         []Ranked            `json:"top_referrers"`
	EarliestDate         string              `json:"earliest_date,omitempty"`
	LatestDate           string              `json:"latest_date,omitempty"`
	// PercentOfTotal is the author's share of the whole dataset's views.
	PercentOfTotal float64 `json:"percent_of_total"`
}

// GroupStats is the rollup of a section or referrer.
type GroupStats struct {
	Name         string `json:"name"`
	TotalViews   int    `json:"total_views"`
	ArticleCount int    `json:"article_count"`
	// Ratio is TotalViews per distinct article, 0 for an empty group.
	Ratio float64 `json:"ratio"`
	// PercentOfAttributed is the group's share of the views attributed to
	// any group of the same kind. An article in two sections is attributed
	// twice, so this is not a share of the whole dataset.
	PercentOfAttributed float64 `json:"percent_of_attributed"`
}

// SafeDiv divides, returning 0 for a zero denominator.
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Percent is part as a percentage of whole, 0 when whole is 0.
func Percent(part, whole int) float64 {
	return SafeDiv(float64(part), float64(whole)) * 100
}

// SortArticles orders articles best first: views descending, and on equal
// views the earlier publish date ranks lower. Undated articles rank below
// dated ones with the same views; the title settles what remains.
func SortArticles(articles []aggregate.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		a, b := articles[i], articles[j]
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		ta, okA := dataset.ParseDate(a.PublishDate)
		tb, okB := dataset.ParseDate(b.PublishDate)
		if okA != okB {
			return okA
		}
		if okA && !ta.Equal(tb) {
			return ta.After(tb)
		}
		return a.DisplayTitle() < b.DisplayTitle()
	})
}

// Authors groups articles by author. total is the whole dataset's views and
// is the base for PercentOfTotal. Authors are ordered by total views
// descending, then name.
func Authors(articles []aggregate.Article, total int) []AuthorStats {
	groups := aggregate.GroupBy(articles,
		func(_ int, a aggregate.Article) (string, bool) { return a.Author, true },
		func(a aggregate.Article) []aggregate.Article { return []aggregate.Article{a} },
		func(acc *[]aggregate.Article, a aggregate.Article) { *acc = append(*acc, a) },
	)

	stats := make([]AuthorStats, 0, len(groups))
	for _, g := range groups {
		stats = append(stats, authorStats(g.Key, g.Value, total))
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].TotalViews != stats[j].TotalViews {
			return stats[i].TotalViews > stats[j].TotalViews
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

func authorStats(name string, articles []aggregate.Article, total int) AuthorStats {
	sorted := append([]aggregate.Article(nil), articles...)
	SortArticles(sorted)

	s := AuthorStats{Name: name, Articles: sorted}
	sections := make(map[string]int)
	referrers := make(map[string]int)
	var earliest, latest time.Time
	for _, a := range sorted {
		s.TotalViews += a.Views
		if a.Uniques != nil {
			s.TotalUniques += *a.Uniques
		}
		if a.QualityViews != nil {
			s.TotalQualityViews += *a.QualityViews
		}
		for _, sec := range a.Sections {
			sections[sec] += a.Views
		}
		for _, ref := range a.Referrers {
			referrers[ref] += a.Views
		}
		if t, ok := dataset.ParseDate(a.PublishDate); ok {
			if earliest.IsZero() || t.Before(earliest) {
				earliest = t
				s.EarliestDate = a.PublishDate
			}
			if latest.IsZero() || t.After(latest) {
				latest = t
				s.LatestDate = a.PublishDate
			}
		}
	}

	s.AverageViews = SafeDiv(float64(s.TotalViews), float64(len(sorted)))
	for _, a := range sorted {
		switch v := float64(a.Views); {
		case v > s.AverageViews:
			s.ArticlesAboveAverage++
		case v < s.AverageViews:
			s.ArticlesBelowAverage++
		}
	}
	if len(sorted) > 0 {
		best, worst := sorted[0], sorted[len(sorted)-1]
		s.BestArticle = &best
		s.WorstArticle = &worst
	}
	s.TopSections = rankMap(sections)
	s.TopReferrers = rankMap(referrers)
	s.PercentOfTotal = Percent(s.TotalViews, total)
	return s
}

// QualityRate is the author's quality views as a share of views.
func (s AuthorStats) QualityRate() float64 {
	return Percent(s.TotalQualityViews, s.TotalViews)
}

// Sections rolls articles up by section. An article in several sections
// counts toward each of them.
func Sections(articles []aggregate.Article) []GroupStats {
	return groupStats(articles, func(a aggregate.Article) []string { return a.Sections })
}

// Referrers rolls articles up by referrer.
func Referrers(articles []aggregate.Article) []GroupStats {
	return groupStats(articles, func(a aggregate.Article) []string { return a.Referrers })
}

type membership struct {
	name    string
	article string
	views   int
}

func groupStats(articles []aggregate.Article, names func(aggregate.Article) []string) []GroupStats {
	var members []membership
	for i, a := range articles {
		id := a.Key
		if id == "" {
			id = "#" + strconv.Itoa(i)
		}
		for _, n := range names(a) {
			members = append(members, membership{name: n, article: id, views: a.Views})
		}
	}

	// One entry per (group, article) so a group counts each article once.
	type pair struct{ name, article string }
	distinct := aggregate.GroupBy(members,
		func(_ int, m membership) (pair, bool) { return pair{m.name, m.article}, true },
		func(m membership) membership { return m },
		func(acc *membership, m membership) { aggregate.MaxInt(&acc.views, m.views) },
	)

	groups := aggregate.GroupBy(aggregate.Values(distinct),
		func(_ int, m membership) (string, bool) { return m.name, true },
		func(m membership) GroupStats { return GroupStats{Name: m.name, TotalViews: m.views, ArticleCount: 1} },
		func(acc *GroupStats, m membership) {
			aggregate.SumInt(&acc.TotalViews, m.views)
			acc.ArticleCount++
		},
	)

	out := aggregate.Values(groups)
	var attributed int
	for _, g := range out {
		attributed += g.TotalViews
	}
	for i := range out {
		out[i].Ratio = SafeDiv(float64(out[i].TotalViews), float64(out[i].ArticleCount))
		out[i].PercentOfAttributed = Percent(out[i].TotalViews, attributed)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalViews != out[j].TotalViews {
			return out[i].TotalViews > out[j].TotalViews
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func rankMap(m map[string]int) []Ranked {
	out := make([]Ranked, 0, len(m))
	for name, views := range m {
		out = append(out, Ranked{Name: name, Views: views})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].Name < out[j].Name
	})
	return out
}
