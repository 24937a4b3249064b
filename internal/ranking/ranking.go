package ranking

import (
	"sort"
	"strings"

	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// MinRatioArticles is the floor on distinct articles for any ratio
// leaderboard, so a single one-off hit cannot top it.
const MinRatioArticles = 2

// Options controls a ranking.
type Options struct {
	// TopN truncates the ranked list; 0 keeps everything.
	TopN int
	// MinArticles drops groups with fewer distinct articles. Ratio rankings
	// never go below MinRatioArticles.
	MinArticles int
	// Popular names generic high-traffic categories that are reported in
	// their own list instead of being ranked.
	Popular []string
}

// Result is a ranked list plus the popular categories held out of it.
type Result struct {
	Ranked   []rollup.GroupStats `json:"ranked"`
	Popular  []rollup.GroupStats `json:"popular,omitempty"`
	Filtered int                 `json:"filtered"`
}

// IsPopular reports whether name matches an entry of the denylist. Matching
// folds case and accepts containment in either direction.
func IsPopular(name string, denylist []string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	for _, d := range denylist {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.Contains(n, d) || strings.Contains(d, n) {
			return true
		}
	}
	return false
}

// ByTotal ranks groups by total views.
func ByTotal(stats []rollup.GroupStats, opts Options) Result {
	return rank(stats, opts, opts.MinArticles, func(a, b rollup.GroupStats) bool {
		if a.TotalViews != b.TotalViews {
			return a.TotalViews > b.TotalViews
		}
		return a.Name < b.Name
	})
}

// ByRatio ranks groups by views per distinct article.
func ByRatio(stats []rollup.GroupStats, opts Options) Result {
	minArticles := opts.MinArticles
	if minArticles < MinRatioArticles {
		minArticles = MinRatioArticles
	}
	return rank(stats, opts, minArticles, func(a, b rollup.GroupStats) bool {
		if a.Ratio != b.Ratio {
			return a.Ratio > b.Ratio
		}
		if a.TotalViews != b.TotalViews {
			return a.TotalViews > b.TotalViews
		}
		return a.Name < b.Name
	})
}

func rank(stats []rollup.GroupStats, opts Options, minArticles int, less func(a, b rollup.GroupStats) bool) Result {
	var res Result
	for _, s := range stats {
		if IsPopular(s.Name, opts.Popular) {
			res.Popular = append(res.Popular, s)
			continue
		}
		if s.ArticleCount < minArticles {
			res.Filtered++
			continue
		}
		res.Ranked = append(res.Ranked, s)
	}
	sort.SliceStable(res.Ranked, func(i, j int) bool { return less(res.Ranked[i], res.Ranked[j]) })
	sort.SliceStable(res.Popular, func(i, j int) bool { return res.Popular[i].TotalViews > res.Popular[j].TotalViews })
	if opts.TopN > 0 && len(res.Ranked) > opts.TopN {
		res.Ranked = res.Ranked[:opts.TopN]
	}
	return res
}
