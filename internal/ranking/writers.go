package ranking

import (
	"sort"

	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// WriterRanking is a flattened, ranked row of author stats.
type WriterRanking struct {
	Rank               int     `json:"rank"`
	Name               string  `json:"name"`
	TotalViews         int     `json:"total_views"`
	TotalUniques       int     `json:"total_uniques"`
	ArticleCount       int     `json:"article_count"`
	AvgViewsPerArticle float64 `json:"avg_views_per_article"`
	PercentOfTotal     float64 `json:"percent_of_total"`
	BestArticleViews   int     `json:"best_article_views"`
	BestArticleTitle   string  `json:"best_article_title"`
}

// Writers ranks authors by total views. total is the whole dataset's views.
// topN of 0 keeps every author.
func Writers(authors []rollup.AuthorStats, total, topN int) []WriterRanking {
	rows := flatten(authors, total)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalViews != rows[j].TotalViews {
			return rows[i].TotalViews > rows[j].TotalViews
		}
		return rows[i].Name < rows[j].Name
	})
	return numbered(rows, topN)
}

// WritersByEfficiency ranks authors by average views per article. Authors
// with fewer than MinRatioArticles articles are left out.
func WritersByEfficiency(authors []rollup.AuthorStats, total, topN int) []WriterRanking {
	var rows []WriterRanking
	for _, r := range flatten(authors, total) {
		if r.ArticleCount >= MinRatioArticles {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].AvgViewsPerArticle != rows[j].AvgViewsPerArticle {
			return rows[i].AvgViewsPerArticle > rows[j].AvgViewsPerArticle
		}
		return rows[i].Name < rows[j].Name
	})
	return numbered(rows, topN)
}

func flatten(authors []rollup.AuthorStats, total int) []WriterRanking {
	rows := make([]WriterRanking, 0, len(authors))
	for _, a := range authors {
		r := WriterRanking{
			Name:               a.Name,
			TotalViews:         a.TotalViews,
			TotalUniques:       a.TotalUniques,
			ArticleCount:       len(a.Articles),
			AvgViewsPerArticle: rollup.SafeDiv(float64(a.TotalViews), float64(len(a.Articles))),
			PercentOfTotal:     rollup.Percent(a.TotalViews, total),
		}
		if a.BestArticle != nil {
			r.BestArticleViews = a.BestArticle.Views
			r.BestArticleTitle = a.BestArticle.DisplayTitle()
		}
		rows = append(rows, r)
	}
	return rows
}

func numbered(rows []WriterRanking, topN int) []WriterRanking {
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
