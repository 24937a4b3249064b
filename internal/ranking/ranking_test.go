package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

func TestByRatioRequiresTwoArticles(t *testing.T) {
	stats := []rollup.GroupStats{
		{Name: "S1", TotalViews: 10, ArticleCount: 5, Ratio: 2},
		{Name: "S2", TotalViews: 100, ArticleCount: 1, Ratio: 100},
	}

	res := ByRatio(stats, Options{})
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "S1", res.Ranked[0].Name)
	assert.Equal(t, 1, res.Filtered)

	res = ByRatio(stats, Options{MinArticles: 1})
	for _, s := range res.Ranked {
		assert.NotEqual(t, 1, s.ArticleCount, "ratio floor cannot be lowered")
	}
}

func TestByTotalKeepsSingleArticleGroups(t *testing.T) {
	stats := []rollup.GroupStats{
		{Name: "S1", TotalViews: 10, ArticleCount: 5, Ratio: 2},
		{Name: "S2", TotalViews: 100, ArticleCount: 1, Ratio: 100},
	}

	res := ByTotal(stats, Options{})
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "S2", res.Ranked[0].Name)
}

func TestPopularSectionsReportedSeparately(t *testing.T) {
	stats := []rollup.GroupStats{
		{Name: "Breaking News", TotalViews: 900, ArticleCount: 9, Ratio: 100},
		{Name: "top stories", TotalViews: 800, ArticleCount: 4, Ratio: 200},
		{Name: "Home", TotalViews: 700, ArticleCount: 7, Ratio: 100},
		{Name: "Food", TotalViews: 90, ArticleCount: 3, Ratio: 30},
	}

	res := ByTotal(stats, Options{Popular: []string{"News", "Top Stories", "Homepage"}})
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "Food", res.Ranked[0].Name)

	var popular []string
	for _, p := range res.Popular {
		popular = append(popular, p.Name)
	}
	assert.Equal(t, []string{"Breaking News", "top stories", "Home"}, popular)
}

func TestIsPopular(t *testing.T) {
	list := []string{"News", "Top Stories"}
	assert.True(t, IsPopular("local news", list))
	assert.True(t, IsPopular("TOP", list), "denylist entry contains the name")
	assert.False(t, IsPopular("Sport", list))
	assert.False(t, IsPopular("", list))
	assert.False(t, IsPopular("News", []string{"", "  "}))
}

func TestTopNTruncates(t *testing.T) {
	stats := []rollup.GroupStats{
		{Name: "a", TotalViews: 3, ArticleCount: 2},
		{Name: "b", TotalViews: 2, ArticleCount: 2},
		{Name: "c", TotalViews: 1, ArticleCount: 2},
	}
	res := ByTotal(stats, Options{TopN: 2})
	assert.Len(t, res.Ranked, 2)
}

func authors(totals map[string][]int) []rollup.AuthorStats {
	var articles []aggregate.Article
	for name, views := range totals {
		for i, v := range views {
			articles = append(articles, aggregate.Article{Key: name + string(rune('a'+i)), Title: name + string(rune('a'+i)), Author: name, Views: v})
		}
	}
	return rollup.Authors(articles, aggregate.TotalViews(articles))
}

func TestWritersPercentOfTotal(t *testing.T) {
	stats := authors(map[string][]int{"X": {200, 100}, "Y": {100}})

	rows := Writers(stats, 400, 0)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "X", rows[0].Name)
	assert.InDelta(t, 75.0, rows[0].PercentOfTotal, 1e-9)
	assert.Equal(t, 2, rows[0].ArticleCount)
	assert.InDelta(t, 150.0, rows[0].AvgViewsPerArticle, 1e-9)
	assert.Equal(t, 200, rows[0].BestArticleViews)
	assert.Equal(t, "Xa", rows[0].BestArticleTitle)

	assert.Equal(t, 2, rows[1].Rank)
	assert.InDelta(t, 25.0, rows[1].PercentOfTotal, 1e-9)
}

func TestWritersPercentagesSumToHundred(t *testing.T) {
	stats := authors(map[string][]int{"A": {13, 7}, "B": {31}, "C": {3, 3, 3}, "D": {97}})
	total := 0
	for _, s := range stats {
		total += s.TotalViews
	}

	var sum float64
	for _, r := range Writers(stats, total, 0) {
		assert.GreaterOrEqual(t, r.PercentOfTotal, 0.0)
		assert.LessOrEqual(t, r.PercentOfTotal, 100.0)
		sum += r.PercentOfTotal
	}
	assert.InDelta(t, 100.0, sum, 1e-9)

	sum = 0
	for _, r := range Writers(stats, total, 2) {
		sum += r.PercentOfTotal
	}
	assert.Less(t, sum, 100.0)
}

func TestWritersByEfficiency(t *testing.T) {
	stats := authors(map[string][]int{"solo": {1000}, "pair": {40, 60}, "trio": {90, 90, 90}})

	rows := WritersByEfficiency(stats, 1370, 0)
	require.Len(t, rows, 2)
	assert.Equal(t, "trio", rows[0].Name)
	assert.Equal(t, "pair", rows[1].Name)
	assert.Equal(t, 2, rows[1].Rank)
}

func TestWritersZeroTotal(t *testing.T) {
	rows := Writers([]rollup.AuthorStats{{Name: "ghost"}}, 0, 0)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].PercentOfTotal)
	assert.Equal(t, 0.0, rows[0].AvgViewsPerArticle)
}
