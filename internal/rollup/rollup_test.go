package rollup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
)

func articlesFrom(t *testing.T, text string) []aggregate.Article {
	t.Helper()
	ds, err := dataset.Parse(text, "test")
	require.NoError(t, err)
	return aggregate.Articles(ds).Articles
}

const sample = "title,author,page_views,page_uniques,page_views_quality,publish_date,section,referrer\n" +
	"A,X,300,200,150,2024-01-02,News,google\n" +
	"A,X,300,200,150,2024-01-02,Politics,facebook\n" +
	"B,X,100,90,20,2024-01-05,Politics,google\n" +
	"C,Y,60,50,,2024-01-03,Sport,direct\n" +
	"D,Y,40,30,,2024-01-04,Sport,google\n"

func TestAuthorsConserveViews(t *testing.T) {
	articles := articlesFrom(t, sample)
	total := aggregate.TotalViews(articles)

	authors := Authors(articles, total)
	var sum int
	for _, a := range authors {
		sum += a.TotalViews
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, 500, total)
}

func TestAuthorStats(t *testing.T) {
	articles := articlesFrom(t, sample)
	authors := Authors(articles, aggregate.TotalViews(articles))
	require.Len(t, authors, 2)

	x := authors[0]
	assert.Equal(t, "X", x.Name)
	assert.Equal(t, 400, x.TotalViews)
	assert.Equal(t, 290, x.TotalUniques)
	assert.Equal(t, 170, x.TotalQualityViews)
	assert.InDelta(t, 80.0, x.PercentOfTotal, 1e-9)
	assert.InDelta(t, 200.0, x.AverageViews, 1e-9)
	assert.Equal(t, 1, x.ArticlesAboveAverage)
	assert.Equal(t, 1, x.ArticlesBelowAverage)
	assert.Equal(t, "A", x.BestArticle.Title)
	assert.Equal(t, "B", x.WorstArticle.Title)
	assert.Equal(t, "2024-01-02", x.EarliestDate)
	assert.Equal(t, "2024-01-05", x.LatestDate)
	assert.Equal(t, []Ranked{{"Politics", 400}, {"News", 300}}, x.TopSections)
	assert.Equal(t, []Ranked{{"google", 400}, {"facebook", 300}}, x.TopReferrers)

	y := authors[1]
	assert.Equal(t, 0, y.TotalQualityViews)
	assert.Equal(t, 0.0, y.QualityRate())
}

func TestSortArticlesTieBreak(t *testing.T) {
	articles := []aggregate.Article{
		{Title: "early", Views: 50, PublishDate: "2024-01-01"},
		{Title: "undated", Views: 50},
		{Title: "late", Views: 50, PublishDate: "2024-03-01"},
		{Title: "top", Views: 90, PublishDate: "2023-12-01"},
	}

	for i := 0; i < 3; i++ {
		shuffled := []aggregate.Article{articles[(i+1)%4], articles[(i+3)%4], articles[i%4], articles[(i+2)%4]}
		SortArticles(shuffled)
		var titles []string
		for _, a := range shuffled {
			titles = append(titles, a.Title)
		}
		assert.Equal(t, []string{"top", "late", "early", "undated"}, titles)
	}
}

func TestSections(t *testing.T) {
	articles := articlesFrom(t, sample)
	sections := Sections(articles)
	require.Len(t, sections, 3)

	assert.Equal(t, GroupStats{Name: "Politics", TotalViews: 400, ArticleCount: 2, Ratio: 200, PercentOfAttributed: 50}, sections[0])
	assert.Equal(t, "News", sections[1].Name)
	assert.Equal(t, 1, sections[1].ArticleCount)
	assert.Equal(t, "Sport", sections[2].Name)
	assert.InDelta(t, 50.0, sections[2].Ratio, 1e-9)

	for _, s := range sections {
		assert.InDelta(t, float64(s.TotalViews)/float64(s.ArticleCount), s.Ratio, 1e-9)
		assert.GreaterOrEqual(t, s.PercentOfAttributed, 0.0)
		assert.LessOrEqual(t, s.PercentOfAttributed, 100.0)
	}
}

func TestSectionSharesSumToHundredAcrossSharedArticles(t *testing.T) {
	articles := articlesFrom(t, "title,author,page_views,section\n"+
		"A,X,100,S1\n"+
		"A,X,100,S2\n"+
		"B,Y,100,S1\n")

	sections := Sections(articles)
	require.Len(t, sections, 2)
	assert.Equal(t, 200, sections[0].TotalViews)
	assert.Equal(t, 100, sections[1].TotalViews)

	var sum float64
	for _, s := range sections {
		sum += s.PercentOfAttributed
	}
	assert.InDelta(t, 100.0, sum, 1e-9)
	assert.InDelta(t, 200.0/3, sections[0].PercentOfAttributed, 1e-9)
}

func TestReferrersCountArticlesOnce(t *testing.T) {
	articles := articlesFrom(t, "title,author,page_views,section,referrer\n"+
		"A,X,100,S1,google\n"+
		"A,X,100,S2,google\n")

	refs := Referrers(articles)
	require.Len(t, refs, 1)
	assert.Equal(t, 100, refs[0].TotalViews)
	assert.Equal(t, 1, refs[0].ArticleCount)
}

func TestEmptyInputsYieldZeroes(t *testing.T) {
	assert.Empty(t, Authors(nil, 0))
	assert.Empty(t, Sections(nil))
	assert.Equal(t, 0.0, Percent(10, 0))
	assert.Equal(t, 0.0, SafeDiv(1, 0))
}
