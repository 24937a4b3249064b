package aggregate

import (
	"fmt"
	"strconv"

	"github.com/TobiSchelling/PageInsights/internal/dataset"
)

// MinViews is the noise threshold: anything with views at or below it is
// left out of every statistic.
const MinViews = 1

// Article is one deduplicated logical content item.
type Article struct {
	Key            string   `json:"-"`
	Title          string   `json:"title,omitempty"`
	Author         string   `json:"author"`
	Views          int      `json:"views"`
	Uniques        *int     `json:"uniques,omitempty"`
	QualityViews   *int     `json:"quality_views,omitempty"`
	AvgTimeSeconds *float64 `json:"avg_time_seconds,omitempty"`
	PublishDate    string   `json:"publish_date,omitempty"`
	Sections       []string `json:"sections,omitempty"`
	Referrers      []string `json:"referrers,omitempty"`
}

// DisplayTitle is the title, or a stand-in for exports without one.
func (a Article) DisplayTitle() string {
	if a.Title != "" {
		return a.Title
	}
	if a.PublishDate != "" {
		return "Article published " + a.PublishDate
	}
	return "Untitled article"
}

// Result is the outcome of deduplicating one dataset.
type Result struct {
	Articles []Article
	// Rows is the number of raw rows read.
	Rows int
	// Noise counts rows dropped by the views threshold.
	Noise int
	// MissingTitle counts rows dropped because the title column exists but
	// the row left it blank.
	MissingTitle int
}

// TotalViews sums views over the deduplicated articles.
func (r *Result) TotalViews() int {
	return TotalViews(r.Articles)
}

// TotalViews sums views over articles.
func TotalViews(articles []Article) int {
	var total int
	for _, a := range articles {
		total += a.Views
	}
	return total
}

// Articles rebuilds one Article per logical item from a dataset.
//
// The export repeats an article once per section and referrer it touches,
// each row carrying the same per-article totals, so totals are MAX-merged
// and sections and referrers are unioned.
func Articles(ds *dataset.Dataset) *Result {
	res := &Result{Rows: len(ds.Records)}
	hasTitle := ds.Has(dataset.FieldTitle)

	groups := GroupBy(ds.Records,
		func(i int, rec dataset.Record) (string, bool) {
			if rec.Views() <= MinViews {
				res.Noise++
				return "", false
			}
			if hasTitle && rec.Text(dataset.FieldTitle) == "" {
				res.MissingTitle++
				return "", false
			}
			return articleKey(hasTitle, i, rec), true
		},
		newArticle,
		mergeDuplicate,
	)

	for _, g := range groups {
		a := g.Value
		a.Key = g.Key
		res.Articles = append(res.Articles, a)
	}
	return res
}

// articleKey picks the identity of a row: author and title when the export
// has titles, otherwise publish date and author, otherwise row index and author.
func articleKey(hasTitle bool, index int, rec dataset.Record) string {
	author := rec.Text(dataset.FieldAuthor)
	if hasTitle {
		return "title\x00" + author + "\x00" + rec.Text(dataset.FieldTitle)
	}
	if date := rec.Text(dataset.FieldPublishDate); date != "" {
		return "date\x00" + date + "\x00" + author
	}
	return "row\x00" + strconv.Itoa(index) + "\x00" + author
}

func newArticle(rec dataset.Record) Article {
	a := Article{
		Title:          rec.Text(dataset.FieldTitle),
		Author:         rec.Text(dataset.FieldAuthor),
		Views:          rec.Views(),
		Uniques:        optionalInt(rec, dataset.FieldPageUniques),
		QualityViews:   optionalInt(rec, dataset.FieldQualityViews),
		AvgTimeSeconds: optionalFloat(rec, dataset.FieldAvgTime),
		PublishDate:    rec.Text(dataset.FieldPublishDate),
	}
	Union(&a.Sections, rec.Text(dataset.FieldSection))
	Union(&a.Referrers, rec.Text(dataset.FieldReferrer))
	return a
}

// mergeDuplicate folds a repeated row of the same article.
func mergeDuplicate(a *Article, rec dataset.Record) {
	MaxInt(&a.Views, rec.Views())
	MaxOptional(&a.Uniques, optionalInt(rec, dataset.FieldPageUniques))
	MaxOptional(&a.QualityViews, optionalInt(rec, dataset.FieldQualityViews))
	MaxOptional(&a.AvgTimeSeconds, optionalFloat(rec, dataset.FieldAvgTime))
	FirstNonEmpty(&a.PublishDate, rec.Text(dataset.FieldPublishDate))
	Union(&a.Sections, rec.Text(dataset.FieldSection))
	Union(&a.Referrers, rec.Text(dataset.FieldReferrer))
}

// Contributions builds the single-writer time series. With a title column
// it is the deduplicated article list. Without one the key is publish date,
// author and row index, so every row is its own contribution and the
// series total is the plain sum of row views.
func Contributions(ds *dataset.Dataset) *Result {
	if ds.Has(dataset.FieldTitle) {
		return Articles(ds)
	}

	res := &Result{Rows: len(ds.Records)}
	for i, rec := range ds.Records {
		if rec.Views() <= MinViews {
			res.Noise++
			continue
		}
		a := newArticle(rec)
		a.Key = fmt.Sprintf("%s_%s_%d", rec.Text(dataset.FieldPublishDate), rec.Text(dataset.FieldAuthor), i)
		res.Articles = append(res.Articles, a)
	}
	return res
}

// ByAuthor keeps the articles written by author. The match is on the exact
// trimmed author string.
func ByAuthor(articles []Article, author string) []Article {
	var out []Article
	for _, a := range articles {
		if a.Author == author {
			out = append(out, a)
		}
	}
	return out
}

func optionalInt(rec dataset.Record, f dataset.Field) *int {
	if _, ok := rec.Number(f); !ok {
		return nil
	}
	v := rec.Int(f)
	return &v
}

func optionalFloat(rec dataset.Record, f dataset.Field) *float64 {
	n, ok := rec.Number(f)
	if !ok {
		return nil
	}
	return &n
}
