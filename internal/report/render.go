package report

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/ranking"
	"github.com/TobiSchelling/PageInsights/internal/reconcile"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// NA is shown where a figure has no defined value.
const NA = "N/A"

// Render turns a Summary into the plain-text context handed to the text
// generator. Sections for columns missing from the export are omitted.
func Render(s *Summary) string {
	var b strings.Builder

	title := s.Label
	if title == "" {
		title = "Dataset"
	}
	fmt.Fprintf(&b, "=== %s ===\n", title)
	fmt.Fprintf(&b, "Columns present: %s\n", joinFields(s.Fields))
	fmt.Fprintf(&b, "Articles: %d (from %d rows, %d low-traffic rows excluded)\n", s.ArticleCount, s.Rows, s.SkippedNoise)
	fmt.Fprintf(&b, "Total page views: %d\n", s.TotalViews)
	if s.Has(dataset.FieldPageUniques) {
		fmt.Fprintf(&b, "Total unique visitors: %d\n", s.TotalUniques)
	}
	b.WriteString("\n")

	if len(s.Writers) > 0 {
		b.WriteString("--- Writers by total views ---\n")
		writeWriters(&b, s.Writers, s.Has(dataset.FieldPageUniques))
		b.WriteString("\n")
	}
	if len(s.EfficientWriters) > 0 {
		b.WriteString("--- Writers by views per article (2+ articles) ---\n")
		writeWriters(&b, s.EfficientWriters, false)
		b.WriteString("\n")
	}

	if len(s.TopArticles) > 0 {
		b.WriteString("--- Top articles ---\n")
		for i, a := range s.TopArticles {
			fmt.Fprintf(&b, "%d. %q", i+1, a.DisplayTitle())
			if s.Has(dataset.FieldAuthor) && a.Author != "" {
				fmt.Fprintf(&b, " by %s", a.Author)
			}
			fmt.Fprintf(&b, ": %d views", a.Views)
			if s.Has(dataset.FieldQualityViews) && a.QualityViews != nil {
				fmt.Fprintf(&b, ", %d quality views", *a.QualityViews)
			}
			if s.Has(dataset.FieldAvgTime) && a.AvgTimeSeconds != nil {
				fmt.Fprintf(&b, ", %.0fs avg time", *a.AvgTimeSeconds)
			}
			if s.Has(dataset.FieldSection) && len(a.Sections) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(a.Sections, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if s.Sections != nil {
		b.WriteString("--- Sections by total views ---\n")
		writeGroups(&b, s.Sections.Ranked)
		if len(s.Sections.Popular) > 0 {
			b.WriteString("Popular sections (reported separately):\n")
			writeGroups(&b, s.Sections.Popular)
		}
		b.WriteString("\n")
	}
	if s.RatioSections != nil && len(s.RatioSections.Ranked) > 0 {
		b.WriteString("--- Sections by views per article (2+ articles) ---\n")
		writeGroups(&b, s.RatioSections.Ranked)
		b.WriteString("\n")
	}
	if s.Referrers != nil {
		b.WriteString("--- Referrers ---\n")
		writeGroups(&b, s.Referrers.Ranked)
		b.WriteString("\n")
	}
	if len(s.Daily) > 0 {
		b.WriteString("--- Daily traffic ---\n")
		writeDaily(&b, s.Daily)
		b.WriteString("\n")
	}
	if s.Focus != nil {
		b.WriteString(RenderAuthor(s.Focus, s))
		if len(s.FocusDaily) > 0 {
			b.WriteString("Daily views:\n")
			writeDaily(&b, s.FocusDaily)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderAuthor renders one author's rollup.
func RenderAuthor(a *rollup.AuthorStats, s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Writer: %s ---\n", a.Name)
	fmt.Fprintf(&b, "Articles: %d, total views: %d (%.1f%% of overall), average %.1f per article\n",
		len(a.Articles), a.TotalViews, a.PercentOfTotal, a.AverageViews)
	fmt.Fprintf(&b, "Above average: %d, below average: %d\n", a.ArticlesAboveAverage, a.ArticlesBelowAverage)
	if s.Has(dataset.FieldPageUniques) {
		fmt.Fprintf(&b, "Unique visitors: %d\n", a.TotalUniques)
	}
	if s.Has(dataset.FieldQualityViews) {
		fmt.Fprintf(&b, "Quality views: %d (%s of views)\n", a.TotalQualityViews, percentOrNA(a.TotalQualityViews, a.TotalViews))
	}
	if a.BestArticle != nil {
		fmt.Fprintf(&b, "Best: %q (%d views)\n", a.BestArticle.DisplayTitle(), a.BestArticle.Views)
	}
	if a.WorstArticle != nil && len(a.Articles) > 1 {
		fmt.Fprintf(&b, "Weakest: %q (%d views)\n", a.WorstArticle.DisplayTitle(), a.WorstArticle.Views)
	}
	if s.Has(dataset.FieldPublishDate) && a.EarliestDate != "" {
		fmt.Fprintf(&b, "Published between %s and %s\n", a.EarliestDate, a.LatestDate)
	}
	if s.Has(dataset.FieldSection) && len(a.TopSections) > 0 {
		fmt.Fprintf(&b, "Top sections: %s\n", joinRanked(a.TopSections, 5))
	}
	if s.Has(dataset.FieldReferrer) && len(a.TopReferrers) > 0 {
		fmt.Fprintf(&b, "Top referrers: %s\n", joinRanked(a.TopReferrers, 5))
	}
	return b.String()
}

// RenderPeriods renders a period comparison.
func RenderPeriods(c *reconcile.PeriodComparison) string {
	var b strings.Builder
	b.WriteString("=== Period comparison ===\n")
	for _, p := range c.Periods {
		fmt.Fprintf(&b, "%s (%s): %d articles, %d views, %.1f views per post\n",
			p.Label, p.DateRange, p.ArticleCount, p.TotalViews, p.AvgViewsPerPost)
	}
	if len(c.Deltas) > 0 {
		b.WriteString("\nChanges:\n")
		for _, d := range c.Deltas {
			fmt.Fprintf(&b, "%s -> %s: views %+.0f (%s), articles %+.0f (%s), views per post %+.1f (%s)\n",
				d.From, d.To,
				d.TotalViews.Change, signedPercent(d.TotalViews),
				d.ArticleCount.Change, signedPercent(d.ArticleCount),
				d.AvgViewsPerPost.Change, signedPercent(d.AvgViewsPerPost))
		}
	}
	return b.String()
}

// RenderSources renders an all-traffic vs excluding-source comparison.
func RenderSources(c *reconcile.SourceComparison) string {
	var b strings.Builder
	b.WriteString("=== Traffic source comparison ===\n")
	for _, sl := range []reconcile.Slice{c.All, c.Excluding} {
		fmt.Fprintf(&b, "\n--- %s: %d articles, %d views (%d rows) ---\n", sl.Label, sl.ArticleCount, sl.TotalViews, sl.Rows)
		b.WriteString("Sections by total views:\n")
		writeGroups(&b, sl.Sections.Ranked)
		if len(sl.Sections.Popular) > 0 {
			b.WriteString("Popular sections:\n")
			writeGroups(&b, sl.Sections.Popular)
		}
		if len(sl.RatioSections.Ranked) > 0 {
			b.WriteString("Sections by views per article (2+ articles):\n")
			writeGroups(&b, sl.RatioSections.Ranked)
		}
		if len(sl.Referrers) > 0 {
			b.WriteString("Referrers:\n")
			writeGroups(&b, sl.Referrers)
		}
	}
	if len(c.Sections) > 0 {
		b.WriteString("\nSection views side by side (all / excluding / share from source):\n")
		for _, p := range c.Sections {
			fmt.Fprintf(&b, "- %s: %d / %d / %.1f%%\n", p.Name, p.AllViews, p.ExcludingViews, p.SourceShare)
		}
	}
	return b.String()
}

func writeWriters(b *strings.Builder, rows []ranking.WriterRanking, uniques bool) {
	for _, w := range rows {
		fmt.Fprintf(b, "%d. %s: %d views (%.1f%%), %d articles, %.1f per article",
			w.Rank, w.Name, w.TotalViews, w.PercentOfTotal, w.ArticleCount, w.AvgViewsPerArticle)
		if uniques {
			fmt.Fprintf(b, ", %d uniques", w.TotalUniques)
		}
		if w.BestArticleTitle != "" {
			fmt.Fprintf(b, "; best %q (%d)", w.BestArticleTitle, w.BestArticleViews)
		}
		b.WriteString("\n")
	}
}

func writeGroups(b *strings.Builder, groups []rollup.GroupStats) {
	if len(groups) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for i, g := range groups {
		fmt.Fprintf(b, "%d. %s: %d views, %d articles, %.1f per article (%.1f%% of attributed views)\n",
			i+1, g.Name, g.TotalViews, g.ArticleCount, g.Ratio, g.PercentOfAttributed)
	}
}

func writeDaily(b *strings.Builder, days []reconcile.DayBucket) {
	for _, d := range days {
		fmt.Fprintf(b, "%s: %d views across %d articles\n", d.Date, d.Views, d.Articles)
	}
}

func joinFields(fields []dataset.Field) string {
	if len(fields) == 0 {
		return "(none recognized)"
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func joinRanked(items []rollup.Ranked, limit int) string {
	if len(items) > limit {
		items = items[:limit]
	}
	parts := make([]string, len(items))
	for i, r := range items {
		parts[i] = fmt.Sprintf("%s (%d)", r.Name, r.Views)
	}
	return strings.Join(parts, ", ")
}

func percentOrNA(part, whole int) string {
	if whole == 0 {
		return NA
	}
	return fmt.Sprintf("%.1f%%", rollup.Percent(part, whole))
}

func signedPercent(d reconcile.Delta) string {
	if d.ChangePercent == 0 && d.Change != 0 {
		return NA
	}
	return fmt.Sprintf("%+.1f%%", d.ChangePercent)
}
