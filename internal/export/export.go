// Package export writes analysis results as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/ranking"
	"github.com/TobiSchelling/PageInsights/internal/reconcile"
	"github.com/TobiSchelling/PageInsights/internal/report"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

const maxSheetName = 31

// Workbook builds a workbook with one set of sheets per summary and a
// period sheet when a comparison is given. Sheets for absent columns are
// left out.
func Workbook(summaries []*report.Summary, periods *reconcile.PeriodComparison) (*excelize.File, error) {
	f := excelize.NewFile()
	w := &writer{f: f, first: true}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	w.header = bold

	for i, s := range summaries {
		prefix := ""
		if len(summaries) > 1 {
			prefix = fmt.Sprintf("%d ", i+1)
		}
		if err := w.summary(prefix, s); err != nil {
			f.Close()
			return nil, err
		}
	}
	if periods != nil {
		if err := w.periods(periods); err != nil {
			f.Close()
			return nil, err
		}
	}
	if w.first {
		// Nothing was written; keep the default sheet but name it.
		f.SetSheetName("Sheet1", "Overview")
	}
	return f, nil
}

// Write encodes the workbook to out.
func Write(out io.Writer, summaries []*report.Summary, periods *reconcile.PeriodComparison) error {
	f, err := Workbook(summaries, periods)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// WriteFile saves the workbook at path.
func WriteFile(path string, summaries []*report.Summary, periods *reconcile.PeriodComparison) error {
	f, err := Workbook(summaries, periods)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

type writer struct {
	f      *excelize.File
	header int
	first  bool
}

func (w *writer) summary(prefix string, s *report.Summary) error {
	overview := [][]any{
		{"Dataset", s.Label},
		{"Columns", fieldList(s.Fields)},
		{"Rows", s.Rows},
		{"Low-traffic rows excluded", s.SkippedNoise},
		{"Rows missing a title", s.SkippedBlank},
		{"Articles", s.ArticleCount},
		{"Total page views", s.TotalViews},
	}
	if s.Has(dataset.FieldPageUniques) {
		overview = append(overview, []any{"Total unique visitors", s.TotalUniques})
	}
	if err := w.sheet(prefix+"Overview", []any{"Metric", "Value"}, overview); err != nil {
		return err
	}

	if len(s.Writers) > 0 {
		if err := w.sheet(prefix+"Writers", writerHeader, writerRows(s.Writers)); err != nil {
			return err
		}
	}
	if len(s.EfficientWriters) > 0 {
		if err := w.sheet(prefix+"Writers per article", writerHeader, writerRows(s.EfficientWriters)); err != nil {
			return err
		}
	}
	if len(s.TopArticles) > 0 {
		rows := make([][]any, len(s.TopArticles))
		for i, a := range s.TopArticles {
			rows[i] = []any{i + 1, a.DisplayTitle(), a.Author, a.Views, a.PublishDate}
		}
		if err := w.sheet(prefix+"Top articles", []any{"Rank", "Title", "Author", "Views", "Published"}, rows); err != nil {
			return err
		}
	}
	if s.Sections != nil {
		rows := groupRows(s.Sections.Ranked, "")
		rows = append(rows, groupRows(s.Sections.Popular, "popular")...)
		if err := w.sheet(prefix+"Sections", groupHeader, rows); err != nil {
			return err
		}
	}
	if s.RatioSections != nil && len(s.RatioSections.Ranked) > 0 {
		if err := w.sheet(prefix+"Section ratios", groupHeader, groupRows(s.RatioSections.Ranked, "")); err != nil {
			return err
		}
	}
	if s.Referrers != nil {
		if err := w.sheet(prefix+"Referrers", groupHeader, groupRows(s.Referrers.Ranked, "")); err != nil {
			return err
		}
	}
	if len(s.Daily) > 0 {
		rows := make([][]any, len(s.Daily))
		for i, d := range s.Daily {
			rows[i] = []any{d.Date, d.Views, d.Articles}
		}
		if err := w.sheet(prefix+"Daily", []any{"Date", "Views", "Articles"}, rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) periods(c *reconcile.PeriodComparison) error {
	rows := make([][]any, 0, len(c.Periods)+len(c.Deltas))
	for _, p := range c.Periods {
		rows = append(rows, []any{p.Label, p.DateRange, p.ArticleCount, p.TotalViews, p.AvgViewsPerPost})
	}
	if err := w.sheet("Periods", []any{"Period", "Date range", "Articles", "Views", "Views per post"}, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, d := range c.Deltas {
		rows = append(rows, []any{
			d.From, d.To,
			d.TotalViews.Change, d.TotalViews.ChangePercent,
			d.ArticleCount.Change, d.ArticleCount.ChangePercent,
			d.AvgViewsPerPost.Change, d.AvgViewsPerPost.ChangePercent,
		})
	}
	return w.sheet("Period changes", []any{"From", "To", "Views", "Views %", "Articles", "Articles %", "Per post", "Per post %"}, rows)
}

// sheet writes a header row and data rows into a new sheet. The first
// sheet reuses the workbook's default one.
func (w *writer) sheet(name string, header []any, rows [][]any) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if w.first {
		if err := w.f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("naming sheet %s: %w", name, err)
		}
		w.first = false
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}

	if err := w.f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	if err := w.f.SetRowStyle(name, 1, 1, w.header); err != nil {
		return fmt.Errorf("styling %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}

var (
	writerHeader = []any{"Rank", "Writer", "Views", "Uniques", "Articles", "Views per article", "% of total", "Best article", "Best article views"}
	groupHeader  = []any{"Name", "Views", "Articles", "Views per article", "% of attributed views", "Note"}
)

func writerRows(ws []ranking.WriterRanking) [][]any {
	rows := make([][]any, len(ws))
	for i, r := range ws {
		rows[i] = []any{r.Rank, r.Name, r.TotalViews, r.TotalUniques, r.ArticleCount, r.AvgViewsPerArticle, r.PercentOfTotal, r.BestArticleTitle, r.BestArticleViews}
	}
	return rows
}

func groupRows(gs []rollup.GroupStats, note string) [][]any {
	rows := make([][]any, len(gs))
	for i, g := range gs {
		rows[i] = []any{g.Name, g.TotalViews, g.ArticleCount, g.Ratio, g.PercentOfAttributed, note}
	}
	return rows
}

func fieldList(fields []dataset.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
