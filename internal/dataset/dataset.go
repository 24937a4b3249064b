package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Field is a recognized column of a pageview export.
type Field string

const (
	FieldTitle        Field = "title"
	FieldAuthor       Field = "author"
	FieldPageViews    Field = "page_views"
	FieldPublishDate  Field = "publish_date"
	FieldPageUniques  Field = "page_uniques"
	FieldQualityViews Field = "page_views_quality"
	FieldAvgTime      Field = "page_avg_time"
	FieldSection      Field = "section"
	FieldReferrer     Field = "referrer"
)

// Vocabulary is the fixed set of columns the engine understands.
var Vocabulary = []Field{
	FieldTitle,
	FieldAuthor,
	FieldPageViews,
	FieldPublishDate,
	FieldPageUniques,
	FieldQualityViews,
	FieldAvgTime,
	FieldSection,
	FieldReferrer,
}

// MatchField maps a raw header name onto the vocabulary.
// Matching ignores case and treats spaces and hyphens as underscores.
func MatchField(header string) (Field, bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	for _, f := range Vocabulary {
		if string(f) == h {
			return f, true
		}
	}
	return "", false
}

// Value is a single coerced cell. Every cell keeps its trimmed text;
// numeric cells also carry the parsed number for arithmetic.
type Value struct {
	Num   float64
	Text  string
	IsNum bool
}

// String returns the cell text as it appeared in the export.
func (v Value) String() string {
	return v.Text
}

// coerce turns a raw cell into a Value. Empty cells report ok=false.
func coerce(raw string) (Value, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return Value{Num: n, Text: s, IsNum: true}, true
	}
	return Value{Text: s}, true
}

// Record is one parsed row. Absent cells have no entry.
type Record map[Field]Value

// Text returns the field as text, or "" when absent.
func (r Record) Text(f Field) string {
	v, ok := r[f]
	if !ok {
		return ""
	}
	return v.String()
}

// Number returns the field when it is numeric.
func (r Record) Number(f Field) (float64, bool) {
	v, ok := r[f]
	if !ok || !v.IsNum {
		return 0, false
	}
	return v.Num, true
}

// Int returns the numeric field rounded to an int, or 0 when the field is
// absent or not a number.
func (r Record) Int(f Field) int {
	n, ok := r.Number(f)
	if !ok {
		return 0
	}
	return int(math.Round(n))
}

// Views is the record's page_views, 0 when missing or non-numeric.
func (r Record) Views() int {
	return r.Int(FieldPageViews)
}

// Dataset is the immutable result of parsing one export.
type Dataset struct {
	Label      string
	Records    []Record
	FieldNames []Field
	Headers    []string
	// Ragged counts rows whose cell count differed from the header.
	Ragged int
}

// Has reports whether the export carried the given column.
func (d *Dataset) Has(f Field) bool {
	for _, name := range d.FieldNames {
		if name == f {
			return true
		}
	}
	return false
}

// TotalRawViews sums page_views over every raw row. Rows repeat one article
// per section and referrer, so this is not an article total.
func (d *Dataset) TotalRawViews() int {
	var total int
	for _, r := range d.Records {
		total += r.Views()
	}
	return total
}

// ParseDate parses publish_date cells in the formats the exports use.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DayKey returns the YYYY-MM-DD bucket of a publish_date cell.
func DayKey(s string) (string, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
