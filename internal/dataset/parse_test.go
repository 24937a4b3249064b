package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoercesCells(t *testing.T) {
	text := "Title, Author ,page_views,Section,extra\n" +
		"Budget vote,Ann Lee,1200,Politics,x\n" +
		"  Storm warning ,Bo Chan, 45 ,,y\n"

	ds, err := Parse(text, "jan")
	require.NoError(t, err)

	assert.Equal(t, "jan", ds.Label)
	assert.Equal(t, []Field{FieldTitle, FieldAuthor, FieldPageViews, FieldSection}, ds.FieldNames)
	assert.Equal(t, []string{"Title", "Author", "page_views", "Section", "extra"}, ds.Headers)
	require.Len(t, ds.Records, 2)

	first := ds.Records[0]
	assert.Equal(t, "Budget vote", first.Text(FieldTitle))
	assert.Equal(t, 1200, first.Views())

	second := ds.Records[1]
	assert.Equal(t, "Storm warning", second.Text(FieldTitle))
	assert.Equal(t, 45, second.Views())
	_, hasSection := second[FieldSection]
	assert.False(t, hasSection, "empty cell must be absent, not empty text")
}

func TestParseRaggedRows(t *testing.T) {
	text := "title,author,page_views,section\n" +
		"A,X,10\n" +
		"B,Y,20,S1,surplus\n"

	ds, err := Parse(text, "")
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, 2, ds.Ragged)

	_, ok := ds.Records[0][FieldSection]
	assert.False(t, ok)
	assert.Equal(t, "S1", ds.Records[1].Text(FieldSection))
}

func TestParseNonNumericViews(t *testing.T) {
	ds, err := Parse("title,author,page_views\nA,X,lots\n", "")
	require.NoError(t, err)

	rec := ds.Records[0]
	_, isNum := rec.Number(FieldPageViews)
	assert.False(t, isNum)
	assert.Equal(t, "lots", rec.Text(FieldPageViews))
	assert.Equal(t, 0, rec.Views())
}

func TestParseKeepsNumericLookingText(t *testing.T) {
	ds, err := Parse("title,author,page_views\n007,1.50,10\n1,X,5\n1.0,X,5\n", "")
	require.NoError(t, err)

	assert.Equal(t, "007", ds.Records[0].Text(FieldTitle))
	assert.Equal(t, "1.50", ds.Records[0].Text(FieldAuthor))
	assert.Equal(t, "1", ds.Records[1].Text(FieldTitle))
	assert.Equal(t, "1.0", ds.Records[2].Text(FieldTitle))

	n, ok := ds.Records[0].Number(FieldTitle)
	assert.True(t, ok)
	assert.Equal(t, 7.0, n)
}

func TestParseRejectsNaNAsNumber(t *testing.T) {
	ds, err := Parse("title,page_views\nA,NaN\nB,Inf\n", "")
	require.NoError(t, err)
	for _, rec := range ds.Records {
		_, isNum := rec.Number(FieldPageViews)
		assert.False(t, isNum)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse("", "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Parse("   \n\n", "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseHeaderOnly(t *testing.T) {
	ds, err := Parse("title,author,page_views\n", "")
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.True(t, ds.Has(FieldTitle))
	assert.False(t, ds.Has(FieldReferrer))
}

func TestParseStripsByteOrderMark(t *testing.T) {
	ds, err := Parse("\ufefftitle,page_views\nA,5\n", "")
	require.NoError(t, err)
	assert.True(t, ds.Has(FieldTitle))
}

func TestMatchField(t *testing.T) {
	cases := map[string]Field{
		"PAGE_VIEWS":         FieldPageViews,
		"Page Views":         FieldPageViews,
		"page-avg-time":      FieldAvgTime,
		" Referrer ":         FieldReferrer,
		"page_views_quality": FieldQualityViews,
	}
	for in, want := range cases {
		got, ok := MatchField(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := MatchField("engaged_minutes")
	assert.False(t, ok)
}

func TestParseFileDefaultsLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "march-2024.csv")
	require.NoError(t, os.WriteFile(path, []byte("title,page_views\nA,5\n"), 0o644))

	ds, err := ParseFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, "march-2024", ds.Label)
}

func TestDayKey(t *testing.T) {
	for _, in := range []string{"2024-03-05", "2024-03-05 14:02:00", "3/5/2024"} {
		day, ok := DayKey(in)
		assert.True(t, ok, in)
		assert.Equal(t, "2024-03-05", day, in)
	}

	_, ok := DayKey("soon")
	assert.False(t, ok)
}
