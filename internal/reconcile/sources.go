package reconcile

import (
	"fmt"
	"sort"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
	"github.com/TobiSchelling/PageInsights/internal/ranking"
	"github.com/TobiSchelling/PageInsights/internal/rollup"
)

// Slice is one independently aggregated traffic slice.
type Slice struct {
	Label         string              `json:"label"`
	Rows          int                 `json:"rows"`
	ArticleCount  int                 `json:"article_count"`
	TotalViews    int                 `json:"total_views"`
	Sections      ranking.Result      `json:"sections"`
	RatioSections ranking.Result      `json:"ratio_sections"`
	Referrers     []rollup.GroupStats `json:"referrers,omitempty"`
}

// SectionPair puts one section's views from both slices side by side.
type SectionPair struct {
	Name           string `json:"name"`
	AllViews       int    `json:"all_views"`
	ExcludingViews int    `json:"excluding_views"`
	// SourceShare is the part of the section's views that only appears in
	// the all-traffic slice, as a percentage. It is clamped at 0 because the
	// slices are aggregated independently.
	SourceShare float64 `json:"source_share"`
}

// SourceComparison reports "all traffic" next to "excluding a source".
type SourceComparison struct {
	All       Slice         `json:"all"`
	Excluding Slice         `json:"excluding"`
	Sections  []SectionPair `json:"sections"`
}

// CompareSources aggregates both datasets on their own and reports them side
// by side. Row-level overlap between the two exports is not reconciled.
func CompareSources(datasets []*dataset.Dataset, opts ranking.Options) (*SourceComparison, error) {
	if len(datasets) != 2 {
		return nil, fmt.Errorf("%w: source comparison needs exactly 2, got %d", ErrDatasetCount, len(datasets))
	}

	all := slice(datasets[0], "All traffic", opts)
	excl := slice(datasets[1], "Excluding source", opts)
	sc := &SourceComparison{All: all.Slice, Excluding: excl.Slice}

	exclViews := make(map[string]int, len(excl.sections))
	for _, s := range excl.sections {
		exclViews[s.Name] = s.TotalViews
	}
	for _, s := range all.sections {
		e := exclViews[s.Name]
		share := rollup.Percent(s.TotalViews-e, s.TotalViews)
		if share < 0 {
			share = 0
		}
		sc.Sections = append(sc.Sections, SectionPair{Name: s.Name, AllViews: s.TotalViews, ExcludingViews: e, SourceShare: share})
	}
	sort.SliceStable(sc.Sections, func(i, j int) bool { return sc.Sections[i].AllViews > sc.Sections[j].AllViews })
	if opts.TopN > 0 && len(sc.Sections) > opts.TopN {
		sc.Sections = sc.Sections[:opts.TopN]
	}
	return sc, nil
}

type builtSlice struct {
	Slice
	sections []rollup.GroupStats
}

func slice(ds *dataset.Dataset, fallback string, opts ranking.Options) builtSlice {
	label := ds.Label
	if label == "" {
		label = fallback
	}
	res := aggregate.Articles(ds)
	total := res.TotalViews()
	sections := rollup.Sections(res.Articles)

	s := Slice{
		Label:         label,
		Rows:          res.Rows,
		ArticleCount:  len(res.Articles),
		TotalViews:    total,
		Sections:      ranking.ByTotal(sections, opts),
		RatioSections: ranking.ByRatio(sections, opts),
	}
	if ds.Has(dataset.FieldReferrer) {
		s.Referrers = rollup.Referrers(res.Articles)
		if opts.TopN > 0 && len(s.Referrers) > opts.TopN {
			s.Referrers = s.Referrers[:opts.TopN]
		}
	}
	return builtSlice{Slice: s, sections: sections}
}
