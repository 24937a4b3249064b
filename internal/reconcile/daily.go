package reconcile

import (
	"sort"

	"github.com/TobiSchelling/PageInsights/internal/aggregate"
	"github.com/TobiSchelling/PageInsights/internal/dataset"
)

// AllDataBucket is the single bucket used when no article has a usable date.
const AllDataBucket = "All Data"

// DayBucket is one day of traffic.
type DayBucket struct {
	Date     string `json:"date"`
	Views    int    `json:"views"`
	Articles int    `json:"articles"`
}

// DailyTraffic sums article views per publish day. Undated articles are left
// out, unless no article is dated at all, in which case everything collapses
// into one AllDataBucket.
func DailyTraffic(articles []aggregate.Article) []DayBucket {
	type dated struct {
		day   string
		views int
	}
	var items []dated
	for _, a := range articles {
		if day, ok := dataset.DayKey(a.PublishDate); ok {
			items = append(items, dated{day, a.Views})
		}
	}

	if len(items) == 0 {
		if len(articles) == 0 {
			return nil
		}
		return []DayBucket{{Date: AllDataBucket, Views: aggregate.TotalViews(articles), Articles: len(articles)}}
	}

	groups := aggregate.GroupBy(items,
		func(_ int, d dated) (string, bool) { return d.day, true },
		func(d dated) DayBucket { return DayBucket{Date: d.day, Views: d.views, Articles: 1} },
		func(acc *DayBucket, d dated) {
			aggregate.SumInt(&acc.Views, d.views)
			acc.Articles++
		},
	)
	buckets := aggregate.Values(groups)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date < buckets[j].Date })
	return buckets
}
