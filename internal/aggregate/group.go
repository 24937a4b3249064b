package aggregate

import (
	"cmp"
	"sort"
)

// Group is one bucket produced by GroupBy.
type Group[K comparable, V any] struct {
	Key   K
	Value V
	// Rows is the number of inputs merged into Value.
	Rows int
}

// GroupBy buckets items by key and folds each bucket with merge. The first
// item of a bucket seeds it through init. Items for which key reports
// ok=false are skipped. Groups are returned in order of first appearance.
func GroupBy[T any, K comparable, V any](
	items []T,
	key func(i int, item T) (K, bool),
	init func(item T) V,
	merge func(acc *V, item T),
) []Group[K, V] {
	index := make(map[K]int)
	var groups []Group[K, V]
	for i, item := range items {
		k, ok := key(i, item)
		if !ok {
			continue
		}
		if pos, seen := index[k]; seen {
			merge(&groups[pos].Value, item)
			groups[pos].Rows++
			continue
		}
		index[k] = len(groups)
		groups = append(groups, Group[K, V]{Key: k, Value: init(item), Rows: 1})
	}
	return groups
}

// Values strips the keys from a GroupBy result.
func Values[K comparable, V any](groups []Group[K, V]) []V {
	out := make([]V, len(groups))
	for i, g := range groups {
		out[i] = g.Value
	}
	return out
}

// Merge policies shared by every aggregation path.

// MaxInt keeps the larger of the accumulated and incoming totals.
func MaxInt(acc *int, v int) {
	if v > *acc {
		*acc = v
	}
}

// SumInt adds a distinct contribution.
func SumInt(acc *int, v int) {
	*acc += v
}

// MaxOptional MAX-merges an optional total. A nil incoming value leaves the
// accumulator untouched.
func MaxOptional[N cmp.Ordered](acc **N, v *N) {
	if v == nil {
		return
	}
	if *acc == nil || *v > **acc {
		val := *v
		*acc = &val
	}
}

// FirstNonEmpty keeps the first non-empty value seen.
func FirstNonEmpty(acc *string, v string) {
	if *acc == "" {
		*acc = v
	}
}

// Union merges values into a sorted set.
func Union(acc *[]string, vs ...string) {
	for _, v := range vs {
		if v == "" {
			continue
		}
		i := sort.SearchStrings(*acc, v)
		if i < len(*acc) && (*acc)[i] == v {
			continue
		}
		*acc = append(*acc, "")
		copy((*acc)[i+1:], (*acc)[i:])
		(*acc)[i] = v
	}
}
