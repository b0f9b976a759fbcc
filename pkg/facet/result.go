package facet

import (
	"sort"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// Bucket is one value of a facet with its disjunctive count.
type Bucket struct {
	Value    string `json:"value"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

// Summary describes one metadata key of the result set.
type Summary struct {
	Key     string   `json:"key"`
	Mode    Mode     `json:"mode"`
	Buckets []Bucket `json:"buckets"`
}

// Result is the facet view of a search: the visible records and one summary
// per metadata key.
type Result struct {
	Visible []core.AggregateRecord `json:"results"`
	Total   int                    `json:"total"`
	Facets  []Summary              `json:"facets"`
}

// Compute builds the full facet view of results under state. Buckets are
// ordered by descending count, then value. Selected values that no longer
// occur are kept with a zero count so they can still be deselected.
// A state failing Validate is rejected unchanged.
func Compute(results []core.AggregateRecord, state State) (Result, error) {
	state = state.Normalize()
	if err := state.Validate(); err != nil {
		return Result{}, err
	}
	visible := Recompute(results, state)

	keys := Keys(results)
	for key := range state {
		if i := sort.SearchStrings(keys, key); i == len(keys) || keys[i] != key {
			keys = append(keys, key)
			sort.Strings(keys)
		}
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		f := state[key]
		mode := f.Mode
		if mode == "" {
			mode = ModeAny
		}

		counts := DisjunctiveCounts(results, state, key)
		for _, v := range f.Selected {
			if _, ok := counts[v]; !ok {
				counts[v] = 0
			}
		}

		buckets := make([]Bucket, 0, len(counts))
		for v, n := range counts {
			buckets = append(buckets, Bucket{Value: v, Count: n, Selected: contains(f.Selected, v)})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Value < buckets[j].Value
		})
		summaries = append(summaries, Summary{Key: key, Mode: mode, Buckets: buckets})
	}

	return Result{Visible: visible, Total: len(visible), Facets: summaries}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
