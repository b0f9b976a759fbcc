// Package facet refines an already-fetched search result by metadata values.
//
// Counting is disjunctive: the counts shown for a key ignore that key's own
// selection, so picking a value never hides the alternatives.
package facet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// Mode is the selection mode of one facet.
type Mode string

const (
	// ModeAny lets several values be selected; a record passes if its value
	// is any of them.
	ModeAny Mode = "any"
	// ModeOne restricts the selection to a single value.
	ModeOne Mode = "one"
)

// ErrConfirmationRequired is returned when a mode switch would discard a
// multi-value selection and the caller did not confirm it.
var ErrConfirmationRequired = errors.New("switching to single-select discards the current selection")

// ErrMultipleSelected is matched by SelectionError.
var ErrMultipleSelected = errors.New("single-select facet has more than one selected value")

// SelectionError reports a ModeOne facet holding several values. The state
// is rejected as a whole; nothing is dropped from the selection.
type SelectionError struct {
	Key      string
	Selected []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("facet %q is single-select but has %d values selected", e.Key, len(e.Selected))
}

func (e *SelectionError) Is(target error) bool { return target == ErrMultipleSelected }

// Facet is the selection state of one metadata key.
type Facet struct {
	Mode     Mode     `json:"mode" validate:"omitempty,oneof=any one"`
	Selected []string `json:"selected"`
}

// State maps canonical metadata keys to their facet.
type State map[string]Facet

// Normalize folds keys and values to canonical casing and drops duplicates.
func (s State) Normalize() State {
	out := make(State, len(s))
	for key, f := range s {
		ck := core.Canonical(key)
		if ck == "" {
			continue
		}
		mode := f.Mode
		if mode == "" {
			mode = ModeAny
		}
		var values []string
		for _, v := range f.Selected {
			if cv := core.Canonical(v); cv != "" {
				values = append(values, cv)
			}
		}
		prev := out[ck]
		out[ck] = Facet{Mode: mode, Selected: core.UnionValues(prev.Selected, values)}
	}
	return out
}

// Validate checks a normalized state: every mode is known and no ModeOne
// facet holds more than one value. Keys are checked in sorted order.
func (s State) Validate() error {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		f := s[key]
		switch f.Mode {
		case "", ModeAny:
		case ModeOne:
			if len(f.Selected) > 1 {
				return &SelectionError{Key: key, Selected: f.Selected}
			}
		default:
			return &core.QueryError{Param: "facets." + key + ".mode", Reason: fmt.Sprintf("unknown facet mode %q", f.Mode)}
		}
	}
	return nil
}

// Select adds value to the selection of key. In ModeOne it replaces it.
func (s State) Select(key, value string) {
	key, value = core.Canonical(key), core.Canonical(value)
	f := s[key]
	if f.Mode == "" {
		f.Mode = ModeAny
	}
	if f.Mode == ModeOne {
		f.Selected = []string{value}
	} else {
		f.Selected = core.UnionValues(f.Selected, []string{value})
	}
	s[key] = f
}

// Toggle selects value if it is not selected and deselects it otherwise.
func (s State) Toggle(key, value string) {
	key, value = core.Canonical(key), core.Canonical(value)
	f := s[key]
	for i, v := range f.Selected {
		if v == value {
			f.Selected = append(f.Selected[:i:i], f.Selected[i+1:]...)
			s[key] = f
			return
		}
	}
	s.Select(key, value)
}

// Clear empties the selection of key and keeps its mode.
func (s State) Clear(key string) {
	key = core.Canonical(key)
	if f, ok := s[key]; ok {
		f.Selected = nil
		s[key] = f
	}
}

// SetMode changes the mode of key. Moving to ModeOne while more than one
// value is selected clears the selection, and only happens with confirm set.
func (s State) SetMode(key string, mode Mode, confirm bool) error {
	if mode != ModeAny && mode != ModeOne {
		return fmt.Errorf("unknown facet mode %q", mode)
	}
	key = core.Canonical(key)
	f := s[key]
	if mode == ModeOne && len(f.Selected) > 1 {
		if !confirm {
			return ErrConfirmationRequired
		}
		f.Selected = nil
	}
	f.Mode = mode
	s[key] = f
	return nil
}

// Recompute returns the records that satisfy every facet with a non-empty
// selection. The two modes filter identically.
func Recompute(results []core.AggregateRecord, state State) []core.AggregateRecord {
	return filter(results, state, "")
}

// DisjunctiveCounts applies every facet except key's own and counts the
// distinct values of key among the surviving records. A record holding
// several optional values for key counts once per value.
func DisjunctiveCounts(results []core.AggregateRecord, state State, key string) map[string]int {
	key = core.Canonical(key)
	counts := make(map[string]int)
	for _, r := range filter(results, state, key) {
		for _, v := range core.UnionValues(nil, r.MetadataValues(key)) {
			counts[v]++
		}
	}
	return counts
}

// Keys lists every metadata key present in results, sorted.
func Keys(results []core.AggregateRecord) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range results {
		for _, k := range r.MetadataKeys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func filter(results []core.AggregateRecord, state State, skip string) []core.AggregateRecord {
	out := make([]core.AggregateRecord, 0, len(results))
	for _, r := range results {
		if passes(r, state, skip) {
			out = append(out, r)
		}
	}
	return out
}

func passes(r core.AggregateRecord, state State, skip string) bool {
	for key, f := range state {
		if key == skip || len(f.Selected) == 0 {
			continue
		}
		if !intersects(r.MetadataValues(key), f.Selected) {
			return false
		}
	}
	return true
}

func intersects(values, selected []string) bool {
	for _, v := range values {
		for _, s := range selected {
			if v == s {
				return true
			}
		}
	}
	return false
}
