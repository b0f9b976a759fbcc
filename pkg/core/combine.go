package core

import "sort"

// Stats is the mergeable part of an aggregate record. Every field combines
// monotonically, so merging is a fold of Combine over observations.
type Stats struct {
	MinOccurs   int
	MaxOccurs   int
	AllowsNull  bool
	AllowsEmpty bool
	Optional    map[string][]string
}

// Combine merges two statistics: min of minimums, max of maximums, OR of the
// flags and union of optional metadata values. It is commutative and
// associative, and it is the only merge rule used inside a batch and across
// batches.
func Combine(a, b Stats) Stats {
	out := Stats{
		MinOccurs:   min(a.MinOccurs, b.MinOccurs),
		MaxOccurs:   max(a.MaxOccurs, b.MaxOccurs),
		AllowsNull:  a.AllowsNull || b.AllowsNull,
		AllowsEmpty: a.AllowsEmpty || b.AllowsEmpty,
	}
	if len(a.Optional) > 0 || len(b.Optional) > 0 {
		out.Optional = make(map[string][]string, len(a.Optional)+len(b.Optional))
		for k, v := range a.Optional {
			out.Optional[k] = UnionValues(nil, v)
		}
		for k, v := range b.Optional {
			out.Optional[k] = UnionValues(out.Optional[k], v)
		}
	}
	return out
}

// observationStats lifts a single observation into Stats. Only the context's
// optional keys are kept; empty values are dropped.
func observationStats(c Context, o Observation) Stats {
	s := Stats{
		MinOccurs:   o.OccurrenceCount,
		MaxOccurs:   o.OccurrenceCount,
		AllowsNull:  o.HasNull,
		AllowsEmpty: o.HasEmpty,
	}
	for k, v := range o.Metadata {
		if !c.IsOptional(k) {
			continue
		}
		cv := Canonical(v)
		if cv == "" {
			continue
		}
		if s.Optional == nil {
			s.Optional = make(map[string][]string)
		}
		ck := Canonical(k)
		s.Optional[ck] = UnionValues(s.Optional[ck], []string{cv})
	}
	return s
}

// Stats extracts the mergeable statistics of the record.
func (r AggregateRecord) Stats() Stats {
	return Stats{
		MinOccurs:   r.MinOccurs,
		MaxOccurs:   r.MaxOccurs,
		AllowsNull:  r.AllowsNull,
		AllowsEmpty: r.AllowsEmpty,
		Optional:    r.OptionalMetadata,
	}
}

func (r *AggregateRecord) applyStats(s Stats) {
	r.MinOccurs = s.MinOccurs
	r.MaxOccurs = s.MaxOccurs
	r.AllowsNull = s.AllowsNull
	r.AllowsEmpty = s.AllowsEmpty
	r.OptionalMetadata = s.Optional
}

// UnionValues returns the sorted, de-duplicated union of a and b.
func UnionValues(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
