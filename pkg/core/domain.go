// Package core holds the catalog domain: contexts, observations, aggregate
// records, the merge engine and the search engine. It is agnostic to the
// storage backend and to the transport that feeds it.
package core

import (
	"sort"
	"strings"
	"time"
)

// FieldIdentity is the deterministic key of an aggregate record.
type FieldIdentity string

// Context is a named observation point with a declared metadata schema.
type Context struct {
	ID                   string   `json:"contextId" yaml:"id"`
	DisplayName          string   `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description          string   `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredMetadataKeys []string `json:"requiredMetadata" yaml:"requiredMetadata"`
	OptionalMetadataKeys []string `json:"optionalMetadata,omitempty" yaml:"optionalMetadata,omitempty"`
	Active               bool     `json:"active" yaml:"active"`
}

// Normalize returns a copy of the context with its id and metadata keys in
// canonical casing. Required keys keep their declared order.
func (c Context) Normalize() Context {
	out := c
	out.ID = Canonical(c.ID)
	out.RequiredMetadataKeys = canonicalKeys(c.RequiredMetadataKeys, false)
	out.OptionalMetadataKeys = canonicalKeys(c.OptionalMetadataKeys, true)
	return out
}

// IsRequired reports whether key is one of the context's required metadata keys.
func (c Context) IsRequired(key string) bool {
	return containsFolded(c.RequiredMetadataKeys, key)
}

// IsOptional reports whether key is one of the context's optional metadata keys.
func (c Context) IsOptional(key string) bool {
	return containsFolded(c.OptionalMetadataKeys, key)
}

// UnknownKeys lists the metadata keys that the context does not declare, sorted.
func (c Context) UnknownKeys(metadata map[string]string) []string {
	var unknown []string
	for key := range metadata {
		if !c.IsRequired(key) && !c.IsOptional(key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// SameRequiredKeys reports whether two contexts declare the same required
// metadata keys, ignoring case and order.
func (c Context) SameRequiredKeys(other Context) bool {
	a := canonicalKeys(c.RequiredMetadataKeys, true)
	b := canonicalKeys(other.RequiredMetadataKeys, true)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Observation is one raw sighting of a field inside a processed document.
type Observation struct {
	Metadata        map[string]string `json:"metadata" yaml:"metadata"`
	FieldPath       string            `json:"fieldPath" yaml:"fieldPath"`
	OccurrenceCount int               `json:"count" yaml:"count"`
	HasNull         bool              `json:"hasNull" yaml:"hasNull"`
	HasEmpty        bool              `json:"hasEmpty" yaml:"hasEmpty"`
}

// AggregateRecord holds the accumulated statistics of one field identity.
type AggregateRecord struct {
	ID               FieldIdentity       `json:"id" yaml:"id"`
	ContextID        string              `json:"contextId" yaml:"contextId"`
	RequiredMetadata map[string]string   `json:"requiredMetadata" yaml:"requiredMetadata"`
	OptionalMetadata map[string][]string `json:"optionalMetadata,omitempty" yaml:"optionalMetadata,omitempty"`
	FieldPath        string              `json:"fieldPath" yaml:"fieldPath"`
	MinOccurs        int                 `json:"minOccurs" yaml:"minOccurs"`
	MaxOccurs        int                 `json:"maxOccurs" yaml:"maxOccurs"`
	AllowsNull       bool                `json:"allowsNull" yaml:"allowsNull"`
	AllowsEmpty      bool                `json:"allowsEmpty" yaml:"allowsEmpty"`
	FirstObservedAt  time.Time           `json:"firstObservedAt" yaml:"firstObservedAt"`
	LastObservedAt   time.Time           `json:"lastObservedAt" yaml:"lastObservedAt"`
}

// Depth is the number of path separators in the field path.
func (r AggregateRecord) Depth() int {
	return PathDepth(r.FieldPath)
}

// MetadataValues returns every value the record carries for key: the single
// required value, or the accumulated optional values.
func (r AggregateRecord) MetadataValues(key string) []string {
	key = Canonical(key)
	if v, ok := r.RequiredMetadata[key]; ok {
		return []string{v}
	}
	return r.OptionalMetadata[key]
}

// MetadataKeys returns the sorted union of required and optional keys.
func (r AggregateRecord) MetadataKeys() []string {
	keys := make([]string, 0, len(r.RequiredMetadata)+len(r.OptionalMetadata))
	for k := range r.RequiredMetadata {
		keys = append(keys, k)
	}
	for k := range r.OptionalMetadata {
		if _, dup := r.RequiredMetadata[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers can mutate the record freely.
func (r AggregateRecord) Clone() AggregateRecord {
	out := r
	out.RequiredMetadata = make(map[string]string, len(r.RequiredMetadata))
	for k, v := range r.RequiredMetadata {
		out.RequiredMetadata[k] = v
	}
	if r.OptionalMetadata != nil {
		out.OptionalMetadata = make(map[string][]string, len(r.OptionalMetadata))
		for k, v := range r.OptionalMetadata {
			out.OptionalMetadata[k] = append([]string(nil), v...)
		}
	}
	return out
}

// PathDepth counts the '/' separators of a field path.
func PathDepth(path string) int {
	return strings.Count(path, "/")
}

// SortRecords orders records hierarchy first: by depth, then by field path.
// Ties on both keys fall back to context and identity so the order is total.
func SortRecords(records []AggregateRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return RecordLess(records[i], records[j])
	})
}

// RecordLess is the ordering used by SortRecords.
func RecordLess(a, b AggregateRecord) bool {
	if da, db := a.Depth(), b.Depth(); da != db {
		return da < db
	}
	if a.FieldPath != b.FieldPath {
		return a.FieldPath < b.FieldPath
	}
	if a.ContextID != b.ContextID {
		return a.ContextID < b.ContextID
	}
	return a.ID < b.ID
}

func canonicalKeys(keys []string, sorted bool) []string {
	if keys == nil {
		return nil
	}
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		ck := Canonical(k)
		if ck == "" || seen[ck] {
			continue
		}
		seen[ck] = true
		out = append(out, ck)
	}
	if sorted {
		sort.Strings(out)
	}
	return out
}

func containsFolded(keys []string, key string) bool {
	ck := Canonical(key)
	for _, k := range keys {
		if Canonical(k) == ck {
			return true
		}
	}
	return false
}
