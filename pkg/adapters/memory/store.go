// Package memory provides an in-process core.Store. It backs tests and
// short-lived CLI runs where durability is not needed.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// Store keeps aggregate records in maps guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[core.FieldIdentity]core.AggregateRecord
	// variants indexes field identities by context and required metadata.
	variants map[string]map[core.FieldIdentity]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:  make(map[core.FieldIdentity]core.AggregateRecord),
		variants: make(map[string]map[core.FieldIdentity]struct{}),
	}
}

// Initialize implements core.Store. There is nothing to prepare.
func (s *Store) Initialize(ctx context.Context) error { return nil }

// GetByIDs implements core.Store.
func (s *Store) GetByIDs(ctx context.Context, ids []core.FieldIdentity) (map[core.FieldIdentity]core.AggregateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[core.FieldIdentity]core.AggregateRecord, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out[id] = rec.Clone()
		}
	}
	return out, nil
}

// PutAll implements core.Store.
func (s *Store) PutAll(ctx context.Context, records []core.AggregateRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		s.records[rec.ID] = rec.Clone()
		key := variantIndexKey(rec.ContextID, rec.RequiredMetadata)
		ids, ok := s.variants[key]
		if !ok {
			ids = make(map[core.FieldIdentity]struct{})
			s.variants[key] = ids
		}
		ids[rec.ID] = struct{}{}
	}
	return nil
}

// FindFieldPaths implements core.Store.
func (s *Store) FindFieldPaths(ctx context.Context, contextID string, required map[string]string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.variants[variantIndexKey(contextID, required)]
	paths := make([]string, 0, len(ids))
	for id := range ids {
		paths = append(paths, s.records[id].FieldPath)
	}
	sort.Strings(paths)
	return paths, nil
}

// Query implements core.Store.
func (s *Store) Query(ctx context.Context, q core.StructuredQuery) (core.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.AggregateRecord
	for _, rec := range s.records {
		if q.Matches(rec) {
			matched = append(matched, rec.Clone())
		}
	}
	core.SortRecords(matched)
	return core.NewSliceCursor(matched), nil
}

// DeleteByContext implements core.Store.
func (s *Store) DeleteByContext(ctx context.Context, contextID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if rec.ContextID != contextID {
			continue
		}
		delete(s.records, id)
		delete(s.variants, variantIndexKey(rec.ContextID, rec.RequiredMetadata))
		n++
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Records  int `json:"records"`
	Variants int `json:"variants"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreState{Records: len(s.records), Variants: len(s.variants)}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory-store"
}

var _ core.Store = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

func variantIndexKey(contextID string, required map[string]string) string {
	return strconv.Itoa(len(contextID)) + ":" + contextID + core.VariantKey(required)
}
