// Package registry provides core.Registry implementations: an in-memory
// registry and a YAML file loader that keeps it in sync with disk.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// ErrRequiredKeysChanged is returned when a definition tries to change the
// required metadata keys of a context that is already registered.
var ErrRequiredKeysChanged = errors.New("required metadata keys of a registered context cannot change")

// Static is a thread-safe in-memory registry.
type Static struct {
	mu       sync.RWMutex
	contexts map[string]core.Context
	// pinned remembers the required keys of every context ever registered,
	// so removing and re-adding a context cannot change its identity scheme.
	pinned     map[string]core.Context
	lastReload time.Time
}

// NewStatic creates a registry holding the given contexts.
func NewStatic(contexts ...core.Context) (*Static, error) {
	r := &Static{
		contexts: make(map[string]core.Context),
		pinned:   make(map[string]core.Context),
	}
	for _, c := range contexts {
		if err := r.Put(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get implements core.Registry.
func (r *Static) Get(ctx context.Context, id string) (core.Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contexts[core.Canonical(id)]
	if !ok {
		return core.Context{}, &core.ContextNotFoundError{ContextID: core.Canonical(id)}
	}
	return c, nil
}

// List implements core.Registry.
func (r *Static) List(ctx context.Context) ([]core.Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put registers or updates one context.
func (r *Static) Put(c core.Context) error {
	c = c.Normalize()
	if err := validateContext(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPinned(c); err != nil {
		return err
	}
	r.contexts[c.ID] = c
	r.pinned[c.ID] = c
	return nil
}

// SetActive toggles whether a context accepts observations.
func (r *Static) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contexts[core.Canonical(id)]
	if !ok {
		return &core.ContextNotFoundError{ContextID: core.Canonical(id)}
	}
	c.Active = active
	r.contexts[c.ID] = c
	return nil
}

// Replace swaps the whole set of contexts, as done on a file reload.
// Definitions that are invalid or that change pinned required keys are
// rejected; for those the previous definition, if any, is kept. The returned
// error joins every rejection.
func (r *Static) Replace(contexts []core.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]core.Context, len(contexts))
	var errs []error
	for _, c := range contexts {
		c = c.Normalize()
		if err := validateContext(c); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := next[c.ID]; dup {
			errs = append(errs, fmt.Errorf("context %q defined more than once", c.ID))
			continue
		}
		if err := r.checkPinned(c); err != nil {
			errs = append(errs, err)
			if prev, ok := r.contexts[c.ID]; ok {
				next[c.ID] = prev
			}
			continue
		}
		next[c.ID] = c
	}

	for id, c := range next {
		r.pinned[id] = c
	}
	r.contexts = next
	r.lastReload = time.Now()
	return errors.Join(errs...)
}

func (r *Static) checkPinned(c core.Context) error {
	prev, ok := r.pinned[c.ID]
	if !ok || prev.SameRequiredKeys(c) {
		return nil
	}
	return fmt.Errorf("context %q: %w (have %s, got %s)", c.ID, ErrRequiredKeysChanged,
		strings.Join(prev.RequiredMetadataKeys, ","), strings.Join(c.RequiredMetadataKeys, ","))
}

func validateContext(c core.Context) error {
	if c.ID == "" {
		return errors.New("context id is required")
	}
	if len(c.RequiredMetadataKeys) == 0 {
		return fmt.Errorf("context %q declares no required metadata", c.ID)
	}
	for _, k := range c.OptionalMetadataKeys {
		if c.IsRequired(k) {
			return fmt.Errorf("context %q: key %q is both required and optional", c.ID, k)
		}
	}
	return nil
}

// StaticState exposes internal state for observability.
type StaticState struct {
	Contexts   int        `json:"contexts"`
	Active     int        `json:"active"`
	LastReload *time.Time `json:"last_reload,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Static) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := StaticState{Contexts: len(r.contexts)}
	for _, c := range r.contexts {
		if c.Active {
			st.Active++
		}
	}
	if !r.lastReload.IsZero() {
		t := r.lastReload
		st.LastReload = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (r *Static) ComponentType() string {
	return "registry"
}

var _ core.Registry = (*Static)(nil)
var _ introspection.Introspectable = (*Static)(nil)
var _ introspection.Component = (*Static)(nil)
