package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Path      string     `json:"path"`
	SystemDir string     `json:"system_dir"`
	Format    string     `json:"format"`
	Contexts  int        `json:"contexts"`
	Records   int        `json:"records"`
	IndexSize int        `json:"index_size"`
	LockPath  string     `json:"lock_path"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := StoreState{
		Path:      s.Path,
		SystemDir: s.config.SystemDir,
		Format:    s.ext[1:],
		Contexts:  len(s.loaded),
		IndexSize: s.cache.Len(),
		LockPath:  s.lock.flock.Path(),
	}
	for _, cr := range s.loaded {
		st.Records += len(cr.records)
	}
	if !s.lastSync.IsZero() {
		t := s.lastSync
		st.LastSync = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "fs-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
