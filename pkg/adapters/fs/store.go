// Package fs stores aggregate records as one JSON or YAML file per context.
// Writers on the same directory are serialized across processes with an
// advisory file lock, and every file is replaced atomically.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

const (
	// DefaultSystemDir holds the lock file and the projection index.
	DefaultSystemDir = ".catalog"
	// RecordsDir is the sub directory holding one record file per context.
	RecordsDir = "records"

	defaultLockTimeout = 5 * time.Second
)

// Config holds the configuration for the filesystem store.
type Config struct {
	Path        string
	Format      string // "json" (default) or "yaml"
	MustExist   bool
	SystemDir   string
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Store implements core.Store on the filesystem.
type Store struct {
	Path       string
	config     Config
	ext        string
	serializer Serializer
	lock       *fileLock
	cache      *cache

	mu       sync.Mutex
	loaded   map[string]*contextRecords
	lastSync time.Time
}

// contextRecords is the in-memory copy of one record file.
type contextRecords struct {
	name    string
	modTime time.Time
	size    int64
	info    os.FileInfo
	records map[core.FieldIdentity]core.AggregateRecord
}

// NewStore creates a filesystem store. Call Initialize before use.
func NewStore(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, errors.New("fs store: path is required")
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	format := strings.ToLower(strings.TrimPrefix(config.Format, "."))
	if format == "" {
		format = "json"
	}
	ext := "." + format
	ser, ok := DefaultSerializers()[ext]
	if !ok {
		return nil, fmt.Errorf("fs store: unsupported format %q", config.Format)
	}

	return &Store{
		Path:       config.Path,
		config:     config,
		ext:        ext,
		serializer: ser,
		lock:       newFileLock(filepath.Join(config.Path, config.SystemDir, "catalog.lock"), config.LockTimeout),
		cache:      newCache(config.Path, config.SystemDir),
		loaded:     make(map[string]*contextRecords),
	}, nil
}

// Initialize creates the directory layout, loads every record file and
// rebuilds the field path projection. It is safe to call more than once.
func (s *Store) Initialize(ctx context.Context) error {
	if s.config.MustExist {
		info, err := os.Stat(s.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("catalog path does not exist: %s", s.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("catalog path is not a directory: %s", s.Path)
		}
	}
	for _, dir := range []string{s.Path, s.recordsDir(), filepath.Join(s.Path, s.config.SystemDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := s.cache.Load(); err != nil {
		s.config.Logger.Warn("ignoring unreadable index", "path", s.cache.Path, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}
	if err := s.cache.Save(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	s.config.Logger.Debug("fs store initialized", "path", s.Path, "contexts", len(s.loaded), "format", s.ext)
	return nil
}

// GetByIDs implements core.Store.
func (s *Store) GetByIDs(ctx context.Context, ids []core.FieldIdentity) (map[core.FieldIdentity]core.AggregateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}
	out := make(map[core.FieldIdentity]core.AggregateRecord, len(ids))
	for _, id := range ids {
		for _, cr := range s.loaded {
			if rec, ok := cr.records[id]; ok {
				out[id] = rec.Clone()
				break
			}
		}
	}
	return out, nil
}

// PutAll implements core.Store. Records are grouped by context and each
// affected file is rewritten once while holding the cross-process lock.
func (s *Store) PutAll(ctx context.Context, records []core.AggregateRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.release()

	if err := s.refresh(); err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, rec := range records {
		cr := s.contextFor(rec.ContextID)
		cr.records[rec.ID] = rec.Clone()
		touched[rec.ContextID] = true
	}

	for contextID := range touched {
		err := ctx.Err()
		if err == nil {
			err = s.writeContext(contextID)
		}
		if err != nil {
			// Forget unwritten changes; the next refresh reloads from disk.
			s.loaded = make(map[string]*contextRecords)
			return err
		}
	}
	return s.cache.Save()
}

// FindFieldPaths implements core.Store. It answers from the field path
// projection kept in the index when the record file is unchanged.
func (s *Store) FindFieldPaths(ctx context.Context, contextID string, required map[string]string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}
	cr, ok := s.loaded[contextID]
	if !ok {
		return []string{}, nil
	}

	variant := core.VariantKey(required)
	if entry, ok := s.cache.Get(cr.name, cr.modTime, cr.size); ok {
		return append([]string{}, entry.Variants[variant]...), nil
	}
	return append([]string{}, projection(cr)[variant]...), nil
}

// Query implements core.Store.
func (s *Store) Query(ctx context.Context, q core.StructuredQuery) (core.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}

	var matched []core.AggregateRecord
	for _, contextID := range q.ContextIDs {
		cr, ok := s.loaded[contextID]
		if !ok {
			continue
		}
		for _, rec := range cr.records {
			if q.Matches(rec) {
				matched = append(matched, rec.Clone())
			}
		}
	}
	core.SortRecords(matched)
	return core.NewSliceCursor(matched), nil
}

// DeleteByContext implements core.Store.
func (s *Store) DeleteByContext(ctx context.Context, contextID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.lock.release()

	if err := s.refresh(); err != nil {
		return 0, err
	}
	cr, ok := s.loaded[contextID]
	if !ok {
		return 0, nil
	}
	n := len(cr.records)
	if err := os.Remove(filepath.Join(s.recordsDir(), cr.name)); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to delete %s: %w", cr.name, err)
	}
	delete(s.loaded, contextID)
	s.cache.Delete(cr.name)
	if err := s.cache.Save(); err != nil {
		return n, err
	}
	return n, nil
}

// refresh reloads record files changed on disk since they were last read.
// Callers must hold s.mu.
func (s *Store) refresh() error {
	entries, err := os.ReadDir(s.recordsDir())
	if os.IsNotExist(err) {
		return fmt.Errorf("fs store not initialized: %s", s.recordsDir())
	}
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	seen := make(map[string]bool)
	keep := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != s.ext || strings.HasPrefix(e.Name(), TempFilePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		keep[e.Name()] = true

		cr := s.loadedByName(e.Name())
		if cr != nil && cr.unchanged(info) {
			seen[cr.contextIDKey()] = true
			continue
		}

		cr, err = s.readFile(e.Name(), info)
		if err != nil {
			return err
		}
		contextID := cr.contextIDKey()
		s.loaded[contextID] = cr
		seen[contextID] = true
		s.indexFile(contextID, cr)
	}

	for id := range s.loaded {
		if !seen[id] {
			delete(s.loaded, id)
		}
	}
	s.cache.Prune(keep)
	s.lastSync = time.Now()
	return nil
}

func (s *Store) readFile(name string, info os.FileInfo) (*contextRecords, error) {
	data, err := os.ReadFile(filepath.Join(s.recordsDir(), name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	rf, err := s.serializer.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if rf.Version > fileVersion {
		return nil, fmt.Errorf("%s: unsupported file version %d", name, rf.Version)
	}

	cr := &contextRecords{
		name:    name,
		modTime: info.ModTime(),
		size:    info.Size(),
		info:    info,
		records: make(map[core.FieldIdentity]core.AggregateRecord, len(rf.Records)),
	}
	for _, rec := range rf.Records {
		if rf.ContextID != "" && rec.ContextID == "" {
			rec.ContextID = rf.ContextID
		}
		cr.records[rec.ID] = rec
	}
	s.config.Logger.Debug("record file loaded", "file", name, "records", len(cr.records))
	return cr, nil
}

func (s *Store) writeContext(contextID string) error {
	cr := s.loaded[contextID]
	rf := RecordFile{
		Version:   fileVersion,
		ContextID: contextID,
		Records:   make([]core.AggregateRecord, 0, len(cr.records)),
	}
	for _, rec := range cr.records {
		rf.Records = append(rf.Records, rec)
	}
	core.SortRecords(rf.Records)

	data, err := s.serializer.Encode(rf)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", cr.name, err)
	}
	path := filepath.Join(s.recordsDir(), cr.name)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	cr.modTime = info.ModTime()
	cr.size = info.Size()
	cr.info = info
	s.indexFile(contextID, cr)
	return nil
}

func (s *Store) indexFile(contextID string, cr *contextRecords) {
	s.cache.Set(cr.name, &indexEntry{
		ContextID:    contextID,
		Records:      len(cr.records),
		Variants:     projection(cr),
		LastModified: cr.modTime,
		Size:         cr.size,
	})
}

func (s *Store) contextFor(contextID string) *contextRecords {
	cr, ok := s.loaded[contextID]
	if !ok {
		cr = &contextRecords{
			name:    s.fileName(contextID),
			records: make(map[core.FieldIdentity]core.AggregateRecord),
		}
		s.loaded[contextID] = cr
	}
	return cr
}

func (s *Store) loadedByName(name string) *contextRecords {
	for _, cr := range s.loaded {
		if cr.name == name {
			return cr
		}
	}
	return nil
}

func (s *Store) recordsDir() string {
	return filepath.Join(s.Path, RecordsDir)
}

func (s *Store) fileName(contextID string) string {
	return url.PathEscape(contextID) + s.ext
}

// unchanged reports whether info still describes the file that was loaded.
// Atomic writes replace the inode, so os.SameFile catches rewrites that keep
// the same mtime and size.
func (cr *contextRecords) unchanged(info os.FileInfo) bool {
	if cr.info == nil || !os.SameFile(cr.info, info) {
		return false
	}
	return cr.modTime.Equal(info.ModTime()) && cr.size == info.Size()
}

// contextIDKey recovers the context id a file belongs to.
func (cr *contextRecords) contextIDKey() string {
	for _, rec := range cr.records {
		return rec.ContextID
	}
	id, err := url.PathUnescape(strings.TrimSuffix(cr.name, filepath.Ext(cr.name)))
	if err != nil {
		return cr.name
	}
	return id
}

// projection groups the field paths of a file by required-metadata variant.
func projection(cr *contextRecords) map[string][]string {
	out := make(map[string][]string)
	for _, rec := range cr.records {
		key := core.VariantKey(rec.RequiredMetadata)
		out[key] = append(out[key], rec.FieldPath)
	}
	for key := range out {
		sort.Strings(out[key])
	}
	return out
}

var _ core.Store = (*Store)(nil)
