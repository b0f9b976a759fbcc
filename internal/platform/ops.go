package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/fs"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/memory"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/sqlite"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// DatabaseFile is the SQLite file created inside a catalog directory.
const DatabaseFile = "catalog.db"

// Init opens and initializes the store selected by the options.
// The 'uri' argument is adapter-specific: a directory for 'fs', a
// directory or a .db file for 'sqlite', ignored for 'memory'.
func Init(uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	store, _, err := initStore(context.Background(), uri, o)
	return store, err
}

// initStore returns the store and an optional closer.
func initStore(ctx context.Context, uri string, o *options) (core.Store, func() error, error) {
	// 1. Injected store
	if o.store != nil {
		if err := o.store.Initialize(ctx); err != nil {
			return nil, nil, err
		}
		return o.store, nil, nil
	}

	// 2. Adapter by name
	var (
		store  core.Store
		closer func() error
		err    error
	)
	switch o.adapter {
	case AdapterFS, "":
		store, err = initFS(uri, o)
	case AdapterSQLite:
		var s *sqlite.Store
		s, err = initSQLite(uri, o)
		if s != nil {
			store, closer = s, s.Close
		}
	case AdapterMemory:
		store = memory.NewStore()
	default:
		return nil, nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, nil, err
	}

	// 3. Run initialization
	if err := store.Initialize(ctx); err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}
	return store, closer, nil
}

// resolvePath applies the dev sandbox rules to a user supplied path.
func resolvePath(path string, o *options) string {
	devSafety := true
	if val, ok := o.config["dev_safety"].(bool); ok {
		devSafety = val
	}
	readOnly := o.bool("read_only")

	// Bypass the sandbox when read-only (inherently safe) or explicitly disabled.
	bypassSafety := readOnly || !devSafety
	useTemp := o.bool("temp_dir") || (IsDevRun() && !bypassSafety)
	resolved := ResolveDataPath(path, useTemp)

	if o.logger != nil && useTemp && resolved != filepath.Clean(path) {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", path, "resolved_path", resolved)
	}
	return resolved
}

// initFS handles the initialization logic for the filesystem adapter.
func initFS(path string, o *options) (*fs.Store, error) {
	lockTimeout, _ := o.config["lock_timeout"].(time.Duration)
	return fs.NewStore(fs.Config{
		Path:        resolvePath(path, o),
		Format:      o.string("format"),
		MustExist:   o.bool("must_exist") || o.bool("read_only"),
		SystemDir:   o.string("system_dir"),
		LockTimeout: lockTimeout,
		Logger:      o.logger,
	})
}

// initSQLite opens the database file. A uri that is not a .db file is taken
// as the directory holding catalog.db.
func initSQLite(uri string, o *options) (*sqlite.Store, error) {
	path := resolvePath(uri, o)
	if !strings.HasSuffix(path, ".db") {
		path = filepath.Join(path, DatabaseFile)
	}
	dir := filepath.Dir(path)
	if o.bool("must_exist") || o.bool("read_only") {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("catalog database does not exist: %s", path)
		}
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return sqlite.New(sqlite.Config{DBPath: path, Logger: o.logger})
}
