package platform

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterSQLite = "sqlite"
	AdapterMemory = "memory"
)

// options holds the internal configuration of a catalog.
type options struct {
	store    core.Store
	registry core.Registry
	logger   *slog.Logger
	adapter  string
	config   map[string]interface{}
	contexts []core.Context
	metrics  prometheus.Registerer
	now      func() time.Time
}

// Option defines a functional option for configuring the catalog.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: AdapterFS,
		config:  make(map[string]interface{}),
	}
}

// WithLogger sets the logger shared by the service, the store and the
// registry watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore injects a custom storage adapter. The adapter named by
// WithAdapter is skipped.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithAdapter selects the storage adapter by name ("fs", "sqlite" or
// "memory"). Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithFormat selects the record file format of the fs adapter ("json" or
// "yaml").
func WithFormat(format string) Option {
	return func(o *options) {
		o.config["format"] = format
	}
}

// WithSystemDir sets the hidden directory of the fs adapter (default ".catalog").
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithLockTimeout bounds how long a writer waits for the fs adapter lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["lock_timeout"] = d
	}
}

// WithMustExist fails initialization when the data directory is missing.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithForceTemp forces the data into a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the sandbox used when running via `go run`.
// By default (true) the data path is re-rooted into a temporary directory
// so development runs never touch a real catalog.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithRegistry injects a context registry. Registry directories and inline
// contexts are ignored.
func WithRegistry(reg core.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithRegistryDir loads context definitions from YAML files under dir.
func WithRegistryDir(dir string) Option {
	return func(o *options) {
		o.config["registry_dir"] = dir
	}
}

// WithRegistryPattern overrides the glob used to find definition files.
func WithRegistryPattern(pattern string) Option {
	return func(o *options) {
		o.config["registry_pattern"] = pattern
	}
}

// WithRegistryWatch reloads the registry directory whenever it changes.
// The watcher must be started with Catalog.Watch.
func WithRegistryWatch(enabled bool) Option {
	return func(o *options) {
		o.config["registry_watch"] = enabled
	}
}

// WithContexts registers context definitions inline.
func WithContexts(contexts ...core.Context) Option {
	return func(o *options) {
		o.contexts = append(o.contexts, contexts...)
	}
}

// WithMetrics exports service metrics on reg. When reg is also a
// prometheus.Gatherer it is exposed as Catalog.Gatherer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

// WithClock overrides the time source stamped on aggregate records.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDefaultLimit sets the search limit used when a request has none.
func WithDefaultLimit(n int) Option {
	return func(o *options) {
		o.config["default_limit"] = n
	}
}

// WithMaxLimit sets the hard ceiling of any search.
func WithMaxLimit(n int) Option {
	return func(o *options) {
		o.config["max_limit"] = n
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Merge and purge return ErrReadOnly.
// 2. Directory creation is skipped.
// 3. Dev Safety Lock (go run temp dir) is BYPASSED (uses real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.config["read_only"] = enabled
	}
}

func (o *options) bool(key string) bool {
	v, _ := o.config[key].(bool)
	return v
}

func (o *options) string(key string) string {
	v, _ := o.config[key].(string)
	return v
}

func (o *options) int(key string) int {
	v, _ := o.config[key].(int)
	return v
}
