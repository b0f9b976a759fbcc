package catalog

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rawneddy/ceremony-field-catalog-sub002/internal/platform"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// --- Types ---

// Catalog bundles a ready service with its store, registry and watcher.
type Catalog = platform.Catalog

// --- Configuration ---

// Option defines a functional option for configuring the catalog.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS     = platform.AdapterFS
	AdapterSQLite = platform.AdapterSQLite
	AdapterMemory = platform.AdapterMemory
)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithStore allows injecting a custom storage adapter.
func WithStore(store core.Store) Option {
	return platform.WithStore(store)
}

// WithAdapter selects the storage adapter by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithFormat selects the record file format of the fs adapter.
func WithFormat(format string) Option {
	return platform.WithFormat(format)
}

// WithSystemDir allows specifying the hidden directory name (e.g. ".catalog").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithLockTimeout bounds how long a writer waits for the fs adapter lock.
func WithLockTimeout(d time.Duration) Option {
	return platform.WithLockTimeout(d)
}

// WithMustExist ensures the data directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the `go run` sandbox.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithRegistry injects a context registry.
func WithRegistry(reg core.Registry) Option {
	return platform.WithRegistry(reg)
}

// WithRegistryDir loads context definitions from a directory.
func WithRegistryDir(dir string) Option {
	return platform.WithRegistryDir(dir)
}

// WithRegistryPattern overrides the glob used to find definition files.
func WithRegistryPattern(pattern string) Option {
	return platform.WithRegistryPattern(pattern)
}

// WithRegistryWatch reloads the registry directory when it changes.
func WithRegistryWatch(enabled bool) Option {
	return platform.WithRegistryWatch(enabled)
}

// WithContexts registers context definitions inline.
func WithContexts(contexts ...core.Context) Option {
	return platform.WithContexts(contexts...)
}

// WithMetrics exports service metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return platform.WithMetrics(reg)
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// WithDefaultLimit sets the default search limit.
func WithDefaultLimit(n int) Option {
	return platform.WithDefaultLimit(n)
}

// WithMaxLimit sets the search limit ceiling.
func WithMaxLimit(n int) Option {
	return platform.WithMaxLimit(n)
}

// WithReadOnly enables read-only mode.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// --- Factory ---

// New creates a catalog.
func New(path string, opts ...Option) (*Catalog, error) {
	return platform.New(path, opts...)
}

// Init initializes a store explicitly.
func Init(path string, opts ...Option) (core.Store, error) {
	return platform.Init(path, opts...)
}

// --- Safety & Utils ---

// ResolveDataPath determines the actual data path based on safety rules.
func ResolveDataPath(userPath string, forceTemp bool) string {
	return platform.ResolveDataPath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindRoot looks upwards for a catalog root.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
