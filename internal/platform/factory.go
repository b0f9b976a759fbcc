package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/registry"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/telemetry"
)

// Catalog bundles a ready service with the components it was built from.
type Catalog struct {
	Service  *core.Service
	Store    core.Store
	Registry core.Registry
	// Watcher is set when the registry is loaded from a watched directory.
	Watcher *registry.Watcher
	// Gatherer is set when metrics are registered on a gatherer.
	Gatherer prometheus.Gatherer

	closers []func() error
}

// New builds a catalog service.
//
//	c, err := catalog.New("./data", catalog.WithRegistryDir("./contexts"))
//
// The URI argument is adapter-specific (e.g., a directory for 'fs').
func New(uri string, opts ...Option) (*Catalog, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	ctx := context.Background()

	c := &Catalog{}

	// 1. Registry
	reg, err := initRegistry(c, o)
	if err != nil {
		return nil, err
	}
	c.Registry = reg

	// 2. Store
	store, closer, err := initStore(ctx, uri, o)
	if err != nil {
		return nil, err
	}
	c.Store = store
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	// 3. Metrics
	var recorder core.MetricsRecorder
	if o.metrics != nil {
		m, err := telemetry.NewMetrics(o.metrics)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		recorder = m
		if g, ok := o.metrics.(prometheus.Gatherer); ok {
			c.Gatherer = g
		}
	}

	// 4. Domain service
	c.Service = core.NewService(store, reg, core.Config{
		Logger:       o.logger,
		Metrics:      recorder,
		Now:          o.now,
		DefaultLimit: o.int("default_limit"),
		MaxLimit:     o.int("max_limit"),
		ReadOnly:     o.bool("read_only"),
	})
	return c, nil
}

func initRegistry(c *Catalog, o *options) (core.Registry, error) {
	if o.registry != nil {
		return o.registry, nil
	}

	dir := o.string("registry_dir")
	if dir != "" && len(o.contexts) > 0 {
		return nil, errors.New("inline contexts cannot be combined with a registry directory")
	}
	static, err := registry.NewStatic(o.contexts...)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return static, nil
	}
	pattern := o.string("registry_pattern")
	if pattern == "" {
		pattern = registry.DefaultPattern
	}

	var watchOpts []registry.WatchOption
	if o.logger != nil {
		watchOpts = append(watchOpts, registry.WithWatchLogger(o.logger))
	}
	w := registry.NewWatcher(dir, pattern, static, watchOpts...)
	if err := w.Reload(); err != nil {
		return nil, fmt.Errorf("loading context registry: %w", err)
	}
	if o.bool("registry_watch") {
		c.Watcher = w
	}
	return static, nil
}

// Watch starts the registry watcher, if any. It returns immediately.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.Watcher == nil {
		return nil
	}
	return c.Watcher.Start(ctx)
}

// Close releases store resources.
func (c *Catalog) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	c.closers = nil
	return errors.Join(errs...)
}
