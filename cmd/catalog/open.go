package main

import (
	"log/slog"
	"os"
	"path/filepath"

	catalog "github.com/rawneddy/ceremony-field-catalog-sub002"
)

// openCatalog builds a catalog from the resolved configuration. The registry
// directory is relative to the data directory unless absolute.
func openCatalog(extra ...catalog.Option) (*catalog.Catalog, error) {
	data := cfg.GetString("data")
	opts := []catalog.Option{
		catalog.WithLogger(slog.Default()),
		catalog.WithAdapter(cfg.GetString("adapter")),
		catalog.WithFormat(cfg.GetString("format")),
		catalog.WithReadOnly(cfg.GetBool("read-only")),
		catalog.WithDefaultLimit(cfg.GetInt("default-limit")),
		catalog.WithMaxLimit(cfg.GetInt("max-limit")),
	}

	if dir := cfg.GetString("registry"); dir != "" {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(data, dir)
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			opts = append(opts, catalog.WithRegistryDir(dir))
			if p := cfg.GetString("registry-pattern"); p != "" {
				opts = append(opts, catalog.WithRegistryPattern(p))
			}
		} else {
			slog.Warn("registry directory not found, no context is registered", "dir", dir)
		}
	}

	return catalog.New(data, append(opts, extra...)...)
}
