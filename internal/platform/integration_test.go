package platform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rawneddy/ceremony-field-catalog-sub002/internal/platform"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

const depositsYAML = `contexts:
  - id: deposits
    displayName: Deposits
    requiredMetadata: [productCode, action]
    optionalMetadata: [channel]
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deposits.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func balance(product string) core.Observation {
	return core.Observation{
		FieldPath:       "/Ceremony/Account/Balance",
		OccurrenceCount: 1,
		Metadata:        map[string]string{"productCode": product, "action": "Fulfillment"},
	}
}

func TestNew(t *testing.T) {
	for _, adapter := range []string{platform.AdapterFS, platform.AdapterSQLite, platform.AdapterMemory} {
		t.Run(adapter, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			c, err := platform.New(filepath.Join(t.TempDir(), "data"),
				platform.WithAdapter(adapter),
				platform.WithRegistryDir(writeRegistry(t, depositsYAML)),
				platform.WithMetrics(reg),
			)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer c.Close()

			ctx := context.Background()
			res, err := c.Service.Merge(ctx, "deposits", []core.Observation{balance("DDA"), balance("SAV")})
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			if res.Created != 2 {
				t.Errorf("Created = %d, want 2", res.Created)
			}

			found, err := c.Service.Search(ctx, core.SearchRequest{ContextID: "deposits"})
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if found.TotalMatched != 2 {
				t.Errorf("TotalMatched = %d, want 2", found.TotalMatched)
			}

			if c.Gatherer == nil {
				t.Fatal("Expected a gatherer")
			}
			families, err := c.Gatherer.Gather()
			if err != nil {
				t.Fatal(err)
			}
			if len(families) == 0 {
				t.Error("Expected metric families after a merge")
			}
			if c.Watcher != nil {
				t.Error("Watcher must be nil unless watching is enabled")
			}
		})
	}
}

func TestNewOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("Inline Contexts", func(t *testing.T) {
		c, err := platform.New("", platform.WithAdapter(platform.AdapterMemory), platform.WithContexts(core.Context{
			ID: "deposits", RequiredMetadataKeys: []string{"productCode", "action"}, Active: true,
		}))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := c.Service.GetContext(ctx, "DEPOSITS"); err != nil {
			t.Errorf("GetContext failed: %v", err)
		}
	})

	t.Run("Inline Contexts With Directory", func(t *testing.T) {
		_, err := platform.New("", platform.WithAdapter(platform.AdapterMemory),
			platform.WithRegistryDir(t.TempDir()),
			platform.WithContexts(core.Context{ID: "x", RequiredMetadataKeys: []string{"k"}}),
		)
		if err == nil {
			t.Error("Expected an error when mixing inline contexts and a registry directory")
		}
	})

	t.Run("Invalid Registry", func(t *testing.T) {
		_, err := platform.New("", platform.WithAdapter(platform.AdapterMemory),
			platform.WithRegistryDir(writeRegistry(t, "contexts: [{id: broken}]\n")),
		)
		if err == nil {
			t.Error("Expected an error for a context without required keys")
		}
	})

	t.Run("Read Only", func(t *testing.T) {
		c, err := platform.New("", platform.WithAdapter(platform.AdapterMemory),
			platform.WithRegistryDir(writeRegistry(t, depositsYAML)),
			platform.WithReadOnly(true),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		_, err = c.Service.Merge(ctx, "deposits", []core.Observation{balance("DDA")})
		if !errors.Is(err, core.ErrReadOnly) {
			t.Errorf("Merge error = %v, want ErrReadOnly", err)
		}
	})

	t.Run("Limits And Clock", func(t *testing.T) {
		at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
		c, err := platform.New("", platform.WithAdapter(platform.AdapterMemory),
			platform.WithRegistryDir(writeRegistry(t, depositsYAML)),
			platform.WithDefaultLimit(1),
			platform.WithMaxLimit(10),
			platform.WithClock(func() time.Time { return at }),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := c.Service.Merge(ctx, "deposits", []core.Observation{balance("DDA"), balance("SAV")}); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		res, err := c.Service.Search(ctx, core.SearchRequest{})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(res.Results) != 1 || !res.Truncated {
			t.Errorf("Expected one truncated result, got %d (truncated=%v)", len(res.Results), res.Truncated)
		}
		if !res.Results[0].FirstObservedAt.Equal(at) {
			t.Errorf("FirstObservedAt = %v, want %v", res.Results[0].FirstObservedAt, at)
		}
	})
}

func TestWatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}
	dir := writeRegistry(t, depositsYAML)
	c, err := platform.New("", platform.WithAdapter(platform.AdapterMemory),
		platform.WithRegistryDir(dir),
		platform.WithRegistryWatch(true),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Watcher == nil {
		t.Fatal("Expected a watcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-c.Watcher.Done()
	}()
	if err := c.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	extra := "contexts:\n  - id: loans\n    requiredMetadata: [loanType]\n"
	if err := os.WriteFile(filepath.Join(dir, "loans.yaml"), []byte(extra), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Service.GetContext(ctx, "loans"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry was not reloaded after a new definition file appeared")
}
