package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/memory"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func renderDataContext() core.Context {
	return core.Context{
		ID:                   "renderdata",
		RequiredMetadataKeys: []string{"documentCode"},
		OptionalMetadataKeys: []string{"productCode", "channel"},
		Active:               true,
	}
}

func depositsContext() core.Context {
	return core.Context{
		ID:                   "deposits",
		RequiredMetadataKeys: []string{"productCode", "action"},
		Active:               true,
	}
}

type fixture struct {
	svc      *core.Service
	store    *memory.Store
	registry *registry.Static
}

func newFixture(t *testing.T, contexts ...core.Context) fixture {
	t.Helper()
	if len(contexts) == 0 {
		contexts = []core.Context{renderDataContext(), depositsContext()}
	}
	reg, err := registry.NewStatic(contexts...)
	require.NoError(t, err)
	store := memory.NewStore()
	svc := core.NewService(store, reg, core.Config{Now: func() time.Time { return testNow }})
	return fixture{svc: svc, store: store, registry: reg}
}

func obs(path string, count int, md map[string]string) core.Observation {
	return core.Observation{Metadata: md, FieldPath: path, OccurrenceCount: count}
}

func doc(code string) map[string]string {
	return map[string]string{"documentCode": code}
}

func (f fixture) all(t *testing.T, contextID string) []core.AggregateRecord {
	t.Helper()
	res, err := f.svc.Search(context.Background(), core.SearchRequest{ContextID: contextID, Limit: core.MaxSearchLimit})
	require.NoError(t, err)
	return res.Results
}

func (f fixture) byPath(t *testing.T, contextID string) map[string]core.AggregateRecord {
	t.Helper()
	out := make(map[string]core.AggregateRecord)
	for _, r := range f.all(t, contextID) {
		out[r.FieldPath] = r
	}
	return out
}
