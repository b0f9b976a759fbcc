package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/memory"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/registry"
)

func seeded(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t, renderDataContext(), depositsContext(), core.Context{
		ID:                   "legacy",
		RequiredMetadataKeys: []string{"system"},
		Active:               true,
	})

	_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
		obs("/Document/Header", 1, map[string]string{"documentCode": "X1", "productCode": "DDA"}),
		obs("/Document/Header/Title", 1, map[string]string{"documentCode": "X1", "productCode": "DDA"}),
		obs("/Document", 1, map[string]string{"documentCode": "X1", "productCode": "SAV"}),
	})
	require.NoError(t, err)
	_, err = f.svc.Merge(ctx, "deposits", []core.Observation{
		obs("/Ceremony/Account", 1, map[string]string{"productCode": "DDA", "action": "Fulfillment"}),
		obs("/Ceremony/Header", 1, map[string]string{"productCode": "SAV", "action": "Fulfillment"}),
	})
	require.NoError(t, err)
	_, err = f.svc.Merge(ctx, "legacy", []core.Observation{
		obs("/Old/Header", 1, map[string]string{"system": "mainframe"}),
	})
	require.NoError(t, err)
	require.NoError(t, f.registry.SetActive("legacy", false))
	return f
}

func paths(res core.SearchResult) []string {
	out := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, r.ContextID+":"+r.FieldPath)
	}
	return out
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := seeded(t)

	t.Run("All Active Contexts Ordered By Depth", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"renderdata:/Document",
			"deposits:/Ceremony/Account",
			"deposits:/Ceremony/Header",
			"renderdata:/Document/Header",
			"renderdata:/Document/Header/Title",
		}, paths(res))
		assert.Equal(t, 5, res.TotalMatched)
		assert.False(t, res.Truncated)
		assert.Equal(t, core.DefaultSearchLimit, res.Limit)
	})

	t.Run("Field Path Literal Is Case Insensitive", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{FieldPath: &core.Pattern{Text: "HEADER"}})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"deposits:/Ceremony/Header",
			"renderdata:/Document/Header",
			"renderdata:/Document/Header/Title",
		}, paths(res))
	})

	t.Run("Literal Escapes Regex Metacharacters", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{FieldPath: &core.Pattern{Text: "Document.*"}})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
	})

	t.Run("Field Path Regex", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{FieldPath: &core.Pattern{Text: "^/Ceremony/", Regex: true}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 2)
	})

	t.Run("Invalid Regex", func(t *testing.T) {
		_, err := f.svc.Search(ctx, core.SearchRequest{FieldPath: &core.Pattern{Text: "([", Regex: true}})
		assert.ErrorIs(t, err, core.ErrQuery)
		_, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "*x", Regex: true}})
		assert.ErrorIs(t, err, core.ErrQuery)
	})

	t.Run("Context Scope", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{ContextID: "Deposits"})
		require.NoError(t, err)
		assert.Equal(t, []string{"deposits:/Ceremony/Account", "deposits:/Ceremony/Header"}, paths(res))
	})

	t.Run("Unknown Context", func(t *testing.T) {
		_, err := f.svc.Search(ctx, core.SearchRequest{ContextID: "nope"})
		assert.ErrorIs(t, err, core.ErrContextNotFound)
	})

	t.Run("Inactive Context Is Empty", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{ContextID: "legacy"})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
		assert.Equal(t, 0, res.TotalMatched)
	})

	t.Run("Metadata Filters OR Within Key AND Across Keys", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{
			Metadata: map[string][]string{"productCode": {"dda", "SAV"}},
		})
		require.NoError(t, err)
		assert.Len(t, res.Results, 5)

		res, err = f.svc.Search(ctx, core.SearchRequest{
			Metadata: map[string][]string{"productCode": {"sav"}, "action": {"fulfillment"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"deposits:/Ceremony/Header"}, paths(res))
	})

	t.Run("Optional Metadata Filter", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{
			ContextID: "renderdata",
			Metadata:  map[string][]string{"productCode": {"sav"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"renderdata:/Document"}, paths(res))
	})

	t.Run("Empty Filter Values Are Ignored", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{
			Metadata: map[string][]string{"productCode": {"", " "}},
		})
		require.NoError(t, err)
		assert.Len(t, res.Results, 5)
	})

	t.Run("Global Term Matches Path Context Or Metadata", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "deposits"}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 2)

		res, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "x1"}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 3)

		res, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "title"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"renderdata:/Document/Header/Title"}, paths(res))
	})

	t.Run("Global Regex Ignores Case Of Stored Metadata", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "^X1$", Regex: true}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 3)

		res, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "^FULFILL", Regex: true}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 2)

		// Field paths keep their submitted casing and match case-sensitively.
		res, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "Title$", Regex: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{"renderdata:/Document/Header/Title"}, paths(res))

		res, err = f.svc.Search(ctx, core.SearchRequest{Global: &core.Pattern{Text: "title$", Regex: true}})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
	})

	t.Run("Global Term Ignores Other Filters But Not Activity", func(t *testing.T) {
		res, err := f.svc.Search(ctx, core.SearchRequest{
			ContextID: "nope",
			FieldPath: &core.Pattern{Text: "zzz"},
			Global:    &core.Pattern{Text: "header"},
		})
		require.NoError(t, err)
		assert.Len(t, res.Results, 3, "legacy header must stay hidden")
	})
}

func TestSearchLimits(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.NewStatic(renderDataContext())
	require.NoError(t, err)
	svc := core.NewService(memory.NewStore(), reg, core.Config{DefaultLimit: 3, MaxLimit: 5})

	batch := make([]core.Observation, 0, 8)
	for i := 0; i < 8; i++ {
		batch = append(batch, obs(fmt.Sprintf("/f%02d", i), 1, doc("x")))
	}
	_, err = svc.Merge(ctx, "renderdata", batch)
	require.NoError(t, err)

	t.Run("Default Limit", func(t *testing.T) {
		res, err := svc.Search(ctx, core.SearchRequest{})
		require.NoError(t, err)
		assert.Len(t, res.Results, 3)
		assert.Equal(t, 8, res.TotalMatched)
		assert.True(t, res.Truncated)
		assert.Equal(t, "/f00", res.Results[0].FieldPath)
	})

	t.Run("Limit Is Capped", func(t *testing.T) {
		res, err := svc.Search(ctx, core.SearchRequest{Limit: 100})
		require.NoError(t, err)
		assert.Len(t, res.Results, 5)
		assert.Equal(t, 5, res.Limit)
		assert.True(t, res.Truncated)
	})

	t.Run("Exact Fit Is Not Truncated", func(t *testing.T) {
		res, err := svc.Search(ctx, core.SearchRequest{Limit: 5, FieldPath: &core.Pattern{Text: "/f0[0-4]", Regex: true}})
		require.NoError(t, err)
		assert.Len(t, res.Results, 5)
		assert.Equal(t, 5, res.TotalMatched)
		assert.False(t, res.Truncated)
	})

	t.Run("State Counts Operations", func(t *testing.T) {
		st := svc.State().(core.ServiceState)
		assert.Equal(t, "memory-store", st.StoreType)
		assert.Equal(t, "registry", st.RegistryType)
		assert.EqualValues(t, 1, st.Merges)
		assert.GreaterOrEqual(t, st.Searches, uint64(3))
	})
}
