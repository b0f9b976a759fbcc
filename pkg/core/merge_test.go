package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/adapters/memory"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/registry"
)

func TestMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Records", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Merge(ctx, "RenderData", []core.Observation{
			obs("/Document/Header", 1, doc("X1")),
			obs("/Document/Body", 2, doc("X1")),
		})
		require.NoError(t, err)
		assert.Equal(t, "renderdata", res.ContextID)
		assert.Equal(t, 2, res.Created)
		assert.Equal(t, 0, res.Updated)
		assert.NotEmpty(t, res.BatchID)

		recs := f.byPath(t, "renderdata")
		require.Len(t, recs, 2)
		body := recs["/Document/Body"]
		assert.Equal(t, 2, body.MinOccurs)
		assert.Equal(t, 2, body.MaxOccurs)
		assert.Equal(t, map[string]string{"documentcode": "x1"}, body.RequiredMetadata)
		assert.Equal(t, testNow, body.FirstObservedAt)
	})

	t.Run("Resubmission Is Idempotent", func(t *testing.T) {
		f := newFixture(t)
		batch := []core.Observation{
			{Metadata: doc("X1"), FieldPath: "/a", OccurrenceCount: 1, HasNull: true},
			{Metadata: doc("X1"), FieldPath: "/b", OccurrenceCount: 4},
		}
		_, err := f.svc.Merge(ctx, "renderdata", batch)
		require.NoError(t, err)
		first := f.all(t, "renderdata")

		res, err := f.svc.Merge(ctx, "renderdata", batch)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Updated)
		assert.Equal(t, first, f.all(t, "renderdata"))
	})

	t.Run("Intra Batch Duplicates Are Pre-Aggregated", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/a", 1, doc("X1")),
			obs("/A", 3, map[string]string{"DOCUMENTCODE": "x1"}),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Fields)
		assert.Equal(t, 1, res.Created)

		recs := f.all(t, "renderdata")
		require.Len(t, recs, 1)
		assert.Equal(t, 1, recs[0].MinOccurs)
		assert.Equal(t, 3, recs[0].MaxOccurs)
		assert.Equal(t, "/a", recs[0].FieldPath)
	})

	t.Run("Flags Are Monotonic", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			{Metadata: doc("X1"), FieldPath: "/a", OccurrenceCount: 1, HasNull: true, HasEmpty: true},
		})
		require.NoError(t, err)
		_, err = f.svc.Merge(ctx, "renderdata", []core.Observation{
			{Metadata: doc("X1"), FieldPath: "/a", OccurrenceCount: 5},
		})
		require.NoError(t, err)

		rec := f.all(t, "renderdata")[0]
		assert.True(t, rec.AllowsNull)
		assert.True(t, rec.AllowsEmpty)
		assert.Equal(t, 1, rec.MinOccurs)
		assert.Equal(t, 5, rec.MaxOccurs)
	})

	t.Run("Optional Metadata Accumulates", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/a", 1, map[string]string{"documentCode": "x1", "productCode": "DDA", "unknown": "ignored"}),
		})
		require.NoError(t, err)
		_, err = f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/a", 1, map[string]string{"documentCode": "x1", "productCode": "SAV", "channel": ""}),
		})
		require.NoError(t, err)

		recs := f.all(t, "renderdata")
		require.Len(t, recs, 1, "optional metadata must not split identity")
		assert.Equal(t, map[string][]string{"productcode": {"dda", "sav"}}, recs[0].OptionalMetadata)
	})

	t.Run("Timestamps", func(t *testing.T) {
		clock := testNow
		reg, _ := registry.NewStatic(renderDataContext())
		svc := core.NewService(memory.NewStore(), reg, core.Config{Now: func() time.Time { return clock }})

		_, err := svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		require.NoError(t, err)
		clock = clock.Add(time.Hour)
		_, err = svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		require.NoError(t, err)

		res, err := svc.Search(ctx, core.SearchRequest{})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Equal(t, testNow, res.Results[0].FirstObservedAt)
		assert.Equal(t, testNow.Add(time.Hour), res.Results[0].LastObservedAt)
	})

	t.Run("Empty Batch Is A No-Op", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		require.NoError(t, err)

		res, err := f.svc.Merge(ctx, "renderdata", nil)
		require.NoError(t, err)
		assert.False(t, res.CleanupApplied)
		assert.Equal(t, 1, f.all(t, "renderdata")[0].MinOccurs)
	})
}

func TestMergeCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("Render Data Scenario", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/Document/Header", 1, doc("X1")),
			obs("/Document/Body", 1, doc("X1")),
			obs("/Document/Footer", 1, doc("X1")),
		})
		require.NoError(t, err)

		res, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/Document/Header", 1, doc("x1")),
			obs("/Document/Body", 2, doc("x1")),
		})
		require.NoError(t, err)
		assert.True(t, res.CleanupApplied)
		assert.Equal(t, 1, res.Cleaned)

		recs := f.byPath(t, "renderdata")
		assert.Equal(t, 1, recs["/Document/Header"].MinOccurs)
		assert.Equal(t, 1, recs["/Document/Header"].MaxOccurs)
		assert.Equal(t, 1, recs["/Document/Body"].MinOccurs)
		assert.Equal(t, 2, recs["/Document/Body"].MaxOccurs)
		footer := recs["/Document/Footer"]
		assert.Equal(t, 0, footer.MinOccurs)
		assert.Equal(t, 1, footer.MaxOccurs, "cleanup only touches minOccurs")
		assert.Equal(t, testNow, footer.LastObservedAt)
	})

	t.Run("Other Variants Are Untouched", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/only-y", 1, doc("Y"))})
		require.NoError(t, err)
		_, err = f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("X"))})
		require.NoError(t, err)

		res, err := f.svc.Search(ctx, core.SearchRequest{
			ContextID: "renderdata",
			Metadata:  map[string][]string{"documentCode": {"y"}},
		})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Equal(t, 1, res.Results[0].MinOccurs)
	})

	t.Run("Mixed Batch Skips Cleanup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/a", 1, doc("X")),
			obs("/b", 1, doc("X")),
		})
		require.NoError(t, err)

		res, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/a", 1, doc("X")),
			obs("/a", 1, doc("Y")),
		})
		require.NoError(t, err)
		assert.False(t, res.CleanupApplied)

		res2, err := f.svc.Search(ctx, core.SearchRequest{
			ContextID: "renderdata",
			FieldPath: &core.Pattern{Text: "/b"},
		})
		require.NoError(t, err)
		require.Len(t, res2.Results, 1)
		assert.Equal(t, 1, res2.Results[0].MinOccurs)
	})

	t.Run("Already Optional Fields Are Not Rewritten", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 0, doc("X")), obs("/b", 1, doc("X"))})
		require.NoError(t, err)
		res, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/b", 1, doc("X"))})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Cleaned)
	})
}

func TestMergeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown Context", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "nope", []core.Observation{obs("/a", 1, doc("x"))})
		assert.ErrorIs(t, err, core.ErrContextNotFound)
	})

	t.Run("Inactive Context", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.registry.SetActive("renderdata", false))
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		assert.ErrorIs(t, err, core.ErrContextInactive)
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("Validation Collects Every Failure", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{
			obs("/ok", 1, doc("x")),
			obs("", 1, doc("x")),
			obs("/neg", -1, doc("x")),
			obs("/nodoc", 1, map[string]string{"productCode": "dda"}),
		})
		require.ErrorIs(t, err, core.ErrValidation)

		var ve *core.ValidationError
		require.True(t, errors.As(err, &ve))
		require.Len(t, ve.Observations, 3)
		assert.Equal(t, 1, ve.Observations[0].Index)
		assert.Equal(t, 2, ve.Observations[1].Index)
		assert.Equal(t, 3, ve.Observations[2].Index)
		assert.Contains(t, ve.Observations[2].Problems[0], "documentcode")
		assert.Equal(t, 0, f.store.Len(), "nothing is written for a rejected batch")
	})

	t.Run("Read Only", func(t *testing.T) {
		reg, _ := registry.NewStatic(renderDataContext())
		svc := core.NewService(memory.NewStore(), reg, core.Config{ReadOnly: true})
		_, err := svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		assert.ErrorIs(t, err, core.ErrReadOnly)
		_, err = svc.PurgeContext(ctx, "renderdata")
		assert.ErrorIs(t, err, core.ErrReadOnly)
	})

	t.Run("Store Failure", func(t *testing.T) {
		reg, _ := registry.NewStatic(renderDataContext())
		boom := errors.New("disk on fire")
		svc := core.NewService(&failingStore{Store: memory.NewStore(), err: boom}, reg, core.Config{})

		_, err := svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x"))})
		require.ErrorIs(t, err, core.ErrPersistence)
		assert.ErrorIs(t, err, boom)

		_, err = svc.Search(ctx, core.SearchRequest{})
		assert.ErrorIs(t, err, core.ErrPersistence)
	})
}

func TestPurgeAndGetField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Merge(ctx, "renderdata", []core.Observation{obs("/a", 1, doc("x")), obs("/b", 1, doc("x"))})
	require.NoError(t, err)
	_, err = f.svc.Merge(ctx, "deposits", []core.Observation{
		obs("/c", 1, map[string]string{"productCode": "dda", "action": "open"}),
	})
	require.NoError(t, err)

	id := core.IdentityFor("renderdata", map[string]string{"documentcode": "x"}, "/a")
	rec, err := f.svc.GetField(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/a", rec.FieldPath)

	_, err = f.svc.GetField(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrFieldNotFound)

	require.NoError(t, f.registry.SetActive("renderdata", false))
	_, err = f.svc.GetField(ctx, id)
	assert.ErrorIs(t, err, core.ErrFieldNotFound, "inactive contexts are hidden")
	require.NoError(t, f.registry.SetActive("renderdata", true))

	n, err := f.svc.PurgeContext(ctx, "RENDERDATA")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, f.store.Len())

	_, err = f.svc.PurgeContext(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrContextNotFound)
}

type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) PutAll(ctx context.Context, records []core.AggregateRecord) error {
	return s.err
}

func (s *failingStore) Query(ctx context.Context, q core.StructuredQuery) (core.Cursor, error) {
	return nil, s.err
}
