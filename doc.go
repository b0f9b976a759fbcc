// Package catalog is the Composition Root of the field catalog.
//
// It connects the core business logic (Domain Layer) with the storage
// adapters, the context registry and the metrics exporter.
//
// The catalog learns the shape of documents from observations: every time a
// document is processed, its producer reports which field paths it saw, how
// many times, and whether they were null or empty. The catalog folds those
// observations into one aggregate record per field identity and answers
// searches over the result.
//
// Features:
//
//   - **Field Identity**: context, required metadata and field path, case insensitive.
//   - **Batch Merge**: pre-aggregation, all-or-nothing persistence and single-variant cleanup.
//   - **Search**: filtered or global, literal or regex, bounded by a limit.
//   - **Facets**: disjunctive counts over search results.
//   - **Adapters**: filesystem (JSON/YAML), SQLite and in-memory stores.
//
// Usage:
//
//	c, err := catalog.New("./data",
//		catalog.WithRegistryDir("./contexts"),
//		catalog.WithLogger(logger),
//	)
//
//	res, err := c.Service.Merge(ctx, "deposits", observations)
package catalog
