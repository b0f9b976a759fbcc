package core

import "context"

// Registry supplies context definitions. The core only reads from it.
type Registry interface {
	// Get returns the context with the given id, or a *ContextNotFoundError.
	Get(ctx context.Context, id string) (Context, error)

	// List returns every known context, active or not, ordered by id.
	List(ctx context.Context) ([]Context, error)
}

// Store defines the contract for persisting aggregate records.
// Adhering to this interface keeps the core independent of the storage
// mechanism (memory, files, SQL).
type Store interface {
	// Initialize prepares indexes and projections. It is idempotent and is
	// called once at startup.
	Initialize(ctx context.Context) error

	// GetByIDs fetches the records that exist among ids in a single read.
	// Missing ids are simply absent from the result.
	GetByIDs(ctx context.Context, ids []FieldIdentity) (map[FieldIdentity]AggregateRecord, error)

	// PutAll creates or replaces records in one bulk write.
	PutAll(ctx context.Context, records []AggregateRecord) error

	// FindFieldPaths projects the field paths on record for one context and
	// one canonical required-metadata combination.
	FindFieldPaths(ctx context.Context, contextID string, required map[string]string) ([]string, error)

	// Query streams the records matching q, ordered by SortRecords.
	Query(ctx context.Context, q StructuredQuery) (Cursor, error)

	// DeleteByContext removes every record of a context and reports how many
	// were removed.
	DeleteByContext(ctx context.Context, contextID string) (int, error)
}

// Cursor iterates over query results.
type Cursor interface {
	Next() bool
	Record() AggregateRecord
	Err() error
	Close() error
}

// SliceCursor is a Cursor over records already held in memory.
type SliceCursor struct {
	records []AggregateRecord
	pos     int
}

// NewSliceCursor wraps records, which must already be ordered.
func NewSliceCursor(records []AggregateRecord) *SliceCursor {
	return &SliceCursor{records: records, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.records) {
		c.pos = len(c.records)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Record() AggregateRecord { return c.records[c.pos] }

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close() error { return nil }

// MetricsRecorder receives the outcome of every merge and search.
type MetricsRecorder interface {
	RecordMerge(result MergeResult, err error)
	RecordSearch(mode QueryMode, result SearchResult, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordMerge(MergeResult, error)              {}
func (noopMetrics) RecordSearch(QueryMode, SearchResult, error) {}
