package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	// DefaultSearchLimit caps a search when the caller gives no limit.
	DefaultSearchLimit = 250
	// MaxSearchLimit is the hard ceiling for any search.
	MaxSearchLimit = 5000
)

// Config tunes a Service. Zero values select the defaults.
type Config struct {
	Logger       *slog.Logger
	Metrics      MetricsRecorder
	Now          func() time.Time
	DefaultLimit int
	MaxLimit     int
	ReadOnly     bool
}

// Service handles the business logic of the catalog: merging observation
// batches and searching aggregate records.
type Service struct {
	store    Store
	registry Registry
	logger   *slog.Logger
	metrics  MetricsRecorder
	now      func() time.Time

	defaultLimit int
	maxLimit     int
	readOnly     bool

	merges   atomic.Uint64
	searches atomic.Uint64
}

// NewService creates a new Service.
func NewService(store Store, registry Registry, cfg Config) *Service {
	s := &Service{
		store:        store,
		registry:     registry,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		readOnly:     cfg.ReadOnly,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxLimit <= 0 {
		s.maxLimit = MaxSearchLimit
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultSearchLimit
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// GetContext returns a context definition from the registry.
func (s *Service) GetContext(ctx context.Context, id string) (Context, error) {
	c, err := s.registry.Get(ctx, Canonical(id))
	if err != nil {
		return Context{}, err
	}
	return c.Normalize(), nil
}

// ListContexts returns every registered context.
func (s *Service) ListContexts(ctx context.Context) ([]Context, error) {
	contexts, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Context, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, c.Normalize())
	}
	return out, nil
}

// GetField returns one aggregate record. Records of inactive contexts are
// not visible.
func (s *Service) GetField(ctx context.Context, id FieldIdentity) (AggregateRecord, error) {
	found, err := s.store.GetByIDs(ctx, []FieldIdentity{id})
	if err != nil {
		return AggregateRecord{}, persistenceErr("get", err)
	}
	rec, ok := found[id]
	if !ok {
		return AggregateRecord{}, ErrFieldNotFound
	}

	c, err := s.GetContext(ctx, rec.ContextID)
	if errors.Is(err, ErrContextNotFound) {
		return AggregateRecord{}, ErrFieldNotFound
	}
	if err != nil {
		return AggregateRecord{}, err
	}
	if !c.Active {
		return AggregateRecord{}, ErrFieldNotFound
	}
	return rec, nil
}

// PurgeContext deletes every aggregate record of a context.
func (s *Service) PurgeContext(ctx context.Context, contextID string) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	c, err := s.GetContext(ctx, contextID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteByContext(ctx, c.ID)
	if err != nil {
		return 0, persistenceErr("delete", err)
	}
	s.logger.Info("purged context records", "context", c.ID, "deleted", n)
	return n, nil
}

// activeContext loads a context and fails fast when it cannot accept
// observations.
func (s *Service) activeContext(ctx context.Context, contextID string) (Context, error) {
	c, err := s.GetContext(ctx, contextID)
	if err != nil {
		return Context{}, err
	}
	if !c.Active {
		return Context{}, &ContextInactiveError{ContextID: c.ID}
	}
	return c, nil
}
