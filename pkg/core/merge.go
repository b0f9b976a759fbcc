package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MergeResult summarizes one merged batch.
type MergeResult struct {
	BatchID        string `json:"batchId"`
	ContextID      string `json:"contextId"`
	Observations   int    `json:"observations"`
	Fields         int    `json:"fields"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Cleaned        int    `json:"cleaned"`
	CleanupApplied bool   `json:"cleanupApplied"`
}

// batchGroup is the collapsed view of every observation sharing one identity.
type batchGroup struct {
	id        FieldIdentity
	fieldPath string
	required  map[string]string
	stats     Stats
}

// Merge folds a batch of observations for one context into the store.
//
// Workflow:
//  1. Fail fast when the context is unknown or inactive.
//  2. Validate every observation, reporting all failures at once.
//  3. Pre-aggregate observations by identity with Combine.
//  4. Bulk-fetch the existing records of those identities.
//  5. Create missing records; Combine into existing ones.
//  6. If the batch is a single schema variant, mark fields on record but
//     absent from the batch as optional (minOccurs = 0).
//  7. Persist everything in one bulk write.
//
// Either the whole batch is written or nothing is.
func (s *Service) Merge(ctx context.Context, contextID string, observations []Observation) (MergeResult, error) {
	result := MergeResult{
		BatchID:      uuid.NewString(),
		ContextID:    Canonical(contextID),
		Observations: len(observations),
	}

	err := s.merge(ctx, &result, observations)
	s.merges.Add(1)
	s.metrics.RecordMerge(result, err)

	if err != nil {
		s.logger.Warn("observation batch rejected",
			"batch_id", result.BatchID,
			"context", result.ContextID,
			"observations", result.Observations,
			"error", err,
		)
		return result, err
	}

	s.logger.Info("observation batch merged",
		"batch_id", result.BatchID,
		"context", result.ContextID,
		"observations", result.Observations,
		"fields", result.Fields,
		"created", result.Created,
		"updated", result.Updated,
		"cleaned", result.Cleaned,
	)
	return result, nil
}

func (s *Service) merge(ctx context.Context, result *MergeResult, observations []Observation) error {
	if s.readOnly {
		return ErrReadOnly
	}

	// 1. Context
	c, err := s.activeContext(ctx, result.ContextID)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	// 2. + 3. Validate and pre-aggregate
	groups, variants, err := s.groupBatch(c, observations)
	if err != nil {
		return err
	}
	result.Fields = len(groups)

	// 4. Bulk fetch
	ids := make([]FieldIdentity, len(groups))
	for i, g := range groups {
		ids[i] = g.id
	}
	existing, err := s.store.GetByIDs(ctx, ids)
	if err != nil {
		return persistenceErr("get", err)
	}

	// 5. Create or update
	now := s.now().UTC()
	writes := make([]AggregateRecord, 0, len(groups))
	for _, g := range groups {
		rec, ok := existing[g.id]
		if !ok {
			rec = AggregateRecord{
				ID:               g.id,
				ContextID:        c.ID,
				RequiredMetadata: g.required,
				FieldPath:        g.fieldPath,
				FirstObservedAt:  now,
			}
			rec.applyStats(g.stats)
			result.Created++
		} else {
			rec = rec.Clone()
			rec.applyStats(Combine(rec.Stats(), g.stats))
			result.Updated++
		}
		rec.LastObservedAt = now
		writes = append(writes, rec)
	}

	// 6. Single-variant cleanup
	if len(variants) == 1 {
		cleaned, err := s.cleanup(ctx, c, groups)
		if err != nil {
			return err
		}
		result.CleanupApplied = true
		result.Cleaned = len(cleaned)
		writes = append(writes, cleaned...)
	} else {
		s.logger.Debug("cleanup skipped for mixed batch",
			"batch_id", result.BatchID,
			"variants", len(variants),
		)
	}

	// 7. Bulk write
	if err := s.store.PutAll(ctx, writes); err != nil {
		return persistenceErr("put", err)
	}
	return nil
}

// groupBatch validates the batch and collapses it to one group per identity,
// in order of first appearance. It also returns the set of distinct required
// metadata variants seen in the raw batch.
func (s *Service) groupBatch(c Context, observations []Observation) ([]*batchGroup, map[string]bool, error) {
	var invalid []ObservationError
	byID := make(map[FieldIdentity]*batchGroup, len(observations))
	var groups []*batchGroup
	variants := make(map[string]bool)

	for i, o := range observations {
		var problems []string
		if strings.TrimSpace(o.FieldPath) == "" {
			problems = append(problems, "fieldPath is required")
		}
		if o.OccurrenceCount < 0 {
			problems = append(problems, fmt.Sprintf("count must be >= 0, got %d", o.OccurrenceCount))
		}
		required, err := RequiredSubset(c, o.Metadata)
		if err != nil {
			var ie *IdentityError
			if !errors.As(err, &ie) {
				return nil, nil, err
			}
			problems = append(problems, ie.Detail())
		}
		if len(problems) > 0 {
			invalid = append(invalid, ObservationError{Index: i, FieldPath: o.FieldPath, Problems: problems})
			continue
		}
		if len(invalid) > 0 {
			// Keep scanning for more failures but stop building groups.
			continue
		}

		variants[VariantKey(required)] = true
		id := identityOf(c.ID, required, o.FieldPath)
		stats := observationStats(c, o)
		if g, ok := byID[id]; ok {
			g.stats = Combine(g.stats, stats)
			continue
		}
		g := &batchGroup{
			id:        id,
			fieldPath: strings.TrimSpace(o.FieldPath),
			required:  required,
			stats:     stats,
		}
		byID[id] = g
		groups = append(groups, g)
	}

	if len(invalid) > 0 {
		return nil, nil, &ValidationError{ContextID: c.ID, Observations: invalid}
	}
	return groups, variants, nil
}

// cleanup returns the records of the batch's variant that were not part of
// the batch and must now be considered optional. Only minOccurs changes.
func (s *Service) cleanup(ctx context.Context, c Context, groups []*batchGroup) ([]AggregateRecord, error) {
	required := groups[0].required
	paths, err := s.store.FindFieldPaths(ctx, c.ID, required)
	if err != nil {
		return nil, persistenceErr("find", err)
	}

	present := make(map[FieldIdentity]bool, len(groups))
	for _, g := range groups {
		present[g.id] = true
	}

	var absent []FieldIdentity
	for _, p := range paths {
		id := identityOf(c.ID, required, p)
		if !present[id] {
			absent = append(absent, id)
		}
	}
	if len(absent) == 0 {
		return nil, nil
	}

	found, err := s.store.GetByIDs(ctx, absent)
	if err != nil {
		return nil, persistenceErr("get", err)
	}

	var cleaned []AggregateRecord
	for _, id := range absent {
		rec, ok := found[id]
		if !ok || rec.MinOccurs == 0 {
			continue
		}
		rec = rec.Clone()
		rec.MinOccurs = 0
		cleaned = append(cleaned, rec)
	}
	s.logger.Debug("cleanup marked fields optional",
		"context", c.ID,
		"variant", VariantKey(required),
		"absent", len(absent),
		"cleaned", len(cleaned),
	)
	return cleaned, nil
}
