package core

import "context"

// SearchResult is a bounded, ordered page of matching records.
type SearchResult struct {
	Results      []AggregateRecord `json:"results"`
	TotalMatched int               `json:"totalMatched"`
	Truncated    bool              `json:"truncated"`
	Limit        int               `json:"limit"`
}

// Search resolves and executes a request in one call.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	q, err := s.ResolveQuery(ctx, req)
	if err != nil {
		mode := QueryModeFiltered
		if req.Global != nil && req.Global.Text != "" {
			mode = QueryModeGlobal
		}
		s.metrics.RecordSearch(mode, SearchResult{}, err)
		return SearchResult{}, err
	}
	return s.Execute(ctx, q, req.Limit)
}

// Execute runs a structured query against the store. At most limit records
// are returned; TotalMatched always reports the real number of matches so
// callers can tell the user that the result was truncated.
func (s *Service) Execute(ctx context.Context, q StructuredQuery, limit int) (SearchResult, error) {
	result, err := s.execute(ctx, q, s.clampLimit(limit))
	s.searches.Add(1)
	s.metrics.RecordSearch(q.Mode, result, err)
	if err != nil {
		return SearchResult{}, err
	}
	s.logger.Debug("search executed",
		"mode", string(q.Mode),
		"contexts", len(q.ContextIDs),
		"matched", result.TotalMatched,
		"truncated", result.Truncated,
	)
	return result, nil
}

func (s *Service) execute(ctx context.Context, q StructuredQuery, limit int) (SearchResult, error) {
	result := SearchResult{Results: []AggregateRecord{}, Limit: limit}
	if len(q.ContextIDs) == 0 {
		return result, nil
	}

	cur, err := s.store.Query(ctx, q)
	if err != nil {
		return result, persistenceErr("query", err)
	}
	defer cur.Close()

	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalMatched++
		if len(result.Results) < limit {
			result.Results = append(result.Results, cur.Record())
		}
	}
	if err := cur.Err(); err != nil {
		return result, persistenceErr("query", err)
	}
	result.Truncated = result.TotalMatched > limit
	return result, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}
