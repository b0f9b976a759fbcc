package core

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// QueryMode tells which of the two mutually exclusive search modes applies.
type QueryMode string

const (
	// QueryModeGlobal matches one term against path, context and metadata.
	QueryModeGlobal QueryMode = "global"
	// QueryModeFiltered combines every provided constraint with AND.
	QueryModeFiltered QueryMode = "filtered"
)

// Pattern is a search text that is either a literal substring or a regex.
type Pattern struct {
	Text  string `json:"text"`
	Regex bool   `json:"regex,omitempty"`
}

// SearchRequest is the open-ended input of the query resolver.
type SearchRequest struct {
	ContextID string              `json:"contextId,omitempty"`
	FieldPath *Pattern            `json:"fieldPath,omitempty"`
	Metadata  map[string][]string `json:"metadata,omitempty"`
	Global    *Pattern            `json:"q,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
}

// StructuredQuery is a resolved, validated search. Build it with
// Service.ResolveQuery; stores evaluate it with Matches.
type StructuredQuery struct {
	Mode       QueryMode
	ContextIDs []string
	FieldPath  *regexp.Regexp
	Metadata   map[string][]string
	Global     *regexp.Regexp
	// GlobalFolded is Global without case sensitivity. It is matched against
	// context ids and metadata values, which are stored in canonical casing.
	// When nil, Global is used.
	GlobalFolded *regexp.Regexp
}

// InScope reports whether records of the context are visible to the query.
func (q StructuredQuery) InScope(contextID string) bool {
	i := sort.SearchStrings(q.ContextIDs, contextID)
	return i < len(q.ContextIDs) && q.ContextIDs[i] == contextID
}

// Matches evaluates the query against one record.
func (q StructuredQuery) Matches(r AggregateRecord) bool {
	if !q.InScope(r.ContextID) {
		return false
	}
	if q.Mode == QueryModeGlobal {
		return q.matchesGlobal(r)
	}

	if q.FieldPath != nil && !q.FieldPath.MatchString(r.FieldPath) {
		return false
	}
	for key, allowed := range q.Metadata {
		if !anyValueIn(r.MetadataValues(key), allowed) {
			return false
		}
	}
	return true
}

func (q StructuredQuery) matchesGlobal(r AggregateRecord) bool {
	if q.Global == nil {
		return true
	}
	if q.Global.MatchString(r.FieldPath) {
		return true
	}
	folded := q.GlobalFolded
	if folded == nil {
		folded = q.Global
	}
	if folded.MatchString(r.ContextID) {
		return true
	}
	for _, v := range r.RequiredMetadata {
		if folded.MatchString(v) {
			return true
		}
	}
	for _, values := range r.OptionalMetadata {
		for _, v := range values {
			if folded.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// ResolveQuery turns a search request into a StructuredQuery. Patterns are
// compiled first so malformed input fails before the store is touched. Only
// active contexts are ever in scope.
func (s *Service) ResolveQuery(ctx context.Context, req SearchRequest) (StructuredQuery, error) {
	var q StructuredQuery

	// 1. Mode and patterns
	if req.Global != nil && strings.TrimSpace(req.Global.Text) != "" {
		re, err := compilePattern("q", *req.Global)
		if err != nil {
			return StructuredQuery{}, err
		}
		q.Mode = QueryModeGlobal
		q.Global = re
		q.GlobalFolded = re
		if req.Global.Regex {
			// Already valid, so the folded form compiles too.
			q.GlobalFolded = regexp.MustCompile("(?i)" + strings.TrimSpace(req.Global.Text))
		}
	} else {
		q.Mode = QueryModeFiltered
		if req.FieldPath != nil && strings.TrimSpace(req.FieldPath.Text) != "" {
			re, err := compilePattern("fieldPath", *req.FieldPath)
			if err != nil {
				return StructuredQuery{}, err
			}
			q.FieldPath = re
		}
		q.Metadata = canonicalFilters(req.Metadata)
	}

	// 2. Scope
	contexts, err := s.registry.List(ctx)
	if err != nil {
		return StructuredQuery{}, err
	}
	wanted := ""
	if q.Mode == QueryModeFiltered {
		wanted = Canonical(req.ContextID)
	}
	found := wanted == ""
	q.ContextIDs = []string{}
	for _, c := range contexts {
		c = c.Normalize()
		if wanted != "" && c.ID != wanted {
			continue
		}
		found = true
		if c.Active {
			q.ContextIDs = append(q.ContextIDs, c.ID)
		}
	}
	if !found {
		return StructuredQuery{}, &ContextNotFoundError{ContextID: wanted}
	}
	sort.Strings(q.ContextIDs)
	return q, nil
}

func compilePattern(param string, p Pattern) (*regexp.Regexp, error) {
	text := strings.TrimSpace(p.Text)
	if !p.Regex {
		return regexp.MustCompile("(?i)" + regexp.QuoteMeta(text)), nil
	}
	re, err := regexp.Compile(text)
	if err != nil {
		return nil, &QueryError{Param: param, Reason: err.Error()}
	}
	return re, nil
}

// canonicalFilters folds keys and values and drops keys without any value.
func canonicalFilters(filters map[string][]string) map[string][]string {
	out := make(map[string][]string, len(filters))
	for key, values := range filters {
		ck := Canonical(key)
		if ck == "" {
			continue
		}
		var folded []string
		for _, v := range values {
			if cv := Canonical(v); cv != "" {
				folded = append(folded, cv)
			}
		}
		if len(folded) == 0 {
			continue
		}
		out[ck] = UnionValues(out[ck], folded)
	}
	return out
}

func anyValueIn(values, allowed []string) bool {
	for _, v := range values {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
	}
	return false
}
