package httpapi

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// QueryParamParser parses query params and gathers every error in one
// sweep, so all invalid fields are reported at once. It remembers which
// params it consumed; the rest can be collected with Remaining.
type QueryParamParser struct {
	// Errors is the set of errors to return via the API. If the length
	// of this set is 0, there are no errors!
	Errors []Error

	consumed map[string]bool
}

func NewQueryParamParser() *QueryParamParser {
	return &QueryParamParser{
		Errors:   []Error{},
		consumed: make(map[string]bool),
	}
}

func (p *QueryParamParser) Int(vals url.Values, def int, queryParam string) int {
	v, err := parseQueryParam(p, vals, strconv.Atoi, def, queryParam)
	if err != nil {
		p.Errors = append(p.Errors, Error{
			Field:  queryParam,
			Detail: fmt.Sprintf("Query param %q must be a valid integer (%s)", queryParam, err.Error()),
		})
	}
	return v
}

func (p *QueryParamParser) Bool(vals url.Values, def bool, queryParam string) bool {
	v, err := parseQueryParam(p, vals, strconv.ParseBool, def, queryParam)
	if err != nil {
		p.Errors = append(p.Errors, Error{
			Field:  queryParam,
			Detail: fmt.Sprintf("Query param %q must be a valid boolean", queryParam),
		})
	}
	return v
}

func (p *QueryParamParser) String(vals url.Values, def string, queryParam string) string {
	v, _ := parseQueryParam(p, vals, func(v string) (string, error) {
		return v, nil
	}, def, queryParam)
	return v
}

// Remaining collects every param not consumed by the parser into a bucket.
// Values may repeat the param or be comma separated; blanks are dropped.
func (p *QueryParamParser) Remaining(vals url.Values) map[string][]string {
	out := make(map[string][]string)
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if p.consumed[k] {
			continue
		}
		for _, raw := range vals[k] {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					out[k] = append(out[k], v)
				}
			}
		}
	}
	return out
}

func parseQueryParam[T any](p *QueryParamParser, vals url.Values, parse func(v string) (T, error), def T, queryParam string) (T, error) {
	p.consumed[queryParam] = true
	if !vals.Has(queryParam) || vals.Get(queryParam) == "" {
		return def, nil
	}
	return parse(vals.Get(queryParam))
}
