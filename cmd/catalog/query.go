package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// queryFlags are shared by search and facets.
type queryFlags struct {
	context    string
	field      string
	fieldRegex bool
	q          string
	qRegex     bool
	meta       []string
	limit      int
	json       bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.context, "context", "", "Restrict to one context")
	flags.StringVar(&f.field, "field", "", "Field path text (substring, case insensitive)")
	flags.BoolVar(&f.fieldRegex, "field-regex", false, "Treat --field as a regular expression")
	flags.StringVarP(&f.q, "query", "q", "", "Global search across path, context and metadata values")
	flags.BoolVar(&f.qRegex, "query-regex", false, "Treat --query as a regular expression")
	flags.StringArrayVar(&f.meta, "meta", nil, "Metadata filter key=value[,value] (repeatable)")
	flags.IntVar(&f.limit, "limit", 0, "Maximum number of results")
	flags.BoolVar(&f.json, "json", false, "Output in JSON format")
}

func (f *queryFlags) request() (core.SearchRequest, error) {
	req := core.SearchRequest{ContextID: f.context, Limit: f.limit}
	if f.field != "" {
		req.FieldPath = &core.Pattern{Text: f.field, Regex: f.fieldRegex}
	}
	if f.q != "" {
		req.Global = &core.Pattern{Text: f.q, Regex: f.qRegex}
	}
	meta, err := parsePairs(f.meta)
	if err != nil {
		return req, err
	}
	req.Metadata = meta
	return req, nil
}

// parsePairs turns key=v1,v2 arguments into a multi-valued map.
func parsePairs(pairs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, p := range pairs {
		key, values, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out[key] = append(out[key], v)
			}
		}
	}
	return out, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
