package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/facet"
)

type ingestRequest struct {
	Observations []core.Observation `json:"observations" validate:"required"`
}

type facetRequest struct {
	ContextID      string              `json:"contextId"`
	FieldPath      string              `json:"fieldPath"`
	FieldPathRegex bool                `json:"fieldPathRegex"`
	Q              string              `json:"q"`
	QRegex         bool                `json:"qRegex"`
	Metadata       map[string][]string `json:"metadata"`
	Limit          int                 `json:"limit" validate:"gte=0"`
	Facets         facet.State         `json:"facets" validate:"omitempty,dive"`
}

type facetResponse struct {
	facet.Result
	TotalMatched int  `json:"totalMatched"`
	Truncated    bool `json:"truncated"`
	Limit        int  `json:"limit"`
}

type contextsResponse struct {
	Contexts []core.Context `json:"contexts"`
}

func (api *API) postObservations(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contextID := chi.URLParam(r, "contextId")
	r.Body = http.MaxBytesReader(rw, r.Body, api.maxBodyBytes)

	var req ingestRequest
	if !Read(rw, r, &req) {
		return
	}

	c, err := api.svc.GetContext(ctx, contextID)
	if err != nil {
		api.writeError(rw, err)
		return
	}
	if !c.Active {
		api.writeError(rw, &core.ContextInactiveError{ContextID: c.ID})
		return
	}
	if verr := unknownKeys(c, req.Observations); verr != nil {
		api.writeError(rw, verr)
		return
	}

	result, err := api.svc.Merge(ctx, c.ID, req.Observations)
	if err != nil {
		api.writeError(rw, err)
		return
	}
	api.logger.Debug("observations merged",
		"context", result.ContextID,
		"observations", result.Observations,
		"created", result.Created,
		"updated", result.Updated,
		"cleaned", result.Cleaned,
	)
	rw.WriteHeader(http.StatusNoContent)
}

// unknownKeys rejects metadata keys that the context does not declare.
func unknownKeys(c core.Context, observations []core.Observation) error {
	var problems []core.ObservationError
	for i, o := range observations {
		keys := c.UnknownKeys(o.Metadata)
		if len(keys) == 0 {
			continue
		}
		problems = append(problems, core.ObservationError{
			Index:     i,
			FieldPath: o.FieldPath,
			Problems:  []string{"unknown metadata keys: " + strings.Join(keys, ", ")},
		})
	}
	if len(problems) == 0 {
		return nil
	}
	return &core.ValidationError{ContextID: c.ID, Observations: problems}
}

func (api *API) searchFields(rw http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	parser := NewQueryParamParser()
	req := core.SearchRequest{
		ContextID: parser.String(vals, "", "contextId"),
		Limit:     parser.Int(vals, 0, "limit"),
	}
	fieldPath := parser.String(vals, "", "fieldPath")
	fieldPathRegex := parser.Bool(vals, false, "fieldPathRegex")
	q := parser.String(vals, "", "q")
	qRegex := parser.Bool(vals, false, "qRegex")
	if req.Limit < 0 {
		parser.Errors = append(parser.Errors, Error{
			Field:  "limit",
			Detail: `Query param "limit" must not be negative`,
		})
	}
	if len(parser.Errors) > 0 {
		Write(rw, http.StatusBadRequest, Response{
			Message: "Invalid query parameters",
			Errors:  parser.Errors,
		})
		return
	}

	if fieldPath != "" {
		req.FieldPath = &core.Pattern{Text: fieldPath, Regex: fieldPathRegex}
	}
	if q != "" {
		req.Global = &core.Pattern{Text: q, Regex: qRegex}
	}
	req.Metadata = parser.Remaining(vals)

	result, err := api.svc.Search(r.Context(), req)
	if err != nil {
		api.writeError(rw, err)
		return
	}
	Write(rw, http.StatusOK, result)
}

func (api *API) facetFields(rw http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(rw, r.Body, api.maxBodyBytes)
	var body facetRequest
	if !Read(rw, r, &body) {
		return
	}
	state := body.Facets.Normalize()
	if err := state.Validate(); err != nil {
		api.writeError(rw, err)
		return
	}

	req := core.SearchRequest{
		ContextID: body.ContextID,
		Metadata:  body.Metadata,
		Limit:     body.Limit,
	}
	if body.FieldPath != "" {
		req.FieldPath = &core.Pattern{Text: body.FieldPath, Regex: body.FieldPathRegex}
	}
	if body.Q != "" {
		req.Global = &core.Pattern{Text: body.Q, Regex: body.QRegex}
	}

	result, err := api.svc.Search(r.Context(), req)
	if err != nil {
		api.writeError(rw, err)
		return
	}
	view, err := facet.Compute(result.Results, state)
	if err != nil {
		api.writeError(rw, err)
		return
	}
	Write(rw, http.StatusOK, facetResponse{
		Result:       view,
		TotalMatched: result.TotalMatched,
		Truncated:    result.Truncated,
		Limit:        result.Limit,
	})
}

func (api *API) getField(rw http.ResponseWriter, r *http.Request) {
	rec, err := api.svc.GetField(r.Context(), core.FieldIdentity(chi.URLParam(r, "fieldId")))
	if err != nil {
		api.writeError(rw, err)
		return
	}
	Write(rw, http.StatusOK, rec)
}

func (api *API) listContexts(rw http.ResponseWriter, r *http.Request) {
	contexts, err := api.svc.ListContexts(r.Context())
	if err != nil {
		api.writeError(rw, err)
		return
	}
	Write(rw, http.StatusOK, contextsResponse{Contexts: contexts})
}

func (api *API) getContext(rw http.ResponseWriter, r *http.Request) {
	c, err := api.svc.GetContext(r.Context(), chi.URLParam(r, "contextId"))
	if err != nil {
		api.writeError(rw, err)
		return
	}
	Write(rw, http.StatusOK, c)
}
