package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/facet"
)

const defaultMaxBodyBytes = 10 << 20

// Options configures the HTTP API.
type Options struct {
	Service *core.Service
	Logger  *slog.Logger
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// IngestRateLimit caps observation batches per minute and client IP.
	// Zero disables the limit.
	IngestRateLimit int
	MaxBodyBytes    int64
}

// API holds the handlers of the catalog HTTP surface.
type API struct {
	svc          *core.Service
	logger       *slog.Logger
	maxBodyBytes int64
}

// New builds the router.
func New(opts Options) http.Handler {
	api := &API{
		svc:          opts.Service,
		logger:       opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if api.logger == nil {
		api.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if api.maxBodyBytes <= 0 {
		api.maxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		api.logRequests,
		middleware.Recoverer,
	)

	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		Write(rw, http.StatusOK, Response{Message: "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/catalog", func(r chi.Router) {
		r.Route("/contexts", func(r chi.Router) {
			r.Get("/", api.listContexts)
			r.Get("/{contextId}", api.getContext)
			r.With(ingestLimiter(opts.IngestRateLimit)...).
				Post("/{contextId}/observations", api.postObservations)
		})
		r.Route("/fields", func(r chi.Router) {
			r.Get("/", api.searchFields)
			r.Post("/facets", api.facetFields)
			r.Get("/{fieldId}", api.getField)
		})
	})

	r.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		Write(rw, http.StatusNotFound, Response{Message: "route not found"})
	})
	return r
}

func ingestLimiter(perMinute int) []func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return nil
	}
	return []func(http.Handler) http.Handler{
		httprate.Limit(
			perMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(rw http.ResponseWriter, r *http.Request) {
				Write(rw, http.StatusTooManyRequests, Response{
					Message: "Observation rate limit exceeded. Please try again later.",
				})
			}),
		),
	}
}

func (api *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		api.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeError maps domain errors to HTTP responses.
func (api *API) writeError(rw http.ResponseWriter, err error) {
	var (
		ve *core.ValidationError
		qe *core.QueryError
		se *facet.SelectionError
	)
	switch {
	case errors.As(err, &ve):
		apiErrors := make([]Error, 0, len(ve.Observations))
		for _, o := range ve.Observations {
			apiErrors = append(apiErrors, Error{
				Field:  fmt.Sprintf("observations[%d]", o.Index),
				Detail: strings.Join(o.Problems, "; "),
			})
		}
		Write(rw, http.StatusBadRequest, Response{Message: "Validation failed", Errors: apiErrors})
	case errors.As(err, &qe):
		Write(rw, http.StatusBadRequest, Response{
			Message: "Invalid query",
			Errors:  []Error{{Field: qe.Param, Detail: qe.Reason}},
		})
	case errors.As(err, &se):
		Write(rw, http.StatusBadRequest, Response{
			Message: "Invalid facet state",
			Errors:  []Error{{Field: "facets." + se.Key, Detail: err.Error()}},
		})
	case errors.Is(err, core.ErrContextNotFound), errors.Is(err, core.ErrFieldNotFound):
		Write(rw, http.StatusNotFound, Response{Message: err.Error()})
	case errors.Is(err, core.ErrContextInactive):
		Write(rw, http.StatusConflict, Response{Message: err.Error()})
	case errors.Is(err, core.ErrReadOnly):
		Write(rw, http.StatusForbidden, Response{Message: err.Error()})
	case errors.Is(err, core.ErrPersistence):
		api.logger.Error("store failure", "error", err)
		Write(rw, http.StatusServiceUnavailable, Response{Message: "Catalog storage is unavailable."})
	default:
		api.logger.Error("internal error", "error", err)
		Write(rw, http.StatusInternalServerError, Response{Message: "Internal error."})
	}
}
