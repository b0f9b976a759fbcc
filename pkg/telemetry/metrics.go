// Package telemetry exports catalog activity as Prometheus metrics.
package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rawneddy/ceremony-field-catalog-sub002/pkg/core"
)

// Metric label values for operation status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const namespace = "catalog"

// Metrics holds the collectors fed by the catalog service.
type Metrics struct {
	batches      *prometheus.CounterVec
	observations prometheus.Counter
	records      *prometheus.CounterVec
	searches     *prometheus.CounterVec
	matched      *prometheus.HistogramVec
	truncated    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not
// nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of observation batches submitted, by outcome.",
		}, []string{"context", "status", "reason"}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Total number of observations accepted.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Aggregate records written, by kind of change.",
		}, []string{"context", "change"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches, by mode and outcome.",
		}, []string{"mode", "status"}),
		matched: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_matched_records",
			Help:      "Number of records matched by a search before truncation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"mode"}),
		truncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_truncated_total",
			Help:      "Searches whose results were capped by the limit.",
		}, []string{"mode"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.batches, m.observations, m.records, m.searches, m.matched, m.truncated} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// RecordMerge implements core.MetricsRecorder.
func (m *Metrics) RecordMerge(result core.MergeResult, err error) {
	if err != nil {
		contextID := result.ContextID
		if errors.Is(err, core.ErrContextNotFound) {
			// Unknown ids would grow the label set without bound.
			contextID = ""
		}
		m.batches.WithLabelValues(contextID, StatusFailed, reason(err)).Inc()
		return
	}
	m.batches.WithLabelValues(result.ContextID, StatusSuccess, "").Inc()
	m.observations.Add(float64(result.Observations))
	m.records.WithLabelValues(result.ContextID, "created").Add(float64(result.Created))
	m.records.WithLabelValues(result.ContextID, "updated").Add(float64(result.Updated))
	m.records.WithLabelValues(result.ContextID, "cleaned").Add(float64(result.Cleaned))
}

// RecordSearch implements core.MetricsRecorder.
func (m *Metrics) RecordSearch(mode core.QueryMode, result core.SearchResult, err error) {
	if err != nil {
		m.searches.WithLabelValues(string(mode), StatusFailed).Inc()
		return
	}
	m.searches.WithLabelValues(string(mode), StatusSuccess).Inc()
	m.matched.WithLabelValues(string(mode)).Observe(float64(result.TotalMatched))
	if result.Truncated {
		m.truncated.WithLabelValues(string(mode)).Inc()
	}
}

// reason maps an error to a low-cardinality label value.
func reason(err error) string {
	switch {
	case errors.Is(err, core.ErrContextNotFound):
		return "context_not_found"
	case errors.Is(err, core.ErrContextInactive):
		return "context_inactive"
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrIdentity):
		return "identity"
	case errors.Is(err, core.ErrPersistence):
		return "persistence"
	case errors.Is(err, core.ErrReadOnly):
		return "read_only"
	default:
		return "other"
	}
}

var _ core.MetricsRecorder = (*Metrics)(nil)
