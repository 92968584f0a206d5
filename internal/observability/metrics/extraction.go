package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

// ExtractionMetrics implements ports.ExtractionObserver.
type ExtractionMetrics struct {
	service string

	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	aggregations    *prometheus.CounterVec
	aggregationRows *prometheus.CounterVec
}

func newExtractionMetrics(service string, registerer prometheus.Registerer) *ExtractionMetrics {
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "stage_total",
			Help:      "Extraction pipeline stage outcomes by error kind.",
		},
		[]string{"service", "stage", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "stage_duration_seconds",
			Help:      "Extraction pipeline stage duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "stage"},
	)
	aggregations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "runs_total",
			Help:      "Total completed aggregations.",
		},
		[]string{"service"},
	)
	aggregationRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "records_total",
			Help:      "Aggregation output by kind: companies, skipped, duplicates.",
		},
		[]string{"service", "kind"},
	)

	registerer.MustRegister(stageTotal, stageDuration, aggregations, aggregationRows)

	return &ExtractionMetrics{
		service:         service,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		aggregations:    aggregations,
		aggregationRows: aggregationRows,
	}
}

func (m *ExtractionMetrics) ObserveStage(stage string, err error, seconds float64) {
	m.stageTotal.WithLabelValues(m.service, stage, outcome(err)).Inc()
	if seconds >= 0 {
		m.stageDuration.WithLabelValues(m.service, stage).Observe(seconds)
	}
}

func (m *ExtractionMetrics) ObserveAggregation(companies, skipped, duplicates int) {
	m.aggregations.WithLabelValues(m.service).Inc()
	m.aggregationRows.WithLabelValues(m.service, "companies").Add(float64(companies))
	m.aggregationRows.WithLabelValues(m.service, "skipped").Add(float64(skipped))
	m.aggregationRows.WithLabelValues(m.service, "duplicates").Add(float64(duplicates))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrFetch):
		return "fetch"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}
