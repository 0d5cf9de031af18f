// Package metrics provides Prometheus metrics instrumentation for the controller.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Reconcile metrics
	RecordReconcileDuration(ctx context.Context, result string, duration time.Duration)
	RecordChildOutcome(ctx context.Context, kind, result string)
	RecordValidationFailure(ctx context.Context, violations int)
	RecordSkippedReconcile(ctx context.Context, reason string)
	RecordStatusWrite(ctx context.Context, result string)

	// Kubernetes API metrics
	RecordAPICall(ctx context.Context, method, resource, status string, duration time.Duration)
	RecordAPIError(ctx context.Context, method, errorType string)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Reconcile metrics
	reconcileDuration    *prometheus.HistogramVec
	childOutcomesTotal   *prometheus.CounterVec
	validationFailures   prometheus.Counter
	validationViolations prometheus.Counter
	skippedTotal         *prometheus.CounterVec
	statusWritesTotal    *prometheus.CounterVec

	// Kubernetes API metrics
	apiDuration    *prometheus.HistogramVec
	apiCallsTotal  *prometheus.CounterVec
	apiErrorsTotal *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initAPIMetrics()
	c.register(reg)

	return c
}

// RecordReconcileDuration records the duration of one reconcile pass.
func (c *prometheusCollector) RecordReconcileDuration(_ context.Context, result string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordChildOutcome records the result for one child kind.
func (c *prometheusCollector) RecordChildOutcome(_ context.Context, kind, result string) {
	c.childOutcomesTotal.WithLabelValues(kind, result).Inc()
}

// RecordValidationFailure records a rejected spec and its number of violations.
func (c *prometheusCollector) RecordValidationFailure(_ context.Context, violations int) {
	c.validationFailures.Inc()
	c.validationViolations.Add(float64(violations))
}

// RecordSkippedReconcile records a pass that did no work.
func (c *prometheusCollector) RecordSkippedReconcile(_ context.Context, reason string) {
	c.skippedTotal.WithLabelValues(reason).Inc()
}

// RecordStatusWrite records whether the status subresource was written, skipped or failed.
func (c *prometheusCollector) RecordStatusWrite(_ context.Context, result string) {
	c.statusWritesTotal.WithLabelValues(result).Inc()
}

// RecordAPICall records a Kubernetes API call.
func (c *prometheusCollector) RecordAPICall(
	_ context.Context,
	method, resource, status string,
	duration time.Duration,
) {
	c.apiDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
	c.apiCallsTotal.WithLabelValues(method, resource, status).Inc()
}

// RecordAPIError records a Kubernetes API error.
func (c *prometheusCollector) RecordAPIError(_ context.Context, method, errorType string) {
	c.apiErrorsTotal.WithLabelValues(method, errorType).Inc()
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webapp_reconcile_duration_seconds",
			Help:    "Duration of App reconcile passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"result"},
	)
	c.childOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_child_outcomes_total",
			Help: "Child reconcile results by kind",
		},
		[]string{"kind", "result"},
	)
	c.validationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webapp_validation_failures_total",
			Help: "Total App specs rejected by validation",
		},
	)
	c.validationViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webapp_validation_violations_total",
			Help: "Total field violations found in rejected App specs",
		},
	)
	c.skippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_reconcile_skipped_total",
			Help: "Reconcile passes skipped by reason",
		},
		[]string{"reason"},
	)
	c.statusWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_status_writes_total",
			Help: "Status subresource writes by result",
		},
		[]string{"result"},
	)
}

func (c *prometheusCollector) initAPIMetrics() {
	c.apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webapp_kube_api_duration_seconds",
			Help:    "Duration of Kubernetes API calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "resource"},
	)
	c.apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_kube_api_calls_total",
			Help: "Total Kubernetes API calls",
		},
		[]string{"method", "resource", "status"},
	)
	c.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_kube_api_errors_total",
			Help: "Total Kubernetes API errors by type",
		},
		[]string{"method", "error_type"},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.childOutcomesTotal,
		c.validationFailures,
		c.validationViolations,
		c.skippedTotal,
		c.statusWritesTotal,
		c.apiDuration,
		c.apiCallsTotal,
		c.apiErrorsTotal,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcileDuration is a no-op.
func (c *NoopCollector) RecordReconcileDuration(_ context.Context, _ string, _ time.Duration) {}

// RecordChildOutcome is a no-op.
func (c *NoopCollector) RecordChildOutcome(_ context.Context, _, _ string) {}

// RecordValidationFailure is a no-op.
func (c *NoopCollector) RecordValidationFailure(_ context.Context, _ int) {}

// RecordSkippedReconcile is a no-op.
func (c *NoopCollector) RecordSkippedReconcile(_ context.Context, _ string) {}

// RecordStatusWrite is a no-op.
func (c *NoopCollector) RecordStatusWrite(_ context.Context, _ string) {}

// RecordAPICall is a no-op.
func (c *NoopCollector) RecordAPICall(_ context.Context, _, _, _ string, _ time.Duration) {}

// RecordAPIError is a no-op.
func (c *NoopCollector) RecordAPIError(_ context.Context, _, _ string) {}
