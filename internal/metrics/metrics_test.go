package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorInterface(t *testing.T) {
	t.Parallel()

	// Verify that prometheusCollector implements Collector interface
	var _ Collector = (*prometheusCollector)(nil)
	var _ Collector = (*NoopCollector)(nil)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	require.NotNil(t, collector)
	assert.IsType(t, &prometheusCollector{}, collector)
}

func TestNewCollector_DoubleRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() { NewCollector(reg) })
}

func TestNoopCollector(t *testing.T) {
	t.Parallel()

	collector := NewNoopCollector()
	require.NotNil(t, collector)

	ctx := context.Background()

	// All methods should not panic
	assert.NotPanics(t, func() {
		collector.RecordReconcileDuration(ctx, "success", time.Second)
		collector.RecordChildOutcome(ctx, "Deployment", "Created")
		collector.RecordValidationFailure(ctx, 3)
		collector.RecordSkippedReconcile(ctx, "stale")
		collector.RecordStatusWrite(ctx, "written")
		collector.RecordAPICall(ctx, "get", "Deployment", "success", time.Second)
		collector.RecordAPIError(ctx, "get", "auth")
	})
}

func TestMetricsRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	// Trigger all metrics to be collected at least once
	collector.RecordReconcileDuration(ctx, "success", time.Second)
	collector.RecordChildOutcome(ctx, "Deployment", "Created")
	collector.RecordValidationFailure(ctx, 1)
	collector.RecordSkippedReconcile(ctx, "stale")
	collector.RecordStatusWrite(ctx, "written")
	collector.RecordAPICall(ctx, "get", "Deployment", "success", time.Second)
	collector.RecordAPIError(ctx, "get", "test")

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	expectedMetrics := []string{
		"webapp_reconcile_duration_seconds",
		"webapp_child_outcomes_total",
		"webapp_validation_failures_total",
		"webapp_validation_violations_total",
		"webapp_reconcile_skipped_total",
		"webapp_status_writes_total",
		"webapp_kube_api_duration_seconds",
		"webapp_kube_api_calls_total",
		"webapp_kube_api_errors_total",
	}

	registeredMetrics := make(map[string]bool)
	for _, mf := range metricFamilies {
		registeredMetrics[mf.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		assert.True(t, registeredMetrics[expected], "metric %s should be registered", expected)
	}
}

func TestRecordReconcileDuration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordReconcileDuration(ctx, "success", time.Second)
	collector.RecordReconcileDuration(ctx, "failed", time.Second)

	count := testutil.CollectAndCount(collector.reconcileDuration)
	assert.Equal(t, 2, count)
}

func TestRecordChildOutcome(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordChildOutcome(ctx, "Deployment", "Created")
	collector.RecordChildOutcome(ctx, "Deployment", "Created")
	collector.RecordChildOutcome(ctx, "Service", "Failed")

	created := testutil.ToFloat64(collector.childOutcomesTotal.WithLabelValues("Deployment", "Created"))
	failed := testutil.ToFloat64(collector.childOutcomesTotal.WithLabelValues("Service", "Failed"))

	assert.Equal(t, float64(2), created)
	assert.Equal(t, float64(1), failed)
}

func TestRecordValidationFailure(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordValidationFailure(ctx, 3)
	collector.RecordValidationFailure(ctx, 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.validationFailures))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.validationViolations))
}

func TestRecordSkippedReconcile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordSkippedReconcile(ctx, "stale")
	collector.RecordSkippedReconcile(ctx, "deleted")
	collector.RecordSkippedReconcile(ctx, "stale")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.skippedTotal.WithLabelValues("stale")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.skippedTotal.WithLabelValues("deleted")))
}

func TestRecordStatusWrite(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordStatusWrite(ctx, "skipped")

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.statusWritesTotal.WithLabelValues("skipped")))
}

func TestRecordAPICall(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordAPICall(ctx, "patch", "Service", "success", time.Second)

	// Check histogram and counter
	durationCount := testutil.CollectAndCount(collector.apiDuration)
	callsCount := testutil.ToFloat64(collector.apiCallsTotal.WithLabelValues("patch", "Service", "success"))

	assert.Equal(t, 1, durationCount)
	assert.Equal(t, float64(1), callsCount)
}

func TestRecordAPIError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)
	ctx := context.Background()

	collector.RecordAPIError(ctx, "create", "auth")

	count := testutil.ToFloat64(collector.apiErrorsTotal.WithLabelValues("create", "auth"))
	assert.Equal(t, float64(1), count)
}
