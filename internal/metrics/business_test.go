package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertBizMetricLine checks that the Prometheus output contains a business metric
// matching the given name, partial label pattern, and value. Uses regex to handle
// extra OTel scope labels injected by the Prometheus exporter.
func assertBizMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func TestNewBusinessMetrics(t *testing.T) {
	t.Run("Success_CreateBusinessMetrics", func(t *testing.T) {
		provider, err := NewProvider("test_app")
		require.NoError(t, err)

		businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")

		require.NoError(t, err)
		assert.NotNil(t, businessMetrics)
	})
}

func TestBusinessMetrics_RecordOperation(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "intake", "webhook_receive", "success")
	})

	t.Run("Success_RecordFailedOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "intake", "webhook_receive", "error")
	})

	t.Run("Success_RecordMultipleDomains", func(t *testing.T) {
		bm.RecordOperation(context.Background(), "intake", "webhook_receive", "success")
		bm.RecordOperation(context.Background(), "dispatch", "action_process", "success")
		bm.RecordOperation(context.Background(), "delivery", "outgoing_deliver", "error")
	})
}

func TestBusinessMetrics_RecordDuration(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "intake", "webhook_receive", 123*time.Millisecond, "success")
	})

	t.Run("Success_RecordFailedDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "intake", "webhook_receive", 456*time.Millisecond, "error")
	})

	t.Run("Success_RecordMultipleDomains", func(t *testing.T) {
		bm.RecordDuration(context.Background(), "intake", "webhook_receive", 100*time.Millisecond, "success")
		bm.RecordDuration(context.Background(), "dispatch", "action_process", 200*time.Millisecond, "success")
		bm.RecordDuration(context.Background(), "delivery", "outgoing_deliver", 300*time.Millisecond, "error")
	})
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOpMetrics := NewNoOpBusinessMetrics()

	assert.NotNil(t, noOpMetrics)
	assert.IsType(t, &NoOpBusinessMetrics{}, noOpMetrics)

	t.Run("NoOp_RecordOperationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordOperation(context.Background(), "intake", "webhook_receive", "success")
		noOpMetrics.RecordOperation(context.Background(), "dispatch", "action_process", "error")
	})

	t.Run("NoOp_RecordDurationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordDuration(
			context.Background(),
			"intake",
			"webhook_receive",
			100*time.Millisecond,
			"success",
		)
		noOpMetrics.RecordDuration(context.Background(), "dispatch", "action_process", 200*time.Millisecond, "error")
	})

	t.Run("NoOp_RecordEventDoesNotPanic", func(t *testing.T) {
		noOpMetrics.RecordEvent(context.Background(), "intake", "rate_limited", "stripe")
	})
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	// Record various operations
	ctx := context.Background()

	// Record operation counts
	bm.RecordOperation(ctx, "intake", "webhook_receive", "success")
	bm.RecordOperation(ctx, "intake", "webhook_receive", "success")
	bm.RecordOperation(ctx, "intake", "webhook_receive", "error")
	bm.RecordOperation(ctx, "dispatch", "action_process", "success")
	bm.RecordOperation(ctx, "dispatch", "action_replay", "success")
	bm.RecordOperation(ctx, "delivery", "outgoing_deliver", "success")

	// Record operation durations
	bm.RecordDuration(ctx, "intake", "webhook_receive", 50*time.Millisecond, "success")
	bm.RecordDuration(ctx, "intake", "webhook_receive", 60*time.Millisecond, "success")
	bm.RecordDuration(ctx, "intake", "webhook_receive", 100*time.Millisecond, "error")
	bm.RecordDuration(ctx, "dispatch", "action_process", 10*time.Millisecond, "success")
	bm.RecordDuration(ctx, "dispatch", "action_replay", 20*time.Millisecond, "success")
	bm.RecordDuration(ctx, "delivery", "outgoing_deliver", 150*time.Millisecond, "success")

	// Record operational events
	bm.RecordEvent(ctx, "intake", "rate_limited", "stripe")
	bm.RecordEvent(ctx, "intake", "rate_limited", "stripe")
	bm.RecordEvent(ctx, "delivery", "circuit_open", "billing")

	// Metrics should be recorded without errors
	// Verify metrics in Prometheus registry
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)

	output := w.Body.String()

	// Check operation counts
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="intake".*operation="webhook_receive".*status="success"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="intake".*operation="webhook_receive".*status="error"`,
		`1`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="dispatch".*operation="action_process".*status="success"`,
		`1`,
	)

	// Check durations (existence)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operation_duration_seconds_count`,
		`domain="intake".*operation="webhook_receive".*status="success"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operation_duration_seconds_sum`,
		`domain="intake".*operation="webhook_receive".*status="success"`,
		``,
	)

	// Check events
	assertBizMetricLine(
		t,
		output,
		`integration_test_events_total`,
		`domain="intake".*event="rate_limited".*key="stripe"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_events_total`,
		`domain="delivery".*event="circuit_open".*key="billing"`,
		`1`,
	)
}
