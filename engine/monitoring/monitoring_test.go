package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAggregation(t *testing.T) {
	c := NewAnalysisMetricsCollector()
	c.RecordStepExecution("preprocess", 20*time.Millisecond, "completed")
	c.RecordStepExecution("preprocess", 40*time.Millisecond, "completed")
	c.RecordStepExecution("wind_estimation", 10*time.Millisecond, "failed")
	c.RecordStepExecution("strategy_detection", 0, "skipped")
	c.RecordKernelOutcome("wind_method_maneuvers", 1, nil)

	agg := c.Aggregated()
	pre := agg.StepMetrics["preprocess"]
	require.NotNil(t, pre)
	assert.Equal(t, 2, pre.Executions)
	assert.Equal(t, 2, pre.Successes)
	assert.Equal(t, 30*time.Millisecond, pre.AverageLatency)
	assert.Equal(t, 1.0, pre.SuccessRate)

	windStep := agg.StepMetrics["wind_estimation"]
	require.NotNil(t, windStep)
	assert.Equal(t, 0.0, windStep.SuccessRate)

	sd := agg.StepMetrics["strategy_detection"]
	require.NotNil(t, sd)
	assert.Equal(t, 1, sd.Skips)

	assert.Equal(t, 1, agg.KernelOutcomes["wind_method_maneuvers"].Count)
}

func TestAggregatedIsASnapshot(t *testing.T) {
	c := NewAnalysisMetricsCollector()
	c.RecordStepExecution("a", time.Millisecond, "completed")
	agg := c.Aggregated()
	agg.StepMetrics["a"].Executions = 99
	assert.Equal(t, 1, c.Aggregated().StepMetrics["a"].Executions)
}

func TestPrometheusExporterServesMetrics(t *testing.T) {
	c := NewAnalysisMetricsCollector()
	c.RecordStepExecution("preprocess", 25*time.Millisecond, "completed")
	exporter, err := NewPrometheusExporter(c, "tacklens")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	exporter.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tacklens_step_executions_total")
	assert.Contains(t, body, "tacklens_step_average_latency_seconds")
}

func TestPrometheusExporterCountsDeltas(t *testing.T) {
	c := NewAnalysisMetricsCollector()
	c.RecordStepExecution("s", time.Millisecond, "completed")
	exporter, err := NewPrometheusExporter(c, "t")
	require.NoError(t, err)

	serve := func() string {
		rec := httptest.NewRecorder()
		exporter.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}
	first := serve()
	second := serve()
	// Scraping twice without new executions must not double count.
	assert.Contains(t, first, `t_step_executions_total{status="completed",step="s"} 1`)
	assert.Contains(t, second, `t_step_executions_total{status="completed",step="s"} 1`)
}

func TestAnalysisTracerSpans(t *testing.T) {
	tracer, err := NewAnalysisTracer("tacklens-test", "test")
	require.NoError(t, err)
	ctx, span := tracer.StartOperation(context.Background(), "analysis", map[string]any{"track": "unit"})
	tracer.RecordStep(ctx, "preprocess", 5*time.Millisecond, true)
	tracer.RecordError(ctx, "kernel", errors.New("synthetic"))
	tracer.FinishOperation(span, false)
}

func TestHealthCheckSystem(t *testing.T) {
	h := NewHealthCheckSystem()
	h.RegisterCheck("cache", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Healthy: true}
	})
	h.RegisterCheck("storage", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Healthy: false, Message: "mirror unreachable"}
	})

	result := h.CheckHealth(context.Background())
	assert.False(t, result.Healthy)
	assert.True(t, result.Checks["cache"].Healthy)
	assert.Equal(t, "mirror unreachable", result.Checks["storage"].Message)

	rec := httptest.NewRecorder()
	h.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "storage"))
}

func TestHealthCheckAllHealthy(t *testing.T) {
	h := NewHealthCheckSystem()
	h.RegisterCheck("ok", func(ctx context.Context) HealthCheckResult {
		return HealthCheckResult{Healthy: true}
	})
	rec := httptest.NewRecorder()
	h.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
