package engine

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/workflow"
)

func TestMonitoringFedByWorkflowRuns(t *testing.T) {
	e := newEngine(t)
	runSquare(t, e)

	agg := e.Monitoring().Aggregated()
	for _, id := range []string{StepPreprocess, StepWindEstimation, StepStrategy, StepPerformance, StepReport} {
		m := agg.StepMetrics[id]
		require.NotNil(t, m, "missing step metrics for %q", id)
		assert.Equal(t, 1, m.Successes)
		assert.Equal(t, 1.0, m.SuccessRate)
	}

	// The kernels contribute outcome counters.
	require.NotNil(t, agg.KernelOutcomes["strategy_points"])
	assert.Positive(t, agg.KernelOutcomes["strategy_points"].Count)
	var windMethods int
	for name := range agg.KernelOutcomes {
		if strings.HasPrefix(name, "wind_method_") {
			windMethods++
		}
	}
	assert.Equal(t, 1, windMethods, "outcomes: %v", agg.KernelOutcomes)
}

func TestMonitoringRecordsSkips(t *testing.T) {
	e := newEngine(t)
	e.SetTrack(trackgen.SquareCourse(122, 74))
	_ = e.RunStep(context.Background(), StepStrategy, false)

	agg := e.Monitoring().Aggregated()
	m := agg.StepMetrics[StepStrategy]
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Skips)
	assert.Zero(t, m.Successes)
}

func TestMonitoringHandlerServesStepMetrics(t *testing.T) {
	e := newEngine(t)
	runSquare(t, e)

	handler := e.MonitoringHandler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tacklens_step_executions_total")
	assert.Contains(t, body, `step="`+StepWindEstimation+`"`)
}

func TestRunLogsCarryTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	cfg := Defaults()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	cfg.TracingSamplePercent = 100
	e, err := New(cfg)
	require.NoError(t, err)

	e.SetTrack(trackgen.SquareCourse(122, 75))
	_, err = e.RunAll(context.Background(), workflow.RunOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "workflow run finished")
	assert.Contains(t, out, "trace_id=", "facade logs must carry the run's trace id")
	assert.Contains(t, out, "span_id=")
}
