// Package monitoring provides host-facing observability over analysis
// runs: a step metrics collector with a Prometheus exporter, an
// OpenTelemetry tracer for analysis operations, and a health check
// system. The engine's internal counters stay in
// internal/telemetry/metrics; this package is the aggregation layer a
// host wires into its own HTTP surface.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StepMetrics tracks executions of one workflow step.
type StepMetrics struct {
	StepID         string        `json:"step_id"`
	Executions     int           `json:"executions"`
	Successes      int           `json:"successes"`
	Failures       int           `json:"failures"`
	Skips          int           `json:"skips"`
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	SuccessRate    float64       `json:"success_rate"`
	LastExecution  time.Time     `json:"last_execution"`
}

// KernelMetrics tracks outcomes of one analysis kernel across runs.
type KernelMetrics struct {
	Kernel        string         `json:"kernel"`
	Count         int            `json:"count"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LastRecorded  time.Time      `json:"last_recorded"`
}

// AggregatedMetrics is the full collector snapshot.
type AggregatedMetrics struct {
	StepMetrics    map[string]*StepMetrics   `json:"step_metrics"`
	KernelOutcomes map[string]*KernelMetrics `json:"kernel_outcomes"`
	CollectionTime time.Time                 `json:"collection_time"`
}

// AnalysisMetricsCollector aggregates step and kernel metrics in memory.
type AnalysisMetricsCollector struct {
	mu      sync.RWMutex
	steps   map[string]*StepMetrics
	kernels map[string]*KernelMetrics
}

// NewAnalysisMetricsCollector returns an empty collector.
func NewAnalysisMetricsCollector() *AnalysisMetricsCollector {
	return &AnalysisMetricsCollector{
		steps:   make(map[string]*StepMetrics),
		kernels: make(map[string]*KernelMetrics),
	}
}

// RecordStepExecution records one step run.
func (c *AnalysisMetricsCollector) RecordStepExecution(stepID string, latency time.Duration, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.steps[stepID]
	if m == nil {
		m = &StepMetrics{StepID: stepID}
		c.steps[stepID] = m
	}
	m.Executions++
	switch outcome {
	case "completed":
		m.Successes++
	case "failed":
		m.Failures++
	case "skipped":
		m.Skips++
	}
	m.TotalLatency += latency
	if runs := m.Successes + m.Failures; runs > 0 {
		m.AverageLatency = m.TotalLatency / time.Duration(runs)
		m.SuccessRate = float64(m.Successes) / float64(runs)
	}
	m.LastExecution = time.Now()
}

// RecordKernelOutcome counts a kernel-level outcome (e.g. wind method
// chosen, points detected).
func (c *AnalysisMetricsCollector) RecordKernelOutcome(kernel string, count int, metadata map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.kernels[kernel]
	if m == nil {
		m = &KernelMetrics{Kernel: kernel}
		c.kernels[kernel] = m
	}
	m.Count += count
	m.Metadata = metadata
	m.LastRecorded = time.Now()
}

// Aggregated returns a deep snapshot of the collector.
func (c *AnalysisMetricsCollector) Aggregated() *AggregatedMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &AggregatedMetrics{
		StepMetrics:    make(map[string]*StepMetrics, len(c.steps)),
		KernelOutcomes: make(map[string]*KernelMetrics, len(c.kernels)),
		CollectionTime: time.Now(),
	}
	for id, m := range c.steps {
		cp := *m
		out.StepMetrics[id] = &cp
	}
	for k, m := range c.kernels {
		cp := *m
		out.KernelOutcomes[k] = &cp
	}
	return out
}

// PrometheusExporter syncs the collector into a Prometheus registry on
// each scrape.
type PrometheusExporter struct {
	collector      *AnalysisMetricsCollector
	registry       *prometheus.Registry
	stepExecutions *prometheus.CounterVec
	stepLatency    *prometheus.GaugeVec
	kernelOutcomes *prometheus.CounterVec

	mu       sync.Mutex
	lastSync map[string]StepMetrics
}

// NewPrometheusExporter builds an exporter over the collector.
func NewPrometheusExporter(collector *AnalysisMetricsCollector, namespace string) (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()
	stepExecutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "step_executions_total",
		Help:      "Total workflow step executions",
	}, []string{"step", "status"})
	stepLatency := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "step_average_latency_seconds",
		Help:      "Average step execution latency",
	}, []string{"step"})
	kernelOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kernel_outcomes_total",
		Help:      "Kernel-level outcome counts",
	}, []string{"kernel"})
	registry.MustRegister(stepExecutions, stepLatency, kernelOutcomes)
	return &PrometheusExporter{
		collector:      collector,
		registry:       registry,
		stepExecutions: stepExecutions,
		stepLatency:    stepLatency,
		kernelOutcomes: kernelOutcomes,
		lastSync:       make(map[string]StepMetrics),
	}, nil
}

// MetricsHandler returns the scrape handler; metrics sync from the
// collector before every scrape.
func (pe *PrometheusExporter) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pe.sync()
		promhttp.HandlerFor(pe.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func (pe *PrometheusExporter) sync() {
	agg := pe.collector.Aggregated()
	pe.mu.Lock()
	defer pe.mu.Unlock()
	for id, m := range agg.StepMetrics {
		prev := pe.lastSync[id]
		pe.stepExecutions.With(prometheus.Labels{"step": id, "status": "completed"}).Add(float64(m.Successes - prev.Successes))
		pe.stepExecutions.With(prometheus.Labels{"step": id, "status": "failed"}).Add(float64(m.Failures - prev.Failures))
		pe.stepExecutions.With(prometheus.Labels{"step": id, "status": "skipped"}).Add(float64(m.Skips - prev.Skips))
		pe.stepLatency.With(prometheus.Labels{"step": id}).Set(m.AverageLatency.Seconds())
		pe.lastSync[id] = *m
	}
}

// AnalysisTracer wraps an OpenTelemetry tracer for analysis operations.
type AnalysisTracer struct {
	tracer      oteltrace.Tracer
	serviceName string
	environment string
}

// NewAnalysisTracer sets up a tracer provider without an external
// exporter; hosts attach exporters through the global provider.
func NewAnalysisTracer(serviceName, environment string) (*AnalysisTracer, error) {
	tp := trace.NewTracerProvider(
		trace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return &AnalysisTracer{tracer: otel.Tracer(serviceName), serviceName: serviceName, environment: environment}, nil
}

// StartOperation opens a span for an analysis operation.
func (t *AnalysisTracer) StartOperation(ctx context.Context, name string, attributes map[string]any) (context.Context, oteltrace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// RecordStep adds a step-execution event to the active span.
func (t *AnalysisTracer) RecordStep(ctx context.Context, stepID string, latency time.Duration, success bool) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("step_execution", oteltrace.WithAttributes(
			attribute.String("step", stepID),
			attribute.Int64("latency_microseconds", latency.Microseconds()),
			attribute.Bool("success", success),
		))
	}
}

// RecordError marks the active span with an error.
func (t *AnalysisTracer) RecordError(ctx context.Context, errorType string, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetAttributes(
			attribute.String("error.type", errorType),
			attribute.String("error.message", err.Error()),
		)
	}
}

// FinishOperation closes the span with a status.
func (t *AnalysisTracer) FinishOperation(span oteltrace.Span, success bool) {
	if span.IsRecording() {
		if success {
			span.SetStatus(codes.Ok, "operation completed")
		} else {
			span.SetStatus(codes.Error, "operation failed")
		}
	}
	span.End()
}

// HealthCheckFunc probes one subsystem.
type HealthCheckFunc func(ctx context.Context) HealthCheckResult

// HealthCheckResult is one probe's outcome.
type HealthCheckResult struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// OverallHealthResult aggregates every registered probe.
type OverallHealthResult struct {
	Healthy   bool                         `json:"healthy"`
	Checks    map[string]HealthCheckResult `json:"checks"`
	CheckedAt time.Time                    `json:"checked_at"`
}

// HealthCheckSystem runs registered probes on demand.
type HealthCheckSystem struct {
	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

// NewHealthCheckSystem returns an empty health system.
func NewHealthCheckSystem() *HealthCheckSystem {
	return &HealthCheckSystem{checks: make(map[string]HealthCheckFunc)}
}

// RegisterCheck adds a named probe; re-registering replaces it.
func (h *HealthCheckSystem) RegisterCheck(name string, check HealthCheckFunc) {
	if check == nil {
		return
	}
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

// CheckHealth runs every probe and aggregates.
func (h *HealthCheckSystem) CheckHealth(ctx context.Context) *OverallHealthResult {
	h.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	out := &OverallHealthResult{Healthy: true, Checks: make(map[string]HealthCheckResult, len(checks)), CheckedAt: time.Now()}
	for name, fn := range checks {
		start := time.Now()
		result := fn(ctx)
		result.Name = name
		result.Latency = time.Since(start)
		out.Checks[name] = result
		if !result.Healthy {
			out.Healthy = false
		}
	}
	return out
}

// HealthHandler serves the aggregated health as JSON, 503 when unhealthy.
func (h *HealthCheckSystem) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := h.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !result.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
}
