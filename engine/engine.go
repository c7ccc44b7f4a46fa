// Package engine composes the analysis subsystems — parameter registry,
// result cache, the four kernels and the workflow engine — behind a
// single facade. A host constructs an Engine, seeds it with a track and
// optional marks, and runs the default workflow step by step or as a
// whole, in the foreground or on a background worker.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tacklens/engine/cache"
	telemEvents "tacklens/engine/internal/telemetry/events"
	intmetrics "tacklens/engine/internal/telemetry/metrics"
	telemetrytracing "tacklens/engine/internal/telemetry/tracing"
	"tacklens/engine/models"
	"tacklens/engine/monitoring"
	"tacklens/engine/params"
	"tacklens/engine/performance"
	"tacklens/engine/preprocess"
	"tacklens/engine/storage"
	"tacklens/engine/strategy"
	"tacklens/engine/telemetry/logging"
	"tacklens/engine/wind"
	"tacklens/engine/workflow"
)

// Context keys published by the default workflow.
const (
	KeyInputTrack        = "input_df"
	KeyProcessedTrack    = "processed_df"
	KeyStats             = "stats"
	KeyMarks             = "marks"
	KeyWindResult        = "wind_result"
	KeyStrategyResult    = "strategy_result"
	KeyPerformanceResult = "performance_result"
	KeyReport            = "report"
)

// Step IDs of the default workflow.
const (
	StepPreprocess     = "preprocess"
	StepWindEstimation = "wind_estimation"
	StepStrategy       = "strategy_detection"
	StepPerformance    = "performance_analysis"
	StepReport         = "report_creation"
)

// TelemetryEvent is the reduced, stable event representation delivered to
// external observers.
type TelemetryEvent struct {
	Time     time.Time         `json:"time"`
	Category string            `json:"category"`
	Type     string            `json:"type"`
	Severity string            `json:"severity,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
	SpanID   string            `json:"span_id,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
	Fields   map[string]any    `json:"fields,omitempty"`
}

// EventObserver receives TelemetryEvent notifications synchronously.
type EventObserver func(ev TelemetryEvent)

// Snapshot is a unified view of engine state.
type Snapshot struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    time.Duration           `json:"uptime"`
	Workflow  workflow.WorkflowStatus `json:"workflow"`
	Cache     cache.Stats             `json:"cache"`
	Params    params.Summary          `json:"params"`
}

// Engine composes all subsystems behind a single facade.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	clog      logging.Logger
	startedAt time.Time

	registry *params.Registry
	cache    *cache.Cache
	store    storage.Storage

	monitor     *monitoring.AnalysisMetricsCollector
	monExporter *monitoring.PrometheusExporter

	preprocessor *preprocess.Processor
	windEst      *wind.Estimator
	strategyDet  *strategy.Detector
	perfAnalyzer *performance.Analyzer

	wf *workflow.Workflow

	metricsProvider intmetrics.Provider
	stepDuration    intmetrics.Histogram
	stepStatus      intmetrics.Counter
	eventBus        telemEvents.Bus
	tracer          telemetrytracing.Tracer

	eventObserversMu sync.RWMutex
	eventObservers   []EventObserver

	bg backgroundRunner
}

// New constructs an Engine with the supplied configuration and builds the
// default analysis workflow.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BoatType == "" {
		cfg.BoatType = "default"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheNamespace == "" {
		cfg.CacheNamespace = "analysis_cache"
	}

	e := &Engine{cfg: cfg, logger: logger, startedAt: time.Now(), store: cfg.Storage}
	e.clog = logging.New(logger)
	e.monitor = monitoring.NewAnalysisMetricsCollector()
	if exporter, err := monitoring.NewPrometheusExporter(e.monitor, "tacklens"); err == nil {
		e.monExporter = exporter
	} else {
		logger.Warn("monitoring exporter unavailable", "error", err)
	}
	e.metricsProvider = selectMetricsProvider(cfg)
	if e.metricsProvider != nil {
		e.stepDuration = e.metricsProvider.NewHistogram(intmetrics.HistogramOpts{CommonOpts: intmetrics.CommonOpts{
			Namespace: "tacklens", Subsystem: "workflow", Name: "step_duration_seconds",
			Help: "Workflow step runtime", Labels: []string{"step"},
		}})
		e.stepStatus = e.metricsProvider.NewCounter(intmetrics.CounterOpts{CommonOpts: intmetrics.CommonOpts{
			Namespace: "tacklens", Subsystem: "workflow", Name: "step_transitions_total",
			Help: "Workflow step terminal transitions", Labels: []string{"step", "status"},
		}})
	}
	if cfg.EventsEnabled {
		e.eventBus = telemEvents.NewBus(e.metricsProvider)
	}
	if cfg.TracingSamplePercent > 0 {
		pct := cfg.TracingSamplePercent
		e.tracer = telemetrytracing.NewAdaptiveTracer(func() float64 { return pct })
	}

	regOpts := []params.Option{params.WithLogger(logger)}
	if cfg.Storage != nil {
		regOpts = append(regOpts, params.WithStorage(cfg.Storage))
	}
	e.registry = params.NewRegistry(regOpts...)

	cacheOpts := []cache.Option{
		cache.WithNamespace(cfg.CacheNamespace),
		cache.WithMaxSize(cfg.CacheMaxSizeBytes),
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
	}
	if cfg.Storage != nil {
		cacheOpts = append(cacheOpts, cache.WithStorage(cfg.Storage))
	}
	if e.metricsProvider != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(e.metricsProvider))
	}
	e.cache = cache.New(cacheOpts...)

	e.preprocessor = preprocess.New(e.registry, logger)
	e.windEst = wind.New(e.registry, e.cache, logger)
	e.strategyDet = strategy.New(e.registry, e.cache, logger)
	e.perfAnalyzer = performance.New(e.registry, e.cache, logger)

	e.registry.OnChange(func(changed map[string]any) {
		e.publishEvent(telemEvents.Event{
			Category: telemEvents.CategoryParams, Type: "parameters_changed", Severity: "info",
			Fields: map[string]any{"changed": changed},
		})
	})

	e.wf = e.buildDefaultWorkflow()
	return e, nil
}

// selectMetricsProvider returns a provider based on telemetry fields in
// Config, defaulting unknown backends to Prometheus.
func selectMetricsProvider(cfg Config) intmetrics.Provider {
	if !cfg.MetricsEnabled {
		return nil
	}
	switch strings.ToLower(cfg.MetricsBackend) {
	case "", "prom", "prometheus":
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	case "otel", "opentelemetry":
		return intmetrics.NewOTelProvider(intmetrics.OTelProviderOptions{})
	case "noop":
		return intmetrics.NewNoopProvider()
	default:
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	}
}

// Params exposes the shared parameter registry.
func (e *Engine) Params() *params.Registry { return e.registry }

// Cache exposes the shared analysis cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Workflow exposes the underlying workflow for inspection.
func (e *Engine) Workflow() *workflow.Workflow { return e.wf }

// WindEstimator exposes the wind kernel for direct use.
func (e *Engine) WindEstimator() *wind.Estimator { return e.windEst }

// PerformanceAnalyzer exposes the performance kernel for direct use.
func (e *Engine) PerformanceAnalyzer() *performance.Analyzer { return e.perfAnalyzer }

// SetTrack seeds the workflow with the raw input track. Seeded inputs
// survive Reset.
func (e *Engine) SetTrack(t *models.Track) {
	e.wf.SetData(KeyInputTrack, t)
}

// SetMarks seeds the optional race marks; an empty list disables layline
// detection.
func (e *Engine) SetMarks(marks []models.Mark) {
	e.wf.SetData(KeyMarks, marks)
}

// RunStep executes a single step of the default workflow.
func (e *Engine) RunStep(ctx context.Context, stepID string, force bool) error {
	ctx, span := e.startSpan(ctx, "step:"+stepID)
	defer span.End()
	e.clog.InfoCtx(ctx, "running step", "step_id", stepID, "force", force)
	err := e.wf.RunStep(ctx, stepID, force)
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrPrerequisites):
		e.clog.WarnCtx(ctx, "step skipped", "step_id", stepID, "reason", err)
	default:
		e.clog.ErrorCtx(ctx, "step run failed", "step_id", stepID, "error", err)
	}
	return err
}

// RunAll executes the whole workflow in the calling goroutine.
func (e *Engine) RunAll(ctx context.Context, opts workflow.RunOptions) (workflow.RunSummary, error) {
	ctx, span := e.startSpan(ctx, "workflow_run")
	defer span.End()
	e.clog.InfoCtx(ctx, "workflow run requested")
	summary, err := e.wf.RunWorkflow(ctx, opts)
	if err != nil {
		e.clog.ErrorCtx(ctx, "workflow run refused", "error", err)
		return summary, err
	}
	e.clog.InfoCtx(ctx, "workflow run finished",
		"completed", summary.CompletedSteps, "failed", summary.FailedSteps,
		"success_rate", summary.SuccessRate)
	return summary, nil
}

// Reset returns the workflow to its pristine state, keeping seeded
// inputs.
func (e *Engine) Reset() {
	e.wf.Reset()
}

// WorkflowStatus reports per-step statuses and progress.
func (e *Engine) WorkflowStatus() workflow.WorkflowStatus { return e.wf.Status() }

// StepState returns one step's snapshot.
func (e *Engine) StepState(stepID string) (workflow.State, bool) { return e.wf.StepState(stepID) }

// Report returns the report produced by the last completed run.
func (e *Engine) Report() (*models.Report, bool) {
	v, ok := e.wf.Data(KeyReport)
	if !ok {
		return nil, false
	}
	r, ok := v.(*models.Report)
	return r, ok
}

// WindResult returns the last wind estimation output.
func (e *Engine) WindResult() (*models.WindResult, bool) {
	v, ok := e.wf.Data(KeyWindResult)
	if !ok {
		return nil, false
	}
	r, ok := v.(*models.WindResult)
	return r, ok
}

// StrategyResult returns the last strategy detection output.
func (e *Engine) StrategyResult() (*models.StrategyResult, bool) {
	v, ok := e.wf.Data(KeyStrategyResult)
	if !ok {
		return nil, false
	}
	r, ok := v.(*models.StrategyResult)
	return r, ok
}

// PerformanceResult returns the last performance analysis output.
func (e *Engine) PerformanceResult() (*models.PerformanceResult, bool) {
	v, ok := e.wf.Data(KeyPerformanceResult)
	if !ok {
		return nil, false
	}
	r, ok := v.(*models.PerformanceResult)
	return r, ok
}

// ProcessedTrack returns the preprocessed track.
func (e *Engine) ProcessedTrack() (*models.Track, bool) {
	v, ok := e.wf.Data(KeyProcessedTrack)
	if !ok {
		return nil, false
	}
	t, ok := v.(*models.Track)
	return t, ok
}

// PreprocessStats returns the preprocessing statistics.
func (e *Engine) PreprocessStats() (preprocess.Stats, bool) {
	v, ok := e.wf.Data(KeyStats)
	if !ok {
		return preprocess.Stats{}, false
	}
	s, ok := v.(preprocess.Stats)
	return s, ok
}

// Snapshot returns a unified state view across subsystems.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		StartedAt: e.startedAt,
		Uptime:    time.Since(e.startedAt),
		Workflow:  e.wf.Status(),
		Cache:     e.cache.Stats(),
		Params:    e.registry.Summarize(),
	}
}

// Monitoring exposes the step metrics collector. The workflow feeds it on
// every terminal step transition and the kernels contribute outcome
// counts; hosts read it directly or scrape it via MonitoringHandler.
func (e *Engine) Monitoring() *monitoring.AnalysisMetricsCollector { return e.monitor }

// MonitoringHandler returns the Prometheus scrape handler over the
// monitoring collector; nil when the exporter could not be built.
func (e *Engine) MonitoringHandler() http.Handler {
	if e == nil || e.monExporter == nil {
		return nil
	}
	return e.monExporter.MetricsHandler()
}

// MetricsHandler returns the HTTP handler for metrics exposition
// (Prometheus backend only); nil when unavailable.
func (e *Engine) MetricsHandler() http.Handler {
	if e == nil || e.metricsProvider == nil {
		return nil
	}
	if hp, ok := e.metricsProvider.(interface{ MetricsHandler() http.Handler }); ok {
		return hp.MetricsHandler()
	}
	return nil
}

// RegisterEventObserver adds an observer invoked synchronously for each
// telemetry event. Safe for concurrent use; nil observers are ignored.
func (e *Engine) RegisterEventObserver(obs EventObserver) {
	if e == nil || obs == nil {
		return
	}
	e.eventObserversMu.Lock()
	e.eventObservers = append(e.eventObservers, obs)
	e.eventObserversMu.Unlock()
}

func (e *Engine) publishEvent(ev telemEvents.Event) {
	if e.eventBus != nil {
		_ = e.eventBus.Publish(ev)
	}
	e.dispatchEvent(ev)
}

func (e *Engine) dispatchEvent(ev telemEvents.Event) {
	e.eventObserversMu.RLock()
	if len(e.eventObservers) == 0 {
		e.eventObserversMu.RUnlock()
		return
	}
	observers := append([]EventObserver(nil), e.eventObservers...)
	e.eventObserversMu.RUnlock()
	pub := TelemetryEvent{Time: ev.Time, Category: ev.Category, Type: ev.Type, Severity: ev.Severity, TraceID: ev.TraceID, SpanID: ev.SpanID, Labels: ev.Labels, Fields: ev.Fields}
	for _, o := range observers { // synchronous; observers must be fast
		func() { defer func() { _ = recover() }(); o(pub) }()
	}
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, telemetrytracing.Span) {
	if e.tracer == nil {
		return ctx, noopSpan{}
	}
	return e.tracer.StartSpan(ctx, name)
}

type noopSpan struct{}

func (noopSpan) End()                     {}
func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) Context() telemetrytracing.SpanContext {
	return telemetrytracing.SpanContext{}
}
func (noopSpan) IsEnded() bool { return true }

// backgroundRunner holds the single-worker background execution state.
type backgroundRunner struct {
	mu       sync.Mutex
	running  bool
	cancel   atomic.Bool
	status   BackgroundStatus
	progress func(BackgroundStatus)
}
