package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	telemEvents "tacklens/engine/internal/telemetry/events"
	"tacklens/engine/models"
	"tacklens/engine/preprocess"
	"tacklens/engine/workflow"
)

// buildDefaultWorkflow wires the kernels into the standard analysis DAG:
//
//	preprocess
//	  ├─→ wind_estimation
//	  │     ├─→ strategy_detection ──┐
//	  │     └─→ performance_analysis ┤
//	  └──────────────────────────────┴─→ report_creation
func (e *Engine) buildDefaultWorkflow() *workflow.Workflow {
	wf := workflow.New("analysis_workflow", e.logger)

	wf.AddStep(&workflow.Step{
		ID:           StepPreprocess,
		Name:         "Preprocess data",
		Description:  "Cleans and validates the input track",
		Func:         e.stepPreprocess,
		RequiredKeys: []string{KeyInputTrack},
		ProducesKeys: []string{KeyProcessedTrack, KeyStats},
	})
	wf.AddStep(&workflow.Step{
		ID:           StepWindEstimation,
		Name:         "Estimate wind",
		Description:  "Estimates the true wind vector from the track",
		Func:         e.stepWindEstimation,
		RequiredKeys: []string{KeyProcessedTrack},
		ProducesKeys: []string{KeyWindResult},
		Dependencies: []string{StepPreprocess},
	})
	wf.AddStep(&workflow.Step{
		ID:           StepStrategy,
		Name:         "Detect strategy points",
		Description:  "Finds wind shifts, tack opportunities and laylines",
		Func:         e.stepStrategy,
		RequiredKeys: []string{KeyProcessedTrack, KeyWindResult},
		ProducesKeys: []string{KeyStrategyResult},
		Dependencies: []string{StepPreprocess, StepWindEstimation},
	})
	wf.AddStep(&workflow.Step{
		ID:           StepPerformance,
		Name:         "Analyze performance",
		Description:  "Scores speed, VMG and maneuver efficiency",
		Func:         e.stepPerformance,
		RequiredKeys: []string{KeyProcessedTrack, KeyWindResult},
		ProducesKeys: []string{KeyPerformanceResult},
		Dependencies: []string{StepPreprocess, StepWindEstimation},
	})
	wf.AddStep(&workflow.Step{
		ID:           StepReport,
		Name:         "Create report",
		Description:  "Assembles the analysis report",
		Func:         e.stepReport,
		RequiredKeys: []string{KeyProcessedTrack, KeyWindResult, KeyStrategyResult, KeyPerformanceResult},
		ProducesKeys: []string{KeyReport},
		Dependencies: []string{StepPreprocess, StepWindEstimation, StepStrategy, StepPerformance},
	})

	if issues := wf.ValidateDependencies(); len(issues) > 0 {
		e.logger.Warn("default workflow has dependency issues", "issues", issues)
	}
	if err := wf.OptimizeStepOrder(); err != nil {
		e.logger.Error("default workflow ordering failed", "error", err)
	}

	wf.OnTransition(func(state workflow.State) {
		if state.Status.Terminal() {
			e.monitor.RecordStepExecution(state.ID,
				time.Duration(state.RuntimeSeconds*float64(time.Second)), string(state.Status))
			if e.stepDuration != nil {
				e.stepDuration.Observe(state.RuntimeSeconds, state.ID)
			}
			if e.stepStatus != nil {
				e.stepStatus.Inc(1, state.ID, string(state.Status))
			}
		}
		e.publishEvent(telemEvents.Event{
			Category: telemEvents.CategoryWorkflow,
			Type:     "step_" + string(state.Status),
			Severity: severityFor(state.Status),
			Labels:   map[string]string{"step": state.ID},
			Fields:   map[string]any{"runtime_seconds": state.RuntimeSeconds, "error": state.ErrorMessage},
		})
	})
	return wf
}

func severityFor(s workflow.Status) string {
	switch s {
	case workflow.StatusFailed:
		return "error"
	case workflow.StatusSkipped:
		return "warn"
	default:
		return "info"
	}
}

func (e *Engine) stepPreprocess(ctx context.Context, dc *workflow.Context) (map[string]any, error) {
	track, err := trackFrom(dc, KeyInputTrack)
	if err != nil {
		return nil, err
	}
	processed, stats, err := e.preprocessor.Process(track)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyProcessedTrack: processed, KeyStats: stats}, nil
}

func (e *Engine) stepWindEstimation(ctx context.Context, dc *workflow.Context) (map[string]any, error) {
	track, err := trackFrom(dc, KeyProcessedTrack)
	if err != nil {
		return nil, err
	}
	result, err := e.windEst.EstimateWind(track, e.cfg.BoatType)
	if err != nil {
		return nil, err
	}
	e.monitor.RecordKernelOutcome("wind_method_"+string(result.Wind.Method), 1,
		map[string]any{"confidence": result.Wind.Confidence})
	return map[string]any{KeyWindResult: result}, nil
}

func (e *Engine) stepStrategy(ctx context.Context, dc *workflow.Context) (map[string]any, error) {
	track, err := trackFrom(dc, KeyProcessedTrack)
	if err != nil {
		return nil, err
	}
	windResult, err := windFrom(dc)
	if err != nil {
		return nil, err
	}
	var marks []models.Mark
	if v, ok := dc.Get(KeyMarks); ok {
		if ms, ok := v.([]models.Mark); ok {
			marks = ms
		}
	}
	result, err := e.strategyDet.DetectStrategyPoints(track, windResult, marks)
	if err != nil {
		return nil, err
	}
	e.monitor.RecordKernelOutcome("strategy_points", result.PointCount, nil)
	return map[string]any{KeyStrategyResult: result}, nil
}

func (e *Engine) stepPerformance(ctx context.Context, dc *workflow.Context) (map[string]any, error) {
	track, err := trackFrom(dc, KeyProcessedTrack)
	if err != nil {
		return nil, err
	}
	windResult, err := windFrom(dc)
	if err != nil {
		return nil, err
	}
	result, err := e.perfAnalyzer.Analyze(track, windResult)
	if err != nil {
		return nil, err
	}
	return map[string]any{KeyPerformanceResult: result}, nil
}

func (e *Engine) stepReport(ctx context.Context, dc *workflow.Context) (map[string]any, error) {
	track, err := trackFrom(dc, KeyProcessedTrack)
	if err != nil {
		return nil, err
	}
	windResult, err := windFrom(dc)
	if err != nil {
		return nil, err
	}
	strategyResult, _ := dc.Get(KeyStrategyResult)
	performanceResult, _ := dc.Get(KeyPerformanceResult)
	sr, ok := strategyResult.(*models.StrategyResult)
	if !ok {
		return nil, errors.New("strategy result missing from context")
	}
	pr, ok := performanceResult.(*models.PerformanceResult)
	if !ok {
		return nil, errors.New("performance result missing from context")
	}

	report := &models.Report{
		Timestamp: time.Now().UTC(),
		DataSummary: models.DataSummary{
			Points:          track.Len(),
			DurationSeconds: track.Duration().Seconds(),
			DistanceNM:      pr.BasicStats.DistanceNM,
		},
		WindSummary: models.WindSummary{
			Direction:  windResult.Wind.DirectionDeg,
			Speed:      windResult.Wind.SpeedKn,
			Confidence: windResult.Wind.Confidence,
		},
		StrategySummary: models.StrategySummary{
			PointCount:     sr.PointCount,
			WindShiftCount: sr.WindShiftCount,
			TackPointCount: sr.TackPointCount,
			LaylineCount:   sr.LaylineCount,
		},
		PerformanceSummary: models.PerformanceSummary{
			Score:   pr.OverallPerformance.Score,
			Rating:  pr.OverallPerformance.Rating,
			Summary: pr.OverallPerformance.Summary,
		},
	}
	if stats, ok := dc.Get(KeyStats); ok {
		if s, ok := stats.(preprocess.Stats); ok && s.DistanceNM > 0 {
			report.DataSummary.DistanceNM = s.DistanceNM
		}
	}
	return map[string]any{KeyReport: report}, nil
}

func trackFrom(dc *workflow.Context, key string) (*models.Track, error) {
	v, ok := dc.Get(key)
	if !ok {
		return nil, fmt.Errorf("context key %q is not set", key)
	}
	t, ok := v.(*models.Track)
	if !ok || t == nil {
		return nil, fmt.Errorf("context key %q does not hold a track", key)
	}
	return t, nil
}

func windFrom(dc *workflow.Context) (*models.WindResult, error) {
	v, ok := dc.Get(KeyWindResult)
	if !ok {
		return nil, fmt.Errorf("context key %q is not set", KeyWindResult)
	}
	r, ok := v.(*models.WindResult)
	if !ok || r == nil {
		return nil, fmt.Errorf("context key %q does not hold a wind result", KeyWindResult)
	}
	return r, nil
}
