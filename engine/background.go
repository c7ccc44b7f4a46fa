package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tacklens/engine/workflow"
)

// ErrBackgroundRunActive reports an attempt to start a second concurrent
// background run on the same engine.
var ErrBackgroundRunActive = errors.New("background run already active")

// BackgroundStatus is the poll-friendly snapshot of a background run.
// Callers poll it; they must not mutate workflow state while Running.
type BackgroundStatus struct {
	RunID     string               `json:"run_id"`
	Running   bool                 `json:"running"`
	StepID    string               `json:"step_id,omitempty"`
	Progress  float64              `json:"progress"` // [0,1]
	StartTime *time.Time           `json:"start_time,omitempty"`
	EndTime   *time.Time           `json:"end_time,omitempty"`
	Result    *workflow.RunSummary `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	Cancelled bool                 `json:"cancelled,omitempty"`
}

// ProgressCallback is invoked from the worker goroutine after each step
// transition during a background run.
type ProgressCallback func(status BackgroundStatus)

// RunInBackground executes the workflow on a dedicated worker goroutine.
// At most one background run may be active per engine; the worker has
// exclusive mutable access to the workflow context until it finishes.
// Returns the run ID used in status snapshots.
func (e *Engine) RunInBackground(opts workflow.RunOptions, progress ProgressCallback) (string, error) {
	e.bg.mu.Lock()
	if e.bg.running {
		e.bg.mu.Unlock()
		return "", ErrBackgroundRunActive
	}
	runID := uuid.NewString()
	now := time.Now()
	e.bg.running = true
	e.bg.cancel.Store(false)
	e.bg.progress = progress
	e.bg.status = BackgroundStatus{RunID: runID, Running: true, StartTime: &now}
	e.bg.mu.Unlock()

	go e.runBackground(runID, opts)
	e.logger.Info("background workflow run started", "run_id", runID)
	return runID, nil
}

// CancelBackground requests a cooperative stop. The flag is examined at
// step boundaries; the step in flight always finishes.
func (e *Engine) CancelBackground() {
	e.bg.cancel.Store(true)
}

// BackgroundStatus returns the latest background run snapshot.
func (e *Engine) BackgroundStatus() BackgroundStatus {
	e.bg.mu.Lock()
	defer e.bg.mu.Unlock()
	return e.bg.status
}

func (e *Engine) runBackground(runID string, opts workflow.RunOptions) {
	ctx, span := e.startSpan(context.Background(), "workflow_background_run")
	defer span.End()
	e.clog.InfoCtx(ctx, "background workflow run executing", "run_id", runID)

	order := e.wf.StepIDs()
	startIdx, stopIdx := 0, len(order)-1
	for i, id := range order {
		if id == opts.StartFrom {
			startIdx = i
		}
		if id == opts.StopAt {
			stopIdx = i
		}
	}
	if stopIdx < startIdx {
		stopIdx = len(order) - 1
	}
	toRun := order[startIdx : stopIdx+1]

	summary := workflow.RunSummary{
		Namespace:    e.wf.Namespace(),
		StartTime:    time.Now(),
		TotalSteps:   len(toRun),
		StepStatuses: make(map[string]workflow.Status, len(toRun)),
	}
	var failed bool
	var cancelled bool
	for i, stepID := range toRun {
		if e.bg.cancel.Load() {
			cancelled = true
			break
		}
		e.updateBackground(func(st *BackgroundStatus) {
			st.StepID = stepID
			st.Progress = float64(i) / float64(len(toRun))
		})
		err := e.wf.RunStep(ctx, stepID, false)
		if err != nil {
			failed = true
			summary.FailedSteps++
			e.updateBackground(func(st *BackgroundStatus) {
				if state, ok := e.wf.StepState(stepID); ok && state.ErrorMessage != "" {
					st.Error = state.ErrorMessage
				} else {
					st.Error = err.Error()
				}
			})
			if !opts.IgnoreErrors {
				break
			}
		} else {
			summary.CompletedSteps++
		}
	}
	for _, stepID := range toRun {
		if state, ok := e.wf.StepState(stepID); ok {
			summary.StepStatuses[stepID] = state.Status
		}
	}
	summary.EndTime = time.Now()
	summary.RuntimeSeconds = summary.EndTime.Sub(summary.StartTime).Seconds()
	if summary.TotalSteps > 0 {
		summary.SuccessRate = float64(summary.CompletedSteps) / float64(summary.TotalSteps)
	}

	now := time.Now()
	e.updateBackground(func(st *BackgroundStatus) {
		st.Running = false
		st.Progress = 1.0
		st.StepID = ""
		st.EndTime = &now
		st.Result = &summary
		st.Cancelled = cancelled
	})
	e.bg.mu.Lock()
	e.bg.running = false
	e.bg.progress = nil
	e.bg.mu.Unlock()
	e.clog.InfoCtx(ctx, "background workflow run finished",
		"run_id", runID, "completed", summary.CompletedSteps,
		"failed", failed, "cancelled", cancelled)
}

// updateBackground mutates the status under the lock and invokes the
// progress callback with the resulting snapshot.
func (e *Engine) updateBackground(mutate func(*BackgroundStatus)) {
	e.bg.mu.Lock()
	mutate(&e.bg.status)
	snapshot := e.bg.status
	cb := e.bg.progress
	e.bg.mu.Unlock()
	if cb != nil {
		func() { defer func() { _ = recover() }(); cb(snapshot) }()
	}
}
