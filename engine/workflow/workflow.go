package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrCyclicWorkflow reports a dependency cycle; ordering and runs refuse
// to proceed until it is fixed.
var ErrCyclicWorkflow = errors.New("workflow dependency cycle")

// ErrUnknownStep reports a step ID with no registered step.
var ErrUnknownStep = errors.New("unknown workflow step")

// ErrPrerequisites reports a step skipped because its prerequisites were
// not met.
var ErrPrerequisites = errors.New("step prerequisites not met")

// ErrStepFailed reports a step whose function returned an error or
// panicked.
var ErrStepFailed = errors.New("step failed")

// TransitionHook observes step status changes. Hooks run synchronously on
// the executing goroutine after each transition.
type TransitionHook func(state State)

// LogEntry records one step execution for the status view.
type LogEntry struct {
	StepID         string    `json:"step_id"`
	Status         Status    `json:"status"`
	Time           time.Time `json:"time"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
}

// RunSummary is the outcome of a RunWorkflow call.
type RunSummary struct {
	Namespace      string            `json:"namespace"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	RuntimeSeconds float64           `json:"runtime_seconds"`
	TotalSteps     int               `json:"total_steps"`
	CompletedSteps int               `json:"completed_steps"`
	FailedSteps    int               `json:"failed_steps"`
	SuccessRate    float64           `json:"success_rate"`
	StepStatuses   map[string]Status `json:"step_statuses"`
}

// WorkflowStatus is the aggregate state of all steps.
type WorkflowStatus struct {
	Namespace          string     `json:"namespace"`
	TotalSteps         int        `json:"total_steps"`
	Completed          int        `json:"completed"`
	Failed             int        `json:"failed"`
	InProgress         int        `json:"in_progress"`
	NotStarted         int        `json:"not_started"`
	Skipped            int        `json:"skipped"`
	ProgressPercentage float64    `json:"progress_percentage"`
	CurrentStep        string     `json:"current_step,omitempty"`
	StartTime          *time.Time `json:"start_time,omitempty"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	ExecutionLog       []LogEntry `json:"execution_logs,omitempty"`
}

// Workflow owns a set of steps, their ordering, and the shared data
// context for the duration of its runs. Methods are safe for concurrent
// use, but at most one goroutine should execute steps at a time.
type Workflow struct {
	mu        sync.Mutex
	namespace string
	steps     map[string]*Step
	order     []string
	dc        *Context
	seeded    map[string]struct{}
	started   bool
	current   string
	startTime time.Time
	endTime   time.Time
	log       []LogEntry
	hooks     []TransitionHook
	logger    *slog.Logger
}

// New creates an empty workflow under the given namespace.
func New(namespace string, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		namespace: namespace,
		steps:     make(map[string]*Step),
		dc:        NewContext(),
		seeded:    make(map[string]struct{}),
		logger:    logger,
	}
}

// Namespace returns the workflow's namespace.
func (w *Workflow) Namespace() string { return w.namespace }

// Context returns the shared data context.
func (w *Workflow) Context() *Context { return w.dc }

// OnTransition registers a hook invoked after every step status change.
func (w *Workflow) OnTransition(h TransitionHook) {
	if h == nil {
		return
	}
	w.mu.Lock()
	w.hooks = append(w.hooks, h)
	w.mu.Unlock()
}

// AddStep appends a step. Re-adding an existing ID replaces the step with
// a warning, keeping its position in the traversal order.
func (w *Workflow) AddStep(s *Step) {
	if s == nil || s.ID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.steps[s.ID]; exists {
		w.logger.Warn("step already exists, replacing", "step_id", s.ID)
	}
	s.reset()
	w.steps[s.ID] = s
	for _, id := range w.order {
		if id == s.ID {
			return
		}
	}
	w.order = append(w.order, s.ID)
}

// StepIDs returns the current traversal order.
func (w *Workflow) StepIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

// SetStepOrder overrides the traversal order. Referencing a missing step
// is an error; leaving registered steps out keeps them runnable
// individually but logs a warning.
func (w *Workflow) SetStepOrder(ids []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if _, ok := w.steps[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStep, strings.Join(missing, ", "))
	}
	ordered := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		ordered[id] = struct{}{}
	}
	var left []string
	for id := range w.steps {
		if _, ok := ordered[id]; !ok {
			left = append(left, id)
		}
	}
	if len(left) > 0 {
		sort.Strings(left)
		w.logger.Warn("step order omits registered steps", "missing", strings.Join(left, ", "))
	}
	w.order = append([]string(nil), ids...)
	return nil
}

// ValidateDependencies checks the step graph and returns human-readable
// issues: references to missing steps, dependency cycles, and inputs that
// no declared dependency produces.
func (w *Workflow) ValidateDependencies() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var issues []string

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(w.steps))
	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		for _, dep := range w.steps[id].Dependencies {
			if _, ok := w.steps[dep]; !ok {
				issues = append(issues, fmt.Sprintf("step %q depends on missing step %q", id, dep))
				continue
			}
			switch color[dep] {
			case grey:
				issues = append(issues, fmt.Sprintf("dependency cycle detected through step %q", dep))
			case white:
				visit(dep)
			}
		}
		color[id] = black
	}
	for _, id := range w.order {
		if color[id] == white {
			visit(id)
		}
	}

	for _, id := range w.order {
		step := w.steps[id]
		available := make(map[string]struct{})
		for _, dep := range step.Dependencies {
			if d, ok := w.steps[dep]; ok {
				for _, key := range d.ProducesKeys {
					available[key] = struct{}{}
				}
			}
		}
		var unmet []string
		for _, key := range step.RequiredKeys {
			if _, ok := available[key]; !ok {
				unmet = append(unmet, key)
			}
		}
		if len(unmet) > 0 && len(step.Dependencies) > 0 {
			issues = append(issues, fmt.Sprintf("step %q requires inputs not produced by its dependencies: %s", id, strings.Join(unmet, ", ")))
		}
	}
	return issues
}

// OptimizeStepOrder replaces the traversal order with a topological sort
// of the dependency graph. Fails with ErrCyclicWorkflow on a cycle.
func (w *Workflow) OptimizeStepOrder() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ordered, err := w.topoSortLocked()
	if err != nil {
		return err
	}
	w.order = ordered
	return nil
}

func (w *Workflow) topoSortLocked() ([]string, error) {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(w.steps))
	ordered := make([]string, 0, len(w.steps))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		for _, dep := range w.steps[id].Dependencies {
			if _, ok := w.steps[dep]; !ok {
				continue
			}
			switch color[dep] {
			case grey:
				return fmt.Errorf("%w: through step %q", ErrCyclicWorkflow, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		ordered = append(ordered, id)
		return nil
	}
	for _, id := range w.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}
	return ordered, nil
}

// CheckPrerequisites reports whether a step can run: every dependency
// Completed and every required input key present in the context.
func (w *Workflow) CheckPrerequisites(id string) (bool, []string) {
	w.mu.Lock()
	step, ok := w.steps[id]
	if !ok {
		w.mu.Unlock()
		return false, []string{fmt.Sprintf("step %q does not exist", id)}
	}
	var missing []string
	for _, dep := range step.Dependencies {
		d, ok := w.steps[dep]
		if !ok {
			missing = append(missing, fmt.Sprintf("dependency step %q does not exist", dep))
		} else if d.status != StatusCompleted {
			missing = append(missing, fmt.Sprintf("dependency step %q is not completed (status: %s)", dep, d.status))
		}
	}
	required := append([]string(nil), step.RequiredKeys...)
	w.mu.Unlock()
	for _, key := range required {
		if !w.dc.Has(key) {
			missing = append(missing, fmt.Sprintf("required input %q is not present", key))
		}
	}
	return len(missing) == 0, missing
}

// SetData seeds the context with an external input. Values set before the
// first run survive Reset.
func (w *Workflow) SetData(key string, value any) {
	w.mu.Lock()
	if !w.started {
		w.seeded[key] = struct{}{}
	}
	w.mu.Unlock()
	w.dc.Set(key, value)
}

// Data returns a context value.
func (w *Workflow) Data(key string) (any, bool) { return w.dc.Get(key) }

// DataKeys lists the context's current keys.
func (w *Workflow) DataKeys() []string { return w.dc.Keys() }

// RunStep executes one step. With force unset, unmet prerequisites mark
// the step Skipped and return ErrPrerequisites. An explicit run always
// resets the step first, so re-running a Completed or Failed step is
// allowed. Step errors and panics are captured on the step state and
// returned wrapped in ErrStepFailed; they never propagate as panics.
func (w *Workflow) RunStep(ctx context.Context, id string, force bool) error {
	w.mu.Lock()
	step, ok := w.steps[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	if _, err := w.topoSortLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	prereqOK, missing := w.CheckPrerequisites(id)
	if !prereqOK && !force {
		w.mu.Lock()
		step.reset()
		step.status = StatusSkipped
		step.errorMessage = "prerequisites not met: " + strings.Join(missing, "; ")
		state := step.state()
		w.appendLogLocked(step)
		w.mu.Unlock()
		w.logger.Warn("step skipped", "step_id", id, "missing", strings.Join(missing, "; "))
		w.fireHooks(state)
		return fmt.Errorf("%w: %s", ErrPrerequisites, strings.Join(missing, "; "))
	}

	w.mu.Lock()
	step.reset()
	step.status = StatusInProgress
	step.startTime = time.Now()
	w.started = true
	w.current = id
	if w.startTime.IsZero() {
		w.startTime = step.startTime
	}
	state := step.state()
	w.mu.Unlock()
	w.fireHooks(state)
	w.logger.Info("step started", "step_id", id, "name", step.Name)

	outputs, err := w.invoke(ctx, step)

	w.mu.Lock()
	step.endTime = time.Now()
	step.runtimeSecs = step.endTime.Sub(step.startTime).Seconds()
	if err != nil {
		step.status = StatusFailed
		step.errorMessage = err.Error()
	} else {
		step.status = StatusCompleted
	}
	w.current = ""
	w.appendLogLocked(step)
	state = step.state()
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("step failed", "step_id", id, "error", err)
		w.fireHooks(state)
		return fmt.Errorf("%w: %s: %v", ErrStepFailed, id, err)
	}
	for key, value := range outputs {
		w.dc.Set(key, value)
	}
	w.logger.Info("step completed", "step_id", id, "runtime_seconds", state.RuntimeSeconds)
	w.fireHooks(state)
	return nil
}

// invoke runs the step function, converting panics into errors.
func (w *Workflow) invoke(ctx context.Context, step *Step) (outputs map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outputs = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if step.Func == nil {
		return nil, errors.New("step has no function")
	}
	return step.Func(ctx, w.dc)
}

// RunOptions bound a RunWorkflow call.
type RunOptions struct {
	StartFrom    string
	StopAt       string
	IgnoreErrors bool
}

// RunWorkflow executes the steps between StartFrom and StopAt (inclusive)
// in traversal order, stopping at the first failure unless IgnoreErrors.
// Refuses to start on a cyclic graph.
func (w *Workflow) RunWorkflow(ctx context.Context, opts RunOptions) (RunSummary, error) {
	w.mu.Lock()
	if _, err := w.topoSortLocked(); err != nil {
		w.mu.Unlock()
		return RunSummary{}, err
	}
	order := append([]string(nil), w.order...)
	w.mu.Unlock()

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

	summary := RunSummary{
		Namespace:    w.namespace,
		StartTime:    time.Now(),
		TotalSteps:   len(toRun),
		StepStatuses: make(map[string]Status, len(toRun)),
	}
	w.logger.Info("workflow run starting", "namespace", w.namespace, "steps", len(toRun))
	for i, id := range toRun {
		if err := ctx.Err(); err != nil {
			break
		}
		w.logger.Info("workflow progress", "position", i+1, "total", len(toRun), "step_id", id)
		if err := w.RunStep(ctx, id, false); err != nil {
			summary.FailedSteps++
			if !opts.IgnoreErrors {
				w.logger.Error("workflow stopped on failure", "step_id", id)
				break
			}
		} else {
			summary.CompletedSteps++
		}
	}
	w.mu.Lock()
	for _, id := range toRun {
		summary.StepStatuses[id] = w.steps[id].status
	}
	w.endTime = time.Now()
	w.mu.Unlock()
	summary.EndTime = w.endTime
	summary.RuntimeSeconds = summary.EndTime.Sub(summary.StartTime).Seconds()
	if summary.TotalSteps > 0 {
		summary.SuccessRate = float64(summary.CompletedSteps) / float64(summary.TotalSteps)
	}
	w.logger.Info("workflow run finished",
		"completed", summary.CompletedSteps, "failed", summary.FailedSteps,
		"runtime_seconds", summary.RuntimeSeconds)
	return summary, nil
}

// Reset returns every step to NotStarted and drops the data context except
// for inputs seeded before the first run. Idempotent.
func (w *Workflow) Reset() {
	w.mu.Lock()
	for _, step := range w.steps {
		step.reset()
	}
	keep := make(map[string]struct{}, len(w.seeded))
	for k := range w.seeded {
		keep[k] = struct{}{}
	}
	w.started = false
	w.current = ""
	w.startTime = time.Time{}
	w.endTime = time.Time{}
	w.log = nil
	w.mu.Unlock()
	w.dc.retain(keep)
	w.logger.Info("workflow reset", "namespace", w.namespace)
}

// StepState returns the snapshot of one step.
func (w *Workflow) StepState(id string) (State, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	step, ok := w.steps[id]
	if !ok {
		return State{}, false
	}
	return step.state(), true
}

// Status returns the aggregate state of the workflow.
func (w *Workflow) Status() WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WorkflowStatus{Namespace: w.namespace, TotalSteps: len(w.steps), CurrentStep: w.current}
	for _, step := range w.steps {
		switch step.status {
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusInProgress:
			st.InProgress++
		case StatusSkipped:
			st.Skipped++
		default:
			st.NotStarted++
		}
	}
	if st.TotalSteps > 0 {
		st.ProgressPercentage = float64(st.Completed) / float64(st.TotalSteps) * 100
	}
	if !w.startTime.IsZero() {
		ts := w.startTime
		st.StartTime = &ts
	}
	if !w.endTime.IsZero() {
		ts := w.endTime
		st.EndTime = &ts
	}
	if n := len(w.log); n > 0 {
		lo := n - 10
		if lo < 0 {
			lo = 0
		}
		st.ExecutionLog = append([]LogEntry(nil), w.log[lo:]...)
	}
	return st
}

func (w *Workflow) appendLogLocked(step *Step) {
	w.log = append(w.log, LogEntry{
		StepID:         step.ID,
		Status:         step.status,
		Time:           time.Now(),
		RuntimeSeconds: step.runtimeSecs,
	})
}

func (w *Workflow) fireHooks(state State) {
	w.mu.Lock()
	hooks := append([]TransitionHook(nil), w.hooks...)
	w.mu.Unlock()
	for _, h := range hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					w.logger.Error("workflow transition hook panicked", "panic", rec)
				}
			}()
			h(state)
		}()
	}
}
