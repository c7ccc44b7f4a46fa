package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passStep(id string, deps []string, required, produces []string) *Step {
	return &Step{
		ID: id, Name: id, Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
			out := make(map[string]any)
			for _, key := range produces {
				out[key] = id + ":" + key
			}
			return out, nil
		},
		RequiredKeys: required, ProducesKeys: produces, Dependencies: deps,
	}
}

func linearWorkflow(t *testing.T) *Workflow {
	t.Helper()
	w := New("test", nil)
	w.AddStep(passStep("a", nil, nil, []string{"x"}))
	w.AddStep(passStep("b", []string{"a"}, []string{"x"}, []string{"y"}))
	w.AddStep(passStep("c", []string{"b"}, []string{"y"}, []string{"z"}))
	return w
}

func TestRunWorkflowLinear(t *testing.T) {
	w := linearWorkflow(t)
	summary, err := w.RunWorkflow(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.CompletedSteps)
	assert.Equal(t, 0, summary.FailedSteps)
	assert.Equal(t, 1.0, summary.SuccessRate)

	v, ok := w.Data("z")
	require.True(t, ok)
	assert.Equal(t, "c:z", v)

	for _, id := range []string{"a", "b", "c"} {
		state, ok := w.StepState(id)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, state.Status)
	}
}

func TestOutputsSplatIntoContext(t *testing.T) {
	w := New("test", nil)
	w.AddStep(&Step{ID: "multi", Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
		return map[string]any{"first": 1, "second": 2}, nil
	}, ProducesKeys: []string{"first", "second"}})
	require.NoError(t, w.RunStep(context.Background(), "multi", false))

	// Invariant: a Completed step's declared outputs are all present.
	state, _ := w.StepState("multi")
	require.Equal(t, StatusCompleted, state.Status)
	for _, key := range state.ProducesKeys {
		assert.True(t, w.Context().Has(key), "produced key %q missing", key)
	}
}

func TestCycleDetection(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("a", []string{"b"}, nil, nil))
	w.AddStep(passStep("b", []string{"a"}, nil, nil))

	issues := w.ValidateDependencies()
	require.NotEmpty(t, issues)
	found := false
	for _, issue := range issues {
		if strings.Contains(issue, "cycle") {
			found = true
		}
	}
	assert.True(t, found, "expected a cycle diagnostic, got %v", issues)

	assert.ErrorIs(t, w.OptimizeStepOrder(), ErrCyclicWorkflow)

	_, err := w.RunWorkflow(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrCyclicWorkflow)

	assert.ErrorIs(t, w.RunStep(context.Background(), "a", false), ErrCyclicWorkflow)
}

func TestValidateMissingDependency(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("a", []string{"ghost"}, nil, nil))
	issues := w.ValidateDependencies()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "ghost")
}

func TestValidateUnproducedInputs(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("a", nil, nil, []string{"x"}))
	w.AddStep(passStep("b", []string{"a"}, []string{"x", "unavailable"}, nil))
	issues := w.ValidateDependencies()
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "unavailable")
}

func TestOptimizeStepOrderTopological(t *testing.T) {
	w := New("test", nil)
	// Added out of order on purpose.
	w.AddStep(passStep("c", []string{"b"}, nil, nil))
	w.AddStep(passStep("b", []string{"a"}, nil, nil))
	w.AddStep(passStep("a", nil, nil, nil))
	require.NoError(t, w.OptimizeStepOrder())
	order := w.StepIDs()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestPrerequisiteSkipping(t *testing.T) {
	w := linearWorkflow(t)
	before := w.Context().Snapshot()

	err := w.RunStep(context.Background(), "c", false)
	assert.ErrorIs(t, err, ErrPrerequisites)

	state, _ := w.StepState("c")
	assert.Equal(t, StatusSkipped, state.Status)
	assert.Contains(t, state.ErrorMessage, `"b"`, "error message names the missing prerequisite")
	assert.Equal(t, before, w.Context().Snapshot(), "context must be unchanged")
}

func TestForceRunBypassesPrerequisites(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("a", nil, nil, nil))
	w.AddStep(passStep("b", []string{"a"}, nil, []string{"y"}))
	require.NoError(t, w.RunStep(context.Background(), "b", true))
	state, _ := w.StepState("b")
	assert.Equal(t, StatusCompleted, state.Status)
}

func TestFailureCaptured(t *testing.T) {
	w := New("test", nil)
	boom := errors.New("kernel exploded")
	w.AddStep(&Step{ID: "bad", Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
		return nil, boom
	}})
	w.AddStep(passStep("after", []string{"bad"}, nil, nil))

	err := w.RunStep(context.Background(), "bad", false)
	assert.ErrorIs(t, err, ErrStepFailed)
	state, _ := w.StepState("bad")
	assert.Equal(t, StatusFailed, state.Status)
	assert.Contains(t, state.ErrorMessage, "kernel exploded")

	// Downstream step skips rather than fails.
	err = w.RunStep(context.Background(), "after", false)
	assert.ErrorIs(t, err, ErrPrerequisites)
	state, _ = w.StepState("after")
	assert.Equal(t, StatusSkipped, state.Status)
}

func TestPanicCaptured(t *testing.T) {
	w := New("test", nil)
	w.AddStep(&Step{ID: "panics", Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
		panic("unexpected")
	}})
	err := w.RunStep(context.Background(), "panics", false)
	assert.ErrorIs(t, err, ErrStepFailed)
	state, _ := w.StepState("panics")
	assert.Equal(t, StatusFailed, state.Status)
	assert.Contains(t, state.ErrorMessage, "panic")
}

func TestRunWorkflowStopsOnFailure(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("ok", nil, nil, nil))
	w.AddStep(&Step{ID: "bad", Dependencies: []string{"ok"}, Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
		return nil, errors.New("nope")
	}})
	w.AddStep(passStep("never", []string{"bad"}, nil, nil))

	summary, err := w.RunWorkflow(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CompletedSteps)
	assert.Equal(t, 1, summary.FailedSteps)
	state, _ := w.StepState("never")
	assert.Equal(t, StatusNotStarted, state.Status, "steps after the failure are not attempted")
}

func TestRunWorkflowIgnoreErrors(t *testing.T) {
	w := New("test", nil)
	w.AddStep(&Step{ID: "bad", Func: func(ctx context.Context, dc *Context) (map[string]any, error) {
		return nil, errors.New("nope")
	}})
	w.AddStep(passStep("independent", nil, nil, []string{"x"}))

	summary, err := w.RunWorkflow(context.Background(), RunOptions{IgnoreErrors: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CompletedSteps)
	assert.Equal(t, 1, summary.FailedSteps)
}

func TestRunWorkflowRange(t *testing.T) {
	w := linearWorkflow(t)
	require.NoError(t, w.RunStep(context.Background(), "a", false))
	summary, err := w.RunWorkflow(context.Background(), RunOptions{StartFrom: "b", StopAt: "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalSteps)
	state, _ := w.StepState("c")
	assert.Equal(t, StatusNotStarted, state.Status)
}

func TestResetPreservesSeededInputs(t *testing.T) {
	w := linearWorkflow(t)
	w.SetData("input", "seeded")
	_, err := w.RunWorkflow(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.True(t, w.Context().Has("z"))

	w.Reset()
	assert.True(t, w.Context().Has("input"), "seeded inputs survive reset")
	assert.False(t, w.Context().Has("z"), "produced values are dropped")
	for _, id := range w.StepIDs() {
		state, _ := w.StepState(id)
		assert.Equal(t, StatusNotStarted, state.Status)
	}
}

func TestResetIdempotent(t *testing.T) {
	w := linearWorkflow(t)
	w.SetData("input", 1)
	_, _ = w.RunWorkflow(context.Background(), RunOptions{})
	w.Reset()
	first := w.Status()
	firstCtx := w.Context().Snapshot()
	w.Reset()
	second := w.Status()
	assert.Equal(t, first.NotStarted, second.NotStarted)
	assert.Equal(t, firstCtx, w.Context().Snapshot())
}

func TestSetStepOrderValidation(t *testing.T) {
	w := linearWorkflow(t)
	assert.ErrorIs(t, w.SetStepOrder([]string{"a", "ghost"}), ErrUnknownStep)
	require.NoError(t, w.SetStepOrder([]string{"c", "b", "a"}))
	assert.Equal(t, []string{"c", "b", "a"}, w.StepIDs())
}

func TestAddStepReplaces(t *testing.T) {
	w := New("test", nil)
	w.AddStep(passStep("a", nil, nil, []string{"x"}))
	w.AddStep(passStep("a", nil, nil, []string{"y"}))
	assert.Equal(t, []string{"a"}, w.StepIDs(), "replacement keeps a single entry")
	state, _ := w.StepState("a")
	assert.Equal(t, []string{"y"}, state.ProducesKeys)
}

func TestStatusAggregation(t *testing.T) {
	w := linearWorkflow(t)
	st := w.Status()
	assert.Equal(t, 3, st.TotalSteps)
	assert.Equal(t, 3, st.NotStarted)

	_, err := w.RunWorkflow(context.Background(), RunOptions{})
	require.NoError(t, err)
	st = w.Status()
	assert.Equal(t, 3, st.Completed)
	assert.Equal(t, 100.0, st.ProgressPercentage)
	assert.NotEmpty(t, st.ExecutionLog)
}

func TestTransitionHooks(t *testing.T) {
	w := linearWorkflow(t)
	var transitions []Status
	w.OnTransition(func(state State) { transitions = append(transitions, state.Status) })
	require.NoError(t, w.RunStep(context.Background(), "a", false))
	assert.Equal(t, []Status{StatusInProgress, StatusCompleted}, transitions)
}

func TestRerunCompletedStep(t *testing.T) {
	w := linearWorkflow(t)
	require.NoError(t, w.RunStep(context.Background(), "a", false))
	require.NoError(t, w.RunStep(context.Background(), "a", false), "explicit rerun of a completed step is allowed")
	state, _ := w.StepState("a")
	assert.Equal(t, StatusCompleted, state.Status)
}
