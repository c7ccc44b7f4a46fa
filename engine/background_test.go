package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/workflow"
)

func waitForBackground(t *testing.T, e *Engine) BackgroundStatus {
	t.Helper()
	deadline := time.After(30 * time.Second)
	for {
		st := e.BackgroundStatus()
		if !st.Running {
			return st
		}
		select {
		case <-deadline:
			t.Fatal("background run did not finish")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBackgroundCancelStopsAtStepBoundary(t *testing.T) {
	e := newEngine(t)
	e.SetTrack(trackgen.SquareCourse(122, 71))

	var once sync.Once
	_, err := e.RunInBackground(workflow.RunOptions{}, func(st BackgroundStatus) {
		// Cancel as soon as the first step is announced; the flag is
		// honored before the next step starts.
		once.Do(e.CancelBackground)
	})
	require.NoError(t, err)

	st := waitForBackground(t, e)
	assert.True(t, st.Cancelled)
	require.NotNil(t, st.Result)
	assert.LessOrEqual(t, st.Result.CompletedSteps, 1)
	assert.Empty(t, st.Error)

	// The cancelled run leaves the engine reusable.
	_, err = e.RunInBackground(workflow.RunOptions{}, nil)
	require.NoError(t, err)
	st = waitForBackground(t, e)
	assert.False(t, st.Cancelled)
	assert.Equal(t, 5, st.Result.CompletedSteps)
}

func TestBackgroundRangeRun(t *testing.T) {
	e := newEngine(t)
	e.SetTrack(trackgen.SquareCourse(122, 72))
	_, err := e.RunInBackground(workflow.RunOptions{StopAt: StepWindEstimation}, nil)
	require.NoError(t, err)
	st := waitForBackground(t, e)
	require.NotNil(t, st.Result)
	assert.Equal(t, 2, st.Result.TotalSteps)
	assert.Equal(t, 2, st.Result.CompletedSteps)

	_, ok := e.WindResult()
	assert.True(t, ok)
	_, ok = e.Report()
	assert.False(t, ok, "steps past StopAt must not run")
}

func TestBackgroundFailureRecorded(t *testing.T) {
	e := newEngine(t)
	// No track seeded: preprocess is skipped for missing input and the
	// run records the reason.
	_, err := e.RunInBackground(workflow.RunOptions{}, nil)
	require.NoError(t, err)
	st := waitForBackground(t, e)
	assert.NotEmpty(t, st.Error)
	require.NotNil(t, st.Result)
	assert.Zero(t, st.Result.CompletedSteps)
}
