package engine_test

import (
	"context"
	"fmt"

	"tacklens/engine"
	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/workflow"
)

// Example runs the default analysis workflow over a synthetic track and
// prints the per-step outcome.
func Example() {
	eng, err := engine.New(engine.Defaults())
	if err != nil {
		panic(err)
	}
	eng.SetTrack(trackgen.SquareCourse(122, 1))

	summary, err := eng.RunAll(context.Background(), workflow.RunOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("completed %d/%d steps\n", summary.CompletedSteps, summary.TotalSteps)

	if report, ok := eng.Report(); ok {
		fmt.Printf("analyzed %d samples\n", report.DataSummary.Points)
	}
	// Output:
	// completed 5/5 steps
	// analyzed 503 samples
}
