package wind

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/cache"
	"tacklens/engine/geo"
	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/models"
	"tacklens/engine/params"
)

func newEstimator() *Estimator {
	return New(params.NewRegistry(), nil, nil)
}

func angularError(a, b float64) float64 {
	return math.Abs(geo.AngleDiff(a, b))
}

func TestManeuverDetectionOnBeat(t *testing.T) {
	track := trackgen.UpwindBeat(225, 6, 80, 7)
	e := newEstimator()
	result, err := e.EstimateWind(track, "default")
	require.NoError(t, err)

	// Five tacks connect six legs.
	require.GreaterOrEqual(t, len(result.DetectedManeuvers), 4)
	assert.LessOrEqual(t, len(result.DetectedManeuvers), 7)

	tacks := 0
	for _, m := range result.DetectedManeuvers {
		assert.Positive(t, m.SpeedRatio)
		assert.LessOrEqual(t, m.SpeedRatio, 1.0)
		assert.GreaterOrEqual(t, math.Abs(m.HeadingChange), 60.0)
		if m.Type == models.ManeuverTack {
			tacks++
		}
	}
	assert.GreaterOrEqual(t, tacks, 4, "beat maneuvers should classify as tacks")
}

func TestWindDirectionFromBeat(t *testing.T) {
	track := trackgen.UpwindBeat(225, 6, 80, 8)
	result, err := newEstimator().EstimateWind(track, "default")
	require.NoError(t, err)

	assert.LessOrEqual(t, angularError(result.Wind.DirectionDeg, 225), 20.0,
		"estimated %v, want near 225", result.Wind.DirectionDeg)
	assert.GreaterOrEqual(t, result.Wind.Confidence, 0.3)
	assert.Equal(t, models.MethodManeuvers, result.Wind.Method)
	assert.Positive(t, result.Wind.SpeedKn)
}

func TestWindDirectionOnSquareCourse(t *testing.T) {
	track := trackgen.SquareCourse(122, 9)
	result, err := newEstimator().EstimateWind(track, "default")
	require.NoError(t, err)
	assert.LessOrEqual(t, angularError(result.Wind.DirectionDeg, 225), 30.0,
		"estimated %v, want within 30 of 225", result.Wind.DirectionDeg)
	assert.GreaterOrEqual(t, result.Wind.Confidence, 0.3)
}

func TestSmoothingWindowLargerThanTrackFallsBack(t *testing.T) {
	registry := params.NewRegistry()
	require.NoError(t, registry.Set(params.KeyWindSmoothingWin, 20))
	e := New(registry, nil, nil)

	track := trackgen.Straight(90, 5, 15, 10) // shorter than the window
	result, err := e.EstimateWind(track, "default")
	require.NoError(t, err)
	assert.Empty(t, result.DetectedManeuvers)
	assert.Equal(t, models.MethodCourseSpeed, result.Wind.Method)
	assert.LessOrEqual(t, result.Wind.Confidence, 0.5, "course/speed confidence is capped low")
}

func TestEstimateWindEmptyTrack(t *testing.T) {
	_, err := newEstimator().EstimateWind(&models.Track{}, "default")
	assert.ErrorIs(t, err, models.ErrEmptyTrack)
}

func TestEstimateWindUsesCache(t *testing.T) {
	c := cache.New()
	registry := params.NewRegistry()
	e := New(registry, c, nil)
	track := trackgen.UpwindBeat(180, 4, 60, 11)

	first, err := e.EstimateWind(track, "default")
	require.NoError(t, err)
	second, err := e.EstimateWind(track, "default")
	require.NoError(t, err)
	assert.Same(t, first, second, "second call must be served from the cache")
	assert.Positive(t, c.Stats().HitCount)

	// Changing a wind parameter invalidates the fingerprint.
	require.NoError(t, registry.Set(params.KeyMinTackAngleChange, 80.0))
	third, err := e.EstimateWind(track, "default")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestHistoryAndStatus(t *testing.T) {
	e := newEstimator()
	track := trackgen.UpwindBeat(200, 4, 60, 12)
	_, err := e.EstimateWind(track, "default")
	require.NoError(t, err)

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, history[0].Method, history[0].Wind.Method)

	status := e.Status()
	assert.False(t, status.IsProcessing)
	assert.Equal(t, 100.0, status.Progress)
}

func TestOptimalVMGAngles(t *testing.T) {
	vmg := OptimalVMGAngles(10, "default")
	assert.InDelta(t, 42, vmg.UpwindAngle, 3)
	assert.InDelta(t, 150, vmg.DownwindAngle, 5)
	assert.Positive(t, vmg.UpwindVMG)
	assert.Positive(t, vmg.DownwindVMG)
	assert.Less(t, vmg.UpwindVMG, vmg.DownwindVMG)

	// Interpolation between table rows.
	mid := OptimalVMGAngles(11, "default")
	lo := OptimalVMGAngles(10, "default")
	hi := OptimalVMGAngles(12, "default")
	assert.GreaterOrEqual(t, mid.UpwindVMG, lo.UpwindVMG)
	assert.LessOrEqual(t, mid.UpwindVMG, hi.UpwindVMG)

	// Clamping outside the table.
	low := OptimalVMGAngles(1, "default")
	assert.Equal(t, OptimalVMGAngles(4, "default"), low)
}

func TestUnknownBoatTypeFallsBack(t *testing.T) {
	unknown := OptimalVMGAngles(10, "trimaran-prototype")
	def := OptimalVMGAngles(10, "default")
	assert.Equal(t, def, unknown)
}

func TestBoatTypesHavePolars(t *testing.T) {
	for _, bt := range BoatTypes() {
		vmg := OptimalVMGAngles(12, bt)
		assert.Positive(t, vmg.UpwindVMG, "boat type %q", bt)
		assert.Greater(t, vmg.DownwindAngle, 90.0, "boat type %q", bt)
	}
}

func TestTackJibePerformance(t *testing.T) {
	e := newEstimator()
	track := trackgen.UpwindBeat(225, 6, 80, 13)
	analysis, err := e.AnalyzeTackJibePerformance(track, "default")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, analysis.TackCount, 4)
	require.NotNil(t, analysis.TackStats)
	assert.Positive(t, analysis.TackStats.AvgDuration)
	assert.Greater(t, analysis.TackStats.AvgSpeedRatio, 0.0)
	assert.Nil(t, analysis.JibeStats, "a pure beat has no jibes")
}

func TestWindDirectionDistribution(t *testing.T) {
	e := newEstimator()
	track := trackgen.UpwindBeat(225, 6, 80, 14)
	dist, err := e.WindDirectionDistribution(track, "default")
	require.NoError(t, err)
	assert.Len(t, dist.CourseHistogram, 36)
	total := dist.UpwindPercentage + dist.ReachPercentage + dist.DownwindPercentage
	assert.InDelta(t, 100, total, 0.5)
	assert.Greater(t, dist.UpwindPercentage, 50.0, "a beat is mostly upwind sailing")
}

func TestClassifyManeuvers(t *testing.T) {
	ms := []models.Maneuver{
		{StartHeading: 183, EndHeading: 267}, // both within 90 of wind at 225
		{StartHeading: 350, EndHeading: 80},  // both away from wind
		{StartHeading: 90, EndHeading: 180},  // mixed
	}
	classifyManeuvers(ms, 225)
	assert.Equal(t, models.ManeuverTack, ms[0].Type)
	assert.Equal(t, models.ManeuverJibe, ms[1].Type)
	assert.Equal(t, models.ManeuverUnknown, ms[2].Type)
}
