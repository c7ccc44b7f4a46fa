package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/cache"
	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/models"
	"tacklens/engine/params"
)

func newDetector() *Detector {
	return New(params.NewRegistry(), nil, nil)
}

func windAt(direction, speed float64) *models.WindResult {
	return &models.WindResult{
		Wind:      models.Wind{DirectionDeg: direction, SpeedKn: speed, Confidence: 0.8, Method: models.MethodManeuvers},
		Timestamp: time.Now().UTC(),
		BoatType:  "default",
	}
}

func TestSquareCourseEmitsPoints(t *testing.T) {
	track := trackgen.SquareCourse(122, 21)
	result, err := newDetector().DetectStrategyPoints(track, windAt(225, 12), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.WindShiftCount+result.TackPointCount, 3,
		"a square course against a steady wind reads as repeated shifts")
	assert.Equal(t, len(result.AllPoints), result.PointCount)
	assert.Zero(t, result.LaylineCount, "no marks, no laylines")
}

func TestAllPointsSortedAndScored(t *testing.T) {
	track := trackgen.SquareCourse(122, 22)
	result, err := newDetector().DetectStrategyPoints(track, windAt(225, 12), nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.AllPoints)
	for i, p := range result.AllPoints {
		assert.GreaterOrEqual(t, p.Score, 0.0)
		assert.LessOrEqual(t, p.Score, 1.0)
		assert.NotNil(t, p.Detail)
		if i > 0 {
			assert.False(t, p.Time.Before(result.AllPoints[i-1].Time), "all_points must be time sorted")
		}
	}
}

func TestWindShiftDetailFields(t *testing.T) {
	track := trackgen.SquareCourse(122, 23)
	result, err := newDetector().DetectStrategyPoints(track, windAt(225, 12), nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.WindShifts)
	for _, p := range result.WindShifts {
		detail, ok := p.Detail.(models.WindShiftDetail)
		require.True(t, ok)
		assert.NotZero(t, detail.ShiftAngle)
		assert.GreaterOrEqual(t, detail.DurationSeconds, 15.0)
		assert.Equal(t, models.PointWindShift, p.Kind())
	}
}

func TestStableBeatHasNoShifts(t *testing.T) {
	track := trackgen.UpwindBeat(225, 4, 120, 24)
	result, err := newDetector().DetectStrategyPoints(track, windAt(225, 10), nil)
	require.NoError(t, err)
	// Alternating tacks at the polar angle reconstruct a steady wind.
	assert.LessOrEqual(t, result.WindShiftCount, 2)
}

func TestLaylineDetection(t *testing.T) {
	// Sailing a steady 45 course; wind placed so the bearing to the mark
	// sits exactly on the optimal beat angle.
	track := trackgen.Straight(45, 5, 100, 25)
	markLat := track.Lats[80]
	markLon := track.Lons[80]
	marks := []models.Mark{{ID: "windward", Lat: markLat, Lon: markLon, RoundingSide: models.RoundPort}}

	optimal := 42.0
	result, err := newDetector().DetectStrategyPoints(track, windAt(45+optimal, 10), marks)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.LaylineCount, 1)

	detail, ok := result.LaylinePoints[0].Detail.(models.LaylineDetail)
	require.True(t, ok)
	assert.Equal(t, "windward", detail.MarkID)
	assert.Greater(t, detail.DistanceToMark, 50.0)
	assert.LessOrEqual(t, detail.AngleDifference, 10.0)
}

func TestMarkRounding(t *testing.T) {
	track := trackgen.Straight(45, 5, 100, 26)
	marks := []models.Mark{{ID: "leeward", Lat: track.Lats[50], Lon: track.Lons[50], RoundingSide: models.RoundStarboard}}
	result, err := newDetector().DetectStrategyPoints(track, windAt(270, 10), marks)
	require.NoError(t, err)

	var roundings int
	for _, p := range result.AllPoints {
		if p.Kind() == models.PointMarkRounding {
			roundings++
			detail := p.Detail.(models.MarkRoundingDetail)
			assert.Equal(t, "leeward", detail.MarkID)
			assert.Less(t, detail.DistanceToMark, 50.0)
		}
	}
	assert.Equal(t, 1, roundings)
}

func TestEmptyMarksDisableLaylines(t *testing.T) {
	track := trackgen.Straight(45, 5, 60, 27)
	result, err := newDetector().DetectStrategyPoints(track, windAt(90, 10), []models.Mark{})
	require.NoError(t, err)
	assert.Zero(t, result.LaylineCount)
}

func TestEmptyTrackErrors(t *testing.T) {
	_, err := newDetector().DetectStrategyPoints(&models.Track{}, windAt(90, 10), nil)
	assert.ErrorIs(t, err, models.ErrEmptyTrack)
}

func TestNilWindErrors(t *testing.T) {
	track := trackgen.Straight(45, 5, 60, 28)
	_, err := newDetector().DetectStrategyPoints(track, nil, nil)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestDetectionUsesCache(t *testing.T) {
	c := cache.New()
	d := New(params.NewRegistry(), c, nil)
	track := trackgen.SquareCourse(122, 29)
	wr := windAt(225, 12)

	first, err := d.DetectStrategyPoints(track, wr, nil)
	require.NoError(t, err)
	second, err := d.DetectStrategyPoints(track, wr, nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Positive(t, c.Stats().HitCount)
}

func TestTackPointDedupRadius(t *testing.T) {
	registry := params.NewRegistry()
	// Very low bar so upwind samples qualify, tight radius off.
	require.NoError(t, registry.Set(params.KeyMinVMGImprovement, 0.01))
	require.NoError(t, registry.Set(params.KeyTackSearchRadius, 2000))
	d := New(registry, nil, nil)

	// Sailing wider than the polar beat angle: the opposite-tack
	// projection at the 42 degree target is profitable everywhere.
	track := trackgen.Straight(44, 4, 300, 30)
	result, err := d.DetectStrategyPoints(track, windAt(0, 10), nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.TackPoints)
	// The dedup radius folds a continuous run into few points.
	assert.LessOrEqual(t, result.TackPointCount, 2)

	detail, ok := result.TackPoints[0].Detail.(models.TackDetail)
	require.True(t, ok)
	assert.Equal(t, "port", detail.TackType)
	assert.Equal(t, "starboard", detail.SuggestedTack)
	assert.Positive(t, detail.VMGGain)
}
