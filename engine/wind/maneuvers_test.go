package wind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacklens/engine/internal/testutil/trackgen"
	"tacklens/engine/models"
)

func TestDetectManeuversFindsSingleTack(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	b := trackgen.NewBuilder(35.6, 139.7, start, time.Second, 1)
	b.Leg(183, 5, 60).Turn(183, 267, 5, 0.4, 6).Leg(267, 5, 60)
	track := b.Build()

	maneuvers := detectManeuvers(track, 60, 3, 2)
	require.Len(t, maneuvers, 1)
	m := maneuvers[0]
	assert.InDelta(t, 84, m.HeadingChange, 15)
	assert.Less(t, m.MinSpeed, m.StartSpeed)
	assert.InDelta(t, 0.6, m.SpeedRatio, 0.15)
	assert.Equal(t, models.ManeuverUnknown, m.Type, "classification happens later")
}

func TestDetectManeuversIgnoresSmallChanges(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	b := trackgen.NewBuilder(35.6, 139.7, start, time.Second, 2)
	b.Leg(90, 5, 40).Turn(90, 120, 5, 0.1, 5).Leg(120, 5, 40) // 30 degree alteration
	maneuvers := detectManeuvers(b.Build(), 60, 3, 2)
	assert.Empty(t, maneuvers)
}

func TestDetectManeuversRespectsMinSpeed(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	b := trackgen.NewBuilder(35.6, 139.7, start, time.Second, 3)
	b.Leg(0, 1, 30).Turn(0, 90, 1, 0.4, 5).Leg(90, 1, 30) // drifting, below threshold
	maneuvers := detectManeuvers(b.Build(), 60, 3, 2)
	assert.Empty(t, maneuvers, "slow entries carry no wind information")
}

func TestDetectManeuversShortTrack(t *testing.T) {
	track := trackgen.Straight(0, 5, 2, 4)
	assert.Empty(t, detectManeuvers(track, 60, 3, 2))
}

func TestWindSpeedFromBoatSpeedMonotonic(t *testing.T) {
	prev := 0.0
	for _, bs := range []float64{2, 3.5, 4.5, 5.5, 6.0} {
		tws := windSpeedFromBoatSpeed(bs, "default")
		assert.Greater(t, tws, prev, "boat speed %v", bs)
		prev = tws
	}
	assert.Zero(t, windSpeedFromBoatSpeed(0, "default"))
}
