package wind

import (
	"math"

	"tacklens/engine/geo"
	"tacklens/engine/models"
)

// maneuverWindowSeconds bounds how long a single direction change may take
// and still count as one maneuver.
const maneuverWindowSeconds = 60.0

// turnNoiseDeg is the per-sample course jitter ignored when grouping a
// turn into one maneuver.
const turnNoiseDeg = 2.0

// detectManeuvers scans the track for contiguous ranges where the heading
// swings by at least minAngleChange in one direction within a bounded
// window. Courses are smoothed first so GPS jitter does not fragment
// turns. Classification happens later, once a wind direction is known.
func detectManeuvers(t *models.Track, minAngleChange float64, smoothWindow int, minSpeed float64) []models.Maneuver {
	n := t.Len()
	if n < 3 {
		return nil
	}
	courses := geo.MovingCircularMean(t.Courses, smoothWindow)

	var maneuvers []models.Maneuver
	i := 1
	for i < n {
		d := geo.AngleDiff(courses[i-1], courses[i])
		if math.Abs(d) <= turnNoiseDeg {
			i++
			continue
		}
		dir := math.Signbit(d) // true = turning left
		start := i - 1
		total := 0.0
		j := i
		for j < n {
			dj := geo.AngleDiff(courses[j-1], courses[j])
			if math.Abs(dj) > turnNoiseDeg && math.Signbit(dj) != dir {
				break
			}
			if t.Times[j].Sub(t.Times[start]).Seconds() > maneuverWindowSeconds {
				break
			}
			total += dj
			j++
		}
		end := j - 1
		if math.Abs(total) >= minAngleChange {
			if m, ok := buildManeuver(t, start, end, total, minSpeed); ok {
				maneuvers = append(maneuvers, m)
			}
		}
		if j > i {
			i = j
		} else {
			i++
		}
	}
	return maneuvers
}

func buildManeuver(t *models.Track, start, end int, headingChange, minSpeedThreshold float64) (models.Maneuver, bool) {
	startSpeed := t.Speeds[start]
	endSpeed := t.Speeds[end]
	if startSpeed < minSpeedThreshold {
		// Too slow on entry for the turn to say anything about the wind.
		return models.Maneuver{}, false
	}
	minSpeed := startSpeed
	minIdx := start
	for k := start; k <= end; k++ {
		if t.Speeds[k] < minSpeed {
			minSpeed = t.Speeds[k]
			minIdx = k
		}
	}
	ratio := 1.0
	if startSpeed > 0 {
		ratio = minSpeed / startSpeed
	}
	return models.Maneuver{
		Timestamp:     t.Times[minIdx],
		Type:          models.ManeuverUnknown,
		Duration:      t.Times[end].Sub(t.Times[start]).Seconds(),
		StartHeading:  t.Courses[start],
		EndHeading:    t.Courses[end],
		HeadingChange: headingChange,
		StartSpeed:    startSpeed,
		MinSpeed:      minSpeed,
		EndSpeed:      endSpeed,
		SpeedRatio:    ratio,
		Lat:           t.Lats[minIdx],
		Lon:           t.Lons[minIdx],
	}, true
}

// classifyManeuvers assigns tack/jibe by the relative wind side of the
// entry and exit headings: both toward the wind is a tack, both away a
// jibe, anything mixed stays unknown.
func classifyManeuvers(maneuvers []models.Maneuver, windDir float64) {
	for i := range maneuvers {
		entry := math.Abs(relAngle(maneuvers[i].StartHeading, windDir))
		exit := math.Abs(relAngle(maneuvers[i].EndHeading, windDir))
		switch {
		case entry < 90 && exit < 90:
			maneuvers[i].Type = models.ManeuverTack
		case entry > 90 && exit > 90:
			maneuvers[i].Type = models.ManeuverJibe
		default:
			maneuvers[i].Type = models.ManeuverUnknown
		}
	}
}
