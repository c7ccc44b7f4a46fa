package wind

import (
	"math"

	"tacklens/engine/geo"
	"tacklens/engine/models"
)

// polarPoint is one row of a boat-type polar: at trueWind knots the boat
// achieves boatSpeed knots at the given true wind angle.
type polarPoint struct {
	trueWind      float64
	upwindAngle   float64
	upwindSpeed   float64
	downwindAngle float64
	downwindSpeed float64
}

// polarTable holds the best-VMG beat and run targets per wind speed,
// sorted ascending by wind speed.
type polarTable []polarPoint

// Static polar tables by boat type. The default table is a moderate
// one-design dinghy; unknown boat types fall back to it (42 degree beat,
// 150 degree run). Values are target speeds at the best-VMG angles.
var polarTables = map[string]polarTable{
	"default": {
		{4, 44, 2.6, 144, 2.9},
		{6, 43, 3.6, 146, 3.9},
		{8, 42, 4.4, 148, 4.9},
		{10, 42, 5.0, 150, 5.7},
		{12, 41, 5.4, 152, 6.4},
		{14, 41, 5.7, 154, 7.0},
		{16, 40, 5.9, 156, 7.6},
		{20, 40, 6.2, 160, 8.6},
	},
	"laser": {
		{4, 45, 2.4, 140, 2.7},
		{6, 44, 3.4, 142, 3.7},
		{8, 43, 4.2, 145, 4.6},
		{10, 42, 4.8, 148, 5.4},
		{12, 42, 5.2, 150, 6.1},
		{14, 41, 5.5, 152, 6.7},
		{16, 41, 5.7, 155, 7.3},
		{20, 40, 6.0, 158, 8.2},
	},
	"470": {
		{4, 44, 2.7, 142, 3.0},
		{6, 43, 3.8, 144, 4.1},
		{8, 42, 4.6, 147, 5.1},
		{10, 41, 5.2, 150, 6.0},
		{12, 41, 5.6, 152, 6.8},
		{14, 40, 5.9, 155, 7.5},
		{16, 40, 6.1, 158, 8.2},
		{20, 39, 6.4, 162, 9.4},
	},
	"49er": {
		{4, 46, 3.0, 138, 3.6},
		{6, 44, 4.3, 142, 5.2},
		{8, 43, 5.4, 146, 6.9},
		{10, 42, 6.2, 150, 8.6},
		{12, 41, 6.8, 154, 10.2},
		{14, 40, 7.3, 158, 11.6},
		{16, 39, 7.7, 162, 12.9},
		{20, 38, 8.3, 166, 15.2},
	},
}

func tableFor(boatType string) polarTable {
	if t, ok := polarTables[boatType]; ok {
		return t
	}
	return polarTables["default"]
}

// BoatTypes lists the boat types with dedicated polar tables.
func BoatTypes() []string {
	return []string{"default", "laser", "470", "49er"}
}

// OptimalVMGAngles returns the best-VMG beat and run targets for a wind
// speed, interpolated linearly between table rows and clamped at the
// table's ends.
func OptimalVMGAngles(windSpeed float64, boatType string) models.OptimalVMG {
	t := tableFor(boatType)
	p := t.at(windSpeed)
	return models.OptimalVMG{
		UpwindAngle:   p.upwindAngle,
		UpwindVMG:     p.upwindSpeed * math.Cos(p.upwindAngle*math.Pi/180),
		DownwindAngle: p.downwindAngle,
		DownwindVMG:   p.downwindSpeed * math.Abs(math.Cos((180-p.downwindAngle)*math.Pi/180)),
	}
}

// PolarData returns the raw polar rows for a boat type as parallel
// columns, for charting consumers.
func PolarData(boatType string) map[string][]float64 {
	t := tableFor(boatType)
	out := map[string][]float64{
		"wind_speed":     make([]float64, len(t)),
		"upwind_angle":   make([]float64, len(t)),
		"upwind_speed":   make([]float64, len(t)),
		"downwind_angle": make([]float64, len(t)),
		"downwind_speed": make([]float64, len(t)),
	}
	for i, p := range t {
		out["wind_speed"][i] = p.trueWind
		out["upwind_angle"][i] = p.upwindAngle
		out["upwind_speed"][i] = p.upwindSpeed
		out["downwind_angle"][i] = p.downwindAngle
		out["downwind_speed"][i] = p.downwindSpeed
	}
	return out
}

func (t polarTable) at(windSpeed float64) polarPoint {
	if len(t) == 0 {
		return polarPoint{upwindAngle: 42, downwindAngle: 150}
	}
	if windSpeed <= t[0].trueWind {
		return t[0]
	}
	if windSpeed >= t[len(t)-1].trueWind {
		return t[len(t)-1]
	}
	for i := 1; i < len(t); i++ {
		if windSpeed <= t[i].trueWind {
			lo, hi := t[i-1], t[i]
			f := (windSpeed - lo.trueWind) / (hi.trueWind - lo.trueWind)
			return polarPoint{
				trueWind:      windSpeed,
				upwindAngle:   lerp(lo.upwindAngle, hi.upwindAngle, f),
				upwindSpeed:   lerp(lo.upwindSpeed, hi.upwindSpeed, f),
				downwindAngle: lerp(lo.downwindAngle, hi.downwindAngle, f),
				downwindSpeed: lerp(lo.downwindSpeed, hi.downwindSpeed, f),
			}
		}
	}
	return t[len(t)-1]
}

func lerp(a, b, f float64) float64 { return a + (b-a)*f }

// windSpeedFromBoatSpeed inverts the upwind polar column: given an
// observed fast boat speed, estimate the true wind that produces it. Used
// as a coarse wind-speed proxy when no better signal exists; observed
// speeds beyond the table extrapolate linearly from the last segment.
func windSpeedFromBoatSpeed(boatSpeed float64, boatType string) float64 {
	t := tableFor(boatType)
	if boatSpeed <= 0 || len(t) == 0 {
		return 0
	}
	if boatSpeed <= t[0].upwindSpeed {
		return t[0].trueWind * boatSpeed / math.Max(t[0].upwindSpeed, 0.1)
	}
	for i := 1; i < len(t); i++ {
		if boatSpeed <= t[i].upwindSpeed {
			lo, hi := t[i-1], t[i]
			f := (boatSpeed - lo.upwindSpeed) / (hi.upwindSpeed - lo.upwindSpeed)
			return lerp(lo.trueWind, hi.trueWind, f)
		}
	}
	last, prev := t[len(t)-1], t[len(t)-2]
	slope := (last.trueWind - prev.trueWind) / math.Max(last.upwindSpeed-prev.upwindSpeed, 0.1)
	return last.trueWind + (boatSpeed-last.upwindSpeed)*slope
}

// relAngle is the signed angle between a course and the wind source
// direction, in (-180,180].
func relAngle(course, windDir float64) float64 {
	return geo.AngleDiff(windDir, course)
}
