// Package geo provides the small set of spherical and circular math
// primitives shared by the analysis kernels: great-circle distance,
// bearings, and statistics over angles that wrap at 360 degrees.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// MetersPerNauticalMile converts distances for reporting.
const MetersPerNauticalMile = 1852.0

// Haversine returns the great-circle distance in meters between two
// lat/lon points in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// InitialBearing returns the initial great-circle bearing in degrees
// [0,360) from point 1 to point 2.
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return Normalize(math.Atan2(y, x) * 180 / math.Pi)
}

// Normalize maps an angle in degrees onto [0,360).
func Normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SignedDelta maps an angle difference onto (-180,180].
func SignedDelta(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// AngleDiff returns the signed shortest rotation from a to b in degrees.
func AngleDiff(a, b float64) float64 {
	return SignedDelta(b - a)
}

// Bisector returns the direction halfway between two headings along the
// shorter arc, in [0,360).
func Bisector(a, b float64) float64 {
	return Normalize(a + AngleDiff(a, b)/2)
}

// CircularMean returns the weighted circular mean of angles in degrees and
// the resultant length R in [0,1]. R near 1 means the angles are tightly
// clustered; R is 0 when the weighted vectors cancel out. Weights must be
// non-negative; entries with zero weight are ignored. With no effective
// samples the mean is 0 and R is 0.
func CircularMean(angles, weights []float64) (mean, resultant float64) {
	var sumSin, sumCos, sumW float64
	for i, a := range angles {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		rad := a * math.Pi / 180
		sumSin += w * math.Sin(rad)
		sumCos += w * math.Cos(rad)
		sumW += w
	}
	if sumW == 0 {
		return 0, 0
	}
	mean = Normalize(math.Atan2(sumSin/sumW, sumCos/sumW) * 180 / math.Pi)
	resultant = math.Hypot(sumSin/sumW, sumCos/sumW)
	return mean, resultant
}

// MovingCircularMean smooths a series of angles with a centered window of
// the given size. Window sizes below 2 return a copy of the input.
func MovingCircularMean(angles []float64, window int) []float64 {
	out := make([]float64, len(angles))
	if window < 2 {
		copy(out, angles)
		return out
	}
	half := window / 2
	for i := range angles {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(angles) {
			hi = len(angles)
		}
		m, _ := CircularMean(angles[lo:hi], nil)
		out[i] = m
	}
	return out
}
