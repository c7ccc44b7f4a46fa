package models

import "time"

// WindMethod identifies which estimator produced a wind vector.
type WindMethod string

const (
	MethodManeuvers   WindMethod = "maneuvers"
	MethodCourseSpeed WindMethod = "course_speed"
	MethodPolar       WindMethod = "polar"
)

// Wind is an estimated true wind vector with an estimation confidence.
// Confidence is a weighted sum of sample-count, cluster-tightness and
// speed-retention terms, clamped to [0,1]; values above 0.3 are considered
// usable for downstream analysis.
type Wind struct {
	DirectionDeg float64    `json:"direction"`  // direction the wind blows FROM, [0,360)
	SpeedKn      float64    `json:"speed"`      // knots
	Confidence   float64    `json:"confidence"` // [0,1]
	Method       WindMethod `json:"method"`
}

// ManeuverType classifies a detected direction change.
type ManeuverType string

const (
	ManeuverTack    ManeuverType = "tack"
	ManeuverJibe    ManeuverType = "jibe"
	ManeuverUnknown ManeuverType = "unknown"
)

// Maneuver is a detected tack or jibe with its speed profile.
type Maneuver struct {
	Timestamp     time.Time    `json:"timestamp"`
	Type          ManeuverType `json:"maneuver_type"`
	Duration      float64      `json:"duration_seconds"`
	StartHeading  float64      `json:"start_heading"`
	EndHeading    float64      `json:"end_heading"`
	HeadingChange float64      `json:"heading_change"`
	StartSpeed    float64      `json:"start_speed"`
	MinSpeed      float64      `json:"min_speed"`
	EndSpeed      float64      `json:"end_speed"`
	SpeedRatio    float64      `json:"speed_ratio"` // MinSpeed / StartSpeed
	Lat           float64      `json:"lat"`
	Lon           float64      `json:"lon"`
}

// SpeedLoss is the fraction of entry speed lost at the slowest point.
func (m Maneuver) SpeedLoss() float64 { return 1 - m.SpeedRatio }

// WindResult is the full output of wind estimation over a track.
type WindResult struct {
	Wind              Wind       `json:"wind"`
	DetectedManeuvers []Maneuver `json:"detected_maneuvers"`
	WindSummary       string     `json:"wind_summary"`
	ManeuverCount     int        `json:"maneuver_count"`
	Timestamp         time.Time  `json:"timestamp"`
	BoatType          string     `json:"boat_type"`
	Err               string     `json:"error,omitempty"`
}

// OptimalVMG holds the polar-derived best beat and run angles for a wind
// speed, with the boat speeds achievable at those angles projected onto
// the wind axis.
type OptimalVMG struct {
	UpwindAngle   float64 `json:"upwind_angle"`
	UpwindVMG     float64 `json:"upwind_vmg"`
	DownwindAngle float64 `json:"downwind_angle"`
	DownwindVMG   float64 `json:"downwind_vmg"`
}
