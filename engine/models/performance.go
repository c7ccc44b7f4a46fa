package models

import "time"

// SpeedStats summarizes the speed column of a track.
type SpeedStats struct {
	Mean         float64 `json:"mean"`
	Max          float64 `json:"max"`
	Min          float64 `json:"min"`
	Std          float64 `json:"std"`
	Median       float64 `json:"median"`
	Percentile75 float64 `json:"percentile_75"`
	Percentile90 float64 `json:"percentile_90"`
}

// VMGStats summarizes achieved VMG in each mode. Nil means the mode never
// occurred in the track.
type VMGStats struct {
	UpwindMean   *float64 `json:"upwind_mean"`
	UpwindMax    *float64 `json:"upwind_max"`
	DownwindMean *float64 `json:"downwind_mean"`
	DownwindMax  *float64 `json:"downwind_max"`
}

// ModeTime is seconds spent in each sailing mode.
type ModeTime struct {
	UpwindSeconds   float64 `json:"upwind_seconds"`
	ReachSeconds    float64 `json:"reach_seconds"`
	DownwindSeconds float64 `json:"downwind_seconds"`
}

// ModePercentage is the share of total time in each sailing mode.
type ModePercentage struct {
	Upwind   float64 `json:"upwind"`
	Reach    float64 `json:"reach"`
	Downwind float64 `json:"downwind"`
}

// BasicStats is the first-order numeric summary of a preprocessed track.
type BasicStats struct {
	DataPoints       int            `json:"data_points"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Speed            SpeedStats     `json:"speed"`
	VMG              VMGStats       `json:"vmg"`
	SailingModeTime  ModeTime       `json:"sailing_mode_time"`
	SailingModePct   ModePercentage `json:"sailing_mode_percentage"`
	DistanceNM       float64        `json:"distance_nm"`
	InsufficientData bool           `json:"insufficient_data,omitempty"`
}

// VMGModeAnalysis compares achieved VMG in one mode against the polar
// optimum. Nil pointers mean the metric could not be computed.
type VMGModeAnalysis struct {
	DataPoints       int      `json:"data_points"`
	MeanVMG          *float64 `json:"mean_vmg"`
	MaxVMG           *float64 `json:"max_vmg"`
	MeanAngle        *float64 `json:"mean_angle"`
	OptimalVMG       *float64 `json:"optimal_vmg"`
	OptimalAngle     *float64 `json:"optimal_angle"`
	PerformanceRatio *float64 `json:"performance_ratio"`
}

// VMGAnalysis is the upwind/downwind VMG comparison.
type VMGAnalysis struct {
	Upwind           VMGModeAnalysis `json:"upwind"`
	Downwind         VMGModeAnalysis `json:"downwind"`
	InsufficientData bool            `json:"insufficient_data,omitempty"`
}

// ManeuverStats aggregates duration and speed loss over one maneuver type.
type ManeuverStats struct {
	AvgDuration  *float64 `json:"avg_duration"`
	MinDuration  *float64 `json:"min_duration"`
	MaxDuration  *float64 `json:"max_duration"`
	AvgSpeedLoss *float64 `json:"avg_speed_loss"`
}

// ManeuverAnalysis summarizes detected maneuvers by type.
type ManeuverAnalysis struct {
	ManeuverCount    int           `json:"maneuver_count"`
	TackCount        int           `json:"tack_count"`
	JibeCount        int           `json:"jibe_count"`
	UnknownCount     int           `json:"unknown_count"`
	Tacks            ManeuverStats `json:"tacks"`
	Jibes            ManeuverStats `json:"jibes"`
	InsufficientData bool          `json:"insufficient_data,omitempty"`
}

// TimeSeries is the smoothed, downsampled per-sample view used by charting
// consumers. VMG entries are NaN-free: samples outside the relevant mode
// carry nil.
type TimeSeries struct {
	Timestamps       []time.Time `json:"timestamps"`
	Speed            []float64   `json:"speed"`
	Course           []float64   `json:"course"`
	RelWindAngle     []float64   `json:"rel_wind_angle"`
	SailingMode      []string    `json:"sailing_mode"`
	UpwindVMG        []*float64  `json:"upwind_vmg"`
	DownwindVMG      []*float64  `json:"downwind_vmg"`
	WindowSize       int         `json:"window_size"`
	InsufficientData bool        `json:"insufficient_data,omitempty"`
}

// OverallPerformance is the composite score with its narrative.
type OverallPerformance struct {
	Score      float64  `json:"score"` // [0,100]
	Rating     string   `json:"rating"`
	Summary    string   `json:"summary"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// PerformanceResult is the full output of performance analysis.
type PerformanceResult struct {
	BasicStats         BasicStats         `json:"basic_stats"`
	VMGAnalysis        VMGAnalysis        `json:"vmg_analysis"`
	ManeuverAnalysis   ManeuverAnalysis   `json:"maneuver_analysis"`
	TimeSeries         TimeSeries         `json:"time_series"`
	OverallPerformance OverallPerformance `json:"overall_performance"`
	Wind               Wind               `json:"wind"`
	BoatType           string             `json:"boat_type"`
	Err                string             `json:"error,omitempty"`
}

// DataSummary describes the analyzed track at report level.
type DataSummary struct {
	Points          int     `json:"points"`
	DurationSeconds float64 `json:"duration_seconds"`
	DistanceNM      float64 `json:"distance_nm"`
}

// WindSummary is the report-level wind digest.
type WindSummary struct {
	Direction  float64 `json:"direction"`
	Speed      float64 `json:"speed"`
	Confidence float64 `json:"confidence"`
}

// StrategySummary is the report-level strategy digest.
type StrategySummary struct {
	PointCount     int `json:"point_count"`
	WindShiftCount int `json:"wind_shift_count"`
	TackPointCount int `json:"tack_point_count"`
	LaylineCount   int `json:"layline_count"`
}

// PerformanceSummary is the report-level performance digest.
type PerformanceSummary struct {
	Score   float64 `json:"score"`
	Rating  string  `json:"rating"`
	Summary string  `json:"summary"`
}

// Report is the final artifact of a full analysis run.
type Report struct {
	Timestamp          time.Time          `json:"timestamp"`
	DataSummary        DataSummary        `json:"data_summary"`
	WindSummary        WindSummary        `json:"wind_summary"`
	StrategySummary    StrategySummary    `json:"strategy_summary"`
	PerformanceSummary PerformanceSummary `json:"performance_summary"`
}
