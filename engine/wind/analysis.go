package wind

import (
	"math"

	"tacklens/engine/models"
	"tacklens/engine/params"
)

// TackJibeStats aggregates the speed profile of one maneuver type.
type TackJibeStats struct {
	Count         int     `json:"count"`
	AvgSpeedRatio float64 `json:"avg_speed_ratio"`
	AvgDuration   float64 `json:"avg_duration"`
	MinDuration   float64 `json:"min_duration"`
	MaxDuration   float64 `json:"max_duration"`
}

// TackJibeAnalysis is the detailed maneuver performance report.
type TackJibeAnalysis struct {
	ManeuverCount int               `json:"maneuver_count"`
	TackCount     int               `json:"tack_count"`
	JibeCount     int               `json:"jibe_count"`
	TackStats     *TackJibeStats    `json:"tack_stats,omitempty"`
	JibeStats     *TackJibeStats    `json:"jibe_stats,omitempty"`
	Maneuvers     []models.Maneuver `json:"maneuvers"`
}

// AnalyzeTackJibePerformance detects and classifies maneuvers on the
// track and aggregates their speed retention and duration by type.
func (e *Estimator) AnalyzeTackJibePerformance(t *models.Track, boatType string) (*TackJibeAnalysis, error) {
	result, err := e.EstimateWind(t, boatType)
	if err != nil {
		return nil, err
	}
	analysis := &TackJibeAnalysis{
		ManeuverCount: len(result.DetectedManeuvers),
		Maneuvers:     result.DetectedManeuvers,
	}
	var tacks, jibes []models.Maneuver
	for _, m := range result.DetectedManeuvers {
		switch m.Type {
		case models.ManeuverTack:
			tacks = append(tacks, m)
		case models.ManeuverJibe:
			jibes = append(jibes, m)
		}
	}
	analysis.TackCount = len(tacks)
	analysis.JibeCount = len(jibes)
	analysis.TackStats = maneuverStats(tacks)
	analysis.JibeStats = maneuverStats(jibes)
	return analysis, nil
}

func maneuverStats(ms []models.Maneuver) *TackJibeStats {
	if len(ms) == 0 {
		return nil
	}
	s := &TackJibeStats{Count: len(ms), MinDuration: math.Inf(1)}
	for _, m := range ms {
		s.AvgSpeedRatio += m.SpeedRatio
		s.AvgDuration += m.Duration
		s.MinDuration = math.Min(s.MinDuration, m.Duration)
		s.MaxDuration = math.Max(s.MaxDuration, m.Duration)
	}
	s.AvgSpeedRatio /= float64(len(ms))
	s.AvgDuration /= float64(len(ms))
	return s
}

// DirectionDistribution bins the track's headings and splits time across
// sailing modes relative to the estimated wind.
type DirectionDistribution struct {
	CourseHistogram    []int     `json:"course_histogram"`
	AngleBins          []float64 `json:"angle_bins"`
	WindDirection      float64   `json:"wind_direction"`
	UpwindPercentage   float64   `json:"upwind_percentage"`
	ReachPercentage    float64   `json:"reach_percentage"`
	DownwindPercentage float64   `json:"downwind_percentage"`
	UpwindThreshold    float64   `json:"upwind_threshold"`
	DownwindThreshold  float64   `json:"downwind_threshold"`
}

// WindDirectionDistribution estimates the wind and returns the heading
// histogram (10 degree bins) plus the share of time in each sailing mode.
func (e *Estimator) WindDirectionDistribution(t *models.Track, boatType string) (*DirectionDistribution, error) {
	result, err := e.EstimateWind(t, boatType)
	if err != nil {
		return nil, err
	}
	upwind := e.registry.GetFloat(params.KeyUpwindThreshold, 45)
	downwind := e.registry.GetFloat(params.KeyDownwindThreshold, 120)

	const binWidth = 10.0
	nBins := int(360 / binWidth)
	dist := &DirectionDistribution{
		CourseHistogram:   make([]int, nBins),
		AngleBins:         make([]float64, nBins),
		WindDirection:     result.Wind.DirectionDeg,
		UpwindThreshold:   upwind,
		DownwindThreshold: downwind,
	}
	for b := 0; b < nBins; b++ {
		dist.AngleBins[b] = (float64(b) + 0.5) * binWidth
	}
	var up, reach, down int
	for i := 0; i < t.Len(); i++ {
		bin := int(t.Courses[i]/binWidth) % nBins
		if bin < 0 {
			bin += nBins
		}
		dist.CourseHistogram[bin]++
		switch abs := math.Abs(relAngle(t.Courses[i], result.Wind.DirectionDeg)); {
		case abs <= upwind:
			up++
		case abs >= downwind:
			down++
		default:
			reach++
		}
	}
	if n := t.Len(); n > 0 {
		dist.UpwindPercentage = float64(up) / float64(n) * 100
		dist.ReachPercentage = float64(reach) / float64(n) * 100
		dist.DownwindPercentage = float64(down) / float64(n) * 100
	}
	return dist, nil
}
