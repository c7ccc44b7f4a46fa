package performance

import (
	"fmt"
	"math"

	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/wind"
)

// VMGModeOptimization compares the sailed angles in one mode against the
// polar target and quantifies the spread.
type VMGModeOptimization struct {
	DataPoints      int     `json:"data_points"`
	MeanAngle       float64 `json:"mean_angle"`
	AngleStd        float64 `json:"angle_std"`
	OptimalAngle    float64 `json:"optimal_angle"`
	AngleDeviation  float64 `json:"angle_deviation"`
	MeanVMG         float64 `json:"mean_vmg"`
	OptimalVMG      float64 `json:"optimal_vmg"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`
}

// VMGOptimization is the angle-discipline report with its
// recommendations.
type VMGOptimization struct {
	Upwind           *VMGModeOptimization `json:"upwind,omitempty"`
	Downwind         *VMGModeOptimization `json:"downwind,omitempty"`
	Recommendations  []string             `json:"recommendations"`
	InsufficientData bool                 `json:"insufficient_data,omitempty"`
}

// AnalyzeVMGOptimization reports how closely the sailed angles track the
// polar targets and recommends corrections.
func (a *Analyzer) AnalyzeVMGOptimization(t *models.Track, windResult *models.WindResult) (*VMGOptimization, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if windResult == nil {
		return nil, models.ErrInsufficientData
	}
	ov := a.overlay(t, windResult)
	optimal := wind.OptimalVMGAngles(windResult.Wind.SpeedKn, windResult.BoatType)

	result := &VMGOptimization{}
	result.Upwind = modeOptimization(ov, ModeUpwind, ov.upwindVMG, optimal.UpwindAngle, optimal.UpwindVMG)
	result.Downwind = modeOptimization(ov, ModeDownwind, ov.downwindVMG, optimal.DownwindAngle, optimal.DownwindVMG)
	if result.Upwind == nil && result.Downwind == nil {
		result.InsufficientData = true
		return result, nil
	}
	result.Recommendations = vmgRecommendations(result.Upwind, result.Downwind)
	return result, nil
}

func modeOptimization(ov *overlay, mode string, vmg []float64, optAngle, optVMG float64) *VMGModeOptimization {
	idx := indicesOf(ov.mode, mode)
	if len(idx) < minSamplesForStats {
		return nil
	}
	var angleSum, vmgSum float64
	for _, i := range idx {
		angleSum += math.Abs(ov.relWindAngle[i])
		vmgSum += vmg[i]
	}
	meanAngle := angleSum / float64(len(idx))
	meanVMG := vmgSum / float64(len(idx))
	var variance float64
	for _, i := range idx {
		d := math.Abs(ov.relWindAngle[i]) - meanAngle
		variance += d * d
	}
	out := &VMGModeOptimization{
		DataPoints:     len(idx),
		MeanAngle:      meanAngle,
		AngleStd:       math.Sqrt(variance / float64(len(idx))),
		OptimalAngle:   optAngle,
		AngleDeviation: meanAngle - optAngle,
		MeanVMG:        meanVMG,
		OptimalVMG:     optVMG,
	}
	if optVMG > 0 {
		out.EfficiencyRatio = meanVMG / optVMG
	}
	return out
}

func vmgRecommendations(up, down *VMGModeOptimization) []string {
	var recs []string
	if up != nil {
		switch {
		case up.AngleDeviation > 5:
			recs = append(recs, fmt.Sprintf("Upwind: sailing %.0f degrees too low; point %.0f degrees higher toward the %.0f degree target.", up.AngleDeviation, up.AngleDeviation, up.OptimalAngle))
		case up.AngleDeviation < -5:
			recs = append(recs, fmt.Sprintf("Upwind: pinching %.0f degrees above the %.0f degree target; bear away for speed.", -up.AngleDeviation, up.OptimalAngle))
		}
		if up.AngleStd > 10 {
			recs = append(recs, "Upwind: the sailed angle varies widely; steadier steering will raise average VMG.")
		}
	}
	if down != nil {
		switch {
		case down.AngleDeviation < -5:
			recs = append(recs, fmt.Sprintf("Downwind: sailing %.0f degrees too high; soak lower toward the %.0f degree target.", -down.AngleDeviation, down.OptimalAngle))
		case down.AngleDeviation > 5:
			recs = append(recs, fmt.Sprintf("Downwind: sailing %.0f degrees below the %.0f degree target; heat up for pressure.", down.AngleDeviation, down.OptimalAngle))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Sailed angles track the polar targets well.")
	}
	return recs
}

// CourseEfficiency compares distance sailed against the straight-line
// distance between the track's endpoints.
type CourseEfficiency struct {
	SailedDistanceNM   float64  `json:"sailed_distance_nm"`
	StraightDistanceNM float64  `json:"straight_distance_nm"`
	Efficiency         float64  `json:"efficiency"`
	Rating             string   `json:"rating"`
	Recommendations    []string `json:"recommendations"`
	InsufficientData   bool     `json:"insufficient_data,omitempty"`
}

// AnalyzeCourseEfficiency reports how much extra distance the track
// sailed relative to the direct line. Upwind work legitimately lowers the
// ratio, so ratings are generous below 1.
func (a *Analyzer) AnalyzeCourseEfficiency(t *models.Track) (*CourseEfficiency, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if t.Len() < minSamplesForStats {
		return &CourseEfficiency{InsufficientData: true}, nil
	}
	var sailed float64
	for i := 1; i < t.Len(); i++ {
		sailed += geo.Haversine(t.Lats[i-1], t.Lons[i-1], t.Lats[i], t.Lons[i])
	}
	straight := geo.Haversine(t.Lats[0], t.Lons[0], t.Lats[t.Len()-1], t.Lons[t.Len()-1])
	result := &CourseEfficiency{
		SailedDistanceNM:   sailed / geo.MetersPerNauticalMile,
		StraightDistanceNM: straight / geo.MetersPerNauticalMile,
	}
	if sailed > 0 {
		result.Efficiency = straight / sailed
	}
	switch {
	case result.Efficiency >= 0.8:
		result.Rating = "direct"
	case result.Efficiency >= 0.5:
		result.Rating = "typical"
	case result.Efficiency >= 0.3:
		result.Rating = "working"
	default:
		result.Rating = "circuitous"
	}
	if result.Efficiency < 0.3 && result.Efficiency > 0 {
		result.Recommendations = append(result.Recommendations, "The track covers far more water than the course line; review tack placement and shift timing.")
	}
	return result, nil
}
