// Package performance computes numeric sailing metrics over a
// preprocessed track — speed statistics, VMG against the boat polar,
// maneuver efficiency — and composes them into a 100-point score with a
// narrative summary.
package performance

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"tacklens/engine/cache"
	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/params"
	"tacklens/engine/wind"
)

// minSamplesForStats is the floor below which a metric group reports
// insufficient data.
const minSamplesForStats = 10

// Mode labels for the per-sample overlay.
const (
	ModeUpwind   = "upwind"
	ModeReach    = "reach"
	ModeDownwind = "downwind"
)

// Analyzer is the performance kernel. It reads its tuning from the
// performance_analysis namespace and the sailing-mode thresholds from
// wind_estimation.
type Analyzer struct {
	registry *params.Registry
	cache    *cache.Cache
	logger   *slog.Logger
}

// New constructs an analyzer. The cache may be nil to disable
// memoization.
func New(registry *params.Registry, c *cache.Cache, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{registry: registry, cache: c, logger: logger}
}

// Analyze computes the full performance result for a preprocessed track
// and its wind estimate.
func (a *Analyzer) Analyze(t *models.Track, windResult *models.WindResult) (*models.PerformanceResult, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if windResult == nil {
		return nil, models.ErrInsufficientData
	}
	if a.cache == nil {
		return a.perform(t, windResult), nil
	}
	cacheParams := map[string]any{
		"data_hash":          cache.TrackFingerprint(t),
		"wind_direction":     windResult.Wind.DirectionDeg,
		"wind_speed":         windResult.Wind.SpeedKn,
		"boat_type":          windResult.BoatType,
		"performance_params": a.registry.ByNamespace(params.NamespacePerformanceAnalysis),
	}
	value, err := a.cache.ComputeFromParams("performance_analysis", cacheParams, func(map[string]any) (any, error) {
		return a.perform(t, windResult), nil
	}, 0, nil)
	if err != nil {
		return nil, err
	}
	if r, ok := value.(*models.PerformanceResult); ok {
		return r, nil
	}
	return a.perform(t, windResult), nil
}

func (a *Analyzer) perform(t *models.Track, windResult *models.WindResult) *models.PerformanceResult {
	ov := a.overlay(t, windResult)
	basic := a.basicStats(t, ov)
	vmg := a.analyzeVMG(t, ov, windResult)
	maneuvers := a.analyzeManeuvers(windResult)
	series := a.timeSeries(t, ov)
	overall := a.overallPerformance(basic, vmg, maneuvers)

	a.logger.Info("performance analysis finished",
		"score", overall.Score, "rating", overall.Rating,
		"data_points", basic.DataPoints)
	return &models.PerformanceResult{
		BasicStats:         basic,
		VMGAnalysis:        vmg,
		ManeuverAnalysis:   maneuvers,
		TimeSeries:         series,
		OverallPerformance: overall,
		Wind:               windResult.Wind,
		BoatType:           windResult.BoatType,
	}
}

// overlay is the per-sample derived state shared by the metric groups.
type overlay struct {
	relWindAngle []float64
	mode         []string
	upwindVMG    []float64 // NaN outside upwind mode
	downwindVMG  []float64 // NaN outside downwind mode
	timeDiff     []float64
}

func (a *Analyzer) overlay(t *models.Track, windResult *models.WindResult) *overlay {
	upwindThreshold := a.registry.GetFloat(params.KeyUpwindThreshold, 45)
	downwindThreshold := a.registry.GetFloat(params.KeyDownwindThreshold, 120)
	windDir := windResult.Wind.DirectionDeg

	n := t.Len()
	ov := &overlay{
		relWindAngle: make([]float64, n),
		mode:         make([]string, n),
		upwindVMG:    make([]float64, n),
		downwindVMG:  make([]float64, n),
		timeDiff:     make([]float64, n),
	}
	if col, ok := t.Extra["time_diff"]; ok {
		copy(ov.timeDiff, col)
	} else {
		for i := 1; i < n; i++ {
			ov.timeDiff[i] = t.Times[i].Sub(t.Times[i-1]).Seconds()
		}
	}
	for i := 0; i < n; i++ {
		rel := geo.AngleDiff(windDir, t.Courses[i])
		ov.relWindAngle[i] = rel
		abs := math.Abs(rel)
		ov.upwindVMG[i] = math.NaN()
		ov.downwindVMG[i] = math.NaN()
		switch {
		case abs <= upwindThreshold:
			ov.mode[i] = ModeUpwind
			ov.upwindVMG[i] = t.Speeds[i] * math.Cos(rel*math.Pi/180)
		case abs >= downwindThreshold:
			ov.mode[i] = ModeDownwind
			ov.downwindVMG[i] = t.Speeds[i] * math.Abs(math.Cos((180-abs)*math.Pi/180))
		default:
			ov.mode[i] = ModeReach
		}
	}
	return ov
}

func (a *Analyzer) basicStats(t *models.Track, ov *overlay) models.BasicStats {
	stats := models.BasicStats{DataPoints: t.Len()}
	if t.Len() < minSamplesForStats {
		stats.InsufficientData = true
		return stats
	}
	stats.DurationSeconds = t.Duration().Seconds()
	stats.Speed = speedStats(t.Speeds)
	stats.VMG = models.VMGStats{
		UpwindMean:   nanMean(ov.upwindVMG),
		UpwindMax:    nanMax(ov.upwindVMG),
		DownwindMean: nanMean(ov.downwindVMG),
		DownwindMax:  nanMax(ov.downwindVMG),
	}
	for i := 0; i < t.Len(); i++ {
		switch ov.mode[i] {
		case ModeUpwind:
			stats.SailingModeTime.UpwindSeconds += ov.timeDiff[i]
		case ModeReach:
			stats.SailingModeTime.ReachSeconds += ov.timeDiff[i]
		case ModeDownwind:
			stats.SailingModeTime.DownwindSeconds += ov.timeDiff[i]
		}
	}
	total := stats.SailingModeTime.UpwindSeconds + stats.SailingModeTime.ReachSeconds + stats.SailingModeTime.DownwindSeconds
	if total > 0 {
		stats.SailingModePct = models.ModePercentage{
			Upwind:   stats.SailingModeTime.UpwindSeconds / total * 100,
			Reach:    stats.SailingModeTime.ReachSeconds / total * 100,
			Downwind: stats.SailingModeTime.DownwindSeconds / total * 100,
		}
	}
	var meters float64
	for i := 1; i < t.Len(); i++ {
		meters += geo.Haversine(t.Lats[i-1], t.Lons[i-1], t.Lats[i], t.Lons[i])
	}
	stats.DistanceNM = meters / geo.MetersPerNauticalMile
	return stats
}

func (a *Analyzer) analyzeVMG(t *models.Track, ov *overlay, windResult *models.WindResult) models.VMGAnalysis {
	upwindIdx := indicesOf(ov.mode, ModeUpwind)
	downwindIdx := indicesOf(ov.mode, ModeDownwind)
	analysis := models.VMGAnalysis{
		Upwind:   models.VMGModeAnalysis{DataPoints: len(upwindIdx)},
		Downwind: models.VMGModeAnalysis{DataPoints: len(downwindIdx)},
	}
	if len(upwindIdx) < minSamplesForStats && len(downwindIdx) < minSamplesForStats {
		analysis.InsufficientData = true
		return analysis
	}

	var optimal *models.OptimalVMG
	if a.registry.GetBool(params.KeyVMGReferenceEnabled, true) {
		o := wind.OptimalVMGAngles(windResult.Wind.SpeedKn, windResult.BoatType)
		optimal = &o
	}
	fillMode := func(out *models.VMGModeAnalysis, idx []int, vmg []float64, optVMG, optAngle float64) {
		if len(idx) == 0 {
			return
		}
		var sum, max float64
		max = math.Inf(-1)
		var angleSum float64
		for _, i := range idx {
			sum += vmg[i]
			if vmg[i] > max {
				max = vmg[i]
			}
			angleSum += math.Abs(ov.relWindAngle[i])
		}
		mean := sum / float64(len(idx))
		meanAngle := angleSum / float64(len(idx))
		out.MeanVMG = &mean
		out.MaxVMG = &max
		out.MeanAngle = &meanAngle
		if optimal != nil && optVMG > 0 {
			out.OptimalVMG = &optVMG
			out.OptimalAngle = &optAngle
			ratio := max / optVMG
			out.PerformanceRatio = &ratio
		}
	}
	var upOpt, upAngle, downOpt, downAngle float64
	if optimal != nil {
		upOpt, upAngle = optimal.UpwindVMG, optimal.UpwindAngle
		downOpt, downAngle = optimal.DownwindVMG, optimal.DownwindAngle
	}
	fillMode(&analysis.Upwind, upwindIdx, ov.upwindVMG, upOpt, upAngle)
	fillMode(&analysis.Downwind, downwindIdx, ov.downwindVMG, downOpt, downAngle)
	return analysis
}

func (a *Analyzer) analyzeManeuvers(windResult *models.WindResult) models.ManeuverAnalysis {
	analysis := models.ManeuverAnalysis{}
	if !a.registry.GetBool(params.KeyManeuverAnalysisEnable, true) || len(windResult.DetectedManeuvers) == 0 {
		analysis.InsufficientData = true
		return analysis
	}
	var tacks, jibes []models.Maneuver
	for _, m := range windResult.DetectedManeuvers {
		switch m.Type {
		case models.ManeuverTack:
			tacks = append(tacks, m)
		case models.ManeuverJibe:
			jibes = append(jibes, m)
		default:
			analysis.UnknownCount++
		}
	}
	analysis.ManeuverCount = len(windResult.DetectedManeuvers)
	analysis.TackCount = len(tacks)
	analysis.JibeCount = len(jibes)
	analysis.Tacks = maneuverGroupStats(tacks)
	analysis.Jibes = maneuverGroupStats(jibes)
	return analysis
}

func maneuverGroupStats(ms []models.Maneuver) models.ManeuverStats {
	if len(ms) == 0 {
		return models.ManeuverStats{}
	}
	var durSum, lossSum float64
	minDur, maxDur := math.Inf(1), math.Inf(-1)
	for _, m := range ms {
		durSum += m.Duration
		lossSum += m.SpeedLoss()
		minDur = math.Min(minDur, m.Duration)
		maxDur = math.Max(maxDur, m.Duration)
	}
	avgDur := durSum / float64(len(ms))
	avgLoss := lossSum / float64(len(ms))
	return models.ManeuverStats{
		AvgDuration:  &avgDur,
		MinDuration:  &minDur,
		MaxDuration:  &maxDur,
		AvgSpeedLoss: &avgLoss,
	}
}

// timeSeries smooths the overlay with the configured window and
// downsamples to at most 1000 points for charting.
func (a *Analyzer) timeSeries(t *models.Track, ov *overlay) models.TimeSeries {
	if t.Len() < minSamplesForStats {
		return models.TimeSeries{InsufficientData: true}
	}
	window := a.registry.GetInt(params.KeyPerformanceWindowSize, 10)
	speedSmooth := movingMean(t.Speeds, window)
	upSmooth := movingMeanMasked(ov.upwindVMG, window)
	downSmooth := movingMeanMasked(ov.downwindVMG, window)

	idx := downsampleIndices(t.Len(), 1000)
	series := models.TimeSeries{
		Timestamps:   make([]time.Time, len(idx)),
		Speed:        make([]float64, len(idx)),
		Course:       make([]float64, len(idx)),
		RelWindAngle: make([]float64, len(idx)),
		SailingMode:  make([]string, len(idx)),
		UpwindVMG:    make([]*float64, len(idx)),
		DownwindVMG:  make([]*float64, len(idx)),
		WindowSize:   window,
	}
	for out, in := range idx {
		series.Timestamps[out] = t.Times[in]
		series.Speed[out] = speedSmooth[in]
		series.Course[out] = t.Courses[in]
		series.RelWindAngle[out] = ov.relWindAngle[in]
		series.SailingMode[out] = ov.mode[in]
		if v := upSmooth[in]; !math.IsNaN(v) {
			val := v
			series.UpwindVMG[out] = &val
		}
		if v := downSmooth[in]; !math.IsNaN(v) {
			val := v
			series.DownwindVMG[out] = &val
		}
	}
	return series
}

// helpers ----------------------------------------------------------------

func speedStats(speeds []float64) models.SpeedStats {
	sorted := append([]float64(nil), speeds...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range speeds {
		sum += v
	}
	mean := sum / float64(len(speeds))
	var variance float64
	for _, v := range speeds {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(speeds)))
	return models.SpeedStats{
		Mean:         mean,
		Max:          sorted[len(sorted)-1],
		Min:          sorted[0],
		Std:          std,
		Median:       percentileSorted(sorted, 0.5),
		Percentile75: percentileSorted(sorted, 0.75),
		Percentile90: percentileSorted(sorted, 0.9),
	}
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	f := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*f
}

func indicesOf(modes []string, mode string) []int {
	var idx []int
	for i, m := range modes {
		if m == mode {
			idx = append(idx, i)
		}
	}
	return idx
}

func nanMean(values []float64) *float64 {
	var sum float64
	var n int
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}

func nanMax(values []float64) *float64 {
	max := math.Inf(-1)
	found := false
	for _, v := range values {
		if !math.IsNaN(v) && v > max {
			max = v
			found = true
		}
	}
	if !found {
		return nil
	}
	return &max
}

func movingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 2 {
		copy(out, values)
		return out
	}
	half := window / 2
	for i := range values {
		lo, hi := boundWindow(i, half, len(values))
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// movingMeanMasked averages only non-NaN neighbors; positions that are
// NaN stay NaN.
func movingMeanMasked(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	half := window / 2
	if window < 2 {
		half = 0
	}
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		lo, hi := boundWindow(i, half, len(values))
		var sum float64
		var n int
		for _, u := range values[lo:hi] {
			if !math.IsNaN(u) {
				sum += u
				n++
			}
		}
		out[i] = sum / float64(n)
	}
	return out
}

func boundWindow(i, half, n int) (int, int) {
	lo := i - half
	if lo < 0 {
		lo = 0
	}
	hi := i + half + 1
	if hi > n {
		hi = n
	}
	return lo, hi
}

func downsampleIndices(n, max int) []int {
	if n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, max)
	for i := range idx {
		idx[i] = i * (n - 1) / (max - 1)
	}
	return idx
}
