// Package wind estimates the true wind vector from a GPS track. Two
// methods run side by side: clustering the bisectors of detected tacks
// and jibes, and scanning the course/speed distribution for the direction
// the boat never sails fast toward. The maneuver method wins whenever its
// confidence clears 0.3.
package wind

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"tacklens/engine/cache"
	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/params"
)

// maneuverConfidenceFloor is the confidence above which the maneuver
// method is preferred over course/speed.
const maneuverConfidenceFloor = 0.3

// ProcessingStatus is a poll-friendly snapshot of a long estimation.
type ProcessingStatus struct {
	IsProcessing bool       `json:"is_processing"`
	Progress     float64    `json:"progress"`
	Message      string     `json:"message"`
	Step         string     `json:"step"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// HistoryEntry records one completed estimation.
type HistoryEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Wind       models.Wind       `json:"wind"`
	Method     models.WindMethod `json:"method"`
	Confidence float64           `json:"confidence"`
}

// Estimator is the wind estimation kernel. It reads its tuning from the
// wind_estimation parameter namespace and memoizes results per
// (track fingerprint, parameter snapshot, boat type).
type Estimator struct {
	registry *params.Registry
	cache    *cache.Cache
	logger   *slog.Logger

	mu      sync.Mutex
	history []HistoryEntry
	status  ProcessingStatus
}

// New constructs an estimator. The cache may be nil to disable
// memoization.
func New(registry *params.Registry, c *cache.Cache, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{registry: registry, cache: c, logger: logger}
}

// EstimateWind estimates the true wind over a preprocessed track. The
// result is memoized; cache trouble degrades to direct computation.
func (e *Estimator) EstimateWind(t *models.Track, boatType string) (*models.WindResult, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if boatType == "" {
		boatType = "default"
	}
	if e.cache == nil {
		return e.perform(t, boatType)
	}
	cacheParams := map[string]any{
		"data_hash":   cache.TrackFingerprint(t),
		"boat_type":   boatType,
		"wind_params": e.registry.ByNamespace(params.NamespaceWindEstimation),
	}
	value, err := e.cache.ComputeFromParams("wind_estimation", cacheParams, func(map[string]any) (any, error) {
		return e.perform(t, boatType)
	}, 0, nil)
	if err != nil {
		return nil, err
	}
	if r, ok := value.(*models.WindResult); ok {
		return r, nil
	}
	// The cache handed back a mirrored (decoded) shape; recompute rather
	// than trusting it.
	return e.perform(t, boatType)
}

func (e *Estimator) perform(t *models.Track, boatType string) (*models.WindResult, error) {
	e.setStatus(true, 10, "detecting maneuvers", "detect_maneuvers")

	minAngle := e.registry.GetFloat(params.KeyMinTackAngleChange, 60)
	smoothWindow := e.registry.GetInt(params.KeyWindSmoothingWin, 5)
	minSpeed := e.registry.GetFloat(params.KeyMinSpeedThreshold, 2)

	var maneuvers []models.Maneuver
	if smoothWindow < t.Len() {
		maneuvers = detectManeuvers(t, minAngle, smoothWindow, minSpeed)
	} else {
		e.logger.Warn("smoothing window exceeds track length, skipping maneuver detection",
			"window", smoothWindow, "samples", t.Len())
	}

	e.setStatus(true, 50, "estimating wind from maneuvers", "estimate_from_maneuvers")
	fromManeuvers := e.estimateFromManeuvers(t, maneuvers, boatType)

	e.setStatus(true, 80, "estimating wind from course and speed", "estimate_from_course_speed")
	fromCourse := e.estimateFromCourseSpeed(t, boatType)

	chosen := fromCourse
	if fromManeuvers.Confidence > maneuverConfidenceFloor {
		chosen = fromManeuvers
	}
	classifyManeuvers(maneuvers, chosen.DirectionDeg)

	result := &models.WindResult{
		Wind:              chosen,
		DetectedManeuvers: maneuvers,
		ManeuverCount:     len(maneuvers),
		Timestamp:         time.Now().UTC(),
		BoatType:          boatType,
	}
	result.WindSummary = summarize(result)
	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{
		Timestamp: result.Timestamp, Wind: chosen, Method: chosen.Method, Confidence: chosen.Confidence,
	})
	e.mu.Unlock()
	e.setStatus(false, 100, "wind estimation finished", "complete")
	e.logger.Info("wind estimated",
		"direction", chosen.DirectionDeg, "speed", chosen.SpeedKn,
		"confidence", chosen.Confidence, "method", chosen.Method,
		"maneuvers", len(maneuvers))
	return result, nil
}

// estimateFromManeuvers clusters maneuver bisectors into a wind axis and
// picks the axis end the boat avoids sailing toward. Confidence combines
// sample size, cluster tightness and mean speed retention.
func (e *Estimator) estimateFromManeuvers(t *models.Track, maneuvers []models.Maneuver, boatType string) models.Wind {
	w := models.Wind{Method: models.MethodManeuvers}
	if len(maneuvers) == 0 {
		return w
	}

	// A maneuver bisector lies on the wind axis (toward the wind for a
	// tack, away for a jibe). Doubling the angles removes that 180 degree
	// ambiguity during averaging.
	doubled := make([]float64, len(maneuvers))
	weights := make([]float64, len(maneuvers))
	var ratioSum float64
	var voteAngles, voteWeights []float64
	for i, m := range maneuvers {
		bis := geo.Bisector(m.StartHeading, m.EndHeading)
		doubled[i] = geo.Normalize(2 * bis)
		weights[i] = math.Max(m.SpeedRatio, 0.05)
		ratioSum += m.SpeedRatio
		// Crossing head to wind costs far more speed than crossing the
		// stern, so high-loss maneuvers point their bisector at the wind.
		if loss := m.SpeedLoss(); loss >= 0.3 {
			voteAngles = append(voteAngles, bis)
			voteWeights = append(voteWeights, loss)
		}
	}
	mean2, tightness := geo.CircularMean(doubled, weights)
	axis := geo.Normalize(mean2 / 2)
	if len(voteAngles) > 0 {
		voteMean, _ := geo.CircularMean(voteAngles, voteWeights)
		if math.Abs(geo.AngleDiff(axis, voteMean)) > 90 {
			axis = geo.Normalize(axis + 180)
		}
		w.DirectionDeg = axis
	} else {
		w.DirectionDeg = disambiguateAxis(t, axis)
	}

	meanRatio := ratioSum / float64(len(maneuvers))
	countTerm := math.Min(1, float64(len(maneuvers))/5)
	w.Confidence = clamp01(0.4*countTerm + 0.4*tightness + 0.2*meanRatio)
	w.SpeedKn = e.estimateSpeed(t, w.DirectionDeg, boatType)
	return w
}

// disambiguateAxis chooses between the two ends of a wind axis: boats
// do not sail fast toward the wind source, so the end with the smaller
// speed-weighted presence of nearby headings wins.
func disambiguateAxis(t *models.Track, axis float64) float64 {
	other := geo.Normalize(axis + 180)
	presence := func(dir float64) float64 {
		var sum float64
		for i := 0; i < t.Len(); i++ {
			if math.Abs(relAngle(t.Courses[i], dir)) < 60 {
				sum += t.Speeds[i]
			}
		}
		return sum
	}
	if presence(other) < presence(axis) {
		return other
	}
	return axis
}

// estimateFromCourseSpeed scans candidate directions and charges each for
// every sample sailing toward it, weighted by speed. The direction with
// the least fast sailing toward it is the wind source.
func (e *Estimator) estimateFromCourseSpeed(t *models.Track, boatType string) models.Wind {
	w := models.Wind{Method: models.MethodCourseSpeed}
	minSpeed := e.registry.GetFloat(params.KeyMinSpeedThreshold, 2)

	const step = 5.0
	nCand := int(360 / step)
	penalties := make([]float64, nCand)
	var counted int
	for i := 0; i < t.Len(); i++ {
		if t.Speeds[i] < minSpeed {
			continue
		}
		counted++
		for c := 0; c < nCand; c++ {
			rel := relAngle(t.Courses[i], float64(c)*step) * math.Pi / 180
			if toward := math.Cos(rel); toward > 0 {
				penalties[c] += toward * t.Speeds[i]
			}
		}
	}
	if counted == 0 {
		return w
	}
	best := 0
	var total float64
	for c, p := range penalties {
		total += p
		if p < penalties[best] {
			best = c
		}
	}
	meanPenalty := total / float64(nCand)
	w.DirectionDeg = float64(best) * step
	if meanPenalty > 0 {
		// Contrast between the quietest direction and the average bounds
		// the confidence; this method never beats a clean maneuver
		// cluster.
		w.Confidence = clamp01(0.5 * (meanPenalty - penalties[best]) / meanPenalty)
		if w.Confidence < 0.1 {
			w.Confidence = 0.1
		}
	}
	w.SpeedKn = e.estimateSpeed(t, w.DirectionDeg, boatType)
	return w
}

// estimateSpeed derives a wind speed from the top-decile boat speeds via
// the boat-type polar. Upwind samples are preferred; the whole track is
// the fallback.
func (e *Estimator) estimateSpeed(t *models.Track, windDir float64, boatType string) float64 {
	upwindThreshold := e.registry.GetFloat(params.KeyUpwindThreshold, 45)
	var upwind []float64
	for i := 0; i < t.Len(); i++ {
		if math.Abs(relAngle(t.Courses[i], windDir)) <= upwindThreshold {
			upwind = append(upwind, t.Speeds[i])
		}
	}
	source := upwind
	if len(source) < 10 {
		source = append([]float64(nil), t.Speeds...)
	}
	if len(source) == 0 {
		return 0
	}
	p90 := percentile(source, 0.9)
	return windSpeedFromBoatSpeed(p90, boatType)
}

// summarize renders the result's headline facts for report consumers.
func summarize(r *models.WindResult) string {
	tacks, jibes := 0, 0
	for _, m := range r.DetectedManeuvers {
		switch m.Type {
		case models.ManeuverTack:
			tacks++
		case models.ManeuverJibe:
			jibes++
		}
	}
	return fmt.Sprintf("wind %.0f deg at %.1f kn (%s, confidence %.2f); %d tacks, %d jibes detected",
		r.Wind.DirectionDeg, r.Wind.SpeedKn, r.Wind.Method, r.Wind.Confidence, tacks, jibes)
}

// OptimalVMG returns the polar targets for the wind speed and boat type.
func (e *Estimator) OptimalVMG(windSpeed float64, boatType string) models.OptimalVMG {
	return OptimalVMGAngles(windSpeed, boatType)
}

// History returns the completed estimations, oldest first.
func (e *Estimator) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// Status returns the current processing snapshot.
func (e *Estimator) Status() ProcessingStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Estimator) setStatus(processing bool, progress float64, message, step string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.IsProcessing = processing
	e.status.Progress = progress
	e.status.Message = message
	e.status.Step = step
	now := time.Now()
	if processing && e.status.StartTime == nil {
		e.status.StartTime = &now
	}
	if !processing {
		e.status.EndTime = &now
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	return lerp(sorted[lo], sorted[hi], idx-float64(lo))
}
