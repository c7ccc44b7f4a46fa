// Package strategy derives tactical decision points from a preprocessed
// track and its wind estimate: sustained wind shifts, positions where the
// opposite tack pays, and layline crossings toward supplied race marks.
package strategy

import (
	"log/slog"
	"math"
	"sort"

	"tacklens/engine/cache"
	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/params"
	"tacklens/engine/wind"
)

// minShiftDurationSeconds is how long a direction change must hold before
// it counts as a shift rather than a lull.
const minShiftDurationSeconds = 15.0

// markProximityMeters is the closest-approach distance that counts as
// rounding a mark.
const markProximityMeters = 50.0

// Detector is the strategy-point kernel. It reads its tuning from the
// strategy_detection parameter namespace.
type Detector struct {
	registry *params.Registry
	cache    *cache.Cache
	logger   *slog.Logger
}

// New constructs a detector. The cache may be nil to disable memoization.
func New(registry *params.Registry, c *cache.Cache, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{registry: registry, cache: c, logger: logger}
}

// DetectStrategyPoints runs every sub-detector and returns the categorized
// union. An empty mark list disables layline and rounding detection.
func (d *Detector) DetectStrategyPoints(t *models.Track, windResult *models.WindResult, marks []models.Mark) (*models.StrategyResult, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTrack
	}
	if windResult == nil {
		return nil, models.ErrInsufficientData
	}
	if d.cache == nil {
		return d.perform(t, windResult, marks), nil
	}
	cacheParams := map[string]any{
		"data_hash":       cache.TrackFingerprint(t),
		"wind_direction":  windResult.Wind.DirectionDeg,
		"wind_speed":      windResult.Wind.SpeedKn,
		"mark_count":      len(marks),
		"strategy_params": d.registry.ByNamespace(params.NamespaceStrategyDetection),
	}
	value, err := d.cache.ComputeFromParams("strategy_detection", cacheParams, func(map[string]any) (any, error) {
		return d.perform(t, windResult, marks), nil
	}, 0, nil)
	if err != nil {
		return nil, err
	}
	if r, ok := value.(*models.StrategyResult); ok {
		return r, nil
	}
	return d.perform(t, windResult, marks), nil
}

func (d *Detector) perform(t *models.Track, windResult *models.WindResult, marks []models.Mark) *models.StrategyResult {
	result := &models.StrategyResult{}
	result.WindShifts = d.detectWindShifts(t, windResult)
	result.TackPoints = d.detectTackPoints(t, windResult)
	result.LaylinePoints = d.detectLaylines(t, windResult, marks)
	roundings := d.detectMarkRoundings(t, marks)

	result.AllPoints = append(result.AllPoints, result.WindShifts...)
	result.AllPoints = append(result.AllPoints, result.TackPoints...)
	result.AllPoints = append(result.AllPoints, result.LaylinePoints...)
	result.AllPoints = append(result.AllPoints, roundings...)
	sort.SliceStable(result.AllPoints, func(i, j int) bool {
		return result.AllPoints[i].Time.Before(result.AllPoints[j].Time)
	})
	result.WindShiftCount = len(result.WindShifts)
	result.TackPointCount = len(result.TackPoints)
	result.LaylineCount = len(result.LaylinePoints)
	result.PointCount = len(result.AllPoints)
	d.logger.Info("strategy detection finished",
		"wind_shifts", result.WindShiftCount, "tack_points", result.TackPointCount,
		"laylines", result.LaylineCount, "mark_roundings", len(roundings))
	return result
}

// maneuverTurnRateDegPerSec marks samples as mid-maneuver; their heading
// says nothing about the wind.
const maneuverTurnRateDegPerSec = 3.0

// instantaneousWind reconstructs a per-sample wind direction series. The
// boat holds a roughly constant angle to the wind on a board, so the
// heading plus the polar target angle for its wind half (beat target
// below 90 degrees relative, run target above) tracks the wind. Samples
// taken while the boat is actively turning carry the previous estimate
// forward; their heading says nothing about the wind.
func (d *Detector) instantaneousWind(t *models.Track, windResult *models.WindResult) []float64 {
	global := windResult.Wind.DirectionDeg
	optimal := wind.OptimalVMGAngles(windResult.Wind.SpeedKn, windResult.BoatType)

	smoothWindow := d.registry.GetInt(params.KeyWindSmoothingWin, 5)
	courses := geo.MovingCircularMean(t.Courses, smoothWindow)

	dirs := make([]float64, t.Len())
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			dt := t.Times[i].Sub(t.Times[i-1]).Seconds()
			if dt > 0 && math.Abs(geo.AngleDiff(courses[i-1], courses[i]))/dt > maneuverTurnRateDegPerSec {
				dirs[i] = dirs[i-1]
				continue
			}
		}
		rel := geo.AngleDiff(global, courses[i])
		target := optimal.UpwindAngle
		if math.Abs(rel) > 90 {
			target = optimal.DownwindAngle
		}
		dirs[i] = geo.Normalize(courses[i] - sign(rel)*target)
	}
	return dirs
}

// detectWindShifts differences the smoothed instantaneous wind series and
// emits a point wherever a contiguous same-direction change of at least
// min_wind_shift_angle holds for the minimum duration.
func (d *Detector) detectWindShifts(t *models.Track, windResult *models.WindResult) []models.StrategyPoint {
	minShift := d.registry.GetFloat(params.KeyMinWindShiftAngle, 5)
	dirs := d.instantaneousWind(t, windResult)

	var points []models.StrategyPoint
	i := 1
	for i < t.Len() {
		delta := geo.AngleDiff(dirs[i-1], dirs[i])
		if math.Abs(delta) < 0.5 {
			i++
			continue
		}
		dir := math.Signbit(delta)
		start := i - 1
		total := 0.0
		j := i
		for j < t.Len() {
			dj := geo.AngleDiff(dirs[j-1], dirs[j])
			if math.Abs(dj) >= 0.5 && math.Signbit(dj) != dir {
				break
			}
			total += dj
			j++
		}
		end := j - 1
		// A shift must persist: the new direction has to hold near its
		// end value, not swing straight back.
		hold := end
		tolerance := math.Max(minShift, 4)
		for hold+1 < t.Len() && math.Abs(geo.AngleDiff(dirs[end], dirs[hold+1])) < tolerance {
			hold++
		}
		duration := t.Times[hold].Sub(t.Times[start]).Seconds()
		if math.Abs(total) >= minShift && duration >= minShiftDurationSeconds {
			mid := (start + end) / 2
			detail := models.WindShiftDetail{
				ShiftAngle:      total,
				BeforeDirection: dirs[start],
				AfterDirection:  dirs[end],
				WindSpeed:       windResult.Wind.SpeedKn,
				DurationSeconds: duration,
			}
			points = append(points, models.StrategyPoint{
				Time:   t.Times[mid],
				Lat:    t.Lats[mid],
				Lon:    t.Lons[mid],
				Score:  shiftScore(total, duration, windResult.Wind.SpeedKn),
				Note:   shiftNote(total),
				Detail: detail,
			})
		}
		if j > i {
			i = j
		} else {
			i++
		}
	}
	return points
}

// detectTackPoints compares the achieved upwind VMG against the polar
// optimum on the opposite tack and emits a point when switching would
// gain at least min_vmg_improvement. Points closer than
// tack_search_radius to the previous one are folded together.
func (d *Detector) detectTackPoints(t *models.Track, windResult *models.WindResult) []models.StrategyPoint {
	upwindThreshold := d.registry.GetFloat(params.KeyUpwindThreshold, 45)
	minGain := d.registry.GetFloat(params.KeyMinVMGImprovement, 0.05)
	radius := float64(d.registry.GetInt(params.KeyTackSearchRadius, 500))
	optimal := wind.OptimalVMGAngles(windResult.Wind.SpeedKn, windResult.BoatType)

	var points []models.StrategyPoint
	var lastLat, lastLon float64
	have := false
	for i := 0; i < t.Len(); i++ {
		rel := geo.AngleDiff(windResult.Wind.DirectionDeg, t.Courses[i])
		if math.Abs(rel) > upwindThreshold || t.Speeds[i] <= 0 {
			continue
		}
		currentVMG := t.Speeds[i] * math.Cos(rel*math.Pi/180)
		if currentVMG <= 0 {
			continue
		}
		// On the opposite tack the boat would sail the polar target angle
		// at comparable speed.
		projectedVMG := t.Speeds[i] * math.Cos(optimal.UpwindAngle*math.Pi/180)
		gain := (projectedVMG - currentVMG) / currentVMG
		if gain < minGain {
			continue
		}
		if have && geo.Haversine(lastLat, lastLon, t.Lats[i], t.Lons[i]) < radius {
			continue
		}
		currentTack, suggested := tackSides(rel)
		headingAfter := geo.Normalize(windResult.Wind.DirectionDeg + sign(-rel)*optimal.UpwindAngle)
		detail := models.TackDetail{
			TackType:      currentTack,
			SuggestedTack: suggested,
			VMGGain:       gain,
			HeadingBefore: t.Courses[i],
			HeadingAfter:  headingAfter,
		}
		points = append(points, models.StrategyPoint{
			Time:   t.Times[i],
			Lat:    t.Lats[i],
			Lon:    t.Lons[i],
			Score:  tackScore(gain, t.Speeds[i]),
			Note:   "opposite tack improves VMG",
			Detail: detail,
		})
		lastLat, lastLon = t.Lats[i], t.Lons[i]
		have = true
	}
	return points
}

// detectLaylines emits a point the first time the boat is heading at a
// mark with the wind-to-mark angle inside the optimal beat angle plus the
// safety margin.
func (d *Detector) detectLaylines(t *models.Track, windResult *models.WindResult, marks []models.Mark) []models.StrategyPoint {
	if len(marks) == 0 {
		return nil
	}
	margin := d.registry.GetFloat(params.KeyLaylineSafetyMargin, 10)
	optimal := wind.OptimalVMGAngles(windResult.Wind.SpeedKn, windResult.BoatType)

	var points []models.StrategyPoint
	for _, mark := range marks {
		for i := 0; i < t.Len(); i++ {
			dist := geo.Haversine(t.Lats[i], t.Lons[i], mark.Lat, mark.Lon)
			if dist < markProximityMeters {
				continue
			}
			bearing := geo.InitialBearing(t.Lats[i], t.Lons[i], mark.Lat, mark.Lon)
			if math.Abs(geo.AngleDiff(t.Courses[i], bearing)) > 30 {
				continue
			}
			approach := math.Abs(geo.AngleDiff(windResult.Wind.DirectionDeg, bearing))
			diff := math.Abs(approach - optimal.UpwindAngle)
			if diff > margin {
				continue
			}
			detail := models.LaylineDetail{
				MarkID:          mark.ID,
				DistanceToMark:  dist,
				ApproachAngle:   approach,
				OptimalAngle:    optimal.UpwindAngle,
				AngleDifference: diff,
			}
			points = append(points, models.StrategyPoint{
				Time:   t.Times[i],
				Lat:    t.Lats[i],
				Lon:    t.Lons[i],
				Score:  laylineScore(diff, margin, dist),
				Note:   "on the layline to mark " + mark.ID,
				Detail: detail,
			})
			break // one layline call per mark
		}
	}
	return points
}

// detectMarkRoundings emits a point at the closest approach to each mark
// the track passes within markProximityMeters of.
func (d *Detector) detectMarkRoundings(t *models.Track, marks []models.Mark) []models.StrategyPoint {
	var points []models.StrategyPoint
	for _, mark := range marks {
		bestIdx := -1
		bestDist := math.Inf(1)
		for i := 0; i < t.Len(); i++ {
			if dist := geo.Haversine(t.Lats[i], t.Lons[i], mark.Lat, mark.Lon); dist < bestDist {
				bestDist = dist
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestDist > markProximityMeters {
			continue
		}
		detail := models.MarkRoundingDetail{
			MarkID:         mark.ID,
			RoundingSide:   mark.RoundingSide,
			DistanceToMark: bestDist,
		}
		points = append(points, models.StrategyPoint{
			Time:   t.Times[bestIdx],
			Lat:    t.Lats[bestIdx],
			Lon:    t.Lons[bestIdx],
			Score:  0.5,
			Note:   "rounded mark " + mark.ID,
			Detail: detail,
		})
	}
	return points
}

// Scoring: each formula blends magnitude, persistence and consequence
// into [0,1].

func shiftScore(shiftAngle, duration, windSpeed float64) float64 {
	magnitude := math.Min(math.Abs(shiftAngle)/30, 1)
	persistence := math.Min(duration/120, 1)
	consequence := math.Min(math.Abs(shiftAngle)*windSpeed/300, 1)
	return clamp01(0.5*magnitude + 0.3*persistence + 0.2*consequence)
}

func tackScore(gain, speed float64) float64 {
	magnitude := math.Min(gain/0.2, 1)
	consequence := math.Min(gain*speed/2, 1)
	return clamp01(0.7*magnitude + 0.3*consequence)
}

func laylineScore(angleDiff, margin, distance float64) float64 {
	closeness := 1.0
	if margin > 0 {
		closeness = 1 - angleDiff/margin
	}
	consequence := math.Min(distance/2000, 1)
	return clamp01(0.7*closeness + 0.3*consequence)
}

func shiftNote(shift float64) string {
	if shift > 0 {
		return "wind shifted right"
	}
	return "wind shifted left"
}

func tackSides(rel float64) (current, suggested string) {
	if rel > 0 {
		return "port", "starboard"
	}
	return "starboard", "port"
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
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
