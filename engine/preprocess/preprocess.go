// Package preprocess cleans a raw GPS track for analysis: column
// validation, time ordering, duplicate and outlier removal, speed
// smoothing, and the derived per-sample columns the downstream kernels
// consume.
package preprocess

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"tacklens/engine/geo"
	"tacklens/engine/models"
	"tacklens/engine/params"
)

// Derived column names added to a processed track's Extra map.
const (
	ColTimeDiff     = "time_diff"
	ColSpeedSmooth  = "speed_smooth"
	ColCourseDiff   = "course_diff"
	ColAcceleration = "acceleration"
	ColTurningRate  = "turning_rate"
)

// Stats summarizes what preprocessing did to the input.
type Stats struct {
	OriginalRows    int     `json:"original_rows"`
	ProcessedRows   int     `json:"processed_rows"`
	RemovedRows     int     `json:"removed_rows"`
	DuplicateRows   int     `json:"duplicate_rows"`
	OutlierRows     int     `json:"outlier_rows"`
	DurationSeconds float64 `json:"duration_seconds"`
	DistanceNM      float64 `json:"distance_nm"`
}

// Processor is the preprocessing kernel. It reads its tuning from the
// data_processing parameter namespace.
type Processor struct {
	registry *params.Registry
	logger   *slog.Logger
}

// New constructs a processor bound to the given registry.
func New(registry *params.Registry, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{registry: registry, logger: logger}
}

// Process validates and cleans the track, returning a new track sorted
// strictly ascending by time with derived columns attached. The input is
// never mutated.
func (p *Processor) Process(t *models.Track) (*models.Track, Stats, error) {
	stats := Stats{OriginalRows: t.Len()}
	if t.Len() == 0 {
		return nil, stats, models.ErrEmptyTrack
	}
	if err := validateColumns(t); err != nil {
		return nil, stats, err
	}
	if t.Len() < 2 {
		return nil, stats, fmt.Errorf("%w: need at least 2 samples to derive time deltas, got %d", models.ErrInsufficientData, t.Len())
	}

	// Sort ascending by time, dropping duplicate timestamps so the output
	// is strictly monotonic.
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return t.Times[idx[a]].Before(t.Times[idx[b]]) })
	dedup := idx[:0]
	for i, in := range idx {
		if i > 0 && !t.Times[in].After(t.Times[dedup[len(dedup)-1]]) {
			stats.DuplicateRows++
			continue
		}
		dedup = append(dedup, in)
	}

	// Speed outlier rejection around the mean.
	sigma := p.registry.GetFloat(params.KeyOutlierThreshold, 3.0)
	mean, std := meanStd(t.Speeds, dedup)
	kept := make([]int, 0, len(dedup))
	for _, in := range dedup {
		if std > 0 && math.Abs(t.Speeds[in]-mean) > sigma*std {
			stats.OutlierRows++
			continue
		}
		kept = append(kept, in)
	}

	minPoints := p.registry.GetInt(params.KeyMinDataPoints, 10)
	if len(kept) < minPoints {
		return nil, stats, fmt.Errorf("%w: %d samples remain after cleaning, %d required", models.ErrInsufficientData, len(kept), minPoints)
	}

	out := t.Select(kept)
	attachDerived(out, p.registry.GetInt(params.KeySmoothingWindowSize, 3))

	stats.ProcessedRows = out.Len()
	stats.RemovedRows = stats.OriginalRows - stats.ProcessedRows
	stats.DurationSeconds = out.Duration().Seconds()
	stats.DistanceNM = totalDistanceNM(out)
	p.logger.Info("preprocessing finished",
		"original_rows", stats.OriginalRows, "processed_rows", stats.ProcessedRows,
		"duplicates", stats.DuplicateRows, "outliers", stats.OutlierRows)
	return out, stats, nil
}

func validateColumns(t *models.Track) error {
	n := len(t.Times)
	cols := []struct {
		name string
		len  int
	}{
		{models.ColLatitude, len(t.Lats)},
		{models.ColLongitude, len(t.Lons)},
		{models.ColCourse, len(t.Courses)},
		{models.ColSpeed, len(t.Speeds)},
	}
	for _, c := range cols {
		if c.len != n {
			return &models.MissingColumnError{Column: c.name}
		}
	}
	for name, col := range t.Extra {
		if len(col) != n {
			return &models.MissingColumnError{Column: name}
		}
	}
	return nil
}

// attachDerived adds the per-sample derived columns: time deltas, smoothed
// speed, normalized course deltas, acceleration and turning rate. The
// first sample carries zeros where a delta is undefined.
func attachDerived(t *models.Track, smoothWindow int) {
	n := t.Len()
	timeDiff := make([]float64, n)
	speedSmooth := movingAverage(t.Speeds, smoothWindow)
	courseDiff := make([]float64, n)
	accel := make([]float64, n)
	turn := make([]float64, n)
	for i := 1; i < n; i++ {
		dt := t.Times[i].Sub(t.Times[i-1]).Seconds()
		timeDiff[i] = dt
		courseDiff[i] = geo.AngleDiff(t.Courses[i-1], t.Courses[i])
		if dt > 0 {
			accel[i] = (t.Speeds[i] - t.Speeds[i-1]) / dt
			turn[i] = courseDiff[i] / dt
		}
	}
	if t.Extra == nil {
		t.Extra = make(map[string][]float64)
	}
	t.Extra[ColTimeDiff] = timeDiff
	t.Extra[ColSpeedSmooth] = speedSmooth
	t.Extra[ColCourseDiff] = courseDiff
	t.Extra[ColAcceleration] = accel
	t.Extra[ColTurningRate] = turn
}

func movingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 2 {
		copy(out, values)
		return out
	}
	half := window / 2
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(values) {
			hi = len(values)
		}
		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func meanStd(values []float64, idx []int) (mean, std float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	for _, in := range idx {
		mean += values[in]
	}
	mean /= float64(len(idx))
	for _, in := range idx {
		d := values[in] - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(idx)))
	return mean, std
}

func totalDistanceNM(t *models.Track) float64 {
	var meters float64
	for i := 1; i < t.Len(); i++ {
		meters += geo.Haversine(t.Lats[i-1], t.Lons[i-1], t.Lats[i], t.Lons[i])
	}
	return meters / geo.MetersPerNauticalMile
}
