package models

import (
	"errors"
	"fmt"
	"time"
)

// Column names every track must carry. Extra columns are preserved
// untouched through preprocessing.
const (
	ColTimestamp = "timestamp"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColCourse    = "course"
	ColSpeed     = "speed"
)

// RequiredColumns lists the mandatory track columns in canonical order.
func RequiredColumns() []string {
	return []string{ColTimestamp, ColLatitude, ColLongitude, ColCourse, ColSpeed}
}

// Sample is a single GPS fix with derived sailing state.
type Sample struct {
	Time   time.Time `json:"timestamp"`
	Lat    float64   `json:"latitude"`
	Lon    float64   `json:"longitude"`
	Course float64   `json:"course"` // degrees [0,360)
	Speed  float64   `json:"speed"`  // knots
}

// Track is a column-oriented GPS track. The fixed schema covers the
// mandatory columns; Extra carries any pass-through columns keyed by name,
// each the same length as the fixed columns.
type Track struct {
	Times   []time.Time          `json:"timestamps"`
	Lats    []float64            `json:"latitudes"`
	Lons    []float64            `json:"longitudes"`
	Courses []float64            `json:"courses"`
	Speeds  []float64            `json:"speeds"`
	Extra   map[string][]float64 `json:"extra,omitempty"`
}

// Len returns the number of samples.
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Times)
}

// Sample returns the i-th sample. Panics if i is out of range, matching
// slice indexing semantics.
func (t *Track) Sample(i int) Sample {
	return Sample{Time: t.Times[i], Lat: t.Lats[i], Lon: t.Lons[i], Course: t.Courses[i], Speed: t.Speeds[i]}
}

// Append adds a sample to the end of the track. Extra columns grow with a
// zero value so all columns stay the same length.
func (t *Track) Append(s Sample) {
	t.Times = append(t.Times, s.Time)
	t.Lats = append(t.Lats, s.Lat)
	t.Lons = append(t.Lons, s.Lon)
	t.Courses = append(t.Courses, s.Course)
	t.Speeds = append(t.Speeds, s.Speed)
	for name, col := range t.Extra {
		t.Extra[name] = append(col, 0)
	}
}

// Clone returns a deep copy.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := &Track{
		Times:   append([]time.Time(nil), t.Times...),
		Lats:    append([]float64(nil), t.Lats...),
		Lons:    append([]float64(nil), t.Lons...),
		Courses: append([]float64(nil), t.Courses...),
		Speeds:  append([]float64(nil), t.Speeds...),
	}
	if t.Extra != nil {
		c.Extra = make(map[string][]float64, len(t.Extra))
		for name, col := range t.Extra {
			c.Extra[name] = append([]float64(nil), col...)
		}
	}
	return c
}

// Select returns a new track containing the samples at the given indices,
// in the given order.
func (t *Track) Select(idx []int) *Track {
	c := &Track{
		Times:   make([]time.Time, len(idx)),
		Lats:    make([]float64, len(idx)),
		Lons:    make([]float64, len(idx)),
		Courses: make([]float64, len(idx)),
		Speeds:  make([]float64, len(idx)),
	}
	if t.Extra != nil {
		c.Extra = make(map[string][]float64, len(t.Extra))
		for name := range t.Extra {
			c.Extra[name] = make([]float64, len(idx))
		}
	}
	for out, in := range idx {
		c.Times[out] = t.Times[in]
		c.Lats[out] = t.Lats[in]
		c.Lons[out] = t.Lons[in]
		c.Courses[out] = t.Courses[in]
		c.Speeds[out] = t.Speeds[in]
		for name, col := range t.Extra {
			c.Extra[name][out] = col[in]
		}
	}
	return c
}

// ColumnNames returns the names of all columns present, mandatory first,
// extras in map order.
func (t *Track) ColumnNames() []string {
	names := RequiredColumns()
	for name := range t.Extra {
		names = append(names, name)
	}
	return names
}

// Duration is the time span between the first and last sample.
func (t *Track) Duration() time.Duration {
	if t.Len() < 2 {
		return 0
	}
	return t.Times[t.Len()-1].Sub(t.Times[0])
}

// ErrEmptyTrack reports a track with no samples.
var ErrEmptyTrack = errors.New("track contains no samples")

// MissingColumnError reports a mandatory column absent from the input.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q is missing", e.Column)
}

// RoundingSide is the side on which a mark must be rounded.
type RoundingSide string

const (
	RoundPort      RoundingSide = "port"
	RoundStarboard RoundingSide = "starboard"
)

// Mark is a race mark used for layline detection.
type Mark struct {
	ID           string       `json:"mark_id"`
	Lat          float64      `json:"lat"`
	Lon          float64      `json:"lon"`
	RoundingSide RoundingSide `json:"rounding_side"`
}
