// Package trackgen builds synthetic GPS tracks for tests: square courses,
// upwind beats and straight runs with controllable noise. Positions are
// integrated from heading and speed so the tracks are geometrically
// consistent.
package trackgen

import (
	"math"
	"math/rand"
	"time"

	"tacklens/engine/models"
)

const (
	metersPerDegLat = 111320.0
	knotsToMPS      = 0.514444
)

// Builder accumulates samples by dead reckoning from a start position.
type Builder struct {
	track    *models.Track
	lat, lon float64
	t        time.Time
	interval time.Duration
	rng      *rand.Rand

	CourseNoiseDeg float64
	SpeedNoiseKn   float64
}

// NewBuilder starts a track at the given position and time, sampling at
// the given interval. The seed makes noise reproducible.
func NewBuilder(lat, lon float64, start time.Time, interval time.Duration, seed int64) *Builder {
	return &Builder{
		track:    &models.Track{},
		lat:      lat,
		lon:      lon,
		t:        start,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Leg appends n samples sailing the given course at the given speed,
// applying the builder's configured noise.
func (b *Builder) Leg(courseDeg, speedKn float64, n int) *Builder {
	for i := 0; i < n; i++ {
		course := courseDeg
		speed := speedKn
		if b.CourseNoiseDeg > 0 {
			course += b.rng.NormFloat64() * b.CourseNoiseDeg
		}
		if b.SpeedNoiseKn > 0 {
			speed += b.rng.NormFloat64() * b.SpeedNoiseKn
			if speed < 0 {
				speed = 0
			}
		}
		course = math.Mod(course+360, 360)
		b.track.Append(models.Sample{Time: b.t, Lat: b.lat, Lon: b.lon, Course: course, Speed: speed})
		b.advance(course, speed)
	}
	return b
}

// Turn appends samples sweeping the course from one heading to another at
// a constant rate. dip is the fraction of speed lost at the midpoint:
// tacks through the wind lose around 0.4, jibes much less.
func (b *Builder) Turn(fromDeg, toDeg, speedKn, dip float64, n int) *Builder {
	if n < 2 {
		n = 2
	}
	delta := math.Mod(toDeg-fromDeg+540, 360) - 180
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		course := math.Mod(fromDeg+delta*f+360, 360)
		speed := speedKn * (1 - dip*math.Sin(f*math.Pi))
		b.track.Append(models.Sample{Time: b.t, Lat: b.lat, Lon: b.lon, Course: course, Speed: speed})
		b.advance(course, speed)
	}
	return b
}

// Build returns the accumulated track.
func (b *Builder) Build() *models.Track { return b.track }

// Pos returns the builder's current position.
func (b *Builder) Pos() (lat, lon float64) { return b.lat, b.lon }

func (b *Builder) advance(courseDeg, speedKn float64) {
	dt := b.interval.Seconds()
	meters := speedKn * knotsToMPS * dt
	rad := courseDeg * math.Pi / 180
	b.lat += meters * math.Cos(rad) / metersPerDegLat
	b.lon += meters * math.Sin(rad) / (metersPerDegLat * math.Cos(b.lat*math.Pi/180))
	b.t = b.t.Add(b.interval)
}

// SquareCourse traces a roughly square course: four legs on headings 0,
// 90, 180 and 270 degrees with sharp turns between them, speeds faster on
// the downwind legs (wind from the southwest). samplesPerLeg of ~120 at
// 1 Hz yields a track close to 500 samples.
func SquareCourse(samplesPerLeg int, seed int64) *models.Track {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	b := NewBuilder(35.6, 139.7, start, time.Second, seed)
	b.CourseNoiseDeg = 2
	b.SpeedNoiseKn = 0.3
	headings := []float64{0, 90, 180, 270}
	speeds := []float64{8.5, 7.5, 4.8, 5.2} // wind from 225: north/east legs run, south/west legs beat
	// Corner character follows the wind: 0->90 jibes (small dip), 90->180
	// hardens up (moderate), 180->270 tacks through the wind (big dip).
	dips := []float64{0.12, 0.18, 0.42}
	for leg := 0; leg < 4; leg++ {
		b.Leg(headings[leg], speeds[leg], samplesPerLeg)
		if leg < 3 {
			b.Turn(headings[leg], headings[leg+1], speeds[leg], dips[leg], 5)
		}
	}
	return b.Build()
}

// UpwindBeat traces a zigzag beat against wind from the given direction:
// alternating tacks at the polar beat angle, nLegs legs of legSamples
// each.
func UpwindBeat(windFromDeg float64, nLegs, legSamples int, seed int64) *models.Track {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	b := NewBuilder(35.6, 139.7, start, time.Second, seed)
	b.CourseNoiseDeg = 1.5
	b.SpeedNoiseKn = 0.2
	port := math.Mod(windFromDeg+42+360, 360)
	starboard := math.Mod(windFromDeg-42+360, 360)
	for leg := 0; leg < nLegs; leg++ {
		heading := starboard
		next := port
		if leg%2 == 1 {
			heading = port
			next = starboard
		}
		b.Leg(heading, 5.0, legSamples)
		if leg < nLegs-1 {
			b.Turn(heading, next, 5.0, 0.4, 6)
		}
	}
	return b.Build()
}

// Straight traces a single constant-heading run.
func Straight(courseDeg, speedKn float64, n int, seed int64) *models.Track {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	b := NewBuilder(35.6, 139.7, start, time.Second, seed)
	b.Leg(courseDeg, speedKn, n)
	return b.Build()
}
