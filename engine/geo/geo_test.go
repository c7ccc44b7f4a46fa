package geo

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[float64]float64{-90: 270, 0: 0, 360: 0, 725: 5, -360: 0}
	for in, want := range cases {
		if got := Normalize(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("Normalize(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestSignedDelta(t *testing.T) {
	cases := map[float64]float64{190: -170, -190: 170, 180: 180, 90: 90, -90: -90}
	for in, want := range cases {
		if got := SignedDelta(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("SignedDelta(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestAngleDiffWrap(t *testing.T) {
	if got := AngleDiff(350, 10); math.Abs(got-20) > 1e-9 {
		t.Errorf("AngleDiff(350,10) = %v, want 20", got)
	}
	if got := AngleDiff(10, 350); math.Abs(got+20) > 1e-9 {
		t.Errorf("AngleDiff(10,350) = %v, want -20", got)
	}
}

func TestBisector(t *testing.T) {
	if got := Bisector(350, 10); math.Abs(got-0) > 1e-9 {
		t.Errorf("Bisector(350,10) = %v, want 0", got)
	}
	if got := Bisector(180, 270); math.Abs(got-225) > 1e-9 {
		t.Errorf("Bisector(180,270) = %v, want 225", got)
	}
}

func TestCircularMean(t *testing.T) {
	mean, r := CircularMean([]float64{350, 10}, nil)
	if math.Abs(mean) > 1e-6 && math.Abs(mean-360) > 1e-6 {
		t.Errorf("mean of 350/10 = %v, want 0", mean)
	}
	if r < 0.9 {
		t.Errorf("resultant = %v, want near 1 for tight cluster", r)
	}
	_, r = CircularMean([]float64{0, 180}, nil)
	if r > 1e-9 {
		t.Errorf("opposite angles should cancel, got resultant %v", r)
	}
}

func TestCircularMeanWeighted(t *testing.T) {
	mean, _ := CircularMean([]float64{0, 90}, []float64{1, 0})
	if math.Abs(mean) > 1e-6 {
		t.Errorf("zero-weight angle should be ignored, mean = %v", mean)
	}
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is about 111 km.
	d := Haversine(35.0, 139.0, 36.0, 139.0)
	if d < 110000 || d > 112000 {
		t.Errorf("1 degree latitude = %v m, want ~111 km", d)
	}
	if Haversine(35.6, 139.7, 35.6, 139.7) != 0 {
		t.Error("zero distance expected for identical points")
	}
}

func TestInitialBearing(t *testing.T) {
	if got := InitialBearing(35.0, 139.0, 36.0, 139.0); math.Abs(got) > 0.5 {
		t.Errorf("due north bearing = %v, want 0", got)
	}
	if got := InitialBearing(35.0, 139.0, 35.0, 140.0); math.Abs(got-90) > 0.5 {
		t.Errorf("due east bearing = %v, want 90", got)
	}
}

func TestMovingCircularMeanHandlesWrap(t *testing.T) {
	smoothed := MovingCircularMean([]float64{358, 359, 0, 1, 2}, 3)
	for _, v := range smoothed {
		if v > 5 && v < 355 {
			t.Errorf("smoothing across north produced %v", v)
		}
	}
}
