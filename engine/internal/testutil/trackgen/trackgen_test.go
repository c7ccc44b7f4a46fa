package trackgen

import (
	"math"
	"testing"
	"time"
)

func TestSquareCourseShape(t *testing.T) {
	track := SquareCourse(122, 1)
	if got := track.Len(); got < 495 || got > 510 {
		t.Fatalf("expected ~503 samples, got %d", got)
	}
	for i := 1; i < track.Len(); i++ {
		if !track.Times[i].After(track.Times[i-1]) {
			t.Fatalf("timestamps not strictly ascending at %d", i)
		}
	}
	if d := track.Duration(); d < 8*time.Minute || d > 9*time.Minute {
		t.Errorf("unexpected duration %v", d)
	}
}

func TestSquareCourseDeterministic(t *testing.T) {
	a := SquareCourse(50, 7)
	b := SquareCourse(50, 7)
	for i := 0; i < a.Len(); i++ {
		if a.Speeds[i] != b.Speeds[i] || a.Courses[i] != b.Courses[i] {
			t.Fatal("same seed must reproduce the same track")
		}
	}
}

func TestUpwindBeatHeadings(t *testing.T) {
	track := UpwindBeat(0, 2, 50, 2)
	// Legs sit at +-42 around the wind; everything should be within 60.
	for i, c := range track.Courses {
		diff := math.Abs(math.Mod(c+180, 360) - 180)
		if diff > 60 {
			t.Fatalf("sample %d course %v too far off the wind", i, c)
		}
	}
}

func TestStraightStaysOnCourse(t *testing.T) {
	track := Straight(90, 5, 30, 3)
	for _, c := range track.Courses {
		if c != 90 {
			t.Fatalf("expected constant course, got %v", c)
		}
	}
	// Moving east increases longitude.
	if track.Lons[track.Len()-1] <= track.Lons[0] {
		t.Error("eastbound track should increase longitude")
	}
}
