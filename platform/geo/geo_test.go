package geo

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	// Jakarta Monas to Bandung Gedung Sate is roughly 119 km.
	got := DistanceKm(-6.1754, 106.8272, -6.9025, 107.6187)
	if math.Abs(got-119) > 5 {
		t.Fatalf("DistanceKm = %.1f, want about 119", got)
	}
	if d := DistanceKm(1, 1, 1, 1); d != 0 {
		t.Fatalf("distance to self = %v", d)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	lat, lng := -6.2, 106.8
	box := BoundingBox(lat, lng, 10)

	if box.MinLat >= lat || box.MaxLat <= lat || box.MinLng >= lng || box.MaxLng <= lng {
		t.Fatalf("box %+v does not contain its centre", box)
	}
	// A point 9 km due north must be inside.
	north := lat + 9.0/111.2
	if north > box.MaxLat {
		t.Fatalf("point 9km north (%.4f) outside box max %.4f", north, box.MaxLat)
	}
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := BoundingBox(89.99, 0, 50)
	if box.MinLng != -180 || box.MaxLng != 180 || box.MaxLat != 90 {
		t.Fatalf("polar box should span all longitudes, got %+v", box)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidCoordinates(-6.2, 106.8) {
		t.Error("jakarta should be valid")
	}
	if ValidCoordinates(91, 0) || ValidCoordinates(0, -181) || ValidCoordinates(math.NaN(), 0) {
		t.Error("out of range coordinates accepted")
	}
}
