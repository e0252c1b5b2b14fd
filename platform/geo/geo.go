// Package geo holds the coordinate math used by map queries.
package geo

import "math"

const earthRadiusKm = 6371.0

// Box is a lat/lng bounding box.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// DistanceKm is the haversine great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns a box that contains every point within radiusKm of the
// centre. It is a prefilter; callers refine with DistanceKm.
func BoundingBox(lat, lng, radiusKm float64) Box {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	box := Box{
		MinLat: math.Max(lat-dLat, -90),
		MaxLat: math.Min(lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	// Near the poles every longitude is in range.
	if cos := math.Cos(radians(lat)); cos > 1e-6 {
		dLng := dLat / cos
		if dLng < 180 {
			box.MinLng = math.Max(lng-dLng, -180)
			box.MaxLng = math.Min(lng+dLng, 180)
		}
	}
	return box
}

// ValidCoordinates reports whether lat/lng are within WGS84 range.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lng)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
