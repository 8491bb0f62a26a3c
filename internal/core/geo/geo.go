// Package geo provides the distance math used by duplicate detection
package geo

import "math"

const earthRadiusM = 6_371_000.0

// HaversineM returns the great-circle distance in meters between two
// WGS84 points. The function is symmetric and deterministic
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180.0
	phi1 := lat1 * rad
	phi2 := lat2 * rad
	dPhi := (lat2 - lat1) * rad
	dLambda := (lng2 - lng1) * rad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BoundingBox returns the lat/lng half-extents of a box that encloses a
// circle of radiusM around latitude lat. Used as a cheap SQL prefilter
// before the exact haversine check
func BoundingBox(lat, radiusM float64) (dLat, dLng float64) {
	rad := math.Pi / 180.0
	dLat = radiusM / earthRadiusM / rad
	cos := math.Cos(lat * rad)
	if cos < 1e-6 {
		cos = 1e-6 // poles: degenerate box instead of dividing by zero
	}
	dLng = radiusM / (earthRadiusM * cos) / rad
	return dLat, dLng
}
