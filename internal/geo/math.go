package geo

import "github.com/tidwall/geodesic"

// DistanceKm returns the ellipsoidal geodesic distance between a and b on WGS-84, in kilometers.
func DistanceKm(a, b Coordinate) float64 {
	var meters float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &meters, nil, nil)
	return meters / 1000.0
}
