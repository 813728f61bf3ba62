package geo

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoGeometry is returned by geometric queries on a collection without vertices.
var ErrNoGeometry = errors.New("no geometry")

// FarthestPointResult is the vertex farthest from an origin.
type FarthestPointResult struct {
	DistanceKm float64    `json:"distance_km" yaml:"distance_km"`
	Point      Coordinate `json:"point"       yaml:"point"`
}

// FarthestPoint scans every vertex of the collection and returns the one with the
// largest geodesic distance from origin. Scan order follows EachVertex and the
// first vertex wins ties.
func FarthestPoint(origin Coordinate, fc *geojson.FeatureCollection) (FarthestPointResult, error) {
	var (
		best  FarthestPointResult
		found bool
	)

	EachVertex(fc, func(p orb.Point) bool {
		c := CoordinateFromPoint(p)
		d := DistanceKm(origin, c)
		if !found || d > best.DistanceKm {
			best = FarthestPointResult{DistanceKm: d, Point: c}
			found = true
		}
		return true
	})

	if !found {
		return FarthestPointResult{}, ErrNoGeometry
	}

	return best, nil
}
