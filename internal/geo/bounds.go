package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// sentinel is the starting value of every bound before any vertex is seen.
const sentinel = 180.0

// BoundingBox is an axis-aligned latitude/longitude box.
//
// A box that has not seen any vertex keeps the inverted sentinel values
// (min = +180, max = -180) and reports IsEmpty. Callers must check IsEmpty
// before treating the box as a region.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// EmptyBox returns a box holding the sentinel values.
func EmptyBox() BoundingBox {
	return BoundingBox{
		MinLat: sentinel,
		MaxLat: -sentinel,
		MinLon: sentinel,
		MaxLon: -sentinel,
	}
}

// Extend grows the box to include the given position.
func (b *BoundingBox) Extend(lat, lon float64) {
	if lat < b.MinLat {
		b.MinLat = lat
	}
	if lat > b.MaxLat {
		b.MaxLat = lat
	}
	if lon < b.MinLon {
		b.MinLon = lon
	}
	if lon > b.MaxLon {
		b.MaxLon = lon
	}
}

// IsEmpty reports whether no vertex has been added to the box.
func (b BoundingBox) IsEmpty() bool {
	return b.MinLat > b.MaxLat || b.MinLon > b.MaxLon
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// Bound converts the box to an orb.Bound (lon, lat order).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Bounds scans every shell and hole ring of the collection.
// An empty collection yields EmptyBox.
func Bounds(fc *geojson.FeatureCollection) BoundingBox {
	box := EmptyBox()
	EachVertex(fc, func(p orb.Point) bool {
		box.Extend(p.Lat(), p.Lon())
		return true
	})
	return box
}
