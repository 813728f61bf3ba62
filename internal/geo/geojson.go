package geo

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EachVertex visits every vertex of every polygon ring in the collection.
//
// Order is fixed: features, then polygons, then the shell followed by its holes,
// then vertex order within the ring. Polygon and MultiPolygon geometries are
// visited; any other geometry type is skipped. Returning false from fn stops the walk.
func EachVertex(fc *geojson.FeatureCollection, fn func(p orb.Point) bool) {
	if fc == nil {
		return
	}

	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if !eachGeometryVertex(f.Geometry, fn) {
			return
		}
	}
}

func eachGeometryVertex(g orb.Geometry, fn func(p orb.Point) bool) bool {
	switch g := g.(type) {
	case orb.MultiPolygon:
		for _, poly := range g {
			if !eachPolygonVertex(poly, fn) {
				return false
			}
		}
	case orb.Polygon:
		return eachPolygonVertex(g, fn)
	}
	return true
}

func eachPolygonVertex(poly orb.Polygon, fn func(p orb.Point) bool) bool {
	// poly[0] is the shell, the rest are holes
	for _, ring := range poly {
		for _, p := range ring {
			if !fn(p) {
				return false
			}
		}
	}
	return true
}

type featureDoc struct {
	ID         any                `json:"id,omitempty"`
	Type       string             `json:"type"`
	BBox       geojson.BBox       `json:"bbox,omitempty"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

type collectionDoc struct {
	Type     string       `json:"type"`
	BBox     geojson.BBox `json:"bbox,omitempty"`
	Features []featureDoc `json:"features"`
}

// MarshalFeatureCollection encodes fc as GeoJSON. Unlike orb, features without
// properties are written with an empty object instead of null.
func MarshalFeatureCollection(fc *geojson.FeatureCollection) ([]byte, error) {
	doc := collectionDoc{Type: "FeatureCollection", Features: []featureDoc{}}
	if fc != nil {
		doc.BBox = fc.BBox
		for _, f := range fc.Features {
			if f == nil {
				continue
			}
			props := f.Properties
			if props == nil {
				props = geojson.Properties{}
			}
			doc.Features = append(doc.Features, featureDoc{
				ID:         f.ID,
				Type:       "Feature",
				BBox:       f.BBox,
				Geometry:   geojson.NewGeometry(f.Geometry),
				Properties: props,
			})
		}
	}
	return json.Marshal(doc)
}
