package processor

import (
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/catchment/internal/geo"
)

// Summary is the geometric digest of one fetched catchment.
type Summary struct {
	Err      error           `json:"-" yaml:"-"`
	Name     string          `json:"name" yaml:"name"`
	Key      string          `json:"key" yaml:"key"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Origins  []OriginSummary `json:"origins" yaml:"origins"`
	Bounds   geo.BoundingBox `json:"bounds" yaml:"bounds"`
	Center   *geo.Coordinate `json:"center,omitempty" yaml:"center,omitempty"`
	BBox     geojson.BBox    `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Features int             `json:"features" yaml:"features"`
	Empty    bool            `json:"empty" yaml:"empty"`
}

// OriginSummary holds the farthest reachable vertex of one origin's feature.
type OriginSummary struct {
	Farthest *geo.FarthestPointResult `json:"farthest,omitempty" yaml:"farthest,omitempty"`
	Error    string                   `json:"error,omitempty" yaml:"error,omitempty"`
	Origin   geo.Coordinate           `json:"origin" yaml:"origin"`
}

// Summarize computes the bounding box of the whole collection and, for each origin,
// the farthest vertex of the feature at the same position.
func Summarize(origins []geo.Coordinate, fc *geojson.FeatureCollection) Summary {
	s := Summary{
		Bounds:  geo.Bounds(fc),
		Origins: make([]OriginSummary, 0, len(origins)),
	}
	s.SetBounds(s.Bounds)
	if fc != nil {
		s.Features = len(fc.Features)
	}

	for i, origin := range origins {
		o := OriginSummary{Origin: origin}

		single := geojson.NewFeatureCollection()
		if fc != nil && i < len(fc.Features) {
			single.Append(fc.Features[i])
		}

		// an origin without vertices keeps the error text instead of a zero distance
		res, err := geo.FarthestPoint(origin, single)
		if err != nil {
			o.Error = err.Error()
		} else {
			o.Farthest = &res
		}

		s.Origins = append(s.Origins, o)
	}

	return s
}

// SetBounds replaces the box and the values derived from it.
func (s *Summary) SetBounds(box geo.BoundingBox) {
	s.Bounds = box
	s.Empty = box.IsEmpty()
	s.Center = nil
	s.BBox = nil
	if s.Empty {
		return
	}

	c := box.Center()
	s.Center = &c
	s.BBox = geojson.NewBBox(box.Bound())
}
