package traveltime

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/catchment/internal/geo"
)

// DecodeResponse parses and validates a success body.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *Response) validate() error {
	if r == nil || r.Results == nil {
		return fmt.Errorf("%w: missing results", ErrMalformedResponse)
	}
	for i, res := range r.Results {
		if res.Shapes == nil {
			return fmt.Errorf("%w: result %d (%q) has no shapes", ErrMalformedResponse, i, res.SearchID)
		}
		for j, s := range res.Shapes {
			if s.Shell == nil {
				return fmt.Errorf("%w: result %d (%q) shape %d has no shell", ErrMalformedResponse, i, res.SearchID, j)
			}
		}
	}
	return nil
}

// ToFeatureCollection converts provider results into GeoJSON.
//
// Each result becomes one Feature holding a MultiPolygon with one polygon per shape,
// in the order received. Rings are copied vertex by vertex into [lng, lat] pairs
// without closing, simplifying or deduplicating them.
func ToFeatureCollection(resp *Response) (*geojson.FeatureCollection, error) {
	if err := resp.validate(); err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, res := range resp.Results {
		mp := make(orb.MultiPolygon, 0, len(res.Shapes))
		for _, s := range res.Shapes {
			poly := make(orb.Polygon, 0, 1+len(s.Holes))
			poly = append(poly, toRing(s.Shell))
			for _, h := range s.Holes {
				poly = append(poly, toRing(h))
			}
			mp = append(mp, poly)
		}
		fc.Append(geojson.NewFeature(mp))
	}

	return fc, nil
}

func toRing(pts []LatLng) orb.Ring {
	ring := make(orb.Ring, len(pts))
	for i, p := range pts {
		ring[i] = orb.Point{p.Lng, p.Lat}
	}
	return ring
}

// Bounds computes the bounding box straight from provider shapes, shells and holes included.
func (r *Response) Bounds() geo.BoundingBox {
	box := geo.EmptyBox()
	if r == nil {
		return box
	}
	for _, res := range r.Results {
		for _, s := range res.Shapes {
			for _, p := range s.Shell {
				box.Extend(p.Lat, p.Lng)
			}
			for _, h := range s.Holes {
				for _, p := range h {
					box.Extend(p.Lat, p.Lng)
				}
			}
		}
	}
	return box
}

// OrderResults returns the results of a batch sent with positional ids "0".."n-1"
// rearranged into request order.
func OrderResults(resp *Response, n int) (*Response, error) {
	if err := resp.validate(); err != nil {
		return nil, err
	}
	if len(resp.Results) != n {
		return nil, fmt.Errorf("%w: expected %d results, got %d", ErrMalformedResponse, n, len(resp.Results))
	}

	byID := make(map[string]Result, n)
	for _, res := range resp.Results {
		if _, dup := byID[res.SearchID]; dup {
			return nil, fmt.Errorf("%w: duplicate result for search %q", ErrMalformedResponse, res.SearchID)
		}
		byID[res.SearchID] = res
	}

	ordered := make([]Result, n)
	for i := range ordered {
		id := strconv.Itoa(i)
		res, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: missing result for search %q", ErrMalformedResponse, id)
		}
		ordered[i] = res
	}

	return &Response{Results: ordered}, nil
}

// selectResult keeps only the result for search id.
//
// The single-origin cache key does not include the id, so an artifact stored for
// one id is served to any other id with the same parameters: a lone result is
// accepted whatever its search_id.
func selectResult(resp *Response, id string) (*Response, error) {
	if err := resp.validate(); err != nil {
		return nil, err
	}
	for _, res := range resp.Results {
		if res.SearchID == id {
			return &Response{Results: []Result{res}}, nil
		}
	}
	if len(resp.Results) == 1 {
		return &Response{Results: resp.Results}, nil
	}
	return nil, fmt.Errorf("%w: missing result for search %q", ErrMalformedResponse, id)
}
