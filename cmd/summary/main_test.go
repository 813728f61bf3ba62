package main

import (
	"testing"

	"github.com/woozymasta/catchment/internal/geo"
)

const rawResponse = `{"results":[{"search_id":"0","shapes":[
  {"shell":[{"lat":51.6,"lng":-0.2},{"lat":51.4,"lng":-0.2},{"lat":51.5,"lng":0.1}],
   "holes":[[{"lat":51.7,"lng":-0.3}]]}
]}]}`

func TestSummarizeInputRaw(t *testing.T) {
	s, err := summarizeInput([]byte(rawResponse), true, []geo.Coordinate{{Lat: 51.5, Lon: -0.1}})
	if err != nil {
		t.Fatal(err)
	}

	want := geo.BoundingBox{MinLat: 51.4, MaxLat: 51.7, MinLon: -0.3, MaxLon: 0.1}
	if s.Bounds != want {
		t.Errorf("bounds = %+v, want %+v", s.Bounds, want)
	}
	if s.Empty || len(s.BBox) != 4 || s.Center == nil {
		t.Errorf("expected derived bbox and center, got %+v", s)
	}
	if s.Features != 1 || s.Origins[0].Farthest == nil {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestSummarizeInputGeoJSON(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
  "geometry":{"type":"MultiPolygon","coordinates":[[[[-0.2,51.6],[-0.2,51.4],[0.1,51.5]]]]}}]}`

	s, err := summarizeInput([]byte(data), false, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := geo.BoundingBox{MinLat: 51.4, MaxLat: 51.6, MinLon: -0.2, MaxLon: 0.1}
	if s.Bounds != want {
		t.Errorf("bounds = %+v, want %+v", s.Bounds, want)
	}
}

func TestSummarizeInputErrors(t *testing.T) {
	if _, err := summarizeInput([]byte(`{"results":[{"search_id":"0"}]}`), true, nil); err == nil {
		t.Error("expected error for result without shapes")
	}
	if _, err := summarizeInput([]byte(`not json`), false, nil); err == nil {
		t.Error("expected error for invalid GeoJSON")
	}

	s, err := summarizeInput([]byte(`{"results":[]}`), true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Empty || s.BBox != nil {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestParseOrigin(t *testing.T) {
	c, err := parseOrigin("51.5, -0.1")
	if err != nil || c != (geo.Coordinate{Lat: 51.5, Lon: -0.1}) {
		t.Errorf("parseOrigin = %v, %v", c, err)
	}
	for _, bad := range []string{"51.5", "a,b", "95,0"} {
		if _, err := parseOrigin(bad); err == nil {
			t.Errorf("parseOrigin(%q) expected error", bad)
		}
	}
}
