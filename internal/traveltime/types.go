// Package traveltime builds time-map requests for the travel-time provider, sends them
// through a cache-aware client and converts the returned shapes into GeoJSON.
package traveltime

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/catchment/internal/geo"
)

// MaxBatchSize is the largest number of departure searches the provider accepts in one call.
const MaxBatchSize = 10

// DefaultSearchID is used for single-origin requests without a caller id.
const DefaultSearchID = "isochrone"

// Mode is a provider transportation type.
type Mode string

const (
	Cycling                Mode = "cycling"
	Driving                Mode = "driving"
	DrivingTrain           Mode = "driving+train"
	DrivingFerry           Mode = "driving+ferry"
	CyclingFerry           Mode = "cycling+ferry"
	CyclingPublicTransport Mode = "cycling+public_transport"
	PublicTransport        Mode = "public_transport"
	Walking                Mode = "walking"
	WalkingFerry           Mode = "walking+ferry"
	Coach                  Mode = "coach"
	Bus                    Mode = "bus"
	Train                  Mode = "train"
	Ferry                  Mode = "ferry"
)

var modes = map[Mode]struct{}{
	Cycling: {}, Driving: {}, DrivingTrain: {}, DrivingFerry: {}, CyclingFerry: {},
	CyclingPublicTransport: {}, PublicTransport: {}, Walking: {}, WalkingFerry: {},
	Coach: {}, Bus: {}, Train: {}, Ferry: {},
}

// Valid reports whether the provider knows the mode.
func (m Mode) Valid() bool {
	_, ok := modes[m]
	return ok
}

// CatchmentRequest describes one departure search.
type CatchmentRequest struct {
	ID            string
	Origin        geo.Coordinate
	Mode          Mode
	DepartureTime time.Time
	TravelTime    time.Duration
}

// NewCatchmentRequest builds a request with a travel-time budget in minutes.
func NewCatchmentRequest(id string, origin geo.Coordinate, mode Mode, departure time.Time, minutes int) CatchmentRequest {
	return CatchmentRequest{
		ID:            id,
		Origin:        origin,
		Mode:          mode,
		DepartureTime: departure,
		TravelTime:    time.Duration(minutes) * time.Minute,
	}
}

// Validate checks the request before anything is sent.
func (r CatchmentRequest) Validate() error {
	if err := r.Origin.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unknown transportation mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.DepartureTime.IsZero() {
		return fmt.Errorf("%w: departure time is required", ErrInvalidRequest)
	}
	if r.TravelTime < time.Second {
		return fmt.Errorf("%w: travel time must be positive, got %s", ErrInvalidRequest, r.TravelTime)
	}
	return nil
}

// Key derives the cache key from origin, mode, departure time and duration.
//
// Coordinates use the shortest decimal form of the float64 value, so the key is
// not canonical across differently rounded inputs.
func (r CatchmentRequest) Key() string {
	return strings.Join([]string{
		strconv.FormatFloat(r.Origin.Lat, 'f', -1, 64),
		strconv.FormatFloat(r.Origin.Lon, 'f', -1, 64),
		string(r.Mode),
		r.DepartureTime.UTC().Format("20060102T150405Z"),
		strconv.FormatFloat(r.TravelTime.Minutes(), 'f', -1, 64) + "min",
	}, "_")
}

// BatchKey derives one cache key for an ordered batch of requests.
func BatchKey(reqs []CatchmentRequest) string {
	keys := make([]string, len(reqs))
	for i, r := range reqs {
		keys[i] = r.Key()
	}
	sum := sha256.Sum256([]byte(strings.Join(keys, "|")))
	return fmt.Sprintf("batch_%d_%x", len(reqs), sum[:8])
}

func (r CatchmentRequest) search() DepartureSearch {
	return DepartureSearch{
		ID:             r.ID,
		Coords:         LatLng{Lat: r.Origin.Lat, Lng: r.Origin.Lon},
		Transportation: Transportation{Type: r.Mode},
		DepartureTime:  r.DepartureTime.UTC().Format(time.RFC3339),
		TravelTime:     int(r.TravelTime / time.Second),
	}
}

// CombinationKind selects how a Combination merges searches.
type CombinationKind string

const (
	Intersection CombinationKind = "intersection"
	Union        CombinationKind = "union"
)

// Combination names an intersection or union of batch searches.
// FetchBatch accepts combinations but never sends them to the provider.
type Combination struct {
	Kind      CombinationKind
	SearchIDs []string
}

// LatLng is the provider point representation.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Transportation wraps the mode in the request payload.
type Transportation struct {
	Type Mode `json:"type"`
}

// DepartureSearch is one entry of the request payload.
type DepartureSearch struct {
	ID             string         `json:"id"`
	Coords         LatLng         `json:"coords"`
	Transportation Transportation `json:"transportation"`
	DepartureTime  string         `json:"departure_time"`
	TravelTime     int            `json:"travel_time"`
}

// TimeMapRequest is the request body.
type TimeMapRequest struct {
	DepartureSearches []DepartureSearch `json:"departure_searches"`
}

// Shape is one polygon of a result: an outer shell and optional holes.
type Shape struct {
	Shell []LatLng   `json:"shell"`
	Holes [][]LatLng `json:"holes"`
}

// Result holds the shapes returned for one search id.
type Result struct {
	SearchID   string         `json:"search_id"`
	Shapes     []Shape        `json:"shapes"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Response is the success body of a time-map call.
type Response struct {
	Results []Result `json:"results"`
}
