package traveltime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/geo"
)

var departure = time.Date(2020, 10, 20, 8, 0, 0, 0, time.UTC)

// provider is a fake time-map endpoint. Each result gets one triangular shell
// whose first vertex sits 0.1 degrees north of the search origin.
type provider struct {
	calls    atomic.Int32
	reorder  func(ids []string) []string
	status   int
	body     string
	delay    time.Duration
	mu       sync.Mutex
	payloads []TimeMapRequest
	headers  []http.Header
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)

	data, _ := io.ReadAll(r.Body)
	var req TimeMapRequest
	_ = json.Unmarshal(data, &req)

	p.mu.Lock()
	p.payloads = append(p.payloads, req)
	p.headers = append(p.headers, r.Header.Clone())
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-r.Context().Done():
			return
		}
	}

	if p.status != 0 {
		w.WriteHeader(p.status)
		_, _ = io.WriteString(w, p.body)
		return
	}
	if p.body != "" {
		_, _ = io.WriteString(w, p.body)
		return
	}

	coords := make(map[string]LatLng, len(req.DepartureSearches))
	ids := make([]string, 0, len(req.DepartureSearches))
	for _, s := range req.DepartureSearches {
		coords[s.ID] = s.Coords
		ids = append(ids, s.ID)
	}
	if p.reorder != nil {
		ids = p.reorder(ids)
	}

	resp := Response{Results: []Result{}}
	for _, id := range ids {
		c := coords[id]
		resp.Results = append(resp.Results, Result{
			SearchID: id,
			Shapes: []Shape{{
				Shell: []LatLng{
					{Lat: c.Lat + 0.1, Lng: c.Lng},
					{Lat: c.Lat, Lng: c.Lng + 0.2},
					{Lat: c.Lat - 0.1, Lng: c.Lng - 0.1},
				},
				Holes: [][]LatLng{},
			}},
			Properties: map[string]any{},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	out, _ := json.MarshalIndent(resp, "", "  ")
	_, _ = w.Write(out)
}

func newTestClient(t *testing.T, p *provider, store cache.Store) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	if store == nil {
		store = cache.NewFileStore(t.TempDir())
	}

	c := New(Options{
		URL:     srv.URL,
		AppID:   "app-id",
		APIKey:  "secret",
		Timeout: 2 * time.Second,
		Store:   store,
	})
	return c, srv
}

func firstVertex(t *testing.T, f *geojson.Feature) orb.Point {
	t.Helper()
	mp, ok := f.Geometry.(orb.MultiPolygon)
	if !ok || len(mp) == 0 || len(mp[0]) == 0 || len(mp[0][0]) == 0 {
		t.Fatalf("feature has no vertices: %#v", f.Geometry)
	}
	return mp[0][0][0]
}

func TestFetchCatchmentCachesResult(t *testing.T) {
	p := &provider{}
	store := cache.NewFileStore(t.TempDir())
	c, _ := newTestClient(t, p, store)
	ctx := context.Background()
	origin := geo.Coordinate{Lat: 51.510078, Lon: -0.134952}

	first, err := c.FetchCatchment(ctx, origin, Driving, departure, 60, "soho")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("expected 1 provider call, got %d", n)
	}

	key := NewCatchmentRequest("soho", origin, Driving, departure, 60).Key()
	for _, path := range []string{store.RawPath(key), store.GeoJSONPath(key)} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected cache artifact %s: %v", path, err)
		}
	}

	second, err := c.FetchCatchment(ctx, origin, Driving, departure, 60, "soho")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected cached second call, provider called %d times", n)
	}

	a, _ := geo.MarshalFeatureCollection(first)
	b, _ := geo.MarshalFeatureCollection(second)
	if string(a) != string(b) {
		t.Errorf("cached output differs:\n%s\n%s", a, b)
	}

	stored, err := os.ReadFile(store.GeoJSONPath(key))
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(a) {
		t.Errorf("stored GeoJSON differs from returned collection")
	}
	if !strings.Contains(string(stored), `"properties":{}`) {
		t.Errorf("stored features must carry an empty properties object: %s", stored)
	}
}

func TestFetchSendsPayloadAndCredentials(t *testing.T) {
	p := &provider{}
	c, _ := newTestClient(t, p, cache.NewMemoryStore())

	_, err := c.Fetch(context.Background(), NewCatchmentRequest("", geo.Coordinate{Lat: 51.5, Lon: -0.1}, PublicTransport, departure, 45))
	if err != nil {
		t.Fatal(err)
	}

	h := p.headers[0]
	if h.Get("X-Application-Id") != "app-id" || h.Get("X-Api-Key") != "secret" {
		t.Errorf("credentials not sent: %v", h)
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type %q", h.Get("Content-Type"))
	}

	s := p.payloads[0].DepartureSearches[0]
	if s.ID != DefaultSearchID {
		t.Errorf("expected default id, got %q", s.ID)
	}
	if s.TravelTime != 2700 {
		t.Errorf("expected travel_time 2700s, got %d", s.TravelTime)
	}
	if s.DepartureTime != "2020-10-20T08:00:00Z" {
		t.Errorf("unexpected departure_time %q", s.DepartureTime)
	}
	if s.Transportation.Type != PublicTransport || s.Coords.Lat != 51.5 || s.Coords.Lng != -0.1 {
		t.Errorf("unexpected search %+v", s)
	}
}

func TestFetchBatchPreservesInputOrder(t *testing.T) {
	p := &provider{
		// provider answers as [C, A, B]
		reorder: func(ids []string) []string {
			return []string{ids[2], ids[0], ids[1]}
		},
	}
	c, _ := newTestClient(t, p, cache.NewMemoryStore())

	reqs := []CatchmentRequest{
		NewCatchmentRequest("A", geo.Coordinate{Lat: 10, Lon: 1}, Driving, departure, 30),
		NewCatchmentRequest("B", geo.Coordinate{Lat: 20, Lon: 2}, Walking, departure, 30),
		NewCatchmentRequest("C", geo.Coordinate{Lat: 30, Lon: 3}, Cycling, departure, 30),
	}

	fc, err := c.FetchBatch(context.Background(), reqs,
		Combination{Kind: Intersection, SearchIDs: []string{"A", "B"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(fc.Features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(fc.Features))
	}

	for i, r := range reqs {
		want := r.Origin.Lat + 0.1
		if got := firstVertex(t, fc.Features[i]).Lat(); got != want {
			t.Errorf("feature %d starts at lat %v, want %v", i, got, want)
		}
	}

	for i, s := range p.payloads[0].DepartureSearches {
		if s.ID != fmt.Sprint(i) {
			t.Errorf("search %d sent with id %q, want positional id", i, s.ID)
		}
	}

	if reqs[0].ID != "A" {
		t.Error("caller requests must not be modified")
	}

	// cached batch keeps the order too
	again, err := c.FetchBatch(context.Background(), reqs)
	if err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("expected batch to be cached, provider called %d times", p.calls.Load())
	}
	if firstVertex(t, again.Features[0]).Lat() != reqs[0].Origin.Lat+0.1 {
		t.Error("cached batch lost input order")
	}
}

func TestFetchBatchDoesNotForwardCombinations(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		_, _ = io.WriteString(w, `{"results":[{"search_id":"0","shapes":[]}]}`)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Store: cache.NewMemoryStore()})
	_, err := c.FetchBatch(context.Background(),
		[]CatchmentRequest{NewCatchmentRequest("", geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 10)},
		Combination{Kind: Union, SearchIDs: []string{"0"}})
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(body, "union") || strings.Contains(body, "intersection") {
		t.Errorf("combinations were forwarded: %s", body)
	}
}

func TestFetchBatchSizeLimits(t *testing.T) {
	p := &provider{}
	c, _ := newTestClient(t, p, cache.NewMemoryStore())

	req := NewCatchmentRequest("", geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 10)
	tooMany := make([]CatchmentRequest, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = req
	}

	for _, reqs := range [][]CatchmentRequest{nil, tooMany} {
		if _, err := c.FetchBatch(context.Background(), reqs); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("batch of %d: expected ErrInvalidRequest, got %v", len(reqs), err)
		}
	}

	bad := []CatchmentRequest{req, NewCatchmentRequest("", geo.Coordinate{Lat: 1, Lon: 200}, Driving, departure, 10)}
	if _, err := c.FetchBatch(context.Background(), bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for invalid origin, got %v", err)
	}

	if p.calls.Load() != 0 {
		t.Errorf("invalid batches must not reach the provider")
	}
}

func TestFetchProviderError(t *testing.T) {
	p := &provider{
		status: http.StatusUnprocessableEntity,
		body:   `{"http_status":422,"error_code":15,"description":"Travel time too long","additional_info":{"travel_time":["max 14400"]}}`,
	}
	store := cache.NewMemoryStore()
	c, _ := newTestClient(t, p, store)

	_, err := c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 600, "x")

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if perr.StatusCode != 422 || perr.Description != "Travel time too long" {
		t.Errorf("unexpected provider error %+v", perr)
	}
	if perr.AdditionalInfo != `{"travel_time":["max 14400"]}` {
		t.Errorf("AdditionalInfo = %q", perr.AdditionalInfo)
	}
	if store.Len() != 0 {
		t.Error("errors must not be cached")
	}

	// a second call goes back to the provider
	_, _ = c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 600, "x")
	if p.calls.Load() != 2 {
		t.Errorf("expected 2 provider calls, got %d", p.calls.Load())
	}
}

func TestFetchMalformedSuccess(t *testing.T) {
	p := &provider{body: `{"unexpected": true}`}
	c, _ := newTestClient(t, p, cache.NewMemoryStore())

	_, err := c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 10, "x")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	// result for another search id
	p.body = `{"results":[{"search_id":"other","shapes":[]}]}`
	_, err = c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 10, "x")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for missing id, got %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	p := &provider{delay: 500 * time.Millisecond}
	srv := httptest.NewServer(p)
	defer srv.Close()

	c := New(Options{URL: srv.URL, Timeout: 20 * time.Millisecond, Store: cache.NewMemoryStore()})
	_, err := c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 1, Lon: 1}, Driving, departure, 10, "x")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestFetchConcurrentSameKey(t *testing.T) {
	p := &provider{delay: 50 * time.Millisecond}
	c, _ := newTestClient(t, p, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.FetchCatchment(context.Background(), geo.Coordinate{Lat: 5, Lon: 5}, Walking, departure, 15, "same")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("expected a single provider call, got %d", n)
	}
}

func TestFetchUsesExistingCache(t *testing.T) {
	store := cache.NewMemoryStore()
	req := NewCatchmentRequest("cached", geo.Coordinate{Lat: 2, Lon: 3}, Bus, departure, 20)
	raw := `{"results":[{"search_id":"cached","shapes":[{"shell":[{"lat":2.1,"lng":3},{"lat":2,"lng":3.1}],"holes":[]}]}]}`
	if err := store.Save(context.Background(), req.Key(), &cache.Artifact{Raw: []byte(raw)}); err != nil {
		t.Fatal(err)
	}

	p := &provider{}
	c, _ := newTestClient(t, p, store)

	fc, err := c.Fetch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 0 {
		t.Error("expected no provider call on cache hit")
	}
	if got := firstVertex(t, fc.Features[0]); got != (orb.Point{3, 2.1}) {
		t.Errorf("unexpected first vertex %v", got)
	}
}

func TestFetchCacheHitIgnoresSearchID(t *testing.T) {
	p := &provider{}
	c, _ := newTestClient(t, p, nil)

	origin := geo.Coordinate{Lat: 51.510078, Lon: -0.134952}
	first, err := c.FetchCatchment(context.Background(), origin, Driving, departure, 60, "a")
	if err != nil {
		t.Fatal(err)
	}

	second, err := c.FetchCatchment(context.Background(), origin, Driving, departure, 60, "b")
	if err != nil {
		t.Fatalf("same parameters under another id must hit the cache: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.calls.Load())
	}
	if firstVertex(t, first.Features[0]) != firstVertex(t, second.Features[0]) {
		t.Error("expected the cached geometry")
	}
}

func TestFetchConcurrentDifferentIDs(t *testing.T) {
	p := &provider{delay: 50 * time.Millisecond}
	c, _ := newTestClient(t, p, nil)
	origin := geo.Coordinate{Lat: 1, Lon: 1}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.FetchCatchment(context.Background(), origin, Walking, departure, 15, strconv.Itoa(i))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
}
