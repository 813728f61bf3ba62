package traveltime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/geo"
	"github.com/woozymasta/catchment/internal/metrics"
)

// DefaultURL is the provider time-map endpoint.
const DefaultURL = "https://api.traveltimeapp.com/v4/time-map"

// DefaultTimeout bounds a single provider call when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	URL        string
	AppID      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Store      cache.Store
}

// Client sends time-map requests and caches their results.
//
// Calls with the same cache key are collapsed so that the cache check, network call
// and cache write for one key run once at a time. Provider errors are returned to
// the caller; the client never retries.
type Client struct {
	url     string
	appID   string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	store   cache.Store
	group   singleflight.Group
}

// New creates a client. A nil store defaults to a FileStore in "output".
func New(opts Options) *Client {
	c := &Client{
		url:     opts.URL,
		appID:   opts.AppID,
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		store:   opts.Store,
	}

	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.store == nil {
		c.store = cache.NewFileStore("")
	}

	return c
}

// FetchCatchment fetches the catchment of a single origin.
func (c *Client) FetchCatchment(
	ctx context.Context,
	origin geo.Coordinate,
	mode Mode,
	departure time.Time,
	minutes int,
	id string,
) (*geojson.FeatureCollection, error) {
	return c.Fetch(ctx, NewCatchmentRequest(id, origin, mode, departure, minutes))
}

// Fetch resolves one request from the cache or the provider.
func (c *Client) Fetch(ctx context.Context, req CatchmentRequest) (*geojson.FeatureCollection, error) {
	if req.ID == "" {
		req.ID = DefaultSearchID
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := req.ID
	return c.resolve(ctx, req.Key(), []DepartureSearch{req.search()}, func(resp *Response) (*Response, error) {
		return selectResult(resp, id)
	})
}

// FetchBatch resolves several origins with one provider call.
//
// Each request is sent with its index as id, replacing any caller id, and the
// returned features follow the input order. Combinations are accepted but not
// forwarded to the provider.
func (c *Client) FetchBatch(ctx context.Context, reqs []CatchmentRequest, combos ...Combination) (*geojson.FeatureCollection, error) {
	if len(reqs) < 1 || len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size must be 1-%d, got %d", ErrInvalidRequest, MaxBatchSize, len(reqs))
	}

	for _, cb := range combos {
		log.Warn().
			Str("kind", string(cb.Kind)).
			Strs("search_ids", cb.SearchIDs).
			Msg("Intersections and unions are not supported, combination ignored")
	}

	indexed := make([]CatchmentRequest, len(reqs))
	searches := make([]DepartureSearch, len(reqs))
	for i, r := range reqs {
		r.ID = strconv.Itoa(i)
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("origin %d: %w", i, err)
		}
		indexed[i] = r
		searches[i] = r.search()
	}

	n := len(reqs)
	return c.resolve(ctx, BatchKey(indexed), searches, func(resp *Response) (*Response, error) {
		return OrderResults(resp, n)
	})
}

// resolve runs cache lookup, provider call and cache write for key.
func (c *Client) resolve(
	ctx context.Context,
	key string,
	searches []DepartureSearch,
	pick func(*Response) (*Response, error),
) (*geojson.FeatureCollection, error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		a, err := c.store.Load(ctx, key)
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			log.Debug().Str("key", key).Msg("Cache hit, skipping provider call")
			return convertRaw(a.Raw, pick)
		case errors.Is(err, cache.ErrMiss):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			return nil, err
		}

		log.Info().
			Str("key", key).
			Int("searches", len(searches)).
			Msg("Requesting time map")

		raw, err := c.post(ctx, TimeMapRequest{DepartureSearches: searches})
		if err != nil {
			return nil, err
		}

		fc, err := convertRaw(raw, pick)
		if err != nil {
			return nil, err
		}

		geoJSON, err := geo.MarshalFeatureCollection(fc)
		if err != nil {
			return nil, fmt.Errorf("encode geojson: %w", err)
		}

		compact, err := cache.Compact(raw)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to compact raw response, storing as received")
			compact = raw
		}

		if err := c.store.Save(ctx, key, &cache.Artifact{Raw: compact, GeoJSON: geoJSON}); err != nil {
			return nil, err
		}

		return fc, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		log.Trace().Str("key", key).Msg("Result shared with concurrent caller")
	}

	return v.(*geojson.FeatureCollection), nil
}

func convertRaw(raw []byte, pick func(*Response) (*Response, error)) (*geojson.FeatureCollection, error) {
	resp, err := DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	picked, err := pick(resp)
	if err != nil {
		return nil, err
	}
	return ToFeatureCollection(picked)
}

// post sends the payload and returns the success body.
func (c *Client) post(ctx context.Context, payload TimeMapRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application-Id", c.appID)
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("error").Inc()
		return nil, c.transportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	metrics.ProviderRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Time map response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := newProviderError(resp.StatusCode, data)
		log.Error().
			Int("status", perr.StatusCode).
			Str("description", perr.Description).
			Str("additional_info", perr.AdditionalInfo).
			Msg("Provider returned an error")
		return nil, perr
	}

	return data, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
	}
	return fmt.Errorf("time-map request: %w", err)
}
