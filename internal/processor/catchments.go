// Package processor runs the configured catchment searches and summarizes their geometry.
package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/catchment/internal/config"
	"github.com/woozymasta/catchment/internal/geo"
	"github.com/woozymasta/catchment/internal/traveltime"
)

// Fetcher resolves catchment requests; *traveltime.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req traveltime.CatchmentRequest) (*geojson.FeatureCollection, error)
	FetchBatch(ctx context.Context, reqs []traveltime.CatchmentRequest, combos ...traveltime.Combination) (*geojson.FeatureCollection, error)
}

// Target is one configured catchment or batch.
type Target struct {
	fetch   func(ctx context.Context, f Fetcher) (*geojson.FeatureCollection, error)
	Name    string
	Key     string
	Origins []geo.Coordinate
	Batch   bool
}

// Targets lists catchments followed by batches, in configuration order.
func Targets(cfg *config.Config) []Target {
	targets := make([]Target, 0, len(cfg.Catchments)+len(cfg.Batches))

	for _, c := range cfg.Catchments {
		req := c.Request()
		targets = append(targets, Target{
			Name:    c.Name,
			Key:     req.Key(),
			Origins: []geo.Coordinate{c.Origin()},
			fetch: func(ctx context.Context, f Fetcher) (*geojson.FeatureCollection, error) {
				return f.Fetch(ctx, req)
			},
		})
	}

	for _, b := range cfg.Batches {
		reqs := b.Requests()
		combos := b.Combinations()
		origins := make([]geo.Coordinate, len(b.Origins))
		for i, o := range b.Origins {
			origins[i] = o.Origin()
		}
		targets = append(targets, Target{
			Name:    b.Name,
			Key:     traveltime.BatchKey(reqs),
			Origins: origins,
			Batch:   true,
			fetch: func(ctx context.Context, f Fetcher) (*geojson.FeatureCollection, error) {
				return f.FetchBatch(ctx, reqs, combos...)
			},
		})
	}

	return targets
}

// Lookup finds a target by name.
func Lookup(cfg *config.Config, name string) (Target, bool) {
	for _, t := range Targets(cfg) {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Fetch resolves the target's feature collection.
func (t Target) Fetch(ctx context.Context, f Fetcher) (*geojson.FeatureCollection, error) {
	return t.fetch(ctx, f)
}

// Run fetches the target and summarizes it. Errors are recorded in the summary.
func (t Target) Run(ctx context.Context, f Fetcher) Summary {
	fc, err := t.Fetch(ctx, f)
	if err != nil {
		s := Summary{Name: t.Name, Key: t.Key, Err: err, Error: err.Error()}
		s.SetBounds(geo.EmptyBox())
		return s
	}

	s := Summarize(t.Origins, fc)
	s.Name = t.Name
	s.Key = t.Key
	return s
}

// ProcessCatchments runs every configured target, at most cfg.Concurrency at a time.
// When names is not empty only the named targets run. A failing target does not stop
// the others, and summaries keep configuration order.
func ProcessCatchments(ctx context.Context, f Fetcher, cfg *config.Config, names []string) []Summary {
	targets := Targets(cfg)

	if len(names) > 0 {
		byName := make(map[string]Target, len(targets))
		for _, t := range targets {
			byName[t.Name] = t
		}

		selected := make([]Target, 0, len(names))
		seen := make(map[string]bool)
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true

			if t, ok := byName[name]; ok {
				selected = append(selected, t)
			} else {
				log.Error().
					Str("name", name).
					Msg("Catchment specified in --limit not found in configuration")
			}
		}
		targets = selected
	}

	summaries := make([]Summary, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))

	for i, t := range targets {
		g.Go(func() error {
			log.Debug().Str("name", t.Name).Str("key", t.Key).Msg("Processing catchment")
			summaries[i] = t.Run(gctx, f)
			logSummary(summaries[i])
			return nil
		})
	}
	_ = g.Wait()

	return summaries
}

func logSummary(s Summary) {
	if s.Err != nil {
		log.Error().Err(s.Err).Str("name", s.Name).Msg("Failed to process catchment")
		return
	}

	ev := log.Info().
		Str("name", s.Name).
		Int("features", s.Features)

	if s.Empty {
		ev = ev.Bool("empty", true)
	} else {
		ev = ev.
			Float64("min_lat", s.Bounds.MinLat).
			Float64("max_lat", s.Bounds.MaxLat).
			Float64("min_lon", s.Bounds.MinLon).
			Float64("max_lon", s.Bounds.MaxLon)
	}

	for _, o := range s.Origins {
		if o.Farthest != nil {
			ev = ev.Float64("farthest_km", o.Farthest.DistanceKm)
			break
		}
	}

	ev.Msg("Catchment processed")
}

// SaveSummaries writes the summaries as JSON to path.
func SaveSummaries(path string, summaries []Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}
