package server

import (
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/config"
	"github.com/woozymasta/catchment/internal/metrics"
	"github.com/woozymasta/catchment/internal/processor"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config  *config.Config
	Fetcher processor.Fetcher
	Store   cache.Store
	Targets map[string]processor.Target
	Names   []string
}

// NewServerContext indexes the configured catchments by name.
func NewServerContext(cfg *config.Config, f processor.Fetcher, store cache.Store) *ServerContext {
	log.Info().
		Int("catchments", len(cfg.Catchments)).
		Int("batches", len(cfg.Batches)).
		Msg("Initializing server context")

	targets := make(map[string]processor.Target)
	names := make([]string, 0, len(cfg.Catchments)+len(cfg.Batches))
	for _, t := range processor.Targets(cfg) {
		targets[t.Name] = t
		names = append(names, t.Name)

		log.Debug().
			Str("name", t.Name).
			Str("key", t.Key).
			Bool("batch", t.Batch).
			Msg("Catchment registered")
	}
	sort.Strings(names)

	return &ServerContext{
		Config:  cfg,
		Fetcher: f,
		Store:   store,
		Targets: targets,
		Names:   names,
	}
}

// Routes registers all handlers on a new mux wrapped with request logging.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/catchments", s.HandleCatchmentsList)
	mux.HandleFunc("GET /api/catchments/{name}/summary", s.HandleSummary)
	mux.HandleFunc("GET /catchments/{file}", s.HandleGeoJSON)
	mux.Handle("GET /metrics", metrics.Handler())

	return RequestLogger(mux)
}
