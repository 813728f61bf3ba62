// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/geo"
	"github.com/woozymasta/catchment/internal/traveltime"
)

type catchmentInfo struct {
	Name    string           `json:"name"`
	Key     string           `json:"key"`
	Origins []geo.Coordinate `json:"origins"`
	Batch   bool             `json:"batch"`
	Cached  bool             `json:"cached"`
}

// HandleCatchmentsList serves the configured catchments and whether they are cached.
func (s *ServerContext) HandleCatchmentsList(w http.ResponseWriter, r *http.Request) {
	list := make([]catchmentInfo, 0, len(s.Names))
	for _, name := range s.Names {
		t := s.Targets[name]
		_, err := s.Store.Load(r.Context(), t.Key)
		list = append(list, catchmentInfo{
			Name:    t.Name,
			Key:     t.Key,
			Origins: t.Origins,
			Batch:   t.Batch,
			Cached:  err == nil,
		})
	}

	writeJSON(w, http.StatusOK, list)
}

// HandleSummary serves the bounding box and farthest points of a catchment,
// fetching it through the cache when needed. A catchment without any vertex is
// answered with 422 and the summary holding the sentinel bounds.
func (s *ServerContext) HandleSummary(w http.ResponseWriter, r *http.Request) {
	t, ok := s.Targets[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	summary := t.Run(r.Context(), s.Fetcher)
	if summary.Err != nil {
		writeError(w, summary.Err)
		return
	}

	if summary.Empty {
		log.Warn().Str("name", t.Name).Err(geo.ErrNoGeometry).Msg("Catchment has no geometry")
		writeJSON(w, http.StatusUnprocessableEntity, summary)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleGeoJSON serves /catchments/{name}.geojson.
func (s *ServerContext) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".geojson")
	if !ok {
		http.NotFound(w, r)
		return
	}
	t, ok := s.Targets[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	// cached files are served straight from disk
	if fs, ok := s.Store.(*cache.FileStore); ok {
		if serveFile(w, r, fs.GeoJSONPath(t.Key), geoJSONContentType) {
			return
		}
	}

	fc, err := t.Fetch(r.Context(), s.Fetcher)
	if err != nil {
		writeError(w, err)
		return
	}

	// the collection may be shared with concurrent callers
	out := *fc
	if box := geo.Bounds(fc); !box.IsEmpty() {
		out.BBox = geojson.NewBBox(box.Bound())
	}

	data, err := geo.MarshalFeatureCollection(&out)
	if err != nil {
		writeError(w, err)
		return
	}

	writeCached(w, r, data, geoJSONContentType)
}

const geoJSONContentType = "application/geo+json"

// serveFile tries to serve a file from disk.
// It returns true if the file was found and served (or 304).
func serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	writeCached(w, r, data, contentType)
	return true
}

// contentETag derives a strong ETag from the body.
func contentETag(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf(`"%x"`, h.Sum64())
}

// writeCached writes data with an ETag, answering 304 when the client already has it.
func writeCached(w http.ResponseWriter, r *http.Request, data []byte, contentType string) {
	etag := contentETag(data)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	_, _ = w.Write(data)
}

type errorResponse struct {
	Error          string `json:"error"`
	Stage          string `json:"stage"`
	Description    string `json:"description,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error(), Stage: "internal"}

	var perr *traveltime.ProviderError
	var cerr *cache.Error
	switch {
	case errors.As(err, &perr):
		status = http.StatusBadGateway
		resp.Stage = "provider"
		resp.Description = perr.Description
		resp.AdditionalInfo = perr.AdditionalInfo
	case errors.Is(err, traveltime.ErrTimeout):
		status = http.StatusGatewayTimeout
		resp.Stage = "provider"
	case errors.Is(err, traveltime.ErrMalformedResponse):
		status = http.StatusBadGateway
		resp.Stage = "convert"
	case errors.Is(err, traveltime.ErrInvalidRequest):
		status = http.StatusBadRequest
		resp.Stage = "request"
	case errors.Is(err, geo.ErrNoGeometry):
		status = http.StatusUnprocessableEntity
		resp.Stage = "geometry"
	case errors.As(err, &cerr):
		resp.Stage = "cache"
	}

	log.Error().Err(err).Str("stage", resp.Stage).Int("status", status).Msg("Request failed")
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}
