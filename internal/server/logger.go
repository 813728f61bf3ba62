package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/catchment/internal/metrics"
)

// RequestLogger is a middleware to log and count HTTP requests.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		metrics.HTTPRequests.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(ww.statusCode)).Inc()

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.statusCode).
			Str("ip", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})
}

// routeLabel keeps metric cardinality bounded by dropping catchment names.
func routeLabel(path string) string {
	switch {
	case path == "/api/catchments":
		return "list"
	case strings.HasPrefix(path, "/api/catchments/") && strings.HasSuffix(path, "/summary"):
		return "summary"
	case strings.HasPrefix(path, "/catchments/"):
		return "geojson"
	case path == "/metrics":
		return "metrics"
	default:
		return "other"
	}
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing to the underlying response writer.
func (w *responseWriterWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
