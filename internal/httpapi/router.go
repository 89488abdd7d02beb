// Package httpapi is the HTTP transport of the lip-sync service.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/metrics"
)

// Response variants.
const (
	VariantSyncURL = "sync_url"
	VariantURLs    = "urls"
)

// Routes.
const (
	RouteSynthesize = "/"
	RouteHealth     = "/healthz"
	RouteMetrics    = "/metrics"
	RouteMedia      = "/media/*"
)

var (
	// ErrSynthesizerMissing indicates a router built without a pipeline.
	ErrSynthesizerMissing = errors.New("http api requires a synthesizer")
	// ErrMetricsMissing indicates a router built without a collector.
	ErrMetricsMissing = errors.New("http api requires a metrics collector")
)

// TokenVerifier checks a media token against the key it was issued for.
type TokenVerifier interface {
	Verify(key, token string) error
}

// MediaDeps enables GET /media/* for backends whose links point at this service.
type MediaDeps struct {
	Source   core.ObjectSource
	Verifier TokenVerifier
}

// Deps are the collaborators of the router.
type Deps struct {
	Synthesizer core.Synthesizer
	Metrics     *metrics.Collector
	Log         *logger.Logger
	// Variant selects the response shape; empty means VariantSyncURL.
	Variant string
	// Media is nil when the storage backend serves its own links.
	Media *MediaDeps
}

// NewRouter builds the service's HTTP handler.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Synthesizer == nil {
		return nil, ErrSynthesizerMissing
	}

	if d.Metrics == nil {
		return nil, ErrMetricsMissing
	}

	if d.Variant == "" {
		d.Variant = VariantSyncURL
	}

	h := &handlers{deps: d}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(d.Log, d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get(RouteHealth, h.health)
	r.Method(http.MethodGet, RouteMetrics, d.Metrics.Handler())
	r.Post(RouteSynthesize, h.synthesize)

	if d.Media != nil {
		r.Get(RouteMedia, h.media)
	}

	return r, nil
}
