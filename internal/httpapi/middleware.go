package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/book-expert/lipsync-service/internal/metrics"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const (
	logFmtIncoming  = "[%s] %s %s from %s"
	logFmtCompleted = "[%s] %s %s -> %d in %s"
	unmatchedRoute  = "unmatched"
)

// requestID takes the caller's X-Request-ID or mints one, and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, id)

		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs every request and its completion, and records HTTP metrics.
func accessLog(log *logger.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			log.Info(logFmtIncoming, id, r.Method, r.URL.Path, r.RemoteAddr)

			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			log.Info(logFmtCompleted, id, r.Method, r.URL.Path, status, duration)
			collector.RecordHTTPRequest(r.Method, routePattern(r), status, duration)
		})
	}
}

// routePattern keeps metric labels bounded by using the matched chi pattern.
func routePattern(r *http.Request) string {
	routeCtx := chi.RouteContext(r.Context())
	if routeCtx == nil {
		return unmatchedRoute
	}

	pattern := routeCtx.RoutePattern()
	if pattern == "" {
		return unmatchedRoute
	}

	return pattern
}
