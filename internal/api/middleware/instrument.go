package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/metrics"
)

// quietRoutes are logged at debug level; they are hit by probes and scrapers.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Instrument logs each request and records its Prometheus metrics. Metrics
// are labelled by chi route pattern so path parameters cannot blow up
// cardinality.
func Instrument(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routeLabel(r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			var event *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				event = logger.Error()
			case quietRoutes[route]:
				event = logger.Debug()
			default:
				event = logger.Info()
			}
			event.
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", elapsed).
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("ip", r.RemoteAddr).
				Msg("request")
		})
	}
}

// routeLabel returns the matched chi pattern, or "unmatched".
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
