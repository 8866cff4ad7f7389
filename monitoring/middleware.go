package monitoring

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware counts and times the requests of every mux route. Requests are
// labeled with the route template so path parameters don't blow up the
// label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if route == "/metrics" {
			// Skip collecting metrics from metrics endpoint itself
			next.ServeHTTP(w, r)
			return
		}

		// begin timer to measure the requests duration
		timer := prometheus.NewTimer(HttpRequestDuration.WithLabelValues(route))

		// increment total request counter
		HttpRequestsTotal.WithLabelValues(route).Inc()

		next.ServeHTTP(w, r)

		// record request duration (post processing)
		timer.ObserveDuration()
	})
}
