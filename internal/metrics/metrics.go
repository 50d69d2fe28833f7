// Package metrics holds the Prometheus collectors exported by any-offline.
// Collectors register on the default registerer through promauto and are
// served by the /-/metrics diagnostics route.
//
// Exported series:
//   - any_offline_dispatch_total{app, class, source} (Counter)
//   - any_offline_network_fetch_seconds{app, outcome} (Histogram)
//   - any_offline_store_errors_total{app, operation} (Counter)
//   - any_offline_lifecycle_transitions_total{app, state} (Counter)
//   - any_offline_stores_deleted_total{app} (Counter)
//   - any_offline_precache_total{app, result} (Counter)
//   - any_offline_control_messages_total{app, command} (Counter)
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every collector in this package is attached to.
var Registry = prometheus.DefaultRegisterer

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_dispatch_total",
		Help: "Intercepted requests by traffic class and the source that answered them",
	}, []string{"app", "class", "source"})

	networkFetchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "any_offline_network_fetch_seconds",
		Help:    "Upstream fetch duration by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"app", "outcome"})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_store_errors_total",
		Help: "Cache store failures treated as misses, by operation",
	}, []string{"app", "operation"})

	lifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_lifecycle_transitions_total",
		Help: "Lifecycle state transitions",
	}, []string{"app", "state"})

	storesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_stores_deleted_total",
		Help: "Stale cache generations deleted during activation",
	}, []string{"app"})

	precacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_precache_total",
		Help: "Install-time precache results",
	}, []string{"app", "result"})

	controlMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "any_offline_control_messages_total",
		Help: "Control channel commands received",
	}, []string{"app", "command"})
)

// ObserveDispatch records which source answered an intercepted request.
func ObserveDispatch(app, class, source string) {
	dispatchTotal.WithLabelValues(app, class, source).Inc()
}

// ObserveFetch records an upstream fetch; outcome is "ok" or "error".
func ObserveFetch(app, outcome string, elapsed time.Duration) {
	networkFetchSeconds.WithLabelValues(app, outcome).Observe(elapsed.Seconds())
}

// ObserveStoreError counts a store failure (operation: match, put, open, keys, delete).
func ObserveStoreError(app, operation string) {
	storeErrorsTotal.WithLabelValues(app, operation).Inc()
}

// ObserveTransition counts entering a lifecycle state.
func ObserveTransition(app, state string) {
	lifecycleTransitionsTotal.WithLabelValues(app, state).Inc()
}

// ObserveStoresDeleted adds n deleted stores.
func ObserveStoresDeleted(app string, n int) {
	if n <= 0 {
		return
	}
	storesDeletedTotal.WithLabelValues(app).Add(float64(n))
}

// ObservePrecache counts a precached asset; result is "stored" or "failed".
func ObservePrecache(app, result string) {
	precacheTotal.WithLabelValues(app, result).Inc()
}

// ObserveControl counts a control command.
func ObserveControl(app, command string) {
	controlMessagesTotal.WithLabelValues(app, command).Inc()
}

// Handler exposes the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
