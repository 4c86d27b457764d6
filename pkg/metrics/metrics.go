// Package metrics provides optional Prometheus observability for the
// carton runtime.
//
// Metrics are disabled until InitRegistry is called; constructors return
// nil when disabled and all recording methods are nil-safe, so the runtime
// pays nothing when observability is off.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection with a fresh registry.
// Calling it again replaces the registry (useful across init/close cycles
// in tests).
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil when disabled.
// Expose it through promhttp to serve the metrics endpoint.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
