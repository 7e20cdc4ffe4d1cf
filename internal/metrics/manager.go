// File: internal/metrics/manager.go
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// Manager aggregates the arbitration client's Prometheus metrics and the
// health of its long-running components. Components register a probe once at
// startup; every UpdateSystemMetrics pass re-evaluates all of them.
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time

	mu     sync.RWMutex
	probes map[string]func() bool
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     utils.ComponentLogger("metrics"),
		startTime:  time.Now(),
		probes:     make(map[string]func() bool),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// RegisterComponent registers a health probe for a named component. The probe
// must be cheap and safe to call from the metrics updater goroutine.
func (m *Manager) RegisterComponent(name string, healthy func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = healthy
}

// ComponentHealth evaluates every registered probe and returns the snapshot
func (m *Manager) ComponentHealth() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := make(map[string]bool, len(m.probes))
	for name, probe := range m.probes {
		health[name] = probe()
	}
	return health
}

// UpdateSystemMetrics refreshes process-level gauges and the per-component
// health gauges from the registered probes.
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)

	for name, healthy := range m.ComponentHealth() {
		m.prometheus.UpdateComponentHealth(name, healthy)
		if !healthy {
			m.logger.WithField("component", name).Debug("Component reported unhealthy")
		}
	}
}
