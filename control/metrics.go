// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Metrics side of the control plane. Loops and the buffer pool push their
// counters here under dotted keys (loop.<id>.bytes_in, pool.outstanding);
// whoever reports them reads a consistent snapshot.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry is a keyed counter map, safe for concurrent publishers.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]any)}
}

// Set publishes one metric, overwriting any prior value for the key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns a copy of the current values. The copy is the
// caller's; later Set calls do not show through.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns when a publisher last wrote. A stale timestamp means the
// publishing side has stalled, not that traffic stopped.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
