// ABOUTME: Access metrics counters updated atomically under concurrent dispatch.
// ABOUTME: Per-realm counters are created at mapping time, never during dispatch.

package realm

import "sync/atomic"

// metrics holds the gateway's monotonically increasing counters. Counters
// use atomic increments: plain increments would race under true parallelism
// even though a cooperative scheduler would make the race benign.
type metrics struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	deniedRequests     atomic.Int64

	// perRealm is populated only while the mapping table is mutated
	// (bootstrap/reload); steady-state dispatch only increments existing
	// counters, so no lock is needed around reads.
	perRealm map[string]*atomic.Int64
}

func newMetrics() *metrics {
	return &metrics{perRealm: make(map[string]*atomic.Int64)}
}

// ensureRealm creates the per-realm counter. Called only under the gateway's
// mapping write lock.
func (m *metrics) ensureRealm(realm string) {
	if _, ok := m.perRealm[realm]; !ok {
		m.perRealm[realm] = &atomic.Int64{}
	}
}

func (m *metrics) recordSuccess(realm string) {
	m.totalRequests.Add(1)
	m.successfulRequests.Add(1)
	if c, ok := m.perRealm[realm]; ok {
		c.Add(1)
	}
}

func (m *metrics) recordDenial() {
	m.totalRequests.Add(1)
	m.deniedRequests.Add(1)
}

// MetricsSnapshot is a point-in-time copy of the access counters.
type MetricsSnapshot struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	DeniedRequests     int64            `json:"denied_requests"`
	RequestsByRealm    map[string]int64 `json:"requests_by_realm"`
}

func (m *metrics) snapshot() MetricsSnapshot {
	byRealm := make(map[string]int64, len(m.perRealm))
	for name, c := range m.perRealm {
		byRealm[name] = c.Load()
	}
	return MetricsSnapshot{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		DeniedRequests:     m.deniedRequests.Load(),
		RequestsByRealm:    byRealm,
	}
}
