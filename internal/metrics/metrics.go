package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is an in-process collector surfaced at /metrics. Billing
// counters of interest: deliveries_created, periods_frozen,
// documents_aggregated, documents_frozen, pdf_render_ms.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	timers       map[string]*timer
	healthChecks map[string]*int64
	startTime    time.Time
}

type timer struct {
	count       int64
	totalTimeMs int64
	maxTimeMs   int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		timers:       make(map[string]*timer),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(m.counter(name), value)
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		var v int64
		g = &v
		m.gauges[name] = g
	}
	m.mu.Unlock()
	atomic.StoreInt64(g, value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	m.mu.Lock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{}
		m.timers[name] = t
	}
	m.mu.Unlock()

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, durationMs)
	for {
		max := atomic.LoadInt64(&t.maxTimeMs)
		if durationMs <= max || atomic.CompareAndSwapInt64(&t.maxTimeMs, max, durationMs) {
			break
		}
	}
}

// SetHealthCheck records a named health status
func (m *Metrics) SetHealthCheck(name string, healthy bool) {
	var v int64
	if healthy {
		v = 1
	}
	m.mu.Lock()
	h, ok := m.healthChecks[name]
	if !ok {
		var n int64
		h = &n
		m.healthChecks[name] = h
	}
	m.mu.Unlock()
	atomic.StoreInt64(h, v)
}

// GetHealthChecks returns the named health statuses
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.healthChecks))
	for name, h := range m.healthChecks {
		out[name] = atomic.LoadInt64(h) == 1
	}
	return out
}

// Snapshot returns all collected metrics for the /metrics endpoint
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		counters[name] = atomic.LoadInt64(c)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, g := range m.gauges {
		gauges[name] = atomic.LoadInt64(g)
	}
	timers := make(map[string]map[string]int64, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)
		var avg int64
		if count > 0 {
			avg = total / count
		}
		timers[name] = map[string]int64{
			"count": count, "total_ms": total, "avg_ms": avg,
			"max_ms": atomic.LoadInt64(&t.maxTimeMs),
		}
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
		"gauges":         gauges,
		"timers":         timers,
	}
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; !ok {
		var v int64
		c = &v
		m.counters[name] = c
	}
	return c
}
