package daemon

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects listener and session counters
type Metrics struct {
	startTime time.Time

	// Counters (use atomic for lock-free updates)
	ConnectionsAccepted atomic.Int64
	ConnectionsRejected atomic.Int64
	ActiveConnections   atomic.Int64
	HandlerFailures     atomic.Int64
	RequestsServed      atomic.Int64
	RequestErrors       atomic.Int64

	// Request counters by method
	methodMu sync.RWMutex
	byMethod map[string]int64

	// Error tracking (ring buffer)
	errorsMu   sync.RWMutex
	errors     []ErrorEntry
	errorIndex int

	// Request latency (ring buffer for last N samples)
	latencyMu    sync.RWMutex
	latency      []time.Duration
	latencyIndex int
}

// ErrorEntry records an error event
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// MetricsSnapshot is a point-in-time view of all metrics
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	UptimeSec float64   `json:"uptime_sec"`

	System         SystemMetrics    `json:"system"`
	Counters       CounterMetrics   `json:"counters"`
	RequestsByType map[string]int64 `json:"requests_by_method"`
	Latency        LatencyMetrics   `json:"latency"`
	RecentErrors   []ErrorEntry     `json:"recent_errors"`
}

// SystemMetrics contains runtime information
type SystemMetrics struct {
	GoVersion    string  `json:"go_version"`
	NumCPU       int     `json:"num_cpu"`
	NumGoroutine int     `json:"num_goroutine"`
	MemAllocMB   float64 `json:"mem_alloc_mb"`
	MemSysMB     float64 `json:"mem_sys_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// CounterMetrics contains cumulative counters and the active connection gauge
type CounterMetrics struct {
	ConnectionsAccepted int64 `json:"connections_accepted"`
	ConnectionsRejected int64 `json:"connections_rejected"`
	ActiveConnections   int64 `json:"active_connections"`
	HandlerFailures     int64 `json:"handler_failures"`
	RequestsServed      int64 `json:"requests_served"`
	RequestErrors       int64 `json:"request_errors"`
}

// LatencyMetrics contains request latency statistics
type LatencyMetrics struct {
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms"`
	MaxMs float64 `json:"max_ms"`
}

const (
	maxErrorEntries   = 50
	maxLatencySamples = 100
)

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		byMethod:  make(map[string]int64),
		errors:    make([]ErrorEntry, maxErrorEntries),
		latency:   make([]time.Duration, maxLatencySamples),
	}
}

// RecordRequest records one served request
func (m *Metrics) RecordRequest(method string, d time.Duration, err error) {
	m.RequestsServed.Add(1)

	m.methodMu.Lock()
	m.byMethod[method]++
	m.methodMu.Unlock()

	m.latencyMu.Lock()
	m.latency[m.latencyIndex] = d
	m.latencyIndex = (m.latencyIndex + 1) % maxLatencySamples
	m.latencyMu.Unlock()

	if err != nil {
		m.RequestErrors.Add(1)
		m.RecordError(method, err.Error())
	}
}

// RecordError records an error event
func (m *Metrics) RecordError(errType, message string) {
	entry := ErrorEntry{
		Time:    time.Now(),
		Type:    errType,
		Message: message,
	}

	m.errorsMu.Lock()
	m.errors[m.errorIndex] = entry
	m.errorIndex = (m.errorIndex + 1) % maxErrorEntries
	m.errorsMu.Unlock()
}

// Snapshot returns a point-in-time view of all metrics
func (m *Metrics) Snapshot() *MetricsSnapshot {
	now := time.Now()
	uptime := now.Sub(m.startTime)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.methodMu.RLock()
	byMethod := make(map[string]int64, len(m.byMethod))
	for k, v := range m.byMethod {
		byMethod[k] = v
	}
	m.methodMu.RUnlock()

	// Most recent first
	m.errorsMu.RLock()
	recentErrors := make([]ErrorEntry, 0, maxErrorEntries)
	for i := 0; i < maxErrorEntries; i++ {
		idx := (m.errorIndex - 1 - i + maxErrorEntries) % maxErrorEntries
		if !m.errors[idx].Time.IsZero() {
			recentErrors = append(recentErrors, m.errors[idx])
		}
	}
	m.errorsMu.RUnlock()

	m.latencyMu.RLock()
	latency := computeLatencyStats(m.latency)
	m.latencyMu.RUnlock()

	return &MetricsSnapshot{
		Timestamp: now,
		Uptime:    uptime.Round(time.Second).String(),
		UptimeSec: uptime.Seconds(),
		System: SystemMetrics{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAllocMB:   float64(memStats.Alloc) / 1024 / 1024,
			MemSysMB:     float64(memStats.Sys) / 1024 / 1024,
			NumGC:        memStats.NumGC,
		},
		Counters: CounterMetrics{
			ConnectionsAccepted: m.ConnectionsAccepted.Load(),
			ConnectionsRejected: m.ConnectionsRejected.Load(),
			ActiveConnections:   m.ActiveConnections.Load(),
			HandlerFailures:     m.HandlerFailures.Load(),
			RequestsServed:      m.RequestsServed.Load(),
			RequestErrors:       m.RequestErrors.Load(),
		},
		RequestsByType: byMethod,
		Latency:        latency,
		RecentErrors:   recentErrors,
	}
}

func computeLatencyStats(samples []time.Duration) LatencyMetrics {
	var valid []time.Duration
	for _, d := range samples {
		if d > 0 {
			valid = append(valid, d)
		}
	}

	if len(valid) == 0 {
		return LatencyMetrics{}
	}

	var total time.Duration
	for _, d := range valid {
		total += d
	}
	avg := total / time.Duration(len(valid))

	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })

	p95Index := int(float64(len(valid)) * 0.95)
	if p95Index >= len(valid) {
		p95Index = len(valid) - 1
	}

	return LatencyMetrics{
		AvgMs: float64(avg.Microseconds()) / 1000,
		P95Ms: float64(valid[p95Index].Microseconds()) / 1000,
		MaxMs: float64(valid[len(valid)-1].Microseconds()) / 1000,
	}
}
