package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vol-core/pkg/broker"
)

// Metrics tracks gateway activity. It satisfies gateway.Recorder and
// exposes the same numbers as Prometheus collectors.
type Metrics struct {
	// Round trip from reqHistoricalData to historicalDataEnd.
	RequestLatency *LatencyHistogram
	// API handler latency.
	HTTPLatency *LatencyHistogram

	issued          atomic.Uint64
	completed       atomic.Uint64
	failed          atomic.Uint64
	callbacks       atomic.Uint64
	inconsistencies atomic.Uint64
	ticks           atomic.Uint64

	mu      sync.RWMutex
	pending map[string]int

	promIssued          *prometheus.CounterVec
	promFailed          *prometheus.CounterVec
	promCallbacks       *prometheus.CounterVec
	promInconsistencies *prometheus.CounterVec
	promTicks           *prometheus.CounterVec
	promPending         *prometheus.GaugeVec
	promLatency         *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers the collectors with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestLatency: NewLatencyHistogram(1000),
		HTTPLatency:    NewLatencyHistogram(1000),
		pending:        make(map[string]int),

		promIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcore_requests_issued_total",
			Help: "Requests sent to the broker by gateway and kind",
		}, []string{"gateway", "kind"}),
		promFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcore_requests_failed_total",
			Help: "Requests that ended in an error by gateway and reason",
		}, []string{"gateway", "reason"}),
		promCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcore_callbacks_total",
			Help: "Inbound broker callbacks by gateway and type",
		}, []string{"gateway", "type"}),
		promInconsistencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcore_unknown_id_callbacks_total",
			Help: "Callbacks whose id matched no outstanding request",
		}, []string{"gateway"}),
		promTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volcore_ticks_routed_total",
			Help: "Price ticks delivered to a monitor",
		}, []string{"symbol"}),
		promPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "volcore_pending_requests",
			Help: "Outstanding correlated requests by gateway",
		}, []string{"gateway"}),
		promLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volcore_historical_request_seconds",
			Help:    "Historical request round trip by kind",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.promIssued, m.promFailed, m.promCallbacks,
			m.promInconsistencies, m.promTicks, m.promPending, m.promLatency)
	}
	return m
}

func (m *Metrics) RequestIssued(gateway, kind string) {
	m.issued.Add(1)
	m.promIssued.WithLabelValues(gateway, kind).Inc()
}

func (m *Metrics) RequestCompleted(kind string, latency time.Duration) {
	m.completed.Add(1)
	m.RequestLatency.RecordDuration(latency)
	m.promLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

func (m *Metrics) RequestFailed(gateway, reason string) {
	m.failed.Add(1)
	m.promFailed.WithLabelValues(gateway, reason).Inc()
}

func (m *Metrics) Callback(gateway string, typ broker.EventType) {
	m.callbacks.Add(1)
	m.promCallbacks.WithLabelValues(gateway, string(typ)).Inc()
}

func (m *Metrics) Inconsistency(gateway string) {
	m.inconsistencies.Add(1)
	m.promInconsistencies.WithLabelValues(gateway).Inc()
}

func (m *Metrics) TickRouted(symbol string) {
	m.ticks.Add(1)
	m.promTicks.WithLabelValues(symbol).Inc()
}

func (m *Metrics) Pending(gateway string, n int) {
	m.mu.Lock()
	m.pending[gateway] = n
	m.mu.Unlock()
	m.promPending.WithLabelValues(gateway).Set(float64(n))
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// MetricsSnapshot is a point-in-time view for the status API.
type MetricsSnapshot struct {
	RequestLatency  LatencyStats   `json:"request_latency_ms"`
	HTTPLatency     LatencyStats   `json:"http_latency_ms"`
	Issued          uint64         `json:"requests_issued"`
	Completed       uint64         `json:"requests_completed"`
	Failed          uint64         `json:"requests_failed"`
	Callbacks       uint64         `json:"callbacks"`
	Inconsistencies uint64         `json:"unknown_id_callbacks"`
	TicksRouted     uint64         `json:"ticks_routed"`
	Pending         map[string]int `json:"pending"`
	GoroutineCount  int            `json:"goroutine_count"`
	HeapAlloc       uint64         `json:"heap_alloc_bytes"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Snapshot returns a point-in-time metrics snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	pending := make(map[string]int, len(m.pending))
	for k, v := range m.pending {
		pending[k] = v
	}
	m.mu.RUnlock()

	return MetricsSnapshot{
		RequestLatency:  m.RequestLatency.Stats(),
		HTTPLatency:     m.HTTPLatency.Stats(),
		Issued:          m.issued.Load(),
		Completed:       m.completed.Load(),
		Failed:          m.failed.Load(),
		Callbacks:       m.callbacks.Load(),
		Inconsistencies: m.inconsistencies.Load(),
		TicksRouted:     m.ticks.Load(),
		Pending:         pending,
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
