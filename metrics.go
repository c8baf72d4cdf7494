package tabAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one session lifecycle counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts sessions established by Login or LoginWithPassword.
	MetricLoginSuccess MetricID = iota
	// MetricLoginRejected counts Login calls refused for missing token or identity
	// and password exchanges the issuer refused.
	MetricLoginRejected
	// MetricLoginFailure counts password exchanges that failed for transport reasons.
	MetricLoginFailure
	// MetricHydrated counts sessions restored from the token store at startup.
	MetricHydrated
	// MetricRefreshSuccess counts applied renewals.
	MetricRefreshSuccess
	// MetricRefreshFailure counts renewals that ended in failure.
	MetricRefreshFailure
	// MetricRefreshRetried counts backoff retries within a renewal.
	MetricRefreshRetried
	// MetricRefreshSkipped counts scheduler firings skipped while a renewal was in flight.
	MetricRefreshSkipped
	// MetricRefreshStale counts renewal results discarded because the session changed.
	MetricRefreshStale
	// MetricLogout counts voluntary logouts that ended a session.
	MetricLogout
	// MetricForcedLogout counts sessions ended by a failed renewal.
	MetricForcedLogout
	// MetricInvalidationFailure counts failed best-effort invalidation calls.
	MetricInvalidationFailure
	// MetricStoreFailure counts token store errors swallowed by the Manager.
	MetricStoreFailure
	// MetricBridgeFailure counts bridge errors swallowed by the Manager.
	MetricBridgeFailure
	// MetricRefreshLatency is the renewal round-trip histogram, retries included.
	MetricRefreshLatency
	metricIDCount
)

// HistogramBuckets is the number of latency buckets, the unbounded one included.
const HistogramBuckets = histBucketCount

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free session counters and the renewal latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram buckets are
// per-bucket (non-cumulative) counts; HistogramSums holds the observed total.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics creates a [Metrics] from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in histogram id. Only MetricRefreshLatency is a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRefreshLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	h := &m.histograms[id]
	atomic.AddUint64(&h.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&h.sumNs, uint64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRefreshLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		h := &m.histograms[MetricRefreshLatency]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
		s.HistogramSums[MetricRefreshLatency] = time.Duration(atomic.LoadUint64(&h.sumNs))
	}

	return s
}

// HistogramUpperBounds returns the upper bound of each latency bucket; the last
// bucket is unbounded and reported as 0.
func HistogramUpperBounds() [histBucketCount]time.Duration {
	return [histBucketCount]time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		0,
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
