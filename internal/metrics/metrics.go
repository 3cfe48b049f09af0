package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics registry.
type MetricID uint16

const (
	MetricTokenIssued MetricID = iota
	MetricValidateSuccess
	MetricValidateFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseBlocked
	MetricTokenBlacklisted
	MetricSessionCreated
	MetricSessionEvicted
	MetricSessionRevoked
	MetricChallengeIssued
	MetricChallengeAccepted
	MetricChallengeRejected
	MetricRateLimitHit
	MetricValidateLatency

	MetricIDCount
)

// HistogramBucketCount is the bucket count of every latency histogram:
// eight bounded buckets plus overflow.
const HistogramBucketCount = 9

// LatencyBucketBoundsMicros are the upper bounds (µs) of the bounded
// latency buckets.
var LatencyBucketBoundsMicros = [HistogramBucketCount - 1]int64{100, 250, 500, 1000, 2500, 5000, 10000, 25000}

// Config controls which instruments are active.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and an optional validate-latency
// histogram. A nil *Metrics is safe to use and does nothing.
type Metrics struct {
	enabled bool
	latency bool

	counters        [MetricIDCount]atomic.Uint64
	validateLatency [HistogramBucketCount]atomic.Uint64
}

// Snapshot is a point-in-time deep copy of all instruments.
type Snapshot struct {
	Counters   [MetricIDCount]uint64
	Histograms map[MetricID][HistogramBucketCount]uint64
}

func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{
		enabled: true,
		latency: cfg.EnableLatency,
	}
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records a latency sample into the histogram for id. Only
// MetricValidateLatency is histogram-backed; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.latency || id != MetricValidateLatency {
		return
	}

	micros := d.Microseconds()
	for i, bound := range LatencyBucketBoundsMicros {
		if micros <= bound {
			m.validateLatency[i].Add(1)
			return
		}
	}
	m.validateLatency[HistogramBucketCount-1].Add(1)
}

// Snapshot returns a consistent-enough copy for export; individual
// counters are loaded atomically but not as one transaction.
func (m *Metrics) Snapshot() Snapshot {
	var snap Snapshot
	snap.Histograms = make(map[MetricID][HistogramBucketCount]uint64, 1)
	if m == nil || !m.enabled {
		return snap
	}

	for i := range snap.Counters {
		snap.Counters[i] = m.counters[i].Load()
	}

	if m.latency {
		var buckets [HistogramBucketCount]uint64
		for i := range buckets {
			buckets[i] = m.validateLatency[i].Load()
		}
		snap.Histograms[MetricValidateLatency] = buckets
	}

	return snap
}
