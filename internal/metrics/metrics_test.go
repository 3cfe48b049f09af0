package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricTokenIssued)
	m.Observe(MetricValidateLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricTokenIssued] != 0 {
		t.Fatal("nil metrics must report zero")
	}
}

func TestDisabledConfigReturnsNil(t *testing.T) {
	if m := New(Config{Enabled: false}); m != nil {
		t.Fatal("expected nil metrics when disabled")
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := New(Config{Enabled: true})

	for i := 0; i < 7; i++ {
		m.Inc(MetricValidateSuccess)
	}
	m.Inc(MetricValidateFailure)

	snap := m.Snapshot()
	if snap.Counters[MetricValidateSuccess] != 7 {
		t.Fatalf("expected 7 successes, got %d", snap.Counters[MetricValidateSuccess])
	}
	if snap.Counters[MetricValidateFailure] != 1 {
		t.Fatalf("expected 1 failure, got %d", snap.Counters[MetricValidateFailure])
	}
}

func TestObserveBucketsLatency(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})

	m.Observe(MetricValidateLatency, 50*time.Microsecond)  // bucket 0 (<=100us)
	m.Observe(MetricValidateLatency, 200*time.Microsecond) // bucket 1 (<=250us)
	m.Observe(MetricValidateLatency, time.Second)          // overflow

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricValidateLatency]
	if !ok {
		t.Fatal("expected latency histogram in snapshot")
	}
	if buckets[0] != 1 || buckets[1] != 1 {
		t.Fatalf("bounded buckets mismatch: %v", buckets)
	}
	if buckets[HistogramBucketCount-1] != 1 {
		t.Fatalf("expected overflow sample, got %v", buckets)
	}
}

func TestObserveIgnoredWhenLatencyDisabled(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: false})

	m.Observe(MetricValidateLatency, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricValidateLatency]; ok {
		t.Fatal("expected no histogram when latency collection is off")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Inc(MetricTokenIssued)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Counters[MetricTokenIssued] != 8000 {
		t.Fatalf("expected 8000, got %d", snap.Counters[MetricTokenIssued])
	}
}
