package emailauth

import (
	"testing"
	"time"
)

func TestMetricsDisabledIsInert(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricLoginRequested)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("metrics should report disabled")
	}
	if m.Value(MetricLoginRequested) != 0 {
		t.Fatal("disabled metrics must not count")
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot must be empty, got %+v", snap)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricLoginRequested)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("nil metrics should report disabled")
	}
	if m.Value(MetricLoginRequested) != 0 {
		t.Fatal("nil metrics must read zero")
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	for i := 0; i < 3; i++ {
		m.Inc(MetricLinkIssued)
	}
	m.Inc(MetricLinkVerified)

	if got := m.Value(MetricLinkIssued); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLinkIssued] != 3 {
		t.Fatalf("snapshot counter mismatch: %d", snap.Counters[MetricLinkIssued])
	}
	if snap.Counters[MetricLinkVerified] != 1 {
		t.Fatalf("snapshot counter mismatch: %d", snap.Counters[MetricLinkVerified])
	}
}

func TestMetricsLatencyBucketsGatedByConfig(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if buckets, ok := m.Snapshot().Histograms[MetricVerifyLatency]; ok {
		t.Fatalf("histogram must be absent when latency is disabled, got %v", buckets)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	observations := map[time.Duration]int{
		2 * time.Millisecond:   0,
		8 * time.Millisecond:   1,
		20 * time.Millisecond:  2,
		40 * time.Millisecond:  3,
		80 * time.Millisecond:  4,
		200 * time.Millisecond: 5,
		400 * time.Millisecond: 6,
		2 * time.Second:        7,
	}

	for d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}

	buckets, ok := m.Snapshot().Histograms[MetricVerifyLatency]
	if !ok {
		t.Fatal("expected latency histogram")
	}
	for d, want := range observations {
		if got := bucketIndex(d); got != want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", d, got, want)
		}
	}
	for i, count := range buckets {
		if count != 1 {
			t.Fatalf("bucket %d = %d, want 1", i, count)
		}
	}
}

func TestMetricsIgnoresLatencyForOtherIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricLoginRequested, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	for i, count := range buckets {
		if count != 0 {
			t.Fatalf("bucket %d = %d, want 0", i, count)
		}
	}
}
