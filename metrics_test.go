package tabAuth

import (
	"context"
	"testing"
	"time"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricRefreshLatency, time.Millisecond)

	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("expected disabled counter to stay zero")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	m.Observe(MetricRefreshLatency, time.Second)
	if m.Value(MetricLogout) != 0 || m.Enabled() {
		t.Fatal("expected nil metrics to be inert")
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		10 * time.Millisecond,
		40 * time.Millisecond,
		300 * time.Millisecond,
		3 * time.Second,
	} {
		m.Observe(MetricRefreshLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Second)

	snap := m.Snapshot()
	got := snap.Histograms[MetricRefreshLatency]
	want := []uint64{1, 1, 0, 0, 1, 0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d (all %v)", i, want[i], got[i], got)
		}
	}
	if sum := snap.HistogramSums[MetricRefreshLatency]; sum != 3350*time.Millisecond {
		t.Fatalf("expected sum 3.35s, got %v", sum)
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("expected only the refresh latency histogram")
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatal("expected histogram id excluded from counters")
	}
}

func TestManagerRecordsRefreshLatency(t *testing.T) {
	h := newHarness(t)
	_ = h.m.Login(context.Background(), "tok1", Identity{Username: "alice"})
	h.refresher.next(t).succeed("tok2")
	waitUntil(t, "refresh", func() bool { return h.m.Metrics().Value(MetricRefreshSuccess) == 1 })

	var total uint64
	for _, n := range h.m.MetricsSnapshot().Histograms[MetricRefreshLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}
