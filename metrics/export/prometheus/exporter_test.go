package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/carewire/authcore"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func testSnapshot() authcore.MetricsSnapshot {
	var snap authcore.MetricsSnapshot
	snap.Counters[authcore.MetricTokenIssued] = 7
	snap.Counters[authcore.MetricValidateSuccess] = 42
	snap.Histograms = map[authcore.MetricID][9]uint64{
		authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8, 9},
	}
	return snap
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: testSnapshot(),
		dropped:  2,
	})

	out := exp.Render()
	if !strings.Contains(out, "authcore_token_issued_total 7") {
		t.Fatalf("expected token_issued counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_validate_success_total 42") {
		t.Fatalf("expected validate_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_validate_latency_seconds_bucket{le=\"0.0001\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_validate_latency_seconds_bucket{le=\"+Inf\"} 45") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_validate_latency_seconds_count 45") {
		t.Fatalf("expected histogram count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestRenderCumulativeBucketsAreMonotonic(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: testSnapshot()})

	out := exp.Render()
	var prev uint64
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "authcore_validate_latency_seconds_bucket") {
			continue
		}
		fields := strings.Fields(line)
		var value uint64
		for _, c := range fields[len(fields)-1] {
			value = value*10 + uint64(c-'0')
		}
		if value < prev {
			t.Fatalf("buckets not monotonic in:\n%s", out)
		}
		prev = value
	}
	if prev == 0 {
		t.Fatal("no histogram buckets rendered")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: testSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: testSnapshot()})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
