package connector

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_IncRequest(t *testing.T) {
	m := NewMetrics()
	m.IncRequest("cms.example.com", http.MethodGet)
	m.IncRequest("cms.example.com", http.MethodPost)
	m.IncRequest("other.example.com", http.MethodPut)
	m.IncRequest("other.example.com", "UNKNOWN")

	if m.TotalRequests.Load() != 4 {
		t.Errorf("TotalRequests = %d, want 4", m.TotalRequests.Load())
	}
	if m.ReadRequests.Load() != 1 {
		t.Errorf("ReadRequests = %d, want 1", m.ReadRequests.Load())
	}
	if m.WriteRequests.Load() != 2 {
		t.Errorf("WriteRequests = %d, want 2", m.WriteRequests.Load())
	}
	snap := m.Snapshot()
	if snap.HostCounts["cms.example.com"] != 2 || snap.HostCounts["other.example.com"] != 2 {
		t.Errorf("unexpected host counts: %v", snap.HostCounts)
	}
}

func TestMetrics_IncStatus(t *testing.T) {
	m := NewMetrics()
	for _, code := range []int{200, 201, 400, 404, 404, 429, 500, 503} {
		m.IncStatus(code)
	}
	s := m.Snapshot()
	if s.Status2xx != 2 || s.Status4xx != 1 || s.Status404 != 2 || s.Status429 != 1 || s.Status5xx != 2 {
		t.Fatalf("unexpected buckets: %+v", s)
	}
}

func TestMetrics_Snapshot_Isolation(t *testing.T) {
	m := NewMetrics()
	m.IncRequest("h", http.MethodGet)
	s := m.Snapshot()
	s.HostCounts["h"] = 99
	if m.Snapshot().HostCounts["h"] != 1 {
		t.Fatal("snapshot shares host map with metrics")
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncRequest("h", http.MethodPost)
				m.IncStatus(200)
				m.IncRetry()
				m.AddBackoff(time.Millisecond)
				m.AddUploaded(10)
			}
		}()
	}
	wg.Wait()
	s := m.Snapshot()
	if s.TotalRequests != 1000 || s.Status2xx != 1000 || s.TotalRetries != 1000 || s.UploadedBytes != 10000 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if time.Duration(s.TotalBackoffNanos) != time.Second {
		t.Fatalf("unexpected backoff total: %v", time.Duration(s.TotalBackoffNanos))
	}
}

func TestMetrics_Collector(t *testing.T) {
	m := NewMetrics()
	m.IncRequest("a.example.com", http.MethodPost)
	m.IncRequest("b.example.com", http.MethodPost)
	m.IncStatus(404)
	m.AddBackoff(1500 * time.Millisecond)

	reg := prometheus.NewRegistry()
	reg.MustRegister(m)

	if n, err := testutil.GatherAndCount(reg, "cmsbrowser_connector_requests_total"); err != nil || n != 2 {
		t.Fatalf("expected one request series per host, got %d (%v)", n, err)
	}
	if n, err := testutil.GatherAndCount(reg, "cmsbrowser_connector_responses_total"); err != nil || n != 5 {
		t.Fatalf("expected five status classes, got %d (%v)", n, err)
	}
	// 2 hosts, retries, backoff, 5 classes, uploaded bytes
	if n := testutil.CollectAndCount(m); n != 10 {
		t.Fatalf("expected 10 samples, got %d", n)
	}
}
