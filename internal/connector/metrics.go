package connector

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds lightweight counters for connector HTTP activity.
type Metrics struct {
	TotalRequests     atomic.Int64
	TotalRetries      atomic.Int64
	TotalBackoffNanos atomic.Int64

	// browse calls are reads, uploads are writes
	ReadRequests  atomic.Int64
	WriteRequests atomic.Int64
	UploadedBytes atomic.Int64

	mu         sync.Mutex
	hostCounts map[string]int64
	status2xx  int64
	status4xx  int64
	status404  int64
	status429  int64
	status5xx  int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics { return &Metrics{hostCounts: make(map[string]int64)} }

// IncRequest increments per-host and total request counters.
func (m *Metrics) IncRequest(host, method string) {
	m.TotalRequests.Add(1)
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		m.ReadRequests.Add(1)
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		m.WriteRequests.Add(1)
	}
	m.mu.Lock()
	m.hostCounts[host]++
	m.mu.Unlock()
}

// IncRetry increments the retry counter.
func (m *Metrics) IncRetry() { m.TotalRetries.Add(1) }

// AddBackoff accumulates backoff sleep time.
func (m *Metrics) AddBackoff(d time.Duration) { m.TotalBackoffNanos.Add(d.Nanoseconds()) }

// AddUploaded accumulates bytes sent in successful uploads.
func (m *Metrics) AddUploaded(n int64) { m.UploadedBytes.Add(n) }

// IncStatus tracks status buckets. 404 and 429 are counted separately
// from the other 4xx responses.
func (m *Metrics) IncStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case code == http.StatusNotFound:
		m.status404++
	case code == http.StatusTooManyRequests:
		m.status429++
	case code >= 200 && code < 300:
		m.status2xx++
	case code >= 400 && code < 500:
		m.status4xx++
	case code >= 500:
		m.status5xx++
	}
}

// MetricsSnapshot is a read-only copy of metrics state.
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalRetries      int64
	TotalBackoffNanos int64
	ReadRequests      int64
	WriteRequests     int64
	UploadedBytes     int64
	HostCounts        map[string]int64
	Status2xx         int64
	Status4xx         int64
	Status404         int64
	Status429         int64
	Status5xx         int64
}

// Snapshot returns a copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	hosts := make(map[string]int64, len(m.hostCounts))
	for k, v := range m.hostCounts {
		hosts[k] = v
	}
	return MetricsSnapshot{
		TotalRequests:     m.TotalRequests.Load(),
		TotalRetries:      m.TotalRetries.Load(),
		TotalBackoffNanos: m.TotalBackoffNanos.Load(),
		ReadRequests:      m.ReadRequests.Load(),
		WriteRequests:     m.WriteRequests.Load(),
		UploadedBytes:     m.UploadedBytes.Load(),
		HostCounts:        hosts,
		Status2xx:         m.status2xx,
		Status4xx:         m.status4xx,
		Status404:         m.status404,
		Status429:         m.status429,
		Status5xx:         m.status5xx,
	}
}

var (
	descRequests = prometheus.NewDesc("cmsbrowser_connector_requests_total",
		"HTTP requests sent to the CMS connector, by host.", []string{"host"}, nil)
	descRetries = prometheus.NewDesc("cmsbrowser_connector_retries_total",
		"Retried connector requests.", nil, nil)
	descBackoff = prometheus.NewDesc("cmsbrowser_connector_backoff_seconds_total",
		"Time spent sleeping between retries.", nil, nil)
	descStatus = prometheus.NewDesc("cmsbrowser_connector_responses_total",
		"Connector responses by status class.", []string{"class"}, nil)
	descUploaded = prometheus.NewDesc("cmsbrowser_connector_uploaded_bytes_total",
		"Bytes sent in successful uploads.", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRequests
	ch <- descRetries
	ch <- descBackoff
	ch <- descStatus
	ch <- descUploaded
}

// Collect implements prometheus.Collector from a snapshot of the counters.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	for host, n := range s.HostCounts {
		ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(n), host)
	}
	ch <- prometheus.MustNewConstMetric(descRetries, prometheus.CounterValue, float64(s.TotalRetries))
	ch <- prometheus.MustNewConstMetric(descBackoff, prometheus.CounterValue, time.Duration(s.TotalBackoffNanos).Seconds())
	for class, n := range map[string]int64{
		"2xx": s.Status2xx, "4xx": s.Status4xx, "404": s.Status404, "429": s.Status429, "5xx": s.Status5xx,
	} {
		ch <- prometheus.MustNewConstMetric(descStatus, prometheus.CounterValue, float64(n), class)
	}
	ch <- prometheus.MustNewConstMetric(descUploaded, prometheus.CounterValue, float64(s.UploadedBytes))
}
