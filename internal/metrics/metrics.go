// Package metrics provides Prometheus collectors for browse coordinators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeTooLarge = "too_large"
)

// Recorder counts coordinator outcomes. A nil *Recorder records nothing.
type Recorder struct {
	browseTotal    *prometheus.CounterVec
	uploadTotal    *prometheus.CounterVec
	rootFallback   prometheus.Counter
	staleResults   *prometheus.CounterVec
	browseDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		browseTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsbrowser_browse_total",
				Help: "Folder browses by outcome",
			},
			[]string{"outcome"},
		),
		uploadTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsbrowser_upload_total",
				Help: "Uploads by outcome",
			},
			[]string{"outcome"},
		),
		rootFallback: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cmsbrowser_root_fallback_total",
				Help: "Browses retried against the root folder after a not found error",
			},
		),
		staleResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cmsbrowser_stale_results_total",
				Help: "Completions discarded because a newer request superseded them",
			},
			[]string{"kind"},
		),
		browseDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cmsbrowser_browse_duration_seconds",
				Help:    "Time from browse start to completion",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (r *Recorder) Browse(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.browseTotal.WithLabelValues(outcome).Inc()
	r.browseDuration.Observe(d.Seconds())
}

func (r *Recorder) Upload(outcome string) {
	if r == nil {
		return
	}
	r.uploadTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RootFallback() {
	if r == nil {
		return
	}
	r.rootFallback.Inc()
}

// Stale records a discarded completion of kind "browse" or "upload".
func (r *Recorder) Stale(kind string) {
	if r == nil {
		return
	}
	r.staleResults.WithLabelValues(kind).Inc()
}
