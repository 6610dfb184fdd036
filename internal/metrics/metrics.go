// Package metrics provides Prometheus metrics for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the sync metrics registered on a single registry.
type Recorder struct {
	gatherer prometheus.Gatherer

	bytesDownloaded prometheus.Counter
	bytesVerified   prometheus.Counter
	assetsTotal     *prometheus.CounterVec
	verifyTotal     *prometheus.CounterVec
	retriesTotal    prometheus.Counter
	runDuration     *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
}

// New registers the sync metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the sync metrics on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: g,
		bytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_bytes_downloaded_total",
			Help: "Total bytes written to disk from the download transport",
		}),
		bytesVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_bytes_verified_total",
			Help: "Total bytes hashed while verifying local files",
		}),
		assetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsync_assets_total",
			Help: "Assets handled by the fetcher, by outcome",
		}, []string{"outcome"}),
		verifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsync_verifications_total",
			Help: "Checksum verifications, by result",
		}, []string{"result"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetsync_transfer_retries_total",
			Help: "Chunk reads retried after a timeout or connection failure",
		}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assetsync_run_duration_seconds",
			Help:    "Duration of install, update and verify runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"operation"}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetsync_runs_total",
			Help: "Completed runs, by operation and status",
		}, []string{"operation", "status"}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) AddBytesDownloaded(n int64) {
	if n > 0 {
		r.bytesDownloaded.Add(float64(n))
	}
}

func (r *Recorder) AddBytesVerified(n int64) {
	if n > 0 {
		r.bytesVerified.Add(float64(n))
	}
}

// AssetFetched counts an asset leaving the fetcher as "downloaded", "skipped" or "failed".
func (r *Recorder) AssetFetched(outcome string) {
	r.assetsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) VerifyResult(match bool) {
	result := "match"
	if !match {
		result = "mismatch"
	}
	r.verifyTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) TransferRetry() {
	r.retriesTotal.Inc()
}

// ObserveRun records the duration and outcome of a run.
func (r *Recorder) ObserveRun(operation string, d time.Duration, err error) {
	r.runDuration.WithLabelValues(operation).Observe(d.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	r.runsTotal.WithLabelValues(operation, status).Inc()
}
