// Package metrics exposes Prometheus collectors for the sitemap index job.
// The job is short-lived, so collectors live on a private registry that is pushed
// to a Pushgateway at the end of a run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector defined by this package.
var Registry = prometheus.NewRegistry()

var (
	sitesTotal          *prometheus.CounterVec
	fetchesTotal        *prometheus.CounterVec
	fetchedBytesTotal   prometheus.Counter
	backoffSeconds      *prometheus.HistogramVec
	locationsTotal      prometheus.Counter
	lastPublishUnixtime prometheus.Gauge
	runsTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(Registry)

		sitesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_index_sites_total",
				Help: "Sites processed, labeled by outcome (ok or the skip reason).",
			},
			[]string{"outcome"},
		)

		fetchesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_index_fetches_total",
				Help: "HTTP requests made for per-site sitemaps, labeled by status code.",
			},
			[]string{"code"},
		)

		fetchedBytesTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemap_index_fetched_bytes_total",
				Help: "Total response body bytes received for per-site sitemaps.",
			},
		)

		backoffSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemap_index_backoff_seconds",
				Help:    "Histogram of backoff waits, labeled by reason.",
				Buckets: []float64{1, 2, 3, 5, 10, 30, 60, 120},
			},
			[]string{"reason"},
		)

		locationsTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemap_index_locations_total",
				Help: "Sitemap locations collected into the index.",
			},
		)

		lastPublishUnixtime = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemap_index_last_publish_timestamp_seconds",
				Help: "Unix time of the last successful index upload.",
			},
		)

		runsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemap_index_runs_total",
				Help: "Job runs, labeled by final status.",
			},
			[]string{"status"},
		)
	})
}

// Recorder forwards job events to the package collectors.
type Recorder struct{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// ObserveFetch counts one HTTP response.
func (Recorder) ObserveFetch(statusCode int, bodyBytes int) {
	fetchesTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	if bodyBytes > 0 {
		fetchedBytesTotal.Add(float64(bodyBytes))
	}
}

// ObserveBackoff records the duration of a backoff wait.
func (Recorder) ObserveBackoff(reason string, wait time.Duration) {
	backoffSeconds.WithLabelValues(reason).Observe(wait.Seconds())
}

// ObserveSite counts a processed site. An empty outcome means the site contributed.
func (Recorder) ObserveSite(outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	sitesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLocations adds n collected locations.
func (Recorder) ObserveLocations(n int) {
	if n > 0 {
		locationsTotal.Add(float64(n))
	}
}

// ObservePublish stamps the time of a successful upload.
func (Recorder) ObservePublish(at time.Time) {
	lastPublishUnixtime.Set(float64(at.Unix()))
}

// ObserveRun counts a finished run.
func (Recorder) ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// Push sends the registry to a Pushgateway, grouped by job and run identifier.
func Push(ctx context.Context, gatewayURL, job, runID string) error {
	Init()
	pusher := push.New(gatewayURL, job).Gatherer(Registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
