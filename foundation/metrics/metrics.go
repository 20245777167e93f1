// Package metrics provides the prometheus collector of the tracker service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the prometheus instruments of the tracker on its own registry
type Collector struct {
	reg *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	WaitsExhausted prometheus.Counter
	StoreErrors    *prometheus.CounterVec // op label: get|put|create|delete
	Fetches        *prometheus.CounterVec // outcome label: ok|rate_limited|gateway|network|bad_request|malformed
	FetchDuration  prometheus.Histogram

	TrackedTrips       prometheus.Gauge
	Estimates          *prometheus.CounterVec // state label: idle|estimating|error
	EstimatesPublished prometheus.Counter
	PublishErrors      prometheus.Counter
	TickDuration       prometheus.Histogram
}

// NewCollector creates and registers Collector instruments
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_feed_cache_hits_total",
			Help: "Realtime cache reads answered from a fresh snapshot.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_feed_cache_misses_total",
			Help: "Realtime cache reads that found no fresh snapshot.",
		}),
		WaitsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_feed_cache_waits_exhausted_total",
			Help: "Reads that gave up waiting on another fetch.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_feed_cache_store_errors_total",
			Help: "Failed operations against the shared cache store.",
		}, []string{"op"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_feed_fetches_total",
			Help: "Upstream realtime feed fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_feed_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetch, decode and store.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TrackedTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_tracked_trips",
			Help: "Number of trips with an active tracking session.",
		}),
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_estimates_total",
			Help: "Vehicle position estimates by resulting state.",
		}, []string{"state"}),
		EstimatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_estimates_published_total",
			Help: "Estimates published to NATS.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_estimate_publish_errors_total",
			Help: "Estimates that failed to publish.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_tick_duration_seconds",
			Help:    "Duration of a tracking loop tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}

	reg.MustRegister(
		c.CacheHits, c.CacheMisses, c.WaitsExhausted, c.StoreErrors,
		c.Fetches, c.FetchDuration,
		c.TrackedTrips, c.Estimates, c.EstimatesPublished, c.PublishErrors, c.TickDuration,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) CacheHit() { c.CacheHits.Inc() }

func (c *Collector) CacheMiss() { c.CacheMisses.Inc() }

func (c *Collector) WaitExhausted() { c.WaitsExhausted.Inc() }

func (c *Collector) StoreError(op string) { c.StoreErrors.WithLabelValues(op).Inc() }

func (c *Collector) FetchCompleted(outcome string, d time.Duration) {
	c.Fetches.WithLabelValues(outcome).Inc()
	c.FetchDuration.Observe(d.Seconds())
}

func (c *Collector) SetTrackedTrips(n int) { c.TrackedTrips.Set(float64(n)) }

func (c *Collector) EstimateObserved(state string) { c.Estimates.WithLabelValues(state).Inc() }

func (c *Collector) PublishObserved(err error) {
	if err != nil {
		c.PublishErrors.Inc()
		return
	}
	c.EstimatesPublished.Inc()
}

func (c *Collector) TickObserve(d time.Duration) { c.TickDuration.Observe(d.Seconds()) }
