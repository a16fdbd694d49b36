// Package metrics exposes Prometheus counters for the cache worker, the
// playback scheduler and the HTTP front.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speakdrill/speakdrill/internal/cache"
	"github.com/speakdrill/speakdrill/internal/clip"
)

// Metrics holds the registry and every collector.
type Metrics struct {
	registry      *prometheus.Registry
	cacheEvents   *prometheus.CounterVec
	cacheBytes    *prometheus.GaugeVec
	cacheItems    *prometheus.GaugeVec
	clipsStarted  *prometheus.CounterVec
	clipsFailed   *prometheus.CounterVec
	requestsTotal *prometheus.CounterVec
	errorsTotal   prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakdrill_cache_events_total",
			Help: "Cache events by store and kind (hit, miss, store, evict, fallback, ...)",
		}, []string{"store", "event"}),
		cacheBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "speakdrill_cache_bytes",
			Help: "Bytes held by each cache store",
		}, []string{"store"}),
		cacheItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "speakdrill_cache_items",
			Help: "Entries held by each cache store",
		}, []string{"store"}),
		clipsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakdrill_clips_started_total",
			Help: "Clips assigned to the output device, by track",
		}, []string{"track"}),
		clipsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakdrill_clips_failed_total",
			Help: "Clips the output device could not play, by track",
		}, []string{"track"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakdrill_http_requests_total",
			Help: "HTTP requests served, by method",
		}, []string{"method"}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speakdrill_http_errors_total",
			Help: "HTTP responses with error status (4xx or 5xx)",
		}),
	}

	m.registry.MustRegister(
		m.cacheEvents,
		m.cacheBytes,
		m.cacheItems,
		m.clipsStarted,
		m.clipsFailed,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// Observe implements cache.Observer.
func (m *Metrics) Observe(store string, ev cache.Event) {
	m.cacheEvents.WithLabelValues(store, string(ev)).Inc()
}

// ClipStarted implements playback.Observer.
func (m *Metrics) ClipStarted(req clip.Request) {
	m.clipsStarted.WithLabelValues(req.Track.String()).Inc()
}

// ClipFailed implements playback.Observer.
func (m *Metrics) ClipFailed(req clip.Request) {
	m.clipsFailed.WithLabelValues(req.Track.String()).Inc()
}

// SetStoreStats refreshes the per-store size gauges.
func (m *Metrics) SetStoreStats(stats map[string]cache.Stats) {
	m.cacheBytes.Reset()
	m.cacheItems.Reset()
	for name, st := range stats {
		m.cacheBytes.WithLabelValues(name).Set(float64(st.Size))
		m.cacheItems.WithLabelValues(name).Set(float64(st.ItemCount))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
