package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector of the service. A nil *Registry is valid and
// records nothing, which keeps tests free of metric wiring.
type Registry struct {
	reg              *prometheus.Registry
	UpstreamAttempts *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	OffersPublished  prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_api_upstream_attempts_total",
		Help: "PA-API HTTP attempts by operation and outcome.",
	}, []string{"operation", "outcome"})
	upstream := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amazon_api_upstream_duration_seconds",
		Help:    "Full PA-API operation time including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amazon_api_cache_lookups_total",
		Help: "Cache lookups by result (hit, miss, stale).",
	}, []string{"result"})
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amazon_api_request_duration_seconds",
		Help:    "HTTP request handling time by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amazon_api_offers_published_total",
		Help: "Offers written to Kafka.",
	})

	r.MustRegister(attempts, upstream, lookups, requests, published)
	return &Registry{
		reg:              r,
		UpstreamAttempts: attempts,
		UpstreamDuration: upstream,
		CacheLookups:     lookups,
		RequestDuration:  requests,
		OffersPublished:  published,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveAttempt(operation, outcome string) {
	if r == nil {
		return
	}
	r.UpstreamAttempts.WithLabelValues(operation, outcome).Inc()
}

func (r *Registry) ObserveUpstream(operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.UpstreamDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Registry) ObserveCache(result string) {
	if r == nil {
		return
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveRequest(route string, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (r *Registry) ObservePublished(n int) {
	if r == nil {
		return
	}
	r.OffersPublished.Add(float64(n))
}
