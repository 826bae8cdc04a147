package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHooks records every hook event as a Prometheus metric on a
// private registry. A one-shot CLI has no scrape endpoint, so the registry
// is written out with [PrometheusHooks.WriteTextfile] for the node-exporter
// textfile collector.
type PrometheusHooks struct {
	registry *prometheus.Registry

	resolves        *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	backtracks      prometheus.Counter
	fetches         *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	cacheOps        *prometheus.CounterVec
	cacheBytes      prometheus.Counter
	httpResponses   *prometheus.CounterVec
	httpErrors      *prometheus.CounterVec
	httpDuration    prometheus.Histogram
}

var _ Hooks = (*PrometheusHooks)(nil)

// NewPrometheusHooks creates the collectors and registers them.
func NewPrometheusHooks() *PrometheusHooks {
	p := &PrometheusHooks{
		registry: prometheus.NewRegistry(),
		resolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemlock_resolve_total",
				Help: "Number of per-platform resolutions by outcome.",
			},
			[]string{"platform", "outcome"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gemlock_resolve_duration_seconds",
				Help:    "Time taken to resolve one platform.",
				Buckets: prometheus.DefBuckets,
			},
		),
		backtracks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gemlock_resolve_backtracks_total",
				Help: "Number of backjumps performed by the resolver.",
			},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemlock_source_fetch_total",
				Help: "Number of version list fetches by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gemlock_source_fetch_duration_seconds",
				Help:    "Time taken to fetch one version list.",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemlock_cache_operations_total",
				Help: "Cache lookups and writes by key type.",
			},
			[]string{"key_type", "op"},
		),
		cacheBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gemlock_cache_written_bytes_total",
				Help: "Bytes written to the cache.",
			},
		),
		httpResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemlock_http_responses_total",
				Help: "Registry HTTP responses by host and status class.",
			},
			[]string{"host", "status"},
		),
		httpErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gemlock_http_errors_total",
				Help: "Registry HTTP transport errors by host.",
			},
			[]string{"host"},
		),
		httpDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gemlock_http_request_duration_seconds",
				Help:    "Registry HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	p.registry.MustRegister(
		p.resolves,
		p.resolveDuration,
		p.backtracks,
		p.fetches,
		p.fetchDuration,
		p.cacheOps,
		p.cacheBytes,
		p.httpResponses,
		p.httpErrors,
		p.httpDuration,
	)
	return p
}

// Registry exposes the private registry.
func (p *PrometheusHooks) Registry() *prometheus.Registry { return p.registry }

// WriteTextfile writes all metrics in the text exposition format.
func (p *PrometheusHooks) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (p *PrometheusHooks) OnResolveStart(context.Context, string, int) {}

func (p *PrometheusHooks) OnResolveComplete(_ context.Context, platform string, _, _ int, d time.Duration, err error) {
	p.resolves.WithLabelValues(platform, outcome(err)).Inc()
	p.resolveDuration.Observe(d.Seconds())
}

func (p *PrometheusHooks) OnBacktrack(context.Context, string, int) {
	p.backtracks.Inc()
}

func (p *PrometheusHooks) OnSourceFetch(_ context.Context, source, _ string, _ int, d time.Duration, err error) {
	p.fetches.WithLabelValues(source, outcome(err)).Inc()
	p.fetchDuration.Observe(d.Seconds())
}

func (p *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (p *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (p *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	p.cacheOps.WithLabelValues(keyType, "set").Inc()
	p.cacheBytes.Add(float64(size))
}

func (p *PrometheusHooks) OnRequest(context.Context, string, string, string) {}

func (p *PrometheusHooks) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	p.httpResponses.WithLabelValues(host, statusClass(status)).Inc()
	p.httpDuration.Observe(d.Seconds())
}

func (p *PrometheusHooks) OnError(_ context.Context, _, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(host).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	_ ResolveHooks = (*PrometheusHooks)(nil)
	_ CacheHooks   = (*PrometheusHooks)(nil)
	_ HTTPHooks    = (*PrometheusHooks)(nil)
)
