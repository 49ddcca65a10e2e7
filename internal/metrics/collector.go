// Package metrics exposes styleflow's Prometheus series.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector owns every styleflow series. It satisfies transform.Recorder,
// transform.CacheObserver and limiter.Observer, and its RecordReferenceFetch
// method is a reference.FetchObserver.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	attemptsTotal     *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	fallbacksTotal    *prometheus.CounterVec
	tokensUsed        *prometheus.CounterVec
	cost              *prometheus.CounterVec

	referenceFetches       *prometheus.CounterVec
	referenceFetchDuration prometheus.Histogram

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	concurrencyRejected prometheus.Counter
}

// Option 调整 Collector 的注册方式
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the series on reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// 转换耗时包含重试退避与降级，最长可达数分钟
var (
	transformBuckets = []float64{1, 2, 5, 10, 20, 30, 60, 120, 240}
	attemptBuckets   = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}
	// base64 图片请求体在 KB 到数十 MB 之间
	sizeBuckets = prometheus.ExponentialBuckets(256, 4, 10)
)

// NewCollector registers all series under namespace.
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	f := factory{auto: promauto.With(o.registerer), namespace: namespace}

	c := &Collector{
		httpRequestsTotal:   f.counter("http_requests_total", "HTTP requests by method, route and status class.", "method", "path", "status"),
		httpRequestDuration: f.histogram("http_request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     f.histogram("http_request_size_bytes", "HTTP request body size.", sizeBuckets, "method", "path"),
		httpResponseSize:    f.histogram("http_response_size_bytes", "HTTP response body size.", sizeBuckets, "method", "path"),

		transformsTotal:   f.counter("transforms_total", "Orchestrated transformations by winning backend, style and outcome.", "provider", "style", "status"),
		transformDuration: f.histogram("transform_duration_seconds", "End-to-end transformation latency including retries and fallback.", transformBuckets, "provider", "style"),
		attemptsTotal:     f.counter("provider_attempts_total", "Single backend calls by outcome.", "provider", "status"),
		attemptDuration:   f.histogram("provider_attempt_duration_seconds", "Single backend call latency.", attemptBuckets, "provider"),
		fallbacksTotal:    f.counter("provider_fallbacks_total", "Switches from one backend to the next.", "from", "to"),
		tokensUsed:        f.counter("tokens_used_total", "Tokens billed by backends.", "provider"),
		cost:              f.counter("cost_usd_total", "Estimated transformation cost in USD.", "provider"),

		referenceFetches: f.counter("reference_fetches_total", "Style reference image fetches by outcome.", "status"),
		referenceFetchDuration: f.auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reference_fetch_duration_seconds",
			Help:      "Style reference image fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),

		cacheHits:   f.counter("cache_hits_total", "Result cache hits.", "cache_type"),
		cacheMisses: f.counter("cache_misses_total", "Result cache misses.", "cache_type"),

		concurrencyRejected: f.auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_rejected_total",
			Help:      "Transforms rejected by the per-user concurrency limit.",
		}),
	}

	if logger != nil {
		logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	}
	return c
}

// factory 给所有向量指标统一加命名空间
type factory struct {
	auto      promauto.Factory
	namespace string
}

func (f factory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return f.auto.NewCounterVec(prometheus.CounterOpts{Namespace: f.namespace, Name: name, Help: help}, labels)
}

func (f factory) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return f.auto.NewHistogramVec(prometheus.HistogramOpts{Namespace: f.namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

// =============================================================================
// 🌐 HTTP
// =============================================================================

// RecordHTTPRequest records one request. path must already be normalized.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// statusClass 按百位折叠状态码
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// =============================================================================
// 🎨 转换
// =============================================================================

// RecordTransform records one orchestrated call. An empty provider means no
// backend was selected.
func (c *Collector) RecordTransform(provider, styleID, status string, duration time.Duration) {
	if provider == "" {
		provider = "none"
	}
	c.transformsTotal.WithLabelValues(provider, styleID, status).Inc()
	c.transformDuration.WithLabelValues(provider, styleID).Observe(duration.Seconds())
}

func (c *Collector) RecordProviderAttempt(provider, status string, duration time.Duration) {
	c.attemptsTotal.WithLabelValues(provider, status).Inc()
	c.attemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (c *Collector) RecordFallback(from, to string) {
	c.fallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordUsage 只累加正值，未上报用量的后端不产生序列
func (c *Collector) RecordUsage(provider string, tokens int, cost float64) {
	if tokens > 0 {
		c.tokensUsed.WithLabelValues(provider).Add(float64(tokens))
	}
	if cost > 0 {
		c.cost.WithLabelValues(provider).Add(cost)
	}
}

func (c *Collector) RecordReferenceFetch(ok bool, duration time.Duration) {
	status := "success"
	if !ok {
		status = "error"
	}
	c.referenceFetches.WithLabelValues(status).Inc()
	c.referenceFetchDuration.Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存与限流
// =============================================================================

func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordConcurrencyRejected() {
	c.concurrencyRejected.Inc()
}
