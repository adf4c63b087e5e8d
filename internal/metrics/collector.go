// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// 截图去重与增强的结果标签.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	VerdictDiscard = "discard"
	VerdictKeep    = "keep"
	VerdictError   = "error"
)

// Collector 指标收集器。所有 Record* 方法对 nil 接收者安全.
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 轨迹指标
	screenshotsAppended  prometheus.Counter
	screenshotsDeduped   prometheus.Counter
	redundancyVerdicts   *prometheus.CounterVec
	enrichmentOutcomes   *prometheus.CounterVec
	enrichmentDuration   prometheus.Histogram
	tasksRejected        *prometheus.CounterVec
	contextBuildDuration prometheus.Histogram
	retrievedImages      prometheus.Histogram

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg。reg 为 nil 时使用默认 Registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 轨迹指标
	c.screenshotsAppended = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "screenshots_appended_total",
		Help:      "Screenshots appended to the trajectory",
	})

	c.screenshotsDeduped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "screenshots_deduplicated_total",
		Help:      "Screenshots dropped because they were pixel-identical to the last kept one",
	})

	c.redundancyVerdicts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redundancy_verdicts_total",
			Help:      "Redundancy checks by verdict",
		},
		[]string{"verdict"}, // discard, keep, error
	)

	c.enrichmentOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Screenshot enrichment runs by outcome",
		},
		[]string{"outcome"},
	)

	c.enrichmentDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enrichment_duration_seconds",
		Help:      "Duration of describe+embed for one screenshot",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	c.tasksRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_rejected_total",
			Help:      "Background tasks the worker pool refused",
		},
		[]string{"task"},
	)

	c.contextBuildDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "context_build_duration_seconds",
		Help:      "Duration of context assembly",
		Buckets:   prometheus.DefBuckets,
	})

	c.retrievedImages = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "context_retrieved_images",
		Help:      "Screenshots spliced into a context by similarity retrieval",
		Buckets:   []float64{0, 1, 5, 10, 20, 40, 80},
	})

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🖼️ 轨迹指标记录
// =============================================================================

// RecordScreenshotAppended 记录一次截图追加，deduped 表示因像素相同被丢弃
func (c *Collector) RecordScreenshotAppended(deduped bool) {
	if c == nil {
		return
	}
	if deduped {
		c.screenshotsDeduped.Inc()
		return
	}
	c.screenshotsAppended.Inc()
}

// RecordRedundancyVerdict 记录冗余检测结论
func (c *Collector) RecordRedundancyVerdict(verdict string) {
	if c == nil {
		return
	}
	c.redundancyVerdicts.WithLabelValues(verdict).Inc()
}

// RecordEnrichment 记录一次截图增强
func (c *Collector) RecordEnrichment(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.enrichmentOutcomes.WithLabelValues(outcome).Inc()
	c.enrichmentDuration.Observe(duration.Seconds())
}

// RecordTaskRejected 记录被后台池拒绝的任务
func (c *Collector) RecordTaskRejected(task string) {
	if c == nil {
		return
	}
	c.tasksRejected.WithLabelValues(task).Inc()
}

// RecordContextBuild 记录上下文组装耗时与检索命中的截图数
func (c *Collector) RecordContextBuild(duration time.Duration, retrieved int) {
	if c == nil {
		return
	}
	c.contextBuildDuration.Observe(duration.Seconds())
	c.retrievedImages.Observe(float64(retrieved))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}
