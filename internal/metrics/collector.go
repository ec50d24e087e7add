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

// Collector 指标收集器
type Collector struct {
	// 调度指标
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchRetries  *prometheus.CounterVec
	dispatchTimeouts *prometheus.CounterVec

	// 编排模式指标
	patternExecutionsTotal *prometheus.CounterVec
	patternDuration        *prometheus.HistogramVec

	// 监督树指标
	restartsTotal     *prometheus.CounterVec
	escalationsTotal  *prometheus.CounterVec
	fatalTotal        prometheus.Counter
	nodesActive       prometheus.Gauge
	checkpointsSaved  prometheus.Counter
	orphansCleaned    prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// reg 为 nil 时使用全局默认 Registerer（测试中传入独立 Registry 避免重复注册）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 调度指标
	c.dispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of worker dispatches",
		},
		[]string{"worker_id", "status"},
	)

	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Worker dispatch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker_id"},
	)

	c.dispatchRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_retries_total",
			Help:      "Total number of dispatch retry attempts",
		},
		[]string{"worker_id"},
	)

	c.dispatchTimeouts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_timeouts_total",
			Help:      "Total number of dispatch timeouts",
		},
		[]string{"worker_id"},
	)

	// 编排模式指标
	c.patternExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_executions_total",
			Help:      "Total number of orchestration pattern executions",
		},
		[]string{"pattern", "status"},
	)

	c.patternDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pattern_duration_seconds",
			Help:      "Orchestration pattern duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"pattern"},
	)

	// 监督树指标
	c.restartsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_restarts_total",
			Help:      "Total number of node restarts",
		},
		[]string{"strategy", "status"},
	)

	c.escalationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_escalations_total",
			Help:      "Total number of failure escalations",
		},
		[]string{"reason"},
	)

	c.fatalTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_fatal_total",
			Help:      "Total number of fatal root failures",
		},
	)

	c.nodesActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervision_nodes_active",
			Help:      "Number of registered supervision nodes",
		},
	)

	c.checkpointsSaved = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_checkpoints_saved_total",
			Help:      "Total number of checkpoints saved",
		},
	)

	c.orphansCleaned = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_orphans_cleaned_total",
			Help:      "Total number of orphaned nodes cleaned up",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordDispatch 记录一次调度的最终结果
func (c *Collector) RecordDispatch(workerID, status string, duration time.Duration) {
	c.dispatchesTotal.WithLabelValues(workerID, status).Inc()
	c.dispatchDuration.WithLabelValues(workerID).Observe(duration.Seconds())
}

// RecordDispatchRetry 记录一次重试
func (c *Collector) RecordDispatchRetry(workerID string) {
	c.dispatchRetries.WithLabelValues(workerID).Inc()
}

// RecordDispatchTimeout 记录一次超时
func (c *Collector) RecordDispatchTimeout(workerID string) {
	c.dispatchTimeouts.WithLabelValues(workerID).Inc()
}

// RecordPatternExecution 记录编排模式执行
func (c *Collector) RecordPatternExecution(pattern, status string, duration time.Duration) {
	c.patternExecutionsTotal.WithLabelValues(pattern, status).Inc()
	c.patternDuration.WithLabelValues(pattern).Observe(duration.Seconds())
}

// RecordRestart 记录节点重启
func (c *Collector) RecordRestart(strategy, status string) {
	c.restartsTotal.WithLabelValues(strategy, status).Inc()
}

// RecordEscalation 记录失败升级
func (c *Collector) RecordEscalation(reason string) {
	c.escalationsTotal.WithLabelValues(reason).Inc()
}

// RecordFatal 记录致命失败
func (c *Collector) RecordFatal() {
	c.fatalTotal.Inc()
}

// SetActiveNodes 更新活跃节点数
func (c *Collector) SetActiveNodes(n int) {
	c.nodesActive.Set(float64(n))
}

// RecordCheckpointSaved 记录检查点保存
func (c *Collector) RecordCheckpointSaved() {
	c.checkpointsSaved.Inc()
}

// RecordOrphansCleaned 记录孤儿节点清理
func (c *Collector) RecordOrphansCleaned(n int) {
	c.orphansCleaned.Add(float64(n))
}
