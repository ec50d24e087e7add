package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/pool"
	"github.com/BaSui01/swarmflow/types"
	"github.com/BaSui01/swarmflow/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Orchestrator Worker 注册表与五种编排模式的入口
// Worker 由 Orchestrator 独占持有，注销时销毁
type Orchestrator struct {
	mu      sync.RWMutex
	workers map[string]worker.Worker

	config    config.OrchestratorConfig
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
	dispatch  *pool.DispatchPool

	// 计数器
	dispatches atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	timeouts   atomic.Int64
}

// Option 配置 Orchestrator 的可选项
type Option func(*Orchestrator)

// WithMetrics 注入 Prometheus 指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// NewOrchestrator 创建 Orchestrator
func NewOrchestrator(cfg config.OrchestratorConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = config.DefaultOrchestratorConfig().DefaultTimeout
	}
	if cfg.DefaultRetries < 1 {
		cfg.DefaultRetries = config.DefaultOrchestratorConfig().DefaultRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = config.DefaultOrchestratorConfig().BackoffBase
	}

	o := &Orchestrator{
		workers: make(map[string]worker.Worker),
		config:  cfg,
		logger:  logger.With(zap.String("component", "orchestrator")),
		tracer:  otel.Tracer("swarmflow/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.MaxConcurrency > 0 {
		o.dispatch = pool.NewDispatchPool(cfg.MaxConcurrency)
	}
	return o
}

// RegisterWorker 注册 Worker，ID 重复时报错
func (o *Orchestrator) RegisterWorker(w worker.Worker) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.workers[w.ID()]; exists {
		return types.NewError(types.ErrWorkerExists, "worker already registered: "+w.ID())
	}
	o.workers[w.ID()] = w
	o.logger.Info("worker registered", zap.String("worker_id", w.ID()))
	return nil
}

// UnregisterWorker 注销并销毁 Worker，释放其订阅
func (o *Orchestrator) UnregisterWorker(ctx context.Context, workerID string) error {
	o.mu.Lock()
	w, ok := o.workers[workerID]
	if ok {
		delete(o.workers, workerID)
	}
	o.mu.Unlock()

	if !ok {
		return types.NewError(types.ErrWorkerNotFound, "worker not found: "+workerID)
	}

	if err := w.Destroy(ctx); err != nil {
		o.logger.Warn("worker destroy failed",
			zap.String("worker_id", workerID),
			zap.Error(err),
		)
		return err
	}
	o.logger.Info("worker unregistered", zap.String("worker_id", workerID))
	return nil
}

// GetWorker 查找 Worker
func (o *Orchestrator) GetWorker(workerID string) (worker.Worker, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[workerID]
	return w, ok
}

// WorkerIDs 返回已注册 Worker ID 列表（无序）
func (o *Orchestrator) WorkerIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.workers))
	for id := range o.workers {
		ids = append(ids, id)
	}
	return ids
}

// Stats Orchestrator 聚合统计
type Stats struct {
	Workers     int                     `json:"workers"`
	Dispatches  int64                   `json:"dispatches"`
	Successes   int64                   `json:"successes"`
	Failures    int64                   `json:"failures"`
	Timeouts    int64                   `json:"timeouts"`
	WorkerStats map[string]worker.Stats `json:"worker_stats"`
}

// GetStats 返回聚合统计
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ws := make(map[string]worker.Stats, len(o.workers))
	for id, w := range o.workers {
		ws[id] = w.Stats()
	}
	return Stats{
		Workers:     len(o.workers),
		Dispatches:  o.dispatches.Load(),
		Successes:   o.successes.Load(),
		Failures:    o.failures.Load(),
		Timeouts:    o.timeouts.Load(),
		WorkerStats: ws,
	}
}

// Destroy 销毁所有 Worker 并关闭调度池
func (o *Orchestrator) Destroy(ctx context.Context) error {
	o.mu.Lock()
	workers := o.workers
	o.workers = make(map[string]worker.Worker)
	o.mu.Unlock()

	var errs []error
	for id, w := range workers {
		if err := w.Destroy(ctx); err != nil {
			errs = append(errs, err)
			o.logger.Warn("worker destroy failed", zap.String("worker_id", id), zap.Error(err))
		}
	}
	if o.dispatch != nil {
		o.dispatch.Close()
	}
	o.logger.Info("orchestrator destroyed", zap.Int("workers", len(workers)))
	return errors.Join(errs...)
}
