package worker

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"go.uber.org/zap"
)

// maxHistoryRecords 执行历史环形缓冲的上限
const maxHistoryRecords = 100

// ExecuteFunc 实际执行逻辑，由调用方注入（通常封装一次传输层的请求/响应）
type ExecuteFunc func(ctx context.Context, task *types.Task) (*types.ExecutionResult, error)

// BaseWorker 标准 Worker 实现
// 管理状态机、执行统计和有界执行历史（最近 100 条）
type BaseWorker struct {
	id      string
	role    string
	config  Config
	execute ExecuteFunc

	mu         sync.RWMutex
	state      State
	history    []Record
	executions int64
	successes  int64
	failures   int64
	totalDur   time.Duration
	lastActive time.Time

	logger *zap.Logger
}

// NewBaseWorker 创建 BaseWorker
func NewBaseWorker(id, role string, config Config, execute ExecuteFunc, logger *zap.Logger) *BaseWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &BaseWorker{
		id:      id,
		role:    role,
		config:  config,
		execute: execute,
		state:   StateIdle,
		history: make([]Record, 0, maxHistoryRecords),
		logger:  logger.With(zap.String("component", "worker"), zap.String("worker_id", id)),
	}
}

// ID 返回 Worker ID
func (w *BaseWorker) ID() string { return w.id }

// Role 返回 Worker 角色
func (w *BaseWorker) Role() string { return w.role }

// Config 返回 Worker 配置
func (w *BaseWorker) Config() Config { return w.config }

// State 返回当前状态
func (w *BaseWorker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Execute 执行任务
// 状态流转：idle/completed/failed → working → completed|failed
func (w *BaseWorker) Execute(ctx context.Context, task *types.Task) (*types.ExecutionResult, error) {
	w.mu.Lock()
	if w.state == StateDestroyed {
		w.mu.Unlock()
		return nil, types.NewError(types.ErrWorkerDestroyed, "worker is destroyed")
	}
	w.state = StateWorking
	w.lastActive = time.Now()
	w.mu.Unlock()

	start := time.Now()
	result, err := w.execute(ctx, task)
	duration := time.Since(start)

	success := err == nil && result != nil && result.Success
	if result == nil {
		result = types.Failure(w.id, err, duration)
	}
	result.WorkerID = w.id
	result.Duration = duration
	if err != nil {
		result.Success = false
		result.Err = err
	}

	w.recordExecution(task, success, duration, err)

	if err != nil {
		return result, err
	}
	return result, nil
}

// recordExecution 更新统计并追加历史记录，超出上限时丢弃最旧的一条
func (w *BaseWorker) recordExecution(task *types.Task, success bool, duration time.Duration, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.executions++
	w.totalDur += duration
	if success {
		w.successes++
		w.state = StateCompleted
	} else {
		w.failures++
		w.state = StateFailed
	}
	w.lastActive = time.Now()

	rec := Record{
		TaskID:    task.ID,
		TaskType:  task.Type,
		Success:   success,
		Duration:  duration,
		Timestamp: w.lastActive,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	if len(w.history) >= maxHistoryRecords {
		w.history = append(w.history[1:], rec)
	} else {
		w.history = append(w.history, rec)
	}
}

// Stats 返回执行统计
func (w *BaseWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var avg time.Duration
	if w.executions > 0 {
		avg = w.totalDur / time.Duration(w.executions)
	}
	return Stats{
		WorkerID:    w.id,
		Role:        w.role,
		State:       w.state,
		Executions:  w.executions,
		Successes:   w.successes,
		Failures:    w.failures,
		AvgDuration: avg,
		LastActive:  w.lastActive,
	}
}

// History 返回执行历史副本（最多最近 100 条）
func (w *BaseWorker) History() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, len(w.history))
	copy(out, w.history)
	return out
}

// Destroy 销毁 Worker
// 销毁后 Execute 返回 WORKER_DESTROYED，重复销毁为 no-op
func (w *BaseWorker) Destroy(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateDestroyed {
		return nil
	}
	w.state = StateDestroyed
	w.logger.Info("worker destroyed")
	return nil
}
