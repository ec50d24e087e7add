package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"github.com/BaSui01/swarmflow/worker"
	"go.uber.org/zap"
)

// dispatchWithRetry 将任务分发给单个 Worker，封装有界重试与超时竞速。
//
// 重试语义：
//   - 最多 retries 次尝试，尝试之间确定性指数退避（backoffBase × 2^attempt，无抖动）
//   - 超时计为一次失败尝试；该次调用被放弃而非取消，迟到的结果被丢弃
//   - 引用未注册的 Worker 立即失败，不进入重试
//
// 调用方必须将超时视为"结果不确定"，Worker 操作需满足幂等可重试。
func (o *Orchestrator) dispatchWithRetry(ctx context.Context, workerID string, task *types.Task, timeout time.Duration, retries int) *types.ExecutionResult {
	start := time.Now()

	w, ok := o.GetWorker(workerID)
	if !ok {
		o.failures.Add(1)
		o.recordDispatch(workerID, "not_found", time.Since(start))
		return types.Failure(workerID,
			types.NewError(types.ErrWorkerNotFound, "worker not found: "+workerID),
			time.Since(start))
	}

	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}
	if retries < 1 {
		retries = o.config.DefaultRetries
	}

	o.dispatches.Add(1)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			delay := o.config.BackoffBase << (attempt - 1) // 2^(attempt-1) × base
			o.logger.Debug("retrying dispatch",
				zap.String("worker_id", workerID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if o.collector != nil {
				o.collector.RecordDispatchRetry(workerID)
			}
			select {
			case <-ctx.Done():
				o.failures.Add(1)
				o.recordDispatch(workerID, "cancelled", time.Since(start))
				return types.Failure(workerID, fmt.Errorf("dispatch cancelled: %w", ctx.Err()), time.Since(start))
			case <-time.After(delay):
			}
		}

		result, err := o.attemptOnce(ctx, w, task, timeout)
		if err == nil && result != nil && result.Success {
			o.successes.Add(1)
			result.Duration = time.Since(start)
			o.recordDispatch(workerID, "success", result.Duration)
			return result
		}

		if err != nil {
			lastErr = err
		} else if result != nil && result.Err != nil {
			lastErr = result.Err
		} else {
			lastErr = types.NewError(types.ErrNoSuccess, "worker reported unsuccessful result")
		}

		if types.GetErrorCode(lastErr) == types.ErrDispatchTimeout {
			o.timeouts.Add(1)
			if o.collector != nil {
				o.collector.RecordDispatchTimeout(workerID)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	o.failures.Add(1)
	duration := time.Since(start)
	o.recordDispatch(workerID, "failure", duration)
	o.logger.Warn("dispatch failed after retries",
		zap.String("worker_id", workerID),
		zap.Int("attempts", retries),
		zap.Error(lastErr),
	)
	return types.Failure(workerID, lastErr, duration)
}

// attemptOnce 单次尝试：Worker 执行与超时竞速
// 超时后该次执行被放弃（不强制停止），其最终结果被丢弃
func (o *Orchestrator) attemptOnce(ctx context.Context, w worker.Worker, task *types.Task, timeout time.Duration) (*types.ExecutionResult, error) {
	type outcome struct {
		result *types.ExecutionResult
		err    error
	}
	// 缓冲通道：超时后 goroutine 仍可写入并退出，结果被丢弃
	done := make(chan outcome, 1)

	run := func(runCtx context.Context) error {
		result, err := w.Execute(runCtx, task)
		done <- outcome{result, err}
		return err
	}

	if o.dispatch != nil {
		go func() { _ = o.dispatch.SubmitWait(ctx, run) }()
	} else {
		go func() { _ = run(ctx) }()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		return nil, types.NewError(types.ErrDispatchTimeout,
			fmt.Sprintf("dispatch to %s exceeded %s", w.ID(), timeout)).WithRetryable(true)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) recordDispatch(workerID, status string, duration time.Duration) {
	if o.collector != nil {
		o.collector.RecordDispatch(workerID, status, duration)
	}
}
