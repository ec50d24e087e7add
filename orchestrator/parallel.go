package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Synthesizer 将成功结果合成为单一输出
type Synthesizer func(successes []*types.ExecutionResult) (any, error)

// FirstSuccessSynthesizer 默认合成器：返回第一个成功结果的值
func FirstSuccessSynthesizer(successes []*types.ExecutionResult) (any, error) {
	if len(successes) == 0 {
		return nil, nil
	}
	first := successes[0]
	if first.Value != nil {
		return first.Value, nil
	}
	return first.Decision, nil
}

// ParallelOptions executeParallel 的选项
type ParallelOptions struct {
	// 单次调度超时（0 使用编排器默认值）
	Timeout time.Duration
	// 每个调度的最大尝试次数（0 使用编排器默认值）
	Retries int
	// 合成器（nil 使用 FirstSuccessSynthesizer）
	Synthesizer Synthesizer
}

// ParallelResult executeParallel 的结果
// Results 与 Failures 的总数恒等于请求的 Worker 数
type ParallelResult struct {
	// 至少一个 Worker 成功
	Success bool `json:"success"`
	// 合成输出
	Synthesized any `json:"synthesized,omitempty"`
	// 成功结果（按请求的 Worker 顺序）
	Results []*types.ExecutionResult `json:"results"`
	// 失败结果（按请求的 Worker 顺序）
	Failures []*types.ExecutionResult `json:"failures"`
	// 整体耗时
	Duration time.Duration `json:"duration"`
}

// ExecuteParallel 并发地将任务分发给每个指定的 Worker。
//
// 完整的 fan-out/fan-in：等待每个调度的最终结果（成功或重试耗尽）后才继续。
// 结果顺序遵循请求的 workerIDs 顺序，与完成顺序无关。
// 单个 Worker 失败不会使调用本身失败。
func (o *Orchestrator) ExecuteParallel(ctx context.Context, workerIDs []string, task *types.Task, opts ParallelOptions) (*ParallelResult, error) {
	runID := uuid.New().String()
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.executeParallel")
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("workers", len(workerIDs)),
	)
	defer span.End()

	o.logger.Info("parallel execution started",
		zap.String("run_id", runID),
		zap.Int("workers", len(workerIDs)),
		zap.String("task_type", task.Type),
	)

	// fan-out：每个 Worker 一个调度，结果写入固定下标保持请求顺序
	outcomes := make([]*types.ExecutionResult, len(workerIDs))
	var wg sync.WaitGroup
	for i, id := range workerIDs {
		wg.Add(1)
		go func(idx int, workerID string) {
			defer wg.Done()
			outcomes[idx] = o.dispatchWithRetry(ctx, workerID, task, opts.Timeout, opts.Retries)
		}(i, id)
	}
	wg.Wait()

	// fan-in：按请求顺序划分成功与失败
	successes := make([]*types.ExecutionResult, 0, len(outcomes))
	failures := make([]*types.ExecutionResult, 0)
	for _, r := range outcomes {
		if r.Success {
			successes = append(successes, r)
		} else {
			failures = append(failures, r)
		}
	}

	synthesizer := opts.Synthesizer
	if synthesizer == nil {
		synthesizer = FirstSuccessSynthesizer
	}
	synthesized, err := synthesizer(successes)
	if err != nil {
		o.logger.Warn("synthesizer failed", zap.String("run_id", runID), zap.Error(err))
		synthesized = nil
	}

	result := &ParallelResult{
		Success:     len(successes) > 0,
		Synthesized: synthesized,
		Results:     successes,
		Failures:    failures,
		Duration:    time.Since(start),
	}

	status := "success"
	if !result.Success {
		status = "failure"
	}
	if o.collector != nil {
		o.collector.RecordPatternExecution("parallel", status, result.Duration)
	}
	o.logger.Info("parallel execution completed",
		zap.String("run_id", runID),
		zap.Int("successes", len(successes)),
		zap.Int("failures", len(failures)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}
