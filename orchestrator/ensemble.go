package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EnsembleStrategy 集成策略
type EnsembleStrategy string

const (
	// StrategyBestOf 应用选择器挑选最佳结果
	StrategyBestOf EnsembleStrategy = "best_of"
	// StrategyMerge 返回成功结果的原始有序序列（领域特定合并的扩展点）
	StrategyMerge EnsembleStrategy = "merge"
	// StrategyVote 委托给多数决投票（阈值 0.5）
	StrategyVote EnsembleStrategy = "vote"
)

// Selector 从成功结果中选择一个
type Selector func(successes []*types.ExecutionResult) *types.ExecutionResult

// EnsembleOptions executeEnsemble 的选项
type EnsembleOptions struct {
	Strategy EnsembleStrategy
	Timeout  time.Duration
	// best_of 策略的选择器（nil 选第一个成功）
	Selector Selector
}

// EnsembleResult 集成结果
type EnsembleResult struct {
	Strategy EnsembleStrategy         `json:"strategy"`
	Output   any                      `json:"output"`
	Results  []*types.ExecutionResult `json:"results"`
	Failures []*types.ExecutionResult `json:"failures"`
	Duration time.Duration            `json:"duration"`
}

// ExecuteEnsemble 并行执行后按策略组合成功结果。
// 没有任何 Worker 成功时返回错误。
func (o *Orchestrator) ExecuteEnsemble(ctx context.Context, workerIDs []string, task *types.Task, opts EnsembleOptions) (*EnsembleResult, error) {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.executeEnsemble")
	span.SetAttributes(attribute.String("strategy", string(opts.Strategy)))
	defer span.End()

	if opts.Strategy == "" {
		opts.Strategy = StrategyBestOf
	}

	parallel, err := o.ExecuteParallel(ctx, workerIDs, task, ParallelOptions{
		Timeout: opts.Timeout,
		Synthesizer: func([]*types.ExecutionResult) (any, error) {
			return nil, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if len(parallel.Results) == 0 {
		if o.collector != nil {
			o.collector.RecordPatternExecution("ensemble", "failure", time.Since(start))
		}
		return nil, types.NewError(types.ErrNoSuccess, "no worker succeeded, ensemble impossible")
	}

	var output any
	switch opts.Strategy {
	case StrategyMerge:
		output = parallel.Results

	case StrategyVote:
		winner, winning, total, votes := tallyVotes(parallel.Results, nil)
		confidence := winning / total
		output = &ConsensusResult{
			Reached:     confidence > 0.5,
			Winner:      winner,
			Confidence:  confidence,
			Votes:       votes,
			TotalWeight: total,
			Strategy:    StrategyMajority,
			Results:     parallel.Results,
			Failures:    parallel.Failures,
		}

	default: // best_of
		selector := opts.Selector
		if selector == nil {
			selector = func(successes []*types.ExecutionResult) *types.ExecutionResult {
				return successes[0]
			}
		}
		selected := selector(parallel.Results)
		if selected != nil {
			if selected.Value != nil {
				output = selected.Value
			} else {
				output = selected.Decision
			}
		}
	}

	result := &EnsembleResult{
		Strategy: opts.Strategy,
		Output:   output,
		Results:  parallel.Results,
		Failures: parallel.Failures,
		Duration: time.Since(start),
	}
	if o.collector != nil {
		o.collector.RecordPatternExecution("ensemble", "success", result.Duration)
	}
	o.logger.Info("ensemble completed",
		zap.String("strategy", string(opts.Strategy)),
		zap.Int("successes", len(parallel.Results)),
	)
	return result, nil
}
