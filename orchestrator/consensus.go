package orchestrator

import (
	"context"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ConsensusStrategy 共识策略
type ConsensusStrategy string

const (
	// StrategyMajority 多数决：confidence > threshold
	StrategyMajority ConsensusStrategy = "majority"
	// StrategyUnanimous 全体一致：confidence = 1.0
	StrategyUnanimous ConsensusStrategy = "unanimous"
	// StrategyWeighted 加权：confidence >= threshold
	StrategyWeighted ConsensusStrategy = "weighted"
)

// ConsensusOptions executeWithConsensus 的选项
type ConsensusOptions struct {
	Strategy  ConsensusStrategy
	Threshold float64
	// 每个 Worker 的投票权重（缺省为 1）
	Weights map[string]float64
	Timeout time.Duration
}

// ConsensusResult 共识结果
// Reached 为 false 且无错误时表示"有 Worker 成功但置信度不足"
type ConsensusResult struct {
	Reached     bool                     `json:"reached"`
	Winner      string                   `json:"winner"`
	Confidence  float64                  `json:"confidence"`
	Votes       map[string]float64       `json:"votes"`
	TotalWeight float64                  `json:"total_weight"`
	Strategy    ConsensusStrategy        `json:"strategy"`
	Results     []*types.ExecutionResult `json:"results"`
	Failures    []*types.ExecutionResult `json:"failures"`
	Duration    time.Duration            `json:"duration"`
}

// ExecuteWithConsensus 并行执行后对成功结果的投票键做加权计票。
//
// 胜者是累计权重严格最大的键；平局由枚举顺序决定（最先达到最终最大值的
// 键保持胜位，不随机）。confidence = 胜者权重 ÷ 所有成功者的总权重。
// 没有任何 Worker 成功时返回错误。
func (o *Orchestrator) ExecuteWithConsensus(ctx context.Context, workerIDs []string, task *types.Task, opts ConsensusOptions) (*ConsensusResult, error) {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.executeWithConsensus")
	span.SetAttributes(attribute.String("strategy", string(opts.Strategy)))
	defer span.End()

	if opts.Strategy == "" {
		opts.Strategy = StrategyMajority
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.5
	}

	// 共识自行计票，合成器为 no-op
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
			o.collector.RecordPatternExecution("consensus", "failure", time.Since(start))
		}
		return nil, types.NewError(types.ErrNoSuccess, "no worker succeeded, consensus impossible")
	}

	winner, winning, total, votes := tallyVotes(parallel.Results, opts.Weights)
	confidence := winning / total

	reached := false
	switch opts.Strategy {
	case StrategyUnanimous:
		reached = confidence == 1.0
	case StrategyWeighted:
		reached = confidence >= opts.Threshold
	default: // majority
		reached = confidence > opts.Threshold
	}

	result := &ConsensusResult{
		Reached:     reached,
		Winner:      winner,
		Confidence:  confidence,
		Votes:       votes,
		TotalWeight: total,
		Strategy:    opts.Strategy,
		Results:     parallel.Results,
		Failures:    parallel.Failures,
		Duration:    time.Since(start),
	}

	status := "reached"
	if !reached {
		status = "not_reached"
	}
	if o.collector != nil {
		o.collector.RecordPatternExecution("consensus", status, result.Duration)
	}
	o.logger.Info("consensus completed",
		zap.String("strategy", string(opts.Strategy)),
		zap.String("winner", winner),
		zap.Float64("confidence", confidence),
		zap.Bool("reached", reached),
	)

	return result, nil
}

// tallyVotes 加权计票
// 键按首次出现顺序枚举；胜者是第一个达到最终最大累计权重的键
func tallyVotes(successes []*types.ExecutionResult, weights map[string]float64) (winner string, winning, total float64, votes map[string]float64) {
	votes = make(map[string]float64, len(successes))
	order := make([]string, 0, len(successes))

	for _, r := range successes {
		key := r.VoteKey()
		weight := 1.0
		if w, ok := weights[r.WorkerID]; ok {
			weight = w
		}
		if _, seen := votes[key]; !seen {
			order = append(order, key)
		}
		votes[key] += weight
		total += weight
	}

	for _, key := range order {
		if votes[key] > winning {
			winning = votes[key]
			winner = key
		}
	}
	return winner, winning, total, votes
}
