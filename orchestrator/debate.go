package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/swarmflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DebateOptions executeDebate 的选项
type DebateOptions struct {
	Timeout time.Duration
}

// Critique 单个 Worker 对当前提案的评论
type Critique struct {
	WorkerID string `json:"worker_id"`
	Content  string `json:"content"`
}

// DebateRound 一轮辩论的完整记录
type DebateRound struct {
	Round     int        `json:"round"`
	Proposal  string     `json:"proposal"`
	Critiques []Critique `json:"critiques"`
	Synthesis string     `json:"synthesis"`
}

// DebateResult 辩论结果：最终提案与逐轮历史（下标 1..N）
type DebateResult struct {
	FinalProposal string        `json:"final_proposal"`
	Rounds        []DebateRound `json:"rounds"`
	Duration      time.Duration `json:"duration"`
}

// ExecuteDebate 对议题进行恰好 rounds 轮顺序辩论。
//
// 每轮严格在上一轮完成后开始：所有 Worker 并行评论当前提案，随后第一个
// Worker（担任合成者）消化全部评论并产出改进提案，作为下一轮的输入。
func (o *Orchestrator) ExecuteDebate(ctx context.Context, workerIDs []string, topic string, rounds int, opts DebateOptions) (*DebateResult, error) {
	if len(workerIDs) == 0 {
		return nil, types.NewError(types.ErrWorkerNotFound, "debate requires at least one worker")
	}
	if rounds < 1 {
		return nil, fmt.Errorf("debate requires at least one round, got %d", rounds)
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.executeDebate")
	span.SetAttributes(
		attribute.Int("rounds", rounds),
		attribute.Int("workers", len(workerIDs)),
	)
	defer span.End()

	synthesizerID := workerIDs[0]
	proposal := topic
	history := make([]DebateRound, 0, rounds)

	o.logger.Info("debate started",
		zap.String("synthesizer", synthesizerID),
		zap.Int("rounds", rounds),
		zap.Int("workers", len(workerIDs)),
	)

	for round := 1; round <= rounds; round++ {
		critiques, err := o.collectCritiques(ctx, workerIDs, topic, proposal, round, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("debate round %d: %w", round, err)
		}

		synthesis, err := o.synthesizeProposal(ctx, synthesizerID, topic, proposal, critiques, round, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("debate round %d synthesis: %w", round, err)
		}

		history = append(history, DebateRound{
			Round:     round,
			Proposal:  proposal,
			Critiques: critiques,
			Synthesis: synthesis,
		})
		proposal = synthesis

		o.logger.Debug("debate round completed",
			zap.Int("round", round),
			zap.Int("critiques", len(critiques)),
		)
	}

	result := &DebateResult{
		FinalProposal: proposal,
		Rounds:        history,
		Duration:      time.Since(start),
	}
	if o.collector != nil {
		o.collector.RecordPatternExecution("debate", "success", result.Duration)
	}
	o.logger.Info("debate completed", zap.Duration("duration", result.Duration))
	return result, nil
}

// collectCritiques 并行收集所有 Worker 的评论；单个评论失败仅告警，不中断本轮
func (o *Orchestrator) collectCritiques(ctx context.Context, workerIDs []string, topic, proposal string, round int, timeout time.Duration) ([]Critique, error) {
	slots := make([]*Critique, len(workerIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range workerIDs {
		g.Go(func() error {
			task := types.NewTask("critique", map[string]any{
				"topic":    topic,
				"proposal": proposal,
				"round":    round,
			})
			result := o.dispatchWithRetry(gctx, id, task, timeout, 1)
			if !result.Success {
				o.logger.Warn("critique failed",
					zap.String("worker_id", id),
					zap.Int("round", round),
					zap.Error(result.Err),
				)
				return nil
			}
			slots[i] = &Critique{WorkerID: id, Content: contentOf(result)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	critiques := make([]Critique, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			critiques = append(critiques, *c)
		}
	}
	return critiques, nil
}

// synthesizeProposal 由合成者消化评论并产出改进提案
func (o *Orchestrator) synthesizeProposal(ctx context.Context, synthesizerID, topic, proposal string, critiques []Critique, round int, timeout time.Duration) (string, error) {
	critiqueContents := make([]map[string]any, 0, len(critiques))
	for _, c := range critiques {
		critiqueContents = append(critiqueContents, map[string]any{
			"worker_id": c.WorkerID,
			"content":   c.Content,
		})
	}

	task := types.NewTask("synthesize", map[string]any{
		"topic":     topic,
		"proposal":  proposal,
		"critiques": critiqueContents,
		"round":     round,
	})
	result := o.dispatchWithRetry(ctx, synthesizerID, task, timeout, 1)
	if !result.Success {
		return "", fmt.Errorf("synthesizer %s failed: %w", synthesizerID, result.Err)
	}
	return contentOf(result), nil
}

// contentOf 提取结果的文本内容
func contentOf(r *types.ExecutionResult) string {
	if r.Decision != "" {
		return r.Decision
	}
	if s, ok := r.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", r.Value)
}
